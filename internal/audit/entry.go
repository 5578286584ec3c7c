package audit

import "time"

// Action enumerates the recordable action kinds.
type Action string

const (
	ActionCreate     Action = "create"
	ActionRead       Action = "read"
	ActionUpdate     Action = "update"
	ActionDelete     Action = "delete"
	ActionLogin      Action = "login"
	ActionLogout     Action = "logout"
	ActionRegister   Action = "register"
	ActionBulkUpdate Action = "bulk_update"
)

// Valid reports whether the action belongs to the closed set.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete,
		ActionLogin, ActionLogout, ActionRegister, ActionBulkUpdate:
		return true
	}
	return false
}

// Resource enumerates the resource kinds an entry can refer to.
type Resource string

const (
	ResourceTask         Resource = "task"
	ResourceUser         Resource = "user"
	ResourceOrganization Resource = "organization"
	ResourceAuth         Resource = "auth"
	ResourceAuditLog     Resource = "audit_log"
)

// Valid reports whether the resource belongs to the closed set.
func (r Resource) Valid() bool {
	switch r {
	case ResourceTask, ResourceUser, ResourceOrganization, ResourceAuth, ResourceAuditLog:
		return true
	}
	return false
}

// Entry is one immutable record of an attempted action and its outcome.
// Once written it is never mutated or deleted.
type Entry struct {
	ID           string         `json:"id"`
	UserID       string         `json:"userId"`
	Action       Action         `json:"action"`
	Resource     Resource       `json:"resource"`
	ResourceID   string         `json:"resourceId,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

// Draft is an entry before the recorder assigns its id and timestamp.
// Success defaults to true when left nil.
type Draft struct {
	UserID       string
	Action       Action
	Resource     Resource
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	UserAgent    string
	Success      *bool
	ErrorMessage string
}
