package authz

import "context"

// Decision is the outcome of a single authorization check. A denied decision
// always carries a specific human-readable reason.
type Decision struct {
	allowed bool
	reason  string
}

// Allow grants the checked action.
func Allow() Decision { return Decision{allowed: true} }

// Deny refuses the checked action with the given reason.
func Deny(reason string) Decision { return Decision{reason: reason} }

// Allowed reports whether the action was granted.
func (d Decision) Allowed() bool { return d.allowed }

// Reason returns the denial reason, empty for allowed decisions.
func (d Decision) Reason() string { return d.reason }

// Err converts a denial into a *DeniedError; allowed decisions yield nil.
func (d Decision) Err() error {
	if d.allowed {
		return nil
	}
	return &DeniedError{Reason: d.reason}
}

// Denial reasons surfaced verbatim to callers.
const (
	reasonCreateTask      = "only owners and admins can create tasks"
	reasonTaskAccess      = "access denied to this task"
	reasonDeleteTask      = "you can only delete your own tasks or be an admin or owner"
	reasonViewAuditLog    = "only owners and admins can view audit logs"
	reasonAssignHierarchy = "cannot assign task to user outside your organization hierarchy"
	reasonAssignOrg       = "cannot assign task to user outside your organization"
	reasonAssignSelf      = "you can only assign tasks to yourself"
	reasonBulkUpdate      = "you can only update your own tasks"
)

// TaskRecord carries the authorization-relevant fields of a task. The task
// package converts its richer model down to this record before asking for a
// decision, keeping this package free of storage concerns.
type TaskRecord struct {
	ID             string
	OwnerID        string
	OrganizationID string
}

// HierarchyResolver returns the direct children of an organization. The
// hierarchy is at most two levels deep, so a single lookup is always enough;
// that property is guaranteed by the persistence layer, not re-checked here.
type HierarchyResolver interface {
	ChildOrganizationIDs(ctx context.Context, orgID string) ([]string, error)
}

// CanCreateTask grants task creation to owners and admins only. Viewers are
// denied unconditionally, regardless of organization.
func CanCreateTask(p Principal) Decision {
	if p.Role == RoleOwner || p.Role == RoleAdmin {
		return Allow()
	}
	return Deny(reasonCreateTask)
}

// ComputeAccessibleOrganizationIDs resolves the set of organizations whose
// resources the principal may reach: the owner's own organization plus its
// direct children, or just the admin's own organization. Viewers are scoped
// to themselves and must be special-cased before calling this.
func ComputeAccessibleOrganizationIDs(ctx context.Context, p Principal, resolver HierarchyResolver) ([]string, error) {
	switch p.Role {
	case RoleOwner:
		children, err := resolver.ChildOrganizationIDs(ctx, p.OrganizationID)
		if err != nil {
			return nil, err
		}
		return append([]string{p.OrganizationID}, children...), nil
	case RoleAdmin:
		return []string{p.OrganizationID}, nil
	default:
		return nil, ErrViewerScope
	}
}

// CanViewOrUpdateTask decides read and update access to a single task.
// Owners reach tasks across their organization and its direct children,
// admins only their own organization, viewers only tasks they own.
func CanViewOrUpdateTask(ctx context.Context, p Principal, task TaskRecord, resolver HierarchyResolver) (Decision, error) {
	switch p.Role {
	case RoleOwner:
		orgIDs, err := ComputeAccessibleOrganizationIDs(ctx, p, resolver)
		if err != nil {
			return Decision{}, err
		}
		for _, id := range orgIDs {
			if id == task.OrganizationID {
				return Allow(), nil
			}
		}
		return Deny(reasonTaskAccess), nil
	case RoleAdmin:
		if task.OrganizationID == p.OrganizationID {
			return Allow(), nil
		}
		return Deny(reasonTaskAccess), nil
	case RoleViewer:
		if task.OwnerID == p.ID {
			return Allow(), nil
		}
		return Deny(reasonTaskAccess), nil
	default:
		return Deny(reasonTaskAccess), nil
	}
}

// CanDeleteTask allows deletion for owners and admins of any organization,
// and for the task's own owner regardless of role. Organization membership is
// deliberately not checked here; see DESIGN.md for the recorded rationale.
func CanDeleteTask(p Principal, task TaskRecord) Decision {
	if p.Role == RoleOwner || p.Role == RoleAdmin {
		return Allow()
	}
	if task.OwnerID == p.ID {
		return Allow()
	}
	return Deny(reasonDeleteTask)
}

// CanBulkUpdateTask guards board-style bulk edits (status, sort order). It
// mirrors the deletion rule: role alone suffices for owners and admins, and
// the task's own owner is always allowed.
func CanBulkUpdateTask(p Principal, task TaskRecord) Decision {
	if p.Role == RoleOwner || p.Role == RoleAdmin {
		return Allow()
	}
	if task.OwnerID == p.ID {
		return Allow()
	}
	return Deny(reasonBulkUpdate)
}

// CanViewAuditLog gates the audit query and stats endpoints.
func CanViewAuditLog(p Principal) Decision {
	if p.Role == RoleOwner || p.Role == RoleAdmin {
		return Allow()
	}
	return Deny(reasonViewAuditLog)
}

// TaskScope is the authorization-aware query shape for task listings.
// Exactly one of the two fields is populated.
type TaskScope struct {
	// OrganizationIDs restricts the listing to tasks belonging to these
	// organizations (owners and admins).
	OrganizationIDs []string
	// OwnerID restricts the listing to tasks owned by this user (viewers).
	OwnerID string
}

// ListTasksScope produces the filter the persistence layer must apply when
// listing tasks for the principal. It is a query shape, not a per-item check.
func ListTasksScope(ctx context.Context, p Principal, resolver HierarchyResolver) (TaskScope, error) {
	switch p.Role {
	case RoleOwner, RoleAdmin:
		orgIDs, err := ComputeAccessibleOrganizationIDs(ctx, p, resolver)
		if err != nil {
			return TaskScope{}, err
		}
		return TaskScope{OrganizationIDs: orgIDs}, nil
	default:
		return TaskScope{OwnerID: p.ID}, nil
	}
}
