package directory

import (
	"time"

	"tasktrail.org/internal/authz"
)

// Organization is a tenant. The hierarchy is two levels deep at most: an
// organization with a parent never has children of its own. That invariant is
// enforced by the persistence layer and assumed everywhere else.
type Organization struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// User is a member of exactly one organization with exactly one role.
type User struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organizationId"`
	Email          string     `json:"email"`
	PasswordHash   string     `json:"-"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Role           authz.Role `json:"role"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// FullName joins the user's names for display and audit detail payloads.
func (u *User) FullName() string {
	return u.FirstName + " " + u.LastName
}
