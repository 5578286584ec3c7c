package authz

import "fmt"

// Role is the closed set of roles recognized by the decision engine.
// Comparisons are made on role identity, never on numeric level, so inserting
// a role between existing ones cannot silently widen access.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

// Level returns the numeric rank implied by the role. The level is always
// derived; it is never stored independently of the role itself.
func (r Role) Level() int {
	switch r {
	case RoleViewer:
		return 0
	case RoleAdmin:
		return 1
	case RoleOwner:
		return 2
	default:
		return -1
	}
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	return r == RoleViewer || r == RoleAdmin || r == RoleOwner
}

// ParseRole normalizes a role claim coming from a token payload.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return role, nil
}
