package authz

import "errors"

var (
	// ErrUserNotFound signals that a referenced user does not exist. It is a
	// not-found condition, deliberately distinct from a denial.
	ErrUserNotFound = errors.New("user not found")

	// ErrViewerScope is returned when organization-level scoping is requested
	// for a viewer; viewers are scoped to their own tasks, not organizations.
	ErrViewerScope = errors.New("authz: viewers are scoped by ownership, not organization")

	ErrInvalidInput = errors.New("authz: invalid input")
)

// DeniedError carries the user-facing reason of a policy denial. Transports
// surface it as a 403-class error with the reason verbatim.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string { return e.Reason }
