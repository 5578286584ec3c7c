package directory

import (
	"context"
	"errors"

	"tasktrail.org/internal/authz"
)

// Resolver adapts the organization store to the decision engine's
// hierarchy interface. One read per call, no caching.
type Resolver struct {
	store Store
}

var _ authz.HierarchyResolver = (*Resolver)(nil)

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// ChildOrganizationIDs returns the ids of the direct children of orgID.
func (r *Resolver) ChildOrganizationIDs(ctx context.Context, orgID string) ([]string, error) {
	children, err := r.store.Organizations(ctx).ListByParent(ctx, orgID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(children))
	for _, org := range children {
		ids = append(ids, org.ID)
	}
	return ids, nil
}

// Lookup adapts the user store to the ownership-assignment validator.
type Lookup struct {
	store Store
}

var _ authz.UserLookup = (*Lookup)(nil)

func NewLookup(store Store) *Lookup {
	return &Lookup{store: store}
}

// LookupUser resolves a user id into the narrow record the validator needs.
// A missing user maps to authz.ErrUserNotFound so the caller can distinguish
// not-found from denial.
func (l *Lookup) LookupUser(ctx context.Context, id string) (authz.UserRecord, error) {
	user, err := l.store.Users(ctx).Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return authz.UserRecord{}, authz.ErrUserNotFound
		}
		return authz.UserRecord{}, err
	}
	return authz.UserRecord{ID: user.ID, OrganizationID: user.OrganizationID}, nil
}
