package authz

import "context"

// UserRecord carries the fields of a user relevant to ownership assignment.
type UserRecord struct {
	ID             string
	OrganizationID string
}

// UserLookup resolves a user id to its record. Implementations return
// ErrUserNotFound when the id is unknown.
type UserLookup interface {
	LookupUser(ctx context.Context, id string) (UserRecord, error)
}

// ValidateOwnerAssignment decides whether the principal may assign a task to
// the proposed owner. It runs in addition to the create/update decision, not
// instead of it. An unknown owner id surfaces as ErrUserNotFound so callers
// can report a not-found condition rather than a denial.
//
// The task's organization is always stamped from the principal's organization
// afterwards, never from the assigned owner's, so a task may legitimately end
// up owned by a user from a child organization.
func ValidateOwnerAssignment(ctx context.Context, p Principal, proposedOwnerID string, lookup UserLookup, resolver HierarchyResolver) (UserRecord, Decision, error) {
	owner, err := lookup.LookupUser(ctx, proposedOwnerID)
	if err != nil {
		return UserRecord{}, Decision{}, err
	}

	switch p.Role {
	case RoleOwner:
		orgIDs, err := ComputeAccessibleOrganizationIDs(ctx, p, resolver)
		if err != nil {
			return UserRecord{}, Decision{}, err
		}
		for _, id := range orgIDs {
			if id == owner.OrganizationID {
				return owner, Allow(), nil
			}
		}
		return UserRecord{}, Deny(reasonAssignHierarchy), nil
	case RoleAdmin:
		if owner.OrganizationID == p.OrganizationID {
			return owner, Allow(), nil
		}
		return UserRecord{}, Deny(reasonAssignOrg), nil
	default:
		if proposedOwnerID == p.ID {
			return owner, Allow(), nil
		}
		return UserRecord{}, Deny(reasonAssignSelf), nil
	}
}
