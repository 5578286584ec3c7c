package task

import (
	"context"

	"tasktrail.org/internal/authz"
)

// ListQuery combines the authorization scope with the caller's filters.
// Scope is mandatory and always produced by authz.ListTasksScope; the store
// must apply it before any other condition.
type ListQuery struct {
	Scope authz.TaskScope

	Status   Status
	Priority Priority
	Category Category
	// Search matches title and description, case-insensitively.
	Search string

	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// Store describes the persistence operations the orchestrator needs.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Find(ctx context.Context, id string) (*Task, error)
	Update(ctx context.Context, t *Task) error
	Delete(ctx context.Context, id string) error
	// List returns one page of tasks in scope plus the total match count.
	List(ctx context.Context, q ListQuery) ([]*Task, int64, error)
}
