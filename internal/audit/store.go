package audit

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidInput = errors.New("audit: invalid input")

// Filter selects and orders entries for a query. Zero values mean "no
// restriction" except Success, which uses a pointer so false is filterable.
type Filter struct {
	UserID     string
	Action     Action
	Resource   Resource
	ResourceID string
	Success    *bool
	// Search matches against error messages, case-insensitively.
	Search    string
	StartDate *time.Time
	EndDate   *time.Time

	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// Store is the persistence contract of the recorder: append-only writes plus
// the read shapes Query and Stats need. Entries are never updated or deleted.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// Query returns one page of matching entries plus the total match count.
	Query(ctx context.Context, f Filter) ([]Entry, int64, error)
	// Count counts entries, optionally restricted to one success outcome.
	Count(ctx context.Context, success *bool) (int64, error)
	// CountByAction and CountByResource group the full entry set.
	CountByAction(ctx context.Context) (map[string]int64, error)
	CountByResource(ctx context.Context) (map[string]int64, error)
}
