package audit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tasktrail.org/internal/ids"
	"tasktrail.org/internal/obs"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// sortColumns whitelists the fields a query may sort by.
var sortColumns = map[string]struct{}{
	"timestamp": {},
	"action":    {},
	"resource":  {},
	"user_id":   {},
	"success":   {},
}

// Recorder appends immutable entries and serves the query/stats contract.
// It does not check authorization; gating reads behind CanViewAuditLog is the
// caller's job.
type Recorder struct {
	store Store
	now   func() time.Time
}

// RecorderOption configures Recorder behavior.
type RecorderOption func(*Recorder)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder over the given store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append records one action. The recorder assigns the id and timestamp;
// success defaults to true when the draft leaves it unset.
func (r *Recorder) Append(ctx context.Context, draft Draft) (*Entry, error) {
	if strings.TrimSpace(draft.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if !draft.Action.Valid() {
		return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, draft.Action)
	}
	if !draft.Resource.Valid() {
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, draft.Resource)
	}

	success := true
	if draft.Success != nil {
		success = *draft.Success
	}
	entry := &Entry{
		ID:           ids.New(),
		UserID:       draft.UserID,
		Action:       draft.Action,
		Resource:     draft.Resource,
		ResourceID:   draft.ResourceID,
		Details:      draft.Details,
		IPAddress:    draft.IPAddress,
		UserAgent:    draft.UserAgent,
		Timestamp:    r.now().UTC(),
		Success:      success,
		ErrorMessage: draft.ErrorMessage,
	}
	if err := r.store.Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Pagination describes the page shape of a query response.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// Page is one page of audit entries.
type Page struct {
	Data       []Entry    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// Query returns the filtered, sorted, paginated entries. Defaults: sort by
// timestamp descending, page 1, limit 20; limit is clamped to 100. When only
// one bound of the date range is given the other defaults to the epoch / now.
func (r *Recorder) Query(ctx context.Context, f Filter) (*Page, error) {
	norm, err := r.normalize(f)
	if err != nil {
		return nil, err
	}
	entries, total, err := r.store.Query(ctx, norm)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	totalPages := int(math.Ceil(float64(total) / float64(norm.Limit)))
	return &Page{
		Data: entries,
		Pagination: Pagination{
			Page:        norm.Page,
			Limit:       norm.Limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: norm.Page < totalPages,
			HasPrevPage: norm.Page > 1,
		},
	}, nil
}

// Stats is a point-in-time aggregate over the full entry set.
type Stats struct {
	TotalLogs         int64            `json:"totalLogs"`
	SuccessfulActions int64            `json:"successfulActions"`
	FailedActions     int64            `json:"failedActions"`
	ActionBreakdown   map[string]int64 `json:"actionBreakdown"`
	ResourceBreakdown map[string]int64 `json:"resourceBreakdown"`
}

// Stats computes the aggregate counters at call time; nothing is maintained
// incrementally.
func (r *Recorder) Stats(ctx context.Context) (*Stats, error) {
	total, err := r.store.Count(ctx, nil)
	if err != nil {
		return nil, err
	}
	succeeded := true
	ok, err := r.store.Count(ctx, &succeeded)
	if err != nil {
		return nil, err
	}
	failed := false
	bad, err := r.store.Count(ctx, &failed)
	if err != nil {
		return nil, err
	}
	byAction, err := r.store.CountByAction(ctx)
	if err != nil {
		return nil, err
	}
	byResource, err := r.store.CountByResource(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		TotalLogs:         total,
		SuccessfulActions: ok,
		FailedActions:     bad,
		ActionBreakdown:   byAction,
		ResourceBreakdown: byResource,
	}, nil
}

func (r *Recorder) normalize(f Filter) (Filter, error) {
	if f.Action != "" && !f.Action.Valid() {
		return Filter{}, fmt.Errorf("%w: unknown action %q", ErrInvalidInput, f.Action)
	}
	if f.Resource != "" && !f.Resource.Valid() {
		return Filter{}, fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, f.Resource)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.SortBy == "" {
		f.SortBy = "timestamp"
	}
	if _, ok := sortColumns[f.SortBy]; !ok {
		return Filter{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidInput, f.SortBy)
	}
	switch strings.ToLower(f.SortOrder) {
	case "", "desc":
		f.SortOrder = "desc"
	case "asc":
		f.SortOrder = "asc"
	default:
		return Filter{}, fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidInput)
	}
	if f.StartDate != nil || f.EndDate != nil {
		if f.StartDate == nil {
			epoch := time.Unix(0, 0).UTC()
			f.StartDate = &epoch
		}
		if f.EndDate == nil {
			now := r.now().UTC()
			f.EndDate = &now
		}
	}
	return f, nil
}

// Record is the fire-and-forget wrapper around Append: the write is attempted,
// a failure is logged locally and counted, and the caller's flow continues
// unaffected. Audit completeness is best-effort, not a correctness requirement
// of the operation that triggered it.
func Record(ctx context.Context, rec *Recorder, draft Draft) {
	if rec == nil {
		return
	}
	if meta := RequestMetaFromContext(ctx); draft.IPAddress == "" && draft.UserAgent == "" {
		draft.IPAddress = meta.IPAddress
		draft.UserAgent = meta.UserAgent
	}
	if _, err := rec.Append(ctx, draft); err != nil {
		obs.AuditAppendFailure()
		obs.LogRequest(map[string]any{
			"ts":       time.Now().UTC().Format(time.RFC3339Nano),
			"level":    "error",
			"msg":      "audit append failed",
			"action":   string(draft.Action),
			"resource": string(draft.Resource),
			"user_id":  draft.UserID,
			"error":    err.Error(),
		})
	}
}
