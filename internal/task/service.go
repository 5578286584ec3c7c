package task

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tasktrail.org/internal/audit"
	"tasktrail.org/internal/authz"
	"tasktrail.org/internal/obs"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

var listSortColumns = map[string]struct{}{
	"created_at": {},
	"updated_at": {},
	"due_date":   {},
	"title":      {},
	"status":     {},
	"priority":   {},
	"sort_order": {},
}

// Service orchestrates task mutations: every call asks the decision engine
// first, then touches the store, then records an audit entry best-effort. An
// audit write failure is logged and swallowed; it never changes the outcome
// of the primary operation.
type Service struct {
	store    Store
	resolver authz.HierarchyResolver
	lookup   authz.UserLookup
	recorder *audit.Recorder
	now      func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the orchestrator. The recorder may be nil, in which
// case auditing is disabled entirely.
func NewService(store Store, resolver authz.HierarchyResolver, lookup authz.UserLookup, recorder *audit.Recorder, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		lookup:   lookup,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput carries the caller-supplied fields of a new task.
type CreateInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Category    Category   `json:"category"`
	DueDate     *time.Time `json:"dueDate"`
	SortOrder   int        `json:"sortOrder"`
	// OwnerID optionally assigns the task to someone other than the creator;
	// it must pass the ownership assignment rules.
	OwnerID string `json:"ownerId"`
}

// Create builds a task owned by the principal (or a validated assignee) in
// the principal's organization. The organization always comes from the
// creator, even when the owner resolves to a child organization.
func (s *Service) Create(ctx context.Context, p authz.Principal, in CreateInput) (*Task, error) {
	d := authz.CanCreateTask(p)
	obs.AuthzDecision("task.create", d.Allowed())
	if err := d.Err(); err != nil {
		return nil, err
	}

	ownerID := p.ID
	if in.OwnerID != "" {
		owner, decision, err := authz.ValidateOwnerAssignment(ctx, p, in.OwnerID, s.lookup, s.resolver)
		if err != nil {
			return nil, err
		}
		obs.AuthzDecision("task.assign", decision.Allowed())
		if err := decision.Err(); err != nil {
			return nil, err
		}
		ownerID = owner.ID
	}

	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Status == "" {
		in.Status = StatusTodo
	}
	if in.Priority == "" {
		in.Priority = PriorityMedium
	}
	if in.Category == "" {
		in.Category = CategoryOther
	}
	if !in.Status.Valid() || !in.Priority.Valid() || !in.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown status, priority or category", ErrInvalidInput)
	}

	t := &Task{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		Status:         in.Status,
		Priority:       in.Priority,
		Category:       in.Category,
		DueDate:        in.DueDate,
		SortOrder:      in.SortOrder,
		OwnerID:        ownerID,
		OrganizationID: p.OrganizationID,
	}
	if err := s.store.Create(ctx, t); err != nil {
		return nil, err
	}

	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:     p.ID,
		Action:     audit.ActionCreate,
		Resource:   audit.ResourceTask,
		ResourceID: t.ID,
		Details: map[string]any{
			"title":    t.Title,
			"status":   string(t.Status),
			"priority": string(t.Priority),
			"ownerId":  t.OwnerID,
		},
	})
	return t, nil
}

// Get returns one task if the principal may see it.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*Task, error) {
	t, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := authz.CanViewOrUpdateTask(ctx, p, t.Record(), s.resolver)
	if err != nil {
		return nil, err
	}
	obs.AuthzDecision("task.view", d.Allowed())
	if err := d.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// Pagination mirrors the audit page shape for task listings.
type Pagination struct {
	Page        int   `json:"page"`
	Limit       int   `json:"limit"`
	Total       int64 `json:"total"`
	TotalPages  int   `json:"totalPages"`
	HasNextPage bool  `json:"hasNextPage"`
	HasPrevPage bool  `json:"hasPrevPage"`
}

// ListResult is one page of tasks.
type ListResult struct {
	Data       []*Task    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

// ListInput carries the caller's listing filters; the scope is derived from
// the principal, never from the input.
type ListInput struct {
	Status    Status
	Priority  Priority
	Category  Category
	Search    string
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

// List returns the tasks visible to the principal: organization-scoped for
// owners and admins, ownership-scoped for viewers.
func (s *Service) List(ctx context.Context, p authz.Principal, in ListInput) (*ListResult, error) {
	scope, err := authz.ListTasksScope(ctx, p, s.resolver)
	if err != nil {
		return nil, err
	}
	q, err := normalizeListQuery(scope, in)
	if err != nil {
		return nil, err
	}
	tasks, total, err := s.store.List(ctx, q)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	totalPages := int(math.Ceil(float64(total) / float64(q.Limit)))
	return &ListResult{
		Data: tasks,
		Pagination: Pagination{
			Page:        q.Page,
			Limit:       q.Limit,
			Total:       total,
			TotalPages:  totalPages,
			HasNextPage: q.Page < totalPages,
			HasPrevPage: q.Page > 1,
		},
	}, nil
}

// UpdateInput applies partial changes; nil fields are left untouched.
type UpdateInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Status      *Status    `json:"status"`
	Priority    *Priority  `json:"priority"`
	Category    *Category  `json:"category"`
	DueDate     *time.Time `json:"dueDate"`
	SortOrder   *int       `json:"sortOrder"`
	OwnerID     *string    `json:"ownerId"`
}

// Update mutates a task after both the access decision and, when the owner
// changes, the assignment validation pass. Moving into done stamps
// CompletedAt; moving out of done clears it.
func (s *Service) Update(ctx context.Context, p authz.Principal, id string, in UpdateInput) (*Task, error) {
	t, err := s.store.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	d, err := authz.CanViewOrUpdateTask(ctx, p, t.Record(), s.resolver)
	if err != nil {
		return nil, err
	}
	obs.AuthzDecision("task.update", d.Allowed())
	if err := d.Err(); err != nil {
		return nil, err
	}

	previousOwner := t.OwnerID
	previousStatus := t.Status
	var changed []string

	if in.OwnerID != nil && *in.OwnerID != t.OwnerID {
		owner, decision, err := authz.ValidateOwnerAssignment(ctx, p, *in.OwnerID, s.lookup, s.resolver)
		if err != nil {
			return nil, err
		}
		obs.AuthzDecision("task.assign", decision.Allowed())
		if err := decision.Err(); err != nil {
			return nil, err
		}
		t.OwnerID = owner.ID
		changed = append(changed, "ownerId")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
		}
		t.Title = title
		changed = append(changed, "title")
	}
	if in.Description != nil {
		t.Description = strings.TrimSpace(*in.Description)
		changed = append(changed, "description")
	}
	if in.Priority != nil {
		if !in.Priority.Valid() {
			return nil, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, *in.Priority)
		}
		t.Priority = *in.Priority
		changed = append(changed, "priority")
	}
	if in.Category != nil {
		if !in.Category.Valid() {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, *in.Category)
		}
		t.Category = *in.Category
		changed = append(changed, "category")
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate
		changed = append(changed, "dueDate")
	}
	if in.SortOrder != nil {
		t.SortOrder = *in.SortOrder
		changed = append(changed, "sortOrder")
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *in.Status)
		}
		t.Status = *in.Status
		changed = append(changed, "status")
		s.applyCompletion(t, previousStatus)
	}

	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}

	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:     p.ID,
		Action:     audit.ActionUpdate,
		Resource:   audit.ResourceTask,
		ResourceID: t.ID,
		Details: map[string]any{
			"updatedFields":   changed,
			"previousOwnerId": previousOwner,
			"newOwnerId":      t.OwnerID,
		},
	})
	return t, nil
}

// Delete removes a task. The rule is role-sufficient: owners and admins may
// delete any task, and everyone may delete their own.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id string) error {
	t, err := s.store.Find(ctx, id)
	if err != nil {
		return err
	}
	d := authz.CanDeleteTask(p, t.Record())
	obs.AuthzDecision("task.delete", d.Allowed())
	if err := d.Err(); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, t.ID); err != nil {
		return err
	}

	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:     p.ID,
		Action:     audit.ActionDelete,
		Resource:   audit.ResourceTask,
		ResourceID: t.ID,
		Details: map[string]any{
			"title":   t.Title,
			"status":  string(t.Status),
			"ownerId": t.OwnerID,
		},
	})
	return nil
}

// BulkUpdateItem is one element of a board-style batch edit.
type BulkUpdateItem struct {
	ID        string  `json:"id"`
	Status    *Status `json:"status"`
	SortOrder *int    `json:"sortOrder"`
}

// BulkUpdate applies status/ordering changes across many tasks at once.
// Missing and unauthorized items are skipped rather than failing the batch.
func (s *Service) BulkUpdate(ctx context.Context, p authz.Principal, items []BulkUpdateItem) ([]*Task, error) {
	// Validate the whole batch up front so a bad item never leaves earlier
	// items applied and later ones not.
	for _, item := range items {
		if item.Status != nil && !item.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *item.Status)
		}
	}

	var updated []*Task
	for _, item := range items {
		t, err := s.store.Find(ctx, item.ID)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		if d := authz.CanBulkUpdateTask(p, t.Record()); !d.Allowed() {
			obs.AuthzDecision("task.bulk_update", false)
			continue
		}
		obs.AuthzDecision("task.bulk_update", true)

		previousStatus := t.Status
		if item.SortOrder != nil {
			t.SortOrder = *item.SortOrder
		}
		if item.Status != nil {
			t.Status = *item.Status
			s.applyCompletion(t, previousStatus)
		}
		if err := s.store.Update(ctx, t); err != nil {
			return nil, err
		}
		updated = append(updated, t)
	}

	if len(updated) > 0 {
		ids := make([]string, 0, len(updated))
		for _, t := range updated {
			ids = append(ids, t.ID)
		}
		audit.Record(ctx, s.recorder, audit.Draft{
			UserID:   p.ID,
			Action:   audit.ActionBulkUpdate,
			Resource: audit.ResourceTask,
			Details: map[string]any{
				"taskIds": ids,
				"count":   len(ids),
			},
		})
	}
	if updated == nil {
		updated = []*Task{}
	}
	return updated, nil
}

// applyCompletion keeps CompletedAt consistent with status transitions.
func (s *Service) applyCompletion(t *Task, previous Status) {
	switch {
	case t.Status == StatusDone && previous != StatusDone:
		now := s.now().UTC()
		t.CompletedAt = &now
	case t.Status != StatusDone && previous == StatusDone:
		t.CompletedAt = nil
	}
}

func normalizeListQuery(scope authz.TaskScope, in ListInput) (ListQuery, error) {
	if in.Status != "" && !in.Status.Valid() {
		return ListQuery{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return ListQuery{}, fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, in.Priority)
	}
	if in.Category != "" && !in.Category.Valid() {
		return ListQuery{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, in.Category)
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 {
		in.Limit = defaultListLimit
	}
	if in.Limit > maxListLimit {
		in.Limit = maxListLimit
	}
	if in.SortBy == "" {
		in.SortBy = "created_at"
	}
	if _, ok := listSortColumns[in.SortBy]; !ok {
		return ListQuery{}, fmt.Errorf("%w: cannot sort by %q", ErrInvalidInput, in.SortBy)
	}
	switch strings.ToLower(in.SortOrder) {
	case "", "desc":
		in.SortOrder = "desc"
	case "asc":
		in.SortOrder = "asc"
	default:
		return ListQuery{}, fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidInput)
	}
	return ListQuery{
		Scope:     scope,
		Status:    in.Status,
		Priority:  in.Priority,
		Category:  in.Category,
		Search:    strings.TrimSpace(in.Search),
		SortBy:    in.SortBy,
		SortOrder: in.SortOrder,
		Page:      in.Page,
		Limit:     in.Limit,
	}, nil
}
