package task

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"tasktrail.org/internal/audit"
	"tasktrail.org/internal/authz"
)

// memStore is an in-memory Store for orchestrator tests.
type memStore struct {
	tasks map[string]*Task
	next  int
}

func newMemStore() *memStore {
	return &memStore{tasks: make(map[string]*Task)}
}

func (m *memStore) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		m.next++
		t.ID = "task-" + strconv.Itoa(m.next)
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) Find(ctx context.Context, id string) (*Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) Update(ctx context.Context, t *Task) error {
	if _, ok := m.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	t.UpdatedAt = time.Now().UTC()
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string) error {
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memStore) List(ctx context.Context, q ListQuery) ([]*Task, int64, error) {
	inScope := func(t *Task) bool {
		if q.Scope.OwnerID != "" {
			return t.OwnerID == q.Scope.OwnerID
		}
		for _, org := range q.Scope.OrganizationIDs {
			if t.OrganizationID == org {
				return true
			}
		}
		return false
	}
	var matched []*Task
	for _, t := range m.tasks {
		if !inScope(t) {
			continue
		}
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.Priority != "" && t.Priority != q.Priority {
			continue
		}
		if q.Category != "" && t.Category != q.Category {
			continue
		}
		if q.Search != "" {
			needle := strings.ToLower(q.Search)
			if !strings.Contains(strings.ToLower(t.Title), needle) &&
				!strings.Contains(strings.ToLower(t.Description), needle) {
				continue
			}
		}
		cp := *t
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

type fakeResolver struct {
	children map[string][]string
	err      error
}

func (f *fakeResolver) ChildOrganizationIDs(ctx context.Context, orgID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.children[orgID], nil
}

type fakeLookup struct {
	users map[string]authz.UserRecord
}

func (f *fakeLookup) LookupUser(ctx context.Context, id string) (authz.UserRecord, error) {
	u, ok := f.users[id]
	if !ok {
		return authz.UserRecord{}, authz.ErrUserNotFound
	}
	return u, nil
}

// failStore rejects every append so tests can prove the primary mutation
// survives a broken audit trail.
type failStore struct{}

func (failStore) Append(context.Context, *audit.Entry) error { return errors.New("disk full") }
func (failStore) Query(context.Context, audit.Filter) ([]audit.Entry, int64, error) {
	return nil, 0, errors.New("disk full")
}
func (failStore) Count(context.Context, *bool) (int64, error) { return 0, errors.New("disk full") }
func (failStore) CountByAction(context.Context) (map[string]int64, error) {
	return nil, errors.New("disk full")
}
func (failStore) CountByResource(context.Context) (map[string]int64, error) {
	return nil, errors.New("disk full")
}

func newTestService(store Store, resolver authz.HierarchyResolver, lookup authz.UserLookup) *Service {
	return NewService(store, resolver, lookup, nil)
}

var (
	owner  = authz.Principal{ID: "u-owner", Role: authz.RoleOwner, OrganizationID: "org-root"}
	admin  = authz.Principal{ID: "u-admin", Role: authz.RoleAdmin, OrganizationID: "org-root"}
	viewer = authz.Principal{ID: "u-viewer", Role: authz.RoleViewer, OrganizationID: "org-root"}
)

func TestCreateDeniesViewer(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeResolver{}, &fakeLookup{})

	_, err := svc.Create(context.Background(), viewer, CreateInput{Title: "nope"})
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if denied.Reason != "only owners and admins can create tasks" {
		t.Fatalf("unexpected reason %q", denied.Reason)
	}
}

func TestCreateAppliesDefaults(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeResolver{}, &fakeLookup{})

	task, err := svc.Create(context.Background(), admin, CreateInput{Title: "  write report  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Title != "write report" {
		t.Fatalf("title not trimmed: %q", task.Title)
	}
	if task.Status != StatusTodo || task.Priority != PriorityMedium || task.Category != CategoryOther {
		t.Fatalf("defaults not applied: %+v", task)
	}
	if task.OwnerID != admin.ID || task.OrganizationID != admin.OrganizationID {
		t.Fatalf("ownership wrong: %+v", task)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeResolver{}, &fakeLookup{})

	_, err := svc.Create(context.Background(), admin, CreateInput{Title: "   "})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCreateStampsCreatorOrgOnCrossOrgAssignment(t *testing.T) {
	resolver := &fakeResolver{children: map[string][]string{"org-root": {"org-child"}}}
	lookup := &fakeLookup{users: map[string]authz.UserRecord{
		"u-child": {ID: "u-child", OrganizationID: "org-child"},
	}}
	svc := newTestService(newMemStore(), resolver, lookup)

	task, err := svc.Create(context.Background(), owner, CreateInput{Title: "t", OwnerID: "u-child"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.OwnerID != "u-child" {
		t.Fatalf("owner = %q, want u-child", task.OwnerID)
	}
	// The organization always comes from the creator, never the assignee.
	if task.OrganizationID != "org-root" {
		t.Fatalf("organization = %q, want org-root", task.OrganizationID)
	}
}

func TestCreateRejectsAssignmentOutsideHierarchy(t *testing.T) {
	resolver := &fakeResolver{children: map[string][]string{"org-root": {"org-child"}}}
	lookup := &fakeLookup{users: map[string]authz.UserRecord{
		"u-far": {ID: "u-far", OrganizationID: "org-elsewhere"},
	}}
	svc := newTestService(newMemStore(), resolver, lookup)

	_, err := svc.Create(context.Background(), owner, CreateInput{Title: "t", OwnerID: "u-far"})
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if denied.Reason != "cannot assign task to user outside your organization hierarchy" {
		t.Fatalf("unexpected reason %q", denied.Reason)
	}
}

func TestUpdateStampsAndClearsCompletedAt(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 8, 21, 9, 0, 0, 0, time.UTC)
	svc := NewService(store, &fakeResolver{}, &fakeLookup{}, nil, WithClock(func() time.Time { return now }))

	task, err := svc.Create(context.Background(), admin, CreateInput{Title: "ship it"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	done := StatusDone
	task, err = svc.Update(context.Background(), admin, task.ID, UpdateInput{Status: &done})
	if err != nil {
		t.Fatalf("update to done: %v", err)
	}
	if task.CompletedAt == nil || !task.CompletedAt.Equal(now) {
		t.Fatalf("completedAt = %v, want %v", task.CompletedAt, now)
	}

	// Staying done must not re-stamp.
	later := now.Add(time.Hour)
	svc.now = func() time.Time { return later }
	task, err = svc.Update(context.Background(), admin, task.ID, UpdateInput{Status: &done})
	if err != nil {
		t.Fatalf("update done to done: %v", err)
	}
	if !task.CompletedAt.Equal(now) {
		t.Fatalf("completedAt re-stamped: %v", task.CompletedAt)
	}

	todo := StatusTodo
	task, err = svc.Update(context.Background(), admin, task.ID, UpdateInput{Status: &todo})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if task.CompletedAt != nil {
		t.Fatalf("completedAt not cleared: %v", task.CompletedAt)
	}
}

func TestUpdateDeniedForViewerOnForeignTask(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, &fakeResolver{}, &fakeLookup{})

	task, err := svc.Create(context.Background(), admin, CreateInput{Title: "not yours"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	title := "hijack"
	_, err = svc.Update(context.Background(), viewer, task.ID, UpdateInput{Title: &title})
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if denied.Reason != "access denied to this task" {
		t.Fatalf("unexpected reason %q", denied.Reason)
	}
}

func TestDeleteAllowsViewerOwnTask(t *testing.T) {
	store := newMemStore()
	store.tasks["t-1"] = &Task{ID: "t-1", Title: "mine", Status: StatusTodo, OwnerID: viewer.ID, OrganizationID: "org-other"}
	svc := newTestService(store, &fakeResolver{}, &fakeLookup{})

	// Ownership suffices even though the task sits in a foreign organization.
	if err := svc.Delete(context.Background(), viewer, "t-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Find(context.Background(), "t-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("task still present: %v", err)
	}
}

func TestDeleteDeniesViewerForeignTask(t *testing.T) {
	store := newMemStore()
	store.tasks["t-1"] = &Task{ID: "t-1", OwnerID: "someone-else", OrganizationID: "org-root"}
	svc := newTestService(store, &fakeResolver{}, &fakeLookup{})

	err := svc.Delete(context.Background(), viewer, "t-1")
	var denied *authz.DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial, got %v", err)
	}
	if denied.Reason != "you can only delete your own tasks or be an admin or owner" {
		t.Fatalf("unexpected reason %q", denied.Reason)
	}
}

func TestDeleteMissingTask(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeResolver{}, &fakeLookup{})

	if err := svc.Delete(context.Background(), admin, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBulkUpdateSkipsMissingAndUnauthorized(t *testing.T) {
	store := newMemStore()
	store.tasks["t-mine"] = &Task{ID: "t-mine", Status: StatusTodo, OwnerID: viewer.ID, OrganizationID: "org-root"}
	store.tasks["t-other"] = &Task{ID: "t-other", Status: StatusTodo, OwnerID: "someone-else", OrganizationID: "org-root"}
	svc := newTestService(store, &fakeResolver{}, &fakeLookup{})

	done := StatusDone
	order := 3
	updated, err := svc.BulkUpdate(context.Background(), viewer, []BulkUpdateItem{
		{ID: "t-mine", Status: &done, SortOrder: &order},
		{ID: "t-other", Status: &done},
		{ID: "t-ghost", Status: &done},
	})
	if err != nil {
		t.Fatalf("bulk update: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != "t-mine" {
		t.Fatalf("updated = %+v, want only t-mine", updated)
	}
	if updated[0].Status != StatusDone || updated[0].SortOrder != 3 {
		t.Fatalf("changes not applied: %+v", updated[0])
	}
	if updated[0].CompletedAt == nil {
		t.Fatal("completedAt not stamped on bulk done transition")
	}
	other, _ := store.Find(context.Background(), "t-other")
	if other.Status != StatusTodo {
		t.Fatalf("unauthorized task mutated: %+v", other)
	}
}

func TestBulkUpdateRejectsBadStatusBeforeApplyingAnything(t *testing.T) {
	store := newMemStore()
	store.tasks["t-1"] = &Task{ID: "t-1", Status: StatusTodo, OwnerID: admin.ID, OrganizationID: "org-root"}
	store.tasks["t-2"] = &Task{ID: "t-2", Status: StatusTodo, OwnerID: admin.ID, OrganizationID: "org-root"}
	svc := newTestService(store, &fakeResolver{}, &fakeLookup{})

	done := StatusDone
	bogus := Status("finished")
	_, err := svc.BulkUpdate(context.Background(), admin, []BulkUpdateItem{
		{ID: "t-1", Status: &done},
		{ID: "t-2", Status: &bogus},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	first, _ := store.Find(context.Background(), "t-1")
	if first.Status != StatusTodo {
		t.Fatalf("batch partially applied: %+v", first)
	}
}

func TestListScopesViewerToOwnTasks(t *testing.T) {
	store := newMemStore()
	store.tasks["t-1"] = &Task{ID: "t-1", OwnerID: viewer.ID, OrganizationID: "org-root"}
	store.tasks["t-2"] = &Task{ID: "t-2", OwnerID: "someone-else", OrganizationID: "org-root"}
	svc := newTestService(store, &fakeResolver{}, &fakeLookup{})

	res, err := svc.List(context.Background(), viewer, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Data) != 1 || res.Data[0].ID != "t-1" {
		t.Fatalf("data = %+v, want only t-1", res.Data)
	}
	if res.Pagination.Total != 1 || res.Pagination.Page != 1 || res.Pagination.Limit != 10 {
		t.Fatalf("pagination = %+v", res.Pagination)
	}
}

func TestListOwnerSeesChildOrganizations(t *testing.T) {
	store := newMemStore()
	store.tasks["t-root"] = &Task{ID: "t-root", OwnerID: "x", OrganizationID: "org-root"}
	store.tasks["t-child"] = &Task{ID: "t-child", OwnerID: "y", OrganizationID: "org-child"}
	store.tasks["t-far"] = &Task{ID: "t-far", OwnerID: "z", OrganizationID: "org-elsewhere"}
	resolver := &fakeResolver{children: map[string][]string{"org-root": {"org-child"}}}
	svc := newTestService(store, resolver, &fakeLookup{})

	res, err := svc.List(context.Background(), owner, ListInput{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(res.Data) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(res.Data), res.Data)
	}
}

func TestListRejectsUnknownSortColumn(t *testing.T) {
	svc := newTestService(newMemStore(), &fakeResolver{}, &fakeLookup{})

	_, err := svc.List(context.Background(), admin, ListInput{SortBy: "password_hash"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestListResolverFailurePropagates(t *testing.T) {
	boom := errors.New("directory down")
	svc := newTestService(newMemStore(), &fakeResolver{err: boom}, &fakeLookup{})

	if _, err := svc.List(context.Background(), owner, ListInput{}); !errors.Is(err, boom) {
		t.Fatalf("expected resolver error, got %v", err)
	}
}

func TestMutationsSurviveAuditFailure(t *testing.T) {
	store := newMemStore()
	rec := audit.NewRecorder(failStore{})
	svc := NewService(store, &fakeResolver{}, &fakeLookup{}, rec)

	task, err := svc.Create(context.Background(), admin, CreateInput{Title: "resilient"})
	if err != nil {
		t.Fatalf("create failed because of audit: %v", err)
	}
	if _, err := store.Find(context.Background(), task.ID); err != nil {
		t.Fatalf("task not stored: %v", err)
	}

	if err := svc.Delete(context.Background(), admin, task.ID); err != nil {
		t.Fatalf("delete failed because of audit: %v", err)
	}
}
