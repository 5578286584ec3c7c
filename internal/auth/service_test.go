package auth

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"tasktrail.org/internal/audit"
	"tasktrail.org/internal/authz"
	"tasktrail.org/internal/directory"
)

// memDirectory implements directory.Store in memory.
type memDirectory struct {
	orgs  map[string]*directory.Organization
	users map[string]*directory.User
	next  int
}

func newMemDirectory() *memDirectory {
	return &memDirectory{
		orgs:  make(map[string]*directory.Organization),
		users: make(map[string]*directory.User),
	}
}

func (m *memDirectory) Organizations(context.Context) directory.OrganizationStore { return m }
func (m *memDirectory) Users(context.Context) directory.UserStore { return (*memUsers)(m) }

func (m *memDirectory) Create(ctx context.Context, org *directory.Organization) error {
	if org.ID == "" {
		m.next++
		org.ID = "org-" + strconv.Itoa(m.next)
	}
	m.orgs[org.ID] = org
	return nil
}

func (m *memDirectory) Find(ctx context.Context, id string) (*directory.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return org, nil
}

func (m *memDirectory) ListByParent(ctx context.Context, parentID string) ([]*directory.Organization, error) {
	var res []*directory.Organization
	for _, org := range m.orgs {
		if org.ParentID == parentID {
			res = append(res, org)
		}
	}
	return res, nil
}

type memUsers memDirectory

func (m *memUsers) Create(ctx context.Context, u *directory.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return directory.ErrAlreadyExists
		}
	}
	if u.ID == "" {
		m.next++
		u.ID = "user-" + strconv.Itoa(m.next)
	}
	m.users[u.ID] = u
	return nil
}

func (m *memUsers) Find(ctx context.Context, id string) (*directory.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) FindByEmail(ctx context.Context, email string) (*directory.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, directory.ErrNotFound
}

// memAudit collects entries for assertions.
type memAudit struct{ entries []audit.Entry }

func (m *memAudit) Append(ctx context.Context, e *audit.Entry) error {
	m.entries = append(m.entries, *e)
	return nil
}
func (m *memAudit) Query(context.Context, audit.Filter) ([]audit.Entry, int64, error) {
	return nil, 0, nil
}
func (m *memAudit) Count(context.Context, *bool) (int64, error) { return 0, nil }
func (m *memAudit) CountByAction(context.Context) (map[string]int64, error) { return nil, nil }
func (m *memAudit) CountByResource(context.Context) (map[string]int64, error) { return nil, nil }

func testSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer
}

func seedUser(t *testing.T, dir *memDirectory, email, password string, role authz.Role, active bool) *directory.User {
	t.Helper()
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &directory.User{
		OrganizationID: "org-1",
		Email:          email,
		PasswordHash:   hash,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Role:           role,
		IsActive:       active,
	}
	if err := dir.Users(context.Background()).Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	dir := newMemDirectory()
	user := seedUser(t, dir, "ada@example.com", "correct-horse", authz.RoleAdmin, true)
	trail := &memAudit{}
	signer := testSigner(t)
	svc := NewService(dir, signer, audit.NewRecorder(trail))

	sess, err := svc.Login(context.Background(), " Ada@Example.com ", "correct-horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := signer.Verify(sess.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.ID != user.ID || p.Role != authz.RoleAdmin || p.OrganizationID != "org-1" {
		t.Fatalf("principal = %+v", p)
	}
	if len(trail.entries) != 1 || trail.entries[0].Action != audit.ActionLogin || !trail.entries[0].Success {
		t.Fatalf("trail = %+v", trail.entries)
	}
	if got := trail.entries[0].Details["name"]; got != "Ada Lovelace" {
		t.Fatalf("details name = %v", got)
	}
}

func TestLoginWrongPasswordIsAuditedAsFailure(t *testing.T) {
	dir := newMemDirectory()
	user := seedUser(t, dir, "ada@example.com", "correct-horse", authz.RoleViewer, true)
	trail := &memAudit{}
	svc := NewService(dir, testSigner(t), audit.NewRecorder(trail))

	_, err := svc.Login(context.Background(), "ada@example.com", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(trail.entries) != 1 {
		t.Fatalf("trail = %+v", trail.entries)
	}
	e := trail.entries[0]
	if e.Success || e.UserID != user.ID || e.ErrorMessage != "wrong password" {
		t.Fatalf("entry = %+v", e)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	trail := &memAudit{}
	svc := NewService(newMemDirectory(), testSigner(t), audit.NewRecorder(trail))

	_, err := svc.Login(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if len(trail.entries) != 1 || trail.entries[0].Success {
		t.Fatalf("trail = %+v", trail.entries)
	}
}

func TestLoginInactiveAccount(t *testing.T) {
	dir := newMemDirectory()
	seedUser(t, dir, "gone@example.com", "correct-horse", authz.RoleOwner, false)
	svc := NewService(dir, testSigner(t), nil)

	if _, err := svc.Login(context.Background(), "gone@example.com", "correct-horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegisterDefaultsToViewer(t *testing.T) {
	dir := newMemDirectory()
	dir.orgs["org-1"] = &directory.Organization{ID: "org-1", Name: "root"}
	trail := &memAudit{}
	svc := NewService(dir, testSigner(t), audit.NewRecorder(trail))

	sess, err := svc.Register(context.Background(), RegisterInput{
		Email:          "new@example.com",
		Password:       "longenough",
		FirstName:      "Grace",
		LastName:       "Hopper",
		OrganizationID: "org-1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if sess.User.Role != authz.RoleViewer || !sess.User.IsActive {
		t.Fatalf("user = %+v", sess.User)
	}
	if sess.User.PasswordHash == "longenough" || sess.User.PasswordHash == "" {
		t.Fatal("password stored unhashed")
	}
	if len(trail.entries) != 1 || trail.entries[0].Action != audit.ActionRegister {
		t.Fatalf("trail = %+v", trail.entries)
	}
	if got := trail.entries[0].Details["name"]; got != "Grace Hopper" {
		t.Fatalf("details name = %v", got)
	}
}

func TestRegisterRejectsUnknownOrganization(t *testing.T) {
	svc := NewService(newMemDirectory(), testSigner(t), nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:          "new@example.com",
		Password:       "longenough",
		OrganizationID: "org-ghost",
	})
	if !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected directory.ErrNotFound, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(newMemDirectory(), testSigner(t), nil)

	cases := []RegisterInput{
		{Email: "not-an-email", Password: "longenough", OrganizationID: "org-1"},
		{Email: "ok@example.com", Password: "short", OrganizationID: "org-1"},
		{Email: "ok@example.com", Password: "longenough"},
		{Email: "ok@example.com", Password: "longenough", OrganizationID: "org-1", Role: "superuser"},
	}
	for _, in := range cases {
		if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("input %+v: expected ErrInvalidInput, got %v", in, err)
		}
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	issued := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	current := issued
	signer, err := NewSigner("test-secret", time.Minute, WithSignerClock(func() time.Time { return current }))
	if err != nil {
		t.Fatalf("signer: %v", err)
	}

	token, err := signer.Issue(authz.Principal{ID: "u-1", Role: authz.RoleViewer, OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := signer.Verify(token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	current = issued.Add(2 * time.Minute)
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	signer := testSigner(t)
	other, _ := NewSigner("another-secret", time.Hour)

	token, err := other.Issue(authz.Principal{ID: "u-1", Role: authz.RoleOwner, OrganizationID: "org-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := signer.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogoutRecordsEntry(t *testing.T) {
	trail := &memAudit{}
	svc := NewService(newMemDirectory(), testSigner(t), audit.NewRecorder(trail))

	svc.Logout(context.Background(), authz.Principal{ID: "u-1", Role: authz.RoleViewer, OrganizationID: "org-1"})
	if len(trail.entries) != 1 || trail.entries[0].Action != audit.ActionLogout {
		t.Fatalf("trail = %+v", trail.entries)
	}
}
