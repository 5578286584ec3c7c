package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"tasktrail.org/internal/audit"
	"tasktrail.org/internal/authz"
	"tasktrail.org/internal/directory"
)

var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords and
	// deactivated accounts alike; callers get no hint which one it was.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrInvalidInput = errors.New("auth: invalid input")
)

// Service is the identity provider: it authenticates users, issues tokens
// and records every attempt on the audit trail, failed ones included.
type Service struct {
	dir      directory.Store
	signer   *Signer
	recorder *audit.Recorder
}

// NewService constructs the identity provider. The recorder may be nil.
func NewService(dir directory.Store, signer *Signer, recorder *audit.Recorder) *Service {
	return &Service{dir: dir, signer: signer, recorder: recorder}
}

// Session is the result of a successful authentication.
type Session struct {
	Token string          `json:"token"`
	User  *directory.User `json:"user"`
}

// Login authenticates by email and password. Failures are recorded as
// unsuccessful audit entries before the error is returned.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	user, err := s.dir.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			s.recordLoginFailure(ctx, email, "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		s.recordLoginFailure(ctx, user.ID, "account is deactivated")
		return nil, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		s.recordLoginFailure(ctx, user.ID, "wrong password")
		return nil, ErrInvalidCredentials
	}

	token, err := s.signer.Issue(principalOf(user))
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:   user.ID,
		Action:   audit.ActionLogin,
		Resource: audit.ResourceAuth,
		Details:  map[string]any{"email": user.Email, "name": user.FullName()},
	})
	return &Session{Token: token, User: user}, nil
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email          string     `json:"email"`
	Password       string     `json:"password"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	OrganizationID string     `json:"organizationId"`
	Role           authz.Role `json:"role"`
}

// Register creates an account and logs the new user straight in. The role
// defaults to viewer when unset.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	if strings.TrimSpace(in.OrganizationID) == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	if in.Role == "" {
		in.Role = authz.RoleViewer
	}
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, in.Role)
	}
	if _, err := s.dir.Organizations(ctx).Find(ctx, in.OrganizationID); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := &directory.User{
		OrganizationID: in.OrganizationID,
		Email:          in.Email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(in.FirstName),
		LastName:       strings.TrimSpace(in.LastName),
		Role:           in.Role,
		IsActive:       true,
	}
	if err := s.dir.Users(ctx).Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.signer.Issue(principalOf(user))
	if err != nil {
		return nil, err
	}

	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:   user.ID,
		Action:   audit.ActionRegister,
		Resource: audit.ResourceAuth,
		Details:  map[string]any{"email": user.Email, "name": user.FullName(), "role": string(user.Role)},
	})
	return &Session{Token: token, User: user}, nil
}

// Logout records the sign-out. Tokens are stateless, so the entry is the
// only server-side trace of the session ending.
func (s *Service) Logout(ctx context.Context, p authz.Principal) {
	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:   p.ID,
		Action:   audit.ActionLogout,
		Resource: audit.ResourceAuth,
	})
}

func (s *Service) recordLoginFailure(ctx context.Context, userID, reason string) {
	failed := false
	audit.Record(ctx, s.recorder, audit.Draft{
		UserID:       userID,
		Action:       audit.ActionLogin,
		Resource:     audit.ResourceAuth,
		Success:      &failed,
		ErrorMessage: reason,
	})
}

func principalOf(u *directory.User) authz.Principal {
	return authz.Principal{ID: u.ID, Role: u.Role, OrganizationID: u.OrganizationID}
}
