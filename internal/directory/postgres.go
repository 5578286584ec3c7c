package directory

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"tasktrail.org/internal/authz"
	"tasktrail.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Organizations(context.Context) OrganizationStore { return &orgStore{db: s.db} }
func (s *PGStore) Users(context.Context) UserStore                 { return &userStore{db: s.db} }

// Organization store -------------------------------------------------------

type orgStore struct{ db *sql.DB }

func (s *orgStore) Create(ctx context.Context, org *Organization) error {
	if org.ID == "" {
		org.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into organizations(id, name, description, parent_id) values($1,$2,$3,nullif($4,''))`,
		org.ID, org.Name, org.Description, org.ParentID,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *orgStore) Find(ctx context.Context, id string) (*Organization, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, name, description, coalesce(parent_id,''), created_at, updated_at
		 from organizations where id=$1`, id)
	return scanOrganization(row)
}

func (s *orgStore) ListByParent(ctx context.Context, parentID string) ([]*Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, name, description, coalesce(parent_id,''), created_at, updated_at
		 from organizations where parent_id=$1 order by created_at asc`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Organization
	for rows.Next() {
		var org Organization
		if err := rows.Scan(&org.ID, &org.Name, &org.Description, &org.ParentID, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, &org)
	}
	return res, rows.Err()
}

func scanOrganization(row *sql.Row) (*Organization, error) {
	var org Organization
	if err := row.Scan(&org.ID, &org.Name, &org.Description, &org.ParentID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

// User store ---------------------------------------------------------------

type userStore struct{ db *sql.DB }

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, organization_id, email, password_hash, first_name, last_name, role, is_active)
		 values($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.FirstName, u.LastName, string(u.Role), u.IsActive,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	return s.findBy(ctx, `id=$1`, id)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.findBy(ctx, `email=$1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *userStore) findBy(ctx context.Context, where, arg string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, organization_id, email, password_hash, first_name, last_name, role, is_active, created_at, updated_at
		 from users where `+where, arg)
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = authz.Role(role)
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
