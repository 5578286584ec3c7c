package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

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

const taskColumns = `id, title, description, status, priority, category, due_date, completed_at, sort_order, owner_id, organization_id, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx,
		`insert into tasks(id, title, description, status, priority, category, due_date, completed_at, sort_order, owner_id, organization_id)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 returning created_at, updated_at`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), string(t.Category),
		t.DueDate, t.CompletedAt, t.SortOrder, t.OwnerID, t.OrganizationID,
	)
	return row.Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (s *PGStore) Find(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+taskColumns+` from tasks where id=$1`, id)
	return scanTask(row)
}

func (s *PGStore) Update(ctx context.Context, t *Task) error {
	row := s.db.QueryRowContext(ctx,
		`update tasks
		 set title=$2, description=$3, status=$4, priority=$5, category=$6,
		     due_date=$7, completed_at=$8, sort_order=$9, owner_id=$10, updated_at=now()
		 where id=$1
		 returning updated_at`,
		t.ID, t.Title, t.Description, string(t.Status), string(t.Priority), string(t.Category),
		t.DueDate, t.CompletedAt, t.SortOrder, t.OwnerID,
	)
	if err := row.Scan(&t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) List(ctx context.Context, q ListQuery) ([]*Task, int64, error) {
	where, args := buildTaskConditions(q)

	var total int64
	if err := s.db.QueryRowContext(ctx, `select count(*) from tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	query := fmt.Sprintf(
		`select `+taskColumns+` from tasks%s order by %s %s limit $%d offset $%d`,
		where, q.SortBy, strings.ToUpper(q.SortOrder), len(args)+1, len(args)+2,
	)
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	return tasks, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t        Task
		status   string
		priority string
		category string
	)
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &priority, &category,
		&t.DueDate, &t.CompletedAt, &t.SortOrder, &t.OwnerID, &t.OrganizationID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	t.Category = Category(category)
	return &t, nil
}

// buildTaskConditions renders the scope and the normalized filters into a
// WHERE clause with positional args. The scope always produces at least one
// condition, so authorization is never left out of the statement.
func buildTaskConditions(q ListQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if q.Scope.OwnerID != "" {
		add(`owner_id=$%d`, q.Scope.OwnerID)
	} else {
		placeholders := make([]string, 0, len(q.Scope.OrganizationIDs))
		for _, id := range q.Scope.OrganizationIDs {
			args = append(args, id)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, `organization_id in (`+strings.Join(placeholders, ",")+`)`)
	}
	if q.Status != "" {
		add(`status=$%d`, string(q.Status))
	}
	if q.Priority != "" {
		add(`priority=$%d`, string(q.Priority))
	}
	if q.Category != "" {
		add(`category=$%d`, string(q.Category))
	}
	if q.Search != "" {
		pattern := "%" + q.Search + "%"
		args = append(args, pattern)
		conds = append(conds, fmt.Sprintf(`(title ilike $%d or description ilike $%d)`, len(args), len(args)))
	}
	return " where " + strings.Join(conds, " and "), args
}
