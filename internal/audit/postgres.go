package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Entries are insert-only; there
// is no update or delete path by construction.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Append(ctx context.Context, entry *Entry) error {
	var details []byte
	if entry.Details != nil {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("audit: encode details: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		`insert into audit_logs(id, user_id, action, resource, resource_id, details, ip_address, user_agent, timestamp, success, error_message)
		 values($1,$2,$3,$4,nullif($5,''),$6,nullif($7,''),nullif($8,''),$9,$10,nullif($11,''))`,
		entry.ID, entry.UserID, string(entry.Action), string(entry.Resource), entry.ResourceID,
		details, entry.IPAddress, entry.UserAgent, entry.Timestamp, entry.Success, entry.ErrorMessage,
	)
	return err
}

func (s *PGStore) Query(ctx context.Context, f Filter) ([]Entry, int64, error) {
	where, args := buildConditions(f)

	var total int64
	countQuery := `select count(*) from audit_logs` + where
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	offset := (f.Page - 1) * f.Limit
	query := fmt.Sprintf(
		`select id, user_id, action, resource, coalesce(resource_id,''), details, coalesce(ip_address,''), coalesce(user_agent,''), timestamp, success, coalesce(error_message,'')
		 from audit_logs%s order by %s %s limit $%d offset $%d`,
		where, f.SortBy, strings.ToUpper(f.SortOrder), len(args)+1, len(args)+2,
	)
	rows, err := s.db.QueryContext(ctx, query, append(args, f.Limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e        Entry
			action   string
			resource string
			details  []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &action, &resource, &e.ResourceID, &details, &e.IPAddress, &e.UserAgent, &e.Timestamp, &e.Success, &e.ErrorMessage); err != nil {
			return nil, 0, err
		}
		e.Action = Action(action)
		e.Resource = Resource(resource)
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *PGStore) Count(ctx context.Context, success *bool) (int64, error) {
	query := `select count(*) from audit_logs`
	args := []any{}
	if success != nil {
		query += ` where success=$1`
		args = append(args, *success)
	}
	var total int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&total)
	return total, err
}

func (s *PGStore) CountByAction(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "action")
}

func (s *PGStore) CountByResource(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "resource")
}

func (s *PGStore) countBy(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select %s, count(*) from audit_logs group by %s`, column, column))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			key   string
			count int64
		)
		if err := rows.Scan(&key, &count); err != nil {
			return nil, err
		}
		counts[key] = count
	}
	return counts, rows.Err()
}

// buildConditions renders the normalized filter into a WHERE clause with
// positional args.
func buildConditions(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.UserID != "" {
		add(`user_id=$%d`, f.UserID)
	}
	if f.Action != "" {
		add(`action=$%d`, string(f.Action))
	}
	if f.Resource != "" {
		add(`resource=$%d`, string(f.Resource))
	}
	if f.ResourceID != "" {
		add(`resource_id=$%d`, f.ResourceID)
	}
	if f.Success != nil {
		add(`success=$%d`, *f.Success)
	}
	if f.Search != "" {
		add(`error_message ilike $%d`, "%"+f.Search+"%")
	}
	if f.StartDate != nil {
		add(`timestamp >= $%d`, *f.StartDate)
	}
	if f.EndDate != nil {
		add(`timestamp <= $%d`, *f.EndDate)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " where " + strings.Join(conds, " and "), args
}
