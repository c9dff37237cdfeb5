// Package audit serves the audit trail written by the domain services.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit log row.
type Entry struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id"`
	CompanyID  *int64         `json:"company_id,omitempty"`
	Action     string         `json:"action"`
	Entity     string         `json:"entity"`
	EntityID   string         `json:"entity_id"`
	Meta       map[string]any `json:"meta,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ListFilters narrows audit queries.
type ListFilters struct {
	Page     int
	PerPage  int
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	From     *time.Time
	To       *time.Time
}

// Repository reads audit_logs.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the audit repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// List returns entries for a company matching filters, newest first.
func (r *Repository) List(ctx context.Context, companyID int64, f ListFilters) ([]Entry, int, error) {
	where := "company_id=$1"
	args := []any{companyID}
	idx := 2
	if f.ActorID != 0 {
		where += fmt.Sprintf(" AND actor_id=$%d", idx)
		args = append(args, f.ActorID)
		idx++
	}
	if f.Action != "" {
		where += fmt.Sprintf(" AND action=$%d", idx)
		args = append(args, f.Action)
		idx++
	}
	if f.Entity != "" {
		where += fmt.Sprintf(" AND entity=$%d", idx)
		args = append(args, f.Entity)
		idx++
	}
	if f.EntityID != "" {
		where += fmt.Sprintf(" AND entity_id=$%d", idx)
		args = append(args, f.EntityID)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND occurred_at >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND occurred_at <= $%d", idx)
		args = append(args, *f.To)
		idx++
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	perPage := f.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	page := f.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx, `SELECT id, actor_id, company_id, action, entity, entity_id, meta, occurred_at
FROM audit_logs WHERE `+where+fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorID, &e.CompanyID, &e.Action, &e.Entity, &e.EntityID, &meta, &e.OccurredAt); err != nil {
			return nil, 0, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &e.Meta)
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteOlderThan prunes entries past the retention window. Returns the
// number of rows removed.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
