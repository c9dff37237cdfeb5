package close

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists close runs and checklist items.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the close repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateRun inserts the run and its checklist inside tx. Only one active run
// per period is allowed.
func (r *Repository) CreateRun(ctx context.Context, tx pgx.Tx, run CloseRun) (CloseRun, error) {
	var active int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM close_runs WHERE period_id=$1 AND status=$2`,
		run.PeriodID, RunStatusInProgress).Scan(&active)
	if err != nil {
		return CloseRun{}, err
	}
	if active > 0 {
		return CloseRun{}, ErrRunExists
	}
	err = tx.QueryRow(ctx, `INSERT INTO close_runs (company_id, period_id, status, started_by, started_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		run.CompanyID, run.PeriodID, run.Status, run.StartedBy, run.StartedAt).Scan(&run.ID)
	if err != nil {
		return CloseRun{}, err
	}
	for i := range run.Items {
		run.Items[i].RunID = run.ID
		err := tx.QueryRow(ctx, `INSERT INTO close_checklist_items (run_id, item_key, label, done)
VALUES ($1,$2,$3,false) RETURNING id`,
			run.ID, run.Items[i].Key, run.Items[i].Label).Scan(&run.Items[i].ID)
		if err != nil {
			return CloseRun{}, err
		}
	}
	return run, nil
}

const runColumns = `id, company_id, period_id, status, started_by, started_at, completed_at`

// GetRun loads a run with its checklist.
func (r *Repository) GetRun(ctx context.Context, companyID, runID int64) (CloseRun, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM close_runs WHERE company_id=$1 AND id=$2`, companyID, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CloseRun{}, ErrRunNotFound
		}
		return CloseRun{}, err
	}
	run.Items, err = r.listItems(ctx, run.ID)
	return run, err
}

// GetRunForUpdate locks the run row inside tx and loads its checklist.
func (r *Repository) GetRunForUpdate(ctx context.Context, tx pgx.Tx, companyID, runID int64) (CloseRun, error) {
	row := tx.QueryRow(ctx, `SELECT `+runColumns+` FROM close_runs WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, runID)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CloseRun{}, ErrRunNotFound
		}
		return CloseRun{}, err
	}
	rows, err := tx.Query(ctx, itemQuery, run.ID)
	if err != nil {
		return CloseRun{}, err
	}
	run.Items, err = collectItems(rows)
	return run, err
}

// ActiveRunForPeriod returns the in-progress run for a period, if any.
func (r *Repository) ActiveRunForPeriod(ctx context.Context, periodID int64) (CloseRun, error) {
	row := r.db.QueryRow(ctx, `SELECT `+runColumns+` FROM close_runs WHERE period_id=$1 AND status=$2`,
		periodID, RunStatusInProgress)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CloseRun{}, ErrRunNotFound
		}
		return CloseRun{}, err
	}
	run.Items, err = r.listItems(ctx, run.ID)
	return run, err
}

// ListRuns returns runs for a company, newest first.
func (r *Repository) ListRuns(ctx context.Context, companyID int64) ([]CloseRun, error) {
	rows, err := r.db.Query(ctx, `SELECT `+runColumns+` FROM close_runs WHERE company_id=$1 ORDER BY started_at DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var runs []CloseRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// SetItemDone flips one checklist item inside tx.
func (r *Repository) SetItemDone(ctx context.Context, tx pgx.Tx, runID int64, key string, done bool, actorID int64) error {
	var cmd string
	if done {
		cmd = `UPDATE close_checklist_items SET done=true, done_by=$3, done_at=NOW() WHERE run_id=$1 AND item_key=$2`
	} else {
		cmd = `UPDATE close_checklist_items SET done=false, done_by=NULL, done_at=NULL WHERE run_id=$1 AND item_key=$2 AND $3=$3`
	}
	tag, err := tx.Exec(ctx, cmd, runID, key, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// UpdateRunStatus transitions a run inside tx, stamping completion time.
func (r *Repository) UpdateRunStatus(ctx context.Context, tx pgx.Tx, runID int64, status RunStatus) error {
	var tag pgconn.CommandTag
	var err error
	if status == RunStatusInProgress {
		tag, err = tx.Exec(ctx, `UPDATE close_runs SET status=$2, completed_at=NULL WHERE id=$1`, runID, status)
	} else {
		tag, err = tx.Exec(ctx, `UPDATE close_runs SET status=$2, completed_at=NOW() WHERE id=$1`, runID, status)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

const itemQuery = `SELECT id, run_id, item_key, label, done, done_by, done_at
FROM close_checklist_items WHERE run_id=$1 ORDER BY id`

func (r *Repository) listItems(ctx context.Context, runID int64) ([]ChecklistItem, error) {
	rows, err := r.db.Query(ctx, itemQuery, runID)
	if err != nil {
		return nil, err
	}
	return collectItems(rows)
}

func collectItems(rows pgx.Rows) ([]ChecklistItem, error) {
	defer rows.Close()
	var items []ChecklistItem
	for rows.Next() {
		var it ChecklistItem
		if err := rows.Scan(&it.ID, &it.RunID, &it.Key, &it.Label, &it.Done, &it.DoneBy, &it.DoneAt); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanRun(row pgx.Row) (CloseRun, error) {
	var run CloseRun
	err := row.Scan(&run.ID, &run.CompanyID, &run.PeriodID, &run.Status, &run.StartedBy, &run.StartedAt, &run.CompletedAt)
	return run, err
}
