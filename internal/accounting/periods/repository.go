package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// ErrYearExists indicates the fiscal year is already generated.
var ErrYearExists = errors.New("accounting: fiscal year already exists")

// Repository persists fiscal years and periods.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the periods repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// WithTx executes fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const periodColumns = `id, company_id, fiscal_year_id, code, start_date, end_date, status, closed_by, closed_at, created_at, updated_at`

// ListYears returns fiscal years for a company, newest first.
func (r *Repository) ListYears(ctx context.Context, companyID int64) ([]FiscalYear, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, year, start_date, end_date, is_closed, created_at
FROM fiscal_years WHERE company_id=$1 ORDER BY year DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []FiscalYear
	for rows.Next() {
		var y FiscalYear
		if err := rows.Scan(&y.ID, &y.CompanyID, &y.Year, &y.StartDate, &y.EndDate, &y.IsClosed, &y.CreatedAt); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// InsertYear creates the fiscal year row inside tx.
func (r *Repository) InsertYear(ctx context.Context, tx pgx.Tx, companyID int64, year int, start, end time.Time) (FiscalYear, error) {
	var y FiscalYear
	err := tx.QueryRow(ctx, `INSERT INTO fiscal_years (company_id, year, start_date, end_date)
VALUES ($1,$2,$3,$4) RETURNING id, company_id, year, start_date, end_date, is_closed, created_at`,
		companyID, year, start, end).
		Scan(&y.ID, &y.CompanyID, &y.Year, &y.StartDate, &y.EndDate, &y.IsClosed, &y.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return FiscalYear{}, ErrYearExists
		}
		return FiscalYear{}, err
	}
	return y, nil
}

// InsertPeriod creates one monthly period inside tx.
func (r *Repository) InsertPeriod(ctx context.Context, tx pgx.Tx, p Period) (Period, error) {
	err := tx.QueryRow(ctx, `INSERT INTO periods (company_id, fiscal_year_id, code, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		p.CompanyID, p.FiscalYearID, p.Code, p.StartDate, p.EndDate, PeriodStatusOpen).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Period{}, err
	}
	p.Status = PeriodStatusOpen
	return p, nil
}

// ListPeriods returns periods of a fiscal year in date order.
func (r *Repository) ListPeriods(ctx context.Context, companyID, fiscalYearID int64) ([]Period, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM periods
WHERE company_id=$1 AND fiscal_year_id=$2 ORDER BY start_date`, companyID, fiscalYearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Get loads one period.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1`, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrInvalidPeriod
		}
		return Period{}, err
	}
	return p, nil
}

// GetForUpdate loads and locks one period inside tx.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id int64) (Period, error) {
	row := tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE id=$1 FOR UPDATE`, id)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrInvalidPeriod
		}
		return Period{}, err
	}
	return p, nil
}

// FindByDate resolves the period containing the date for a company.
func (r *Repository) FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods
WHERE company_id=$1 AND start_date <= $2 AND end_date >= $2`, companyID, date)
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, shared.ErrInvalidPeriod
		}
		return Period{}, err
	}
	return p, nil
}

// UpdateStatus transitions a period inside tx, stamping the closer.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, id int64, status PeriodStatus, actorID int64) error {
	var cmd pgconn.CommandTag
	var err error
	if status == PeriodStatusOpen {
		cmd, err = tx.Exec(ctx, `UPDATE periods SET status=$2, closed_by=NULL, closed_at=NULL, updated_at=NOW() WHERE id=$1`, id, status)
	} else {
		cmd, err = tx.Exec(ctx, `UPDATE periods SET status=$2, closed_by=$3, closed_at=NOW(), updated_at=NOW() WHERE id=$1`, id, status, actorID)
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrInvalidPeriod
	}
	return nil
}

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
