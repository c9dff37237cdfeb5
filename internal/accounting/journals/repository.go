package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// PostingAccount carries the fields the posting engine checks before
// accepting a line.
type PostingAccount struct {
	ID        int64
	CompanyID int64
	Code      string
	IsActive  bool
}

// Repository is the read side plus the transaction entry point.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (JournalEntry, error)
	List(ctx context.Context, companyID int64, filters ListFilters) ([]JournalEntry, int, error)
}

// TxRepository exposes the statements the posting engine runs inside one
// transaction. The period row lock serialises concurrent postings against
// closing for the same period.
type TxRepository interface {
	GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error)
	FindOpenPeriodOnOrAfter(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
	GetPostingAccount(ctx context.Context, accountID int64) (PostingAccount, error)
	CompanyBaseCurrency(ctx context.Context, companyID int64) (string, error)
	LatestRate(ctx context.Context, from, to string, onDate time.Time) (decimal.Decimal, error)
	NextJournalNumber(ctx context.Context, companyID, fiscalYearID int64) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, journalID int64, lines []JournalLine) ([]JournalLine, error)
	LinkSource(ctx context.Context, module string, sourceID uuid.UUID, journalID int64) error
	GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error)
	GetLines(ctx context.Context, journalID int64) ([]JournalLine, error)
	UpdateStatus(ctx context.Context, id int64, status JournalStatus) error
}

type pgRepository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed journals repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &pgRepository{db: db}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const entryColumns = `id, company_id, number, period_id, entry_date, source_module, source_id, memo, posted_by, posted_at, status, reversal_of, created_at, updated_at`

func (r *pgRepository) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2`, companyID, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.db, id)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

func (r *pgRepository) List(ctx context.Context, companyID int64, filters ListFilters) ([]JournalEntry, int, error) {
	where := "company_id=$1"
	args := []any{companyID}
	idx := 2
	if filters.PeriodID != 0 {
		where += fmt.Sprintf(" AND period_id=$%d", idx)
		args = append(args, filters.PeriodID)
		idx++
	}
	if filters.SourceModule != "" {
		where += fmt.Sprintf(" AND source_module=$%d", idx)
		args = append(args, filters.SourceModule)
		idx++
	}
	if filters.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, filters.Status)
		idx++
	}
	if filters.DateFrom != nil {
		where += fmt.Sprintf(" AND entry_date >= $%d", idx)
		args = append(args, *filters.DateFrom)
		idx++
	}
	if filters.DateTo != nil {
		where += fmt.Sprintf(" AND entry_date <= $%d", idx)
		args = append(args, *filters.DateTo)
		idx++
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filters.PerPage
	if perPage <= 0 || perPage > 200 {
		perPage = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE `+where+
		fmt.Sprintf(` ORDER BY entry_date DESC, number DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, company_id, fiscal_year_id, code, start_date, end_date, status, closed_by, closed_at, created_at, updated_at
FROM periods WHERE id=$1 FOR UPDATE`, periodID)
	var p periods.Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (t *txRepository) FindOpenPeriodOnOrAfter(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	row := t.tx.QueryRow(ctx, `SELECT id, company_id, fiscal_year_id, code, start_date, end_date, status, closed_by, closed_at, created_at, updated_at
FROM periods WHERE company_id=$1 AND end_date >= $2 AND status=$3
ORDER BY start_date LIMIT 1 FOR UPDATE`, companyID, date, periods.PeriodStatusOpen)
	var p periods.Period
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYearID, &p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return periods.Period{}, shared.ErrInvalidPeriod
		}
		return periods.Period{}, err
	}
	return p, nil
}

func (t *txRepository) GetPostingAccount(ctx context.Context, accountID int64) (PostingAccount, error) {
	var a PostingAccount
	err := t.tx.QueryRow(ctx, `SELECT id, company_id, code, is_active FROM accounts WHERE id=$1`, accountID).
		Scan(&a.ID, &a.CompanyID, &a.Code, &a.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PostingAccount{}, shared.ErrAccountNotFound
		}
		return PostingAccount{}, err
	}
	return a, nil
}

func (t *txRepository) CompanyBaseCurrency(ctx context.Context, companyID int64) (string, error) {
	var code string
	err := t.tx.QueryRow(ctx, `SELECT base_currency FROM companies WHERE id=$1`, companyID).Scan(&code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", shared.ErrCompanyMismatch
		}
		return "", err
	}
	return code, nil
}

func (t *txRepository) LatestRate(ctx context.Context, from, to string, onDate time.Time) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := t.tx.QueryRow(ctx, `SELECT rate FROM exchange_rates
WHERE from_code=$1 AND to_code=$2 AND rate_date <= $3
ORDER BY rate_date DESC LIMIT 1`, from, to, onDate).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, shared.ErrRateUnavailable
		}
		return decimal.Zero, err
	}
	return rate, nil
}

// NextJournalNumber allocates the next gapless number for (company, fiscal
// year). The upsert takes a row lock, so allocation and insert commit or roll
// back together and numbers never skip.
func (t *txRepository) NextJournalNumber(ctx context.Context, companyID, fiscalYearID int64) (int64, error) {
	var number int64
	err := t.tx.QueryRow(ctx, `INSERT INTO journal_sequences (company_id, fiscal_year_id, next_number)
VALUES ($1,$2,1)
ON CONFLICT (company_id, fiscal_year_id) DO UPDATE SET next_number = journal_sequences.next_number + 1
RETURNING next_number`, companyID, fiscalYearID).Scan(&number)
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (t *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO journal_entries
(company_id, number, period_id, entry_date, source_module, source_id, memo, posted_by, posted_at, status, reversal_of)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id, created_at, updated_at`,
		entry.CompanyID, entry.Number, entry.PeriodID, entry.Date, entry.SourceModule, entry.SourceID,
		entry.Memo, entry.PostedBy, entry.PostedAt, entry.Status, entry.ReversalOf).
		Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (t *txRepository) InsertLines(ctx context.Context, journalID int64, lines []JournalLine) ([]JournalLine, error) {
	for i := range lines {
		lines[i].JournalID = journalID
		err := t.tx.QueryRow(ctx, `INSERT INTO journal_lines
(journal_id, account_id, currency, debit, credit, rate, base_debit, base_credit, branch_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, created_at`,
			journalID, lines[i].AccountID, lines[i].Currency, lines[i].Debit, lines[i].Credit,
			lines[i].Rate, lines[i].BaseDebit, lines[i].BaseCredit, lines[i].BranchID).
			Scan(&lines[i].ID, &lines[i].CreatedAt)
		if err != nil {
			return nil, err
		}
	}
	return lines, nil
}

func (t *txRepository) LinkSource(ctx context.Context, module string, sourceID uuid.UUID, journalID int64) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO source_links (source_module, source_id, journal_id) VALUES ($1,$2,$3)`,
		module, sourceID, journalID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrSourceAlreadyLinked
		}
		return err
	}
	return nil
}

func (t *txRepository) GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (t *txRepository) GetLines(ctx context.Context, journalID int64) ([]JournalLine, error) {
	return queryLines(ctx, t.tx, journalID)
}

func (t *txRepository) UpdateStatus(ctx context.Context, id int64, status JournalStatus) error {
	cmd, err := t.tx.Exec(ctx, `UPDATE journal_entries SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q querier, journalID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_id, account_id, currency, debit, credit, rate, base_debit, base_credit, branch_id, created_at
FROM journal_lines WHERE journal_id=$1 ORDER BY id`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.JournalID, &l.AccountID, &l.Currency, &l.Debit, &l.Credit, &l.Rate, &l.BaseDebit, &l.BaseCredit, &l.BranchID, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.Number, &e.PeriodID, &e.Date, &e.SourceModule, &e.SourceID,
		&e.Memo, &e.PostedBy, &e.PostedAt, &e.Status, &e.ReversalOf, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}
