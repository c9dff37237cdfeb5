package vouchers

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists vouchers.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the vouchers repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const voucherColumns = `id, company_id, kind, number, partner_id, voucher_date, currency, amount,
cash_account_id, counter_account_id, memo, status, source_id, journal_id, cancel_journal_id,
created_by, created_at, updated_at`

// CreateDraft inserts a draft voucher.
func (r *Repository) CreateDraft(ctx context.Context, v Voucher) (Voucher, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO vouchers
(company_id, kind, partner_id, voucher_date, currency, amount, cash_account_id, counter_account_id, memo, status, source_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`,
		v.CompanyID, v.Kind, v.PartnerID, v.Date, v.Currency, v.Amount,
		v.CashAccountID, v.CounterAccountID, v.Memo, StatusDraft, v.SourceID, v.CreatedBy).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Voucher{}, err
	}
	v.Status = StatusDraft
	return v, nil
}

// UpdateDraft replaces editable fields while the voucher is still a draft.
func (r *Repository) UpdateDraft(ctx context.Context, v Voucher) (Voucher, error) {
	row := r.db.QueryRow(ctx, `UPDATE vouchers SET
partner_id=$3, voucher_date=$4, currency=$5, amount=$6, cash_account_id=$7, counter_account_id=$8, memo=$9, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$10
RETURNING `+voucherColumns,
		v.CompanyID, v.ID, v.PartnerID, v.Date, v.Currency, v.Amount,
		v.CashAccountID, v.CounterAccountID, v.Memo, StatusDraft)
	updated, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotDraft
		}
		return Voucher{}, err
	}
	return updated, nil
}

// Get loads one voucher scoped to the company.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Voucher, error) {
	row := r.db.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE company_id=$1 AND id=$2`, companyID, id)
	v, err := scanVoucher(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, ErrNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

// List returns vouchers matching filters plus the total count.
func (r *Repository) List(ctx context.Context, companyID int64, f ListFilters) ([]Voucher, int, error) {
	where := "company_id=$1"
	args := []any{companyID}
	idx := 2
	if f.Kind != "" {
		where += fmt.Sprintf(" AND kind=$%d", idx)
		args = append(args, f.Kind)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.PartnerID != 0 {
		where += fmt.Sprintf(" AND partner_id=$%d", idx)
		args = append(args, f.PartnerID)
		idx++
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM vouchers WHERE `+where, args...).Scan(&total); err != nil {
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
	rows, err := r.db.Query(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE `+where+
		fmt.Sprintf(` ORDER BY voucher_date DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var vouchers []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, 0, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, total, rows.Err()
}

// FinalizePost allocates the next document number for (company, kind, year)
// and flips the voucher to POSTED in one transaction. The sequence upsert
// locks the sequence row, and a rollback releases the number with it, so a
// failed post consumes nothing.
func (r *Repository) FinalizePost(ctx context.Context, companyID, id int64, kind Kind, year int, journalID int64) (string, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var seq int64
	err = tx.QueryRow(ctx, `INSERT INTO voucher_sequences (company_id, kind, year, next_number)
VALUES ($1,$2,$3,1)
ON CONFLICT (company_id, kind, year) DO UPDATE SET next_number = voucher_sequences.next_number + 1
RETURNING next_number`, companyID, kind, year).Scan(&seq)
	if err != nil {
		return "", err
	}
	number := fmt.Sprintf("%s-%d-%d-%05d", kind.NumberPrefix(), companyID, year, seq)

	tag, err := tx.Exec(ctx, `UPDATE vouchers SET status=$3, number=$4, journal_id=$5, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$6`, companyID, id, StatusPosted, number, journalID, StatusDraft)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 0 {
		return "", ErrNotDraft
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return number, nil
}

// DeleteDraft removes a voucher that never left draft state.
func (r *Repository) DeleteDraft(ctx context.Context, companyID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM vouchers WHERE company_id=$1 AND id=$2 AND status=$3`,
		companyID, id, StatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}

// SetCancelled marks the voucher cancelled with the reversal journal.
func (r *Repository) SetCancelled(ctx context.Context, companyID, id, cancelJournalID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE vouchers SET status=$3, cancel_journal_id=$4, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$5`, companyID, id, StatusCancelled, cancelJournalID, StatusPosted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotPosted
	}
	return nil
}

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	var number *string
	err := row.Scan(&v.ID, &v.CompanyID, &v.Kind, &number, &v.PartnerID, &v.Date, &v.Currency, &v.Amount,
		&v.CashAccountID, &v.CounterAccountID, &v.Memo, &v.Status, &v.SourceID, &v.JournalID, &v.CancelJournalID,
		&v.CreatedBy, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return Voucher{}, err
	}
	if number != nil {
		v.Number = *number
	}
	return v, nil
}
