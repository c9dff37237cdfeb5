package procurement

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists purchase invoices.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the procurement repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const invoiceColumns = `id, company_id, supplier_id, invoice_no, invoice_date, currency, payable_account_id,
memo, status, source_id, journal_id, approved_by, approved_at, created_by, created_at, updated_at`

// Create inserts the invoice and its lines in one transaction.
func (r *Repository) Create(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `INSERT INTO purchase_invoices
(company_id, supplier_id, invoice_no, invoice_date, currency, payable_account_id, memo, status, source_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at`,
		inv.CompanyID, inv.SupplierID, inv.InvoiceNo, inv.InvoiceDate, inv.Currency,
		inv.PayableAccountID, inv.Memo, InvoiceStatusDraft, inv.SourceID, inv.CreatedBy).
		Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return PurchaseInvoice{}, ErrDuplicateInvoiceNo
		}
		return PurchaseInvoice{}, err
	}
	if err := insertLines(ctx, tx, inv.ID, inv.Lines); err != nil {
		return PurchaseInvoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return PurchaseInvoice{}, err
	}
	inv.Status = InvoiceStatusDraft
	for i := range inv.Lines {
		inv.Lines[i].InvoiceID = inv.ID
	}
	return inv, nil
}

// ReplaceLines swaps all lines of a draft invoice.
func (r *Repository) ReplaceLines(ctx context.Context, companyID, invoiceID int64, lines []InvoiceLine) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status InvoiceStatus
	err = tx.QueryRow(ctx, `SELECT status FROM purchase_invoices WHERE company_id=$1 AND id=$2 FOR UPDATE`,
		companyID, invoiceID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if status != InvoiceStatusDraft {
		return ErrNotDraft
	}
	if _, err := tx.Exec(ctx, `DELETE FROM purchase_invoice_lines WHERE invoice_id=$1`, invoiceID); err != nil {
		return err
	}
	if err := insertLines(ctx, tx, invoiceID, lines); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE purchase_invoices SET updated_at=NOW() WHERE id=$1`, invoiceID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get loads an invoice with lines.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (PurchaseInvoice, error) {
	row := r.db.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE company_id=$1 AND id=$2`, companyID, id)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseInvoice{}, ErrNotFound
		}
		return PurchaseInvoice{}, err
	}
	inv.Lines, err = r.listLines(ctx, inv.ID)
	return inv, err
}

// List returns invoices matching filters plus the total count.
func (r *Repository) List(ctx context.Context, companyID int64, f ListFilters) ([]PurchaseInvoice, int, error) {
	where := "company_id=$1"
	args := []any{companyID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status=$%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.SupplierID != 0 {
		where += fmt.Sprintf(" AND supplier_id=$%d", idx)
		args = append(args, f.SupplierID)
		idx++
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_invoices WHERE `+where, args...).Scan(&total); err != nil {
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
	rows, err := r.db.Query(ctx, `SELECT `+invoiceColumns+` FROM purchase_invoices WHERE `+where+
		fmt.Sprintf(` ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var invoices []PurchaseInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, total, rows.Err()
}

// SetApproved stamps the approver on a draft invoice.
func (r *Repository) SetApproved(ctx context.Context, companyID, id, actorID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_invoices SET status=$3, approved_by=$4, approved_at=NOW(), updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$5`, companyID, id, InvoiceStatusApproved, actorID, InvoiceStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotDraft
	}
	return nil
}

// SetPosted marks an approved invoice posted with its journal.
func (r *Repository) SetPosted(ctx context.Context, companyID, id, journalID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE purchase_invoices SET status=$3, journal_id=$4, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$5`, companyID, id, InvoiceStatusPosted, journalID, InvoiceStatusApproved)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotApproved
	}
	return nil
}

func insertLines(ctx context.Context, tx pgx.Tx, invoiceID int64, lines []InvoiceLine) error {
	for i := range lines {
		lines[i].InvoiceID = invoiceID
		err := tx.QueryRow(ctx, `INSERT INTO purchase_invoice_lines
(invoice_id, description, expense_account_id, net_amount, tax_id, tax_account_id, tax_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			invoiceID, lines[i].Description, lines[i].ExpenseAccountID, lines[i].NetAmount,
			lines[i].TaxID, lines[i].TaxAccountID, lines[i].TaxAmount).Scan(&lines[i].ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]InvoiceLine, error) {
	rows, err := r.db.Query(ctx, `SELECT id, invoice_id, description, expense_account_id, net_amount, tax_id, tax_account_id, tax_amount
FROM purchase_invoice_lines WHERE invoice_id=$1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InvoiceLine
	for rows.Next() {
		var l InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.Description, &l.ExpenseAccountID, &l.NetAmount, &l.TaxID, &l.TaxAccountID, &l.TaxAmount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func scanInvoice(row pgx.Row) (PurchaseInvoice, error) {
	var inv PurchaseInvoice
	err := row.Scan(&inv.ID, &inv.CompanyID, &inv.SupplierID, &inv.InvoiceNo, &inv.InvoiceDate, &inv.Currency,
		&inv.PayableAccountID, &inv.Memo, &inv.Status, &inv.SourceID, &inv.JournalID,
		&inv.ApprovedBy, &inv.ApprovedAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	return inv, err
}
