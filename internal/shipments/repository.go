package shipments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists shipments, declarations, and expense batches.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the shipments repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const shipmentColumns = `id, company_id, reference, supplier_id, origin, destination, incoterm, etd, eta, status, created_by, created_at, updated_at`

// Create inserts a draft shipment.
func (r *Repository) Create(ctx context.Context, s Shipment) (Shipment, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO shipments
(company_id, reference, supplier_id, origin, destination, incoterm, etd, eta, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at`,
		s.CompanyID, s.Reference, s.SupplierID, s.Origin, s.Destination, s.Incoterm, s.ETD, s.ETA, StatusDraft, s.CreatedBy).
		Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Shipment{}, err
	}
	s.Status = StatusDraft
	return s, nil
}

// Update replaces editable shipment fields.
func (r *Repository) Update(ctx context.Context, s Shipment) (Shipment, error) {
	row := r.db.QueryRow(ctx, `UPDATE shipments SET
reference=$3, supplier_id=$4, origin=$5, destination=$6, incoterm=$7, etd=$8, eta=$9, updated_at=NOW()
WHERE company_id=$1 AND id=$2
RETURNING `+shipmentColumns,
		s.CompanyID, s.ID, s.Reference, s.SupplierID, s.Origin, s.Destination, s.Incoterm, s.ETD, s.ETA)
	updated, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, err
	}
	return updated, nil
}

// Get loads one shipment scoped to the company.
func (r *Repository) Get(ctx context.Context, companyID, id int64) (Shipment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE company_id=$1 AND id=$2`, companyID, id)
	s, err := scanShipment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Shipment{}, ErrNotFound
		}
		return Shipment{}, err
	}
	return s, nil
}

// List returns shipments matching filters plus the total count.
func (r *Repository) List(ctx context.Context, companyID int64, f ListFilters) ([]Shipment, int, error) {
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
	if f.Search != "" {
		where += fmt.Sprintf(" AND reference ILIKE $%d", idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM shipments WHERE `+where, args...).Scan(&total); err != nil {
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
	rows, err := r.db.Query(ctx, `SELECT `+shipmentColumns+` FROM shipments WHERE `+where+
		fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`, idx, idx+1), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, s)
	}
	return list, total, rows.Err()
}

// UpdateStatus transitions the shipment. The WHERE clause re-checks the
// current status, so a stale transition loses cleanly.
func (r *Repository) UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE shipments SET status=$4, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$3`, companyID, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBadTransition
	}
	return nil
}

// Declarations

// AddDeclaration files a customs declaration for a shipment.
func (r *Repository) AddDeclaration(ctx context.Context, d CustomsDeclaration) (CustomsDeclaration, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO customs_declarations
(shipment_id, declaration_no, currency, declared_value, duty_amount, vat_amount, cleared_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		d.ShipmentID, d.DeclarationNo, d.Currency, d.DeclaredValue, d.DutyAmount, d.VATAmount, d.ClearedAt).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return CustomsDeclaration{}, ErrDeclarationExists
		}
		return CustomsDeclaration{}, err
	}
	return d, nil
}

// ListDeclarations returns declarations for a shipment.
func (r *Repository) ListDeclarations(ctx context.Context, shipmentID int64) ([]CustomsDeclaration, error) {
	rows, err := r.db.Query(ctx, `SELECT id, shipment_id, declaration_no, currency, declared_value, duty_amount, vat_amount, cleared_at, created_at
FROM customs_declarations WHERE shipment_id=$1 ORDER BY created_at`, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []CustomsDeclaration
	for rows.Next() {
		var d CustomsDeclaration
		if err := rows.Scan(&d.ID, &d.ShipmentID, &d.DeclarationNo, &d.Currency, &d.DeclaredValue, &d.DutyAmount, &d.VATAmount, &d.ClearedAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// MarkDeclarationCleared stamps the clearance time.
func (r *Repository) MarkDeclarationCleared(ctx context.Context, shipmentID, declarationID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE customs_declarations SET cleared_at=NOW()
WHERE shipment_id=$1 AND id=$2 AND cleared_at IS NULL`, shipmentID, declarationID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Expense batches

const batchColumns = `id, company_id, shipment_id, description, accrual_account_id, expense_date, status, source_id, journal_id, created_by, created_at, updated_at`

// CreateBatch inserts the batch and its items.
func (r *Repository) CreateBatch(ctx context.Context, b ExpenseBatch) (ExpenseBatch, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return ExpenseBatch{}, err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `INSERT INTO shipment_expense_batches
(company_id, shipment_id, description, accrual_account_id, expense_date, status, source_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		b.CompanyID, b.ShipmentID, b.Description, b.AccrualAccountID, b.ExpenseDate, BatchStatusDraft, b.SourceID, b.CreatedBy).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return ExpenseBatch{}, err
	}
	for i := range b.Items {
		b.Items[i].BatchID = b.ID
		err := tx.QueryRow(ctx, `INSERT INTO shipment_expense_items
(batch_id, expense_account_id, description, currency, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			b.ID, b.Items[i].ExpenseAccountID, b.Items[i].Description, b.Items[i].Currency, b.Items[i].Amount).
			Scan(&b.Items[i].ID)
		if err != nil {
			return ExpenseBatch{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return ExpenseBatch{}, err
	}
	b.Status = BatchStatusDraft
	return b, nil
}

// GetBatch loads a batch with items.
func (r *Repository) GetBatch(ctx context.Context, companyID, id int64) (ExpenseBatch, error) {
	row := r.db.QueryRow(ctx, `SELECT `+batchColumns+` FROM shipment_expense_batches WHERE company_id=$1 AND id=$2`, companyID, id)
	b, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExpenseBatch{}, ErrBatchNotFound
		}
		return ExpenseBatch{}, err
	}
	b.Items, err = r.listItems(ctx, b.ID)
	return b, err
}

// ListBatches returns batches for a shipment.
func (r *Repository) ListBatches(ctx context.Context, companyID, shipmentID int64) ([]ExpenseBatch, error) {
	rows, err := r.db.Query(ctx, `SELECT `+batchColumns+` FROM shipment_expense_batches
WHERE company_id=$1 AND shipment_id=$2 ORDER BY created_at`, companyID, shipmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var batches []ExpenseBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range batches {
		batches[i].Items, err = r.listItems(ctx, batches[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return batches, nil
}

// SetBatchPosted marks the batch posted with its journal.
func (r *Repository) SetBatchPosted(ctx context.Context, companyID, id, journalID int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE shipment_expense_batches SET status=$3, journal_id=$4, updated_at=NOW()
WHERE company_id=$1 AND id=$2 AND status=$5`, companyID, id, BatchStatusPosted, journalID, BatchStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotDraft
	}
	return nil
}

func (r *Repository) listItems(ctx context.Context, batchID int64) ([]ExpenseItem, error) {
	rows, err := r.db.Query(ctx, `SELECT id, batch_id, expense_account_id, description, currency, amount
FROM shipment_expense_items WHERE batch_id=$1 ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ExpenseItem
	for rows.Next() {
		var it ExpenseItem
		if err := rows.Scan(&it.ID, &it.BatchID, &it.ExpenseAccountID, &it.Description, &it.Currency, &it.Amount); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func scanBatch(row pgx.Row) (ExpenseBatch, error) {
	var b ExpenseBatch
	err := row.Scan(&b.ID, &b.CompanyID, &b.ShipmentID, &b.Description, &b.AccrualAccountID, &b.ExpenseDate,
		&b.Status, &b.SourceID, &b.JournalID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanShipment(row pgx.Row) (Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.CompanyID, &s.Reference, &s.SupplierID, &s.Origin, &s.Destination,
		&s.Incoterm, &s.ETD, &s.ETA, &s.Status, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}
