package masterdata

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists master data entities.
type Repository interface {
	ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error)
	GetCompany(ctx context.Context, id int64) (Company, error)
	CreateCompany(ctx context.Context, c Company) (Company, error)
	UpdateCompany(ctx context.Context, c Company) (Company, error)

	ListBranches(ctx context.Context, filters ListFilters) ([]Branch, int, error)
	GetBranch(ctx context.Context, id int64) (Branch, error)
	CreateBranch(ctx context.Context, b Branch) (Branch, error)
	UpdateBranch(ctx context.Context, b Branch) (Branch, error)
	DeleteBranch(ctx context.Context, id int64) error

	ListCurrencies(ctx context.Context) ([]Currency, error)
	UpsertCurrency(ctx context.Context, c Currency) (Currency, error)

	ListTaxes(ctx context.Context, companyID int64) ([]Tax, error)
	GetTax(ctx context.Context, id int64) (Tax, error)
	CreateTax(ctx context.Context, t Tax) (Tax, error)
	UpdateTax(ctx context.Context, t Tax) (Tax, error)

	ListPartners(ctx context.Context, filters ListFilters) ([]Partner, int, error)
	GetPartner(ctx context.Context, id int64) (Partner, error)
	CreatePartner(ctx context.Context, p Partner) (Partner, error)
	UpdatePartner(ctx context.Context, p Partner) (Partner, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a master data repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error) {
	where, args := buildFilter(filters, "", false)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM companies`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT id, code, name, address, tax_id, base_currency, is_active, created_at, updated_at
FROM companies` + where + ` ORDER BY name` + limitOffset(filters, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var companies []Company
	for rows.Next() {
		var c Company
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.Address, &c.TaxID, &c.BaseCurrency, &c.IsActive, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, 0, err
		}
		companies = append(companies, c)
	}
	return companies, total, rows.Err()
}

func (r *repository) GetCompany(ctx context.Context, id int64) (Company, error) {
	var c Company
	err := r.db.QueryRow(ctx, `SELECT id, code, name, address, tax_id, base_currency, is_active, created_at, updated_at
FROM companies WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.Address, &c.TaxID, &c.BaseCurrency, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Company{}, mapNotFound(err)
	}
	return c, nil
}

func (r *repository) CreateCompany(ctx context.Context, c Company) (Company, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO companies (code, name, address, tax_id, base_currency, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING id, is_active, created_at, updated_at`,
		c.Code, c.Name, c.Address, c.TaxID, c.BaseCurrency).
		Scan(&c.ID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Company{}, mapDuplicate(err)
	}
	return c, nil
}

func (r *repository) UpdateCompany(ctx context.Context, c Company) (Company, error) {
	err := r.db.QueryRow(ctx, `UPDATE companies SET name=$2, address=$3, tax_id=$4, is_active=$5, updated_at=NOW()
WHERE id=$1 RETURNING code, base_currency, created_at, updated_at`,
		c.ID, c.Name, c.Address, c.TaxID, c.IsActive).
		Scan(&c.Code, &c.BaseCurrency, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Company{}, mapNotFound(err)
	}
	return c, nil
}

func (r *repository) ListBranches(ctx context.Context, filters ListFilters) ([]Branch, int, error) {
	where, args := buildFilter(filters, "company_id", true)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM branches`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, company_id, code, name, address, is_active, created_at, updated_at
FROM branches`+where+` ORDER BY code`+limitOffset(filters, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var branches []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		branches = append(branches, b)
	}
	return branches, total, rows.Err()
}

func (r *repository) GetBranch(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.db.QueryRow(ctx, `SELECT id, company_id, code, name, address, is_active, created_at, updated_at
FROM branches WHERE id=$1`, id).
		Scan(&b.ID, &b.CompanyID, &b.Code, &b.Name, &b.Address, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Branch{}, mapNotFound(err)
	}
	return b, nil
}

func (r *repository) CreateBranch(ctx context.Context, b Branch) (Branch, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO branches (company_id, code, name, address, is_active)
VALUES ($1,$2,$3,$4,TRUE) RETURNING id, is_active, created_at, updated_at`,
		b.CompanyID, b.Code, b.Name, b.Address).
		Scan(&b.ID, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Branch{}, mapDuplicate(err)
	}
	return b, nil
}

func (r *repository) UpdateBranch(ctx context.Context, b Branch) (Branch, error) {
	err := r.db.QueryRow(ctx, `UPDATE branches SET name=$2, address=$3, is_active=$4, updated_at=NOW()
WHERE id=$1 RETURNING company_id, code, created_at, updated_at`,
		b.ID, b.Name, b.Address, b.IsActive).
		Scan(&b.CompanyID, &b.Code, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return Branch{}, mapNotFound(err)
	}
	return b, nil
}

func (r *repository) DeleteBranch(ctx context.Context, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM branches WHERE id=$1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrInUse
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListCurrencies(ctx context.Context) ([]Currency, error) {
	rows, err := r.db.Query(ctx, `SELECT code, name, exponent, is_active, created_at FROM currencies ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var currencies []Currency
	for rows.Next() {
		var c Currency
		if err := rows.Scan(&c.Code, &c.Name, &c.Exponent, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, err
		}
		currencies = append(currencies, c)
	}
	return currencies, rows.Err()
}

func (r *repository) UpsertCurrency(ctx context.Context, c Currency) (Currency, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO currencies (code, name, exponent, is_active)
VALUES ($1,$2,$3,$4)
ON CONFLICT (code) DO UPDATE SET name=EXCLUDED.name, exponent=EXCLUDED.exponent, is_active=EXCLUDED.is_active
RETURNING created_at`, c.Code, c.Name, c.Exponent, c.IsActive).Scan(&c.CreatedAt)
	if err != nil {
		return Currency{}, err
	}
	return c, nil
}

func (r *repository) ListTaxes(ctx context.Context, companyID int64) ([]Tax, error) {
	rows, err := r.db.Query(ctx, `SELECT id, company_id, code, name, rate_pct, account_id, is_active, created_at, updated_at
FROM taxes WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var taxes []Tax
	for rows.Next() {
		var t Tax
		if err := rows.Scan(&t.ID, &t.CompanyID, &t.Code, &t.Name, &t.RatePct, &t.AccountID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		taxes = append(taxes, t)
	}
	return taxes, rows.Err()
}

func (r *repository) GetTax(ctx context.Context, id int64) (Tax, error) {
	var t Tax
	err := r.db.QueryRow(ctx, `SELECT id, company_id, code, name, rate_pct, account_id, is_active, created_at, updated_at
FROM taxes WHERE id=$1`, id).
		Scan(&t.ID, &t.CompanyID, &t.Code, &t.Name, &t.RatePct, &t.AccountID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Tax{}, mapNotFound(err)
	}
	return t, nil
}

func (r *repository) CreateTax(ctx context.Context, t Tax) (Tax, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO taxes (company_id, code, name, rate_pct, account_id, is_active)
VALUES ($1,$2,$3,$4,$5,TRUE) RETURNING id, is_active, created_at, updated_at`,
		t.CompanyID, t.Code, t.Name, t.RatePct, t.AccountID).
		Scan(&t.ID, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Tax{}, mapDuplicate(err)
	}
	return t, nil
}

func (r *repository) UpdateTax(ctx context.Context, t Tax) (Tax, error) {
	err := r.db.QueryRow(ctx, `UPDATE taxes SET name=$2, rate_pct=$3, account_id=$4, is_active=$5, updated_at=NOW()
WHERE id=$1 RETURNING company_id, code, created_at, updated_at`,
		t.ID, t.Name, t.RatePct, t.AccountID, t.IsActive).
		Scan(&t.CompanyID, &t.Code, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return Tax{}, mapNotFound(err)
	}
	return t, nil
}

func (r *repository) ListPartners(ctx context.Context, filters ListFilters) ([]Partner, int, error) {
	where, args := buildFilter(filters, "company_id", true)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM partners`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, company_id, code, name, kind, tax_id, address, currency, is_active, created_at, updated_at
FROM partners`+where+` ORDER BY name`+limitOffset(filters, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var partners []Partner
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.Kind, &p.TaxID, &p.Address, &p.Currency, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		partners = append(partners, p)
	}
	return partners, total, rows.Err()
}

func (r *repository) GetPartner(ctx context.Context, id int64) (Partner, error) {
	var p Partner
	err := r.db.QueryRow(ctx, `SELECT id, company_id, code, name, kind, tax_id, address, currency, is_active, created_at, updated_at
FROM partners WHERE id=$1`, id).
		Scan(&p.ID, &p.CompanyID, &p.Code, &p.Name, &p.Kind, &p.TaxID, &p.Address, &p.Currency, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Partner{}, mapNotFound(err)
	}
	return p, nil
}

func (r *repository) CreatePartner(ctx context.Context, p Partner) (Partner, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO partners (company_id, code, name, kind, tax_id, address, currency, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,TRUE) RETURNING id, is_active, created_at, updated_at`,
		p.CompanyID, p.Code, p.Name, p.Kind, p.TaxID, p.Address, p.Currency).
		Scan(&p.ID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Partner{}, mapDuplicate(err)
	}
	return p, nil
}

func (r *repository) UpdatePartner(ctx context.Context, p Partner) (Partner, error) {
	err := r.db.QueryRow(ctx, `UPDATE partners SET name=$2, kind=$3, tax_id=$4, address=$5, currency=$6, is_active=$7, updated_at=NOW()
WHERE id=$1 RETURNING company_id, code, created_at, updated_at`,
		p.ID, p.Name, p.Kind, p.TaxID, p.Address, p.Currency, p.IsActive).
		Scan(&p.CompanyID, &p.Code, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Partner{}, mapNotFound(err)
	}
	return p, nil
}

// Helpers

func buildFilter(filters ListFilters, companyCol string, scoped bool) (string, []any) {
	var conds []string
	var args []any
	if scoped && filters.CompanyID > 0 && companyCol != "" {
		args = append(args, filters.CompanyID)
		conds = append(conds, fmt.Sprintf("%s = $%d", companyCol, len(args)))
	}
	if filters.Search != "" {
		args = append(args, "%"+strings.TrimSpace(filters.Search)+"%")
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args), len(args)))
	}
	if filters.IsActive != nil {
		args = append(args, *filters.IsActive)
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func limitOffset(filters ListFilters, argCount int) string {
	perPage := filters.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", perPage, (page-1)*perPage)
}

func mapNotFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mapDuplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateCode
	}
	return err
}
