package masterdata

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors shared by master data operations.
var (
	ErrNotFound      = errors.New("masterdata: not found")
	ErrDuplicateCode = errors.New("masterdata: code already in use")
	ErrInUse         = errors.New("masterdata: record is referenced and cannot be deleted")
)

// ListFilters represents standard list endpoint filters.
type ListFilters struct {
	Page      int
	PerPage   int
	Search    string
	IsActive  *bool
	CompanyID int64
}

// Company represents a tenant.
type Company struct {
	ID           int64     `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	TaxID        string    `json:"tax_id"`
	BaseCurrency string    `json:"base_currency"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Branch represents a branch within a company.
type Branch struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Currency is an ISO 4217 currency enabled for a company.
type Currency struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Exponent  int       `json:"exponent"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Tax represents a tax code with a percentage rate.
type Tax struct {
	ID        int64           `json:"id"`
	CompanyID int64           `json:"company_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	RatePct   decimal.Decimal `json:"rate_pct"`
	AccountID int64           `json:"account_id"`
	IsActive  bool            `json:"is_active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// PartnerKind enumerates partner roles.
type PartnerKind string

const (
	PartnerCustomer PartnerKind = "CUSTOMER"
	PartnerSupplier PartnerKind = "SUPPLIER"
	PartnerBoth     PartnerKind = "BOTH"
)

// Partner is a customer or supplier scoped to a company.
type Partner struct {
	ID        int64       `json:"id"`
	CompanyID int64       `json:"company_id"`
	Code      string      `json:"code"`
	Name      string      `json:"name"`
	Kind      PartnerKind `json:"kind"`
	TaxID     string      `json:"tax_id"`
	Address   string      `json:"address"`
	Currency  string      `json:"currency"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func validPartnerKind(kind PartnerKind) bool {
	switch kind {
	case PartnerCustomer, PartnerSupplier, PartnerBoth:
		return true
	default:
		return false
	}
}
