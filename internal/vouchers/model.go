// Package vouchers implements payment and receipt vouchers backed by the
// journal engine.
package vouchers

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes cash-out from cash-in vouchers.
type Kind string

const (
	KindPayment Kind = "PAYMENT"
	KindReceipt Kind = "RECEIPT"
)

// NumberPrefix returns the document number prefix for the kind.
func (k Kind) NumberPrefix() string {
	if k == KindReceipt {
		return "RV"
	}
	return "PV"
}

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	return k == KindPayment || k == KindReceipt
}

// Status enumerates voucher lifecycle values.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPosted    Status = "POSTED"
	StatusCancelled Status = "CANCELLED"
)

// Voucher is a cash document. SourceID feeds the journal engine's idempotent
// source link, so a voucher can produce at most one posting.
type Voucher struct {
	ID               int64           `json:"id"`
	CompanyID        int64           `json:"company_id"`
	Kind             Kind            `json:"kind"`
	Number           string          `json:"number,omitempty"`
	PartnerID        *int64          `json:"partner_id,omitempty"`
	Date             time.Time       `json:"date"`
	Currency         string          `json:"currency"`
	Amount           decimal.Decimal `json:"amount"`
	CashAccountID    int64           `json:"cash_account_id"`
	CounterAccountID int64           `json:"counter_account_id"`
	Memo             string          `json:"memo"`
	Status           Status          `json:"status"`
	SourceID         uuid.UUID       `json:"source_id"`
	JournalID        *int64          `json:"journal_id,omitempty"`
	CancelJournalID  *int64          `json:"cancel_journal_id,omitempty"`
	CreatedBy        int64           `json:"created_by"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing voucher.
	ErrNotFound = errors.New("vouchers: voucher not found")
	// ErrNotDraft indicates the voucher already left draft state.
	ErrNotDraft = errors.New("vouchers: voucher is not a draft")
	// ErrNotPosted indicates cancel on a voucher that is not posted.
	ErrNotPosted = errors.New("vouchers: voucher is not posted")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("vouchers: amount must be positive")
)

// ListFilters narrows voucher listings.
type ListFilters struct {
	Page      int
	PerPage   int
	Kind      Kind
	Status    Status
	PartnerID int64
}
