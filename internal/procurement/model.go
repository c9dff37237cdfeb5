// Package procurement manages supplier invoices through approval and AP
// posting.
package procurement

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceStatus enumerates the purchase invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceStatusDraft    InvoiceStatus = "DRAFT"
	InvoiceStatusApproved InvoiceStatus = "APPROVED"
	InvoiceStatusPosted   InvoiceStatus = "POSTED"
)

// PurchaseInvoice is a supplier bill. Tax amounts are split out per line at
// capture time so the AP posting can book input tax separately.
type PurchaseInvoice struct {
	ID               int64         `json:"id"`
	CompanyID        int64         `json:"company_id"`
	SupplierID       int64         `json:"supplier_id"`
	InvoiceNo        string        `json:"invoice_no"`
	InvoiceDate      time.Time     `json:"invoice_date"`
	Currency         string        `json:"currency"`
	PayableAccountID int64         `json:"payable_account_id"`
	Memo             string        `json:"memo"`
	Status           InvoiceStatus `json:"status"`
	SourceID         uuid.UUID     `json:"source_id"`
	JournalID        *int64        `json:"journal_id,omitempty"`
	ApprovedBy       *int64        `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time    `json:"approved_at,omitempty"`
	CreatedBy        int64         `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Lines            []InvoiceLine `json:"lines,omitempty"`
}

// InvoiceLine is one net expense line with its computed tax split.
type InvoiceLine struct {
	ID               int64           `json:"id"`
	InvoiceID        int64           `json:"invoice_id"`
	Description      string          `json:"description"`
	ExpenseAccountID int64           `json:"expense_account_id"`
	NetAmount        decimal.Decimal `json:"net_amount"`
	TaxID            *int64          `json:"tax_id,omitempty"`
	TaxAccountID     *int64          `json:"tax_account_id,omitempty"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
}

// GrossTotal sums net plus tax over all lines.
func (inv PurchaseInvoice) GrossTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range inv.Lines {
		total = total.Add(l.NetAmount).Add(l.TaxAmount)
	}
	return total
}

var (
	// ErrNotFound indicates a missing invoice.
	ErrNotFound = errors.New("procurement: invoice not found")
	// ErrNotDraft indicates the invoice already left draft state.
	ErrNotDraft = errors.New("procurement: invoice is not a draft")
	// ErrNotApproved blocks posting an unapproved invoice.
	ErrNotApproved = errors.New("procurement: invoice is not approved")
	// ErrNoLines indicates an invoice without lines.
	ErrNoLines = errors.New("procurement: invoice has no lines")
	// ErrDuplicateInvoiceNo indicates the supplier invoice number was already
	// captured for this supplier.
	ErrDuplicateInvoiceNo = errors.New("procurement: invoice number already captured for supplier")
)

// ListFilters narrows invoice listings.
type ListFilters struct {
	Page       int
	PerPage    int
	Status     InvoiceStatus
	SupplierID int64
}
