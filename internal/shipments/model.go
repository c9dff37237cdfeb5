// Package shipments tracks inbound freight and its landed cost accruals.
package shipments

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the shipment lifecycle.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusInTransit Status = "IN_TRANSIT"
	StatusArrived   Status = "ARRIVED"
	StatusCleared   Status = "CLEARED"
	StatusDelivered Status = "DELIVERED"
	StatusCancelled Status = "CANCELLED"
)

// transitions holds the allowed forward moves. Cancel is allowed from any
// state before delivery.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusArrived, StatusCancelled},
	StatusArrived:   {StatusCleared, StatusCancelled},
	StatusCleared:   {StatusDelivered, StatusCancelled},
}

// CanTransition reports whether moving from to next is allowed.
func CanTransition(from, next Status) bool {
	for _, s := range transitions[from] {
		if s == next {
			return true
		}
	}
	return false
}

// Shipment is one inbound consignment.
type Shipment struct {
	ID          int64      `json:"id"`
	CompanyID   int64      `json:"company_id"`
	Reference   string     `json:"reference"`
	SupplierID  *int64     `json:"supplier_id,omitempty"`
	Origin      string     `json:"origin"`
	Destination string     `json:"destination"`
	Incoterm    string     `json:"incoterm"`
	ETD         *time.Time `json:"etd,omitempty"`
	ETA         *time.Time `json:"eta,omitempty"`
	Status      Status     `json:"status"`
	CreatedBy   int64      `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CustomsDeclaration records the customs entry filed for a shipment.
type CustomsDeclaration struct {
	ID            int64           `json:"id"`
	ShipmentID    int64           `json:"shipment_id"`
	DeclarationNo string          `json:"declaration_no"`
	Currency      string          `json:"currency"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
	DutyAmount    decimal.Decimal `json:"duty_amount"`
	VATAmount     decimal.Decimal `json:"vat_amount"`
	ClearedAt     *time.Time      `json:"cleared_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BatchStatus enumerates expense batch states.
type BatchStatus string

const (
	BatchStatusDraft  BatchStatus = "DRAFT"
	BatchStatusPosted BatchStatus = "POSTED"
)

// ExpenseBatch groups landed cost items accrued in one journal. SourceID ties
// the batch to its journal through the engine's source link.
type ExpenseBatch struct {
	ID               int64         `json:"id"`
	CompanyID        int64         `json:"company_id"`
	ShipmentID       int64         `json:"shipment_id"`
	Description      string        `json:"description"`
	AccrualAccountID int64         `json:"accrual_account_id"`
	ExpenseDate      time.Time     `json:"expense_date"`
	Status           BatchStatus   `json:"status"`
	SourceID         uuid.UUID     `json:"source_id"`
	JournalID        *int64        `json:"journal_id,omitempty"`
	CreatedBy        int64         `json:"created_by"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	Items            []ExpenseItem `json:"items,omitempty"`
}

// ExpenseItem is one landed cost line.
type ExpenseItem struct {
	ID               int64           `json:"id"`
	BatchID          int64           `json:"batch_id"`
	ExpenseAccountID int64           `json:"expense_account_id"`
	Description      string          `json:"description"`
	Currency         string          `json:"currency"`
	Amount           decimal.Decimal `json:"amount"`
}

var (
	// ErrNotFound indicates a missing shipment.
	ErrNotFound = errors.New("shipments: shipment not found")
	// ErrBadTransition indicates a forbidden status move.
	ErrBadTransition = errors.New("shipments: status transition not allowed")
	// ErrBatchNotFound indicates a missing expense batch.
	ErrBatchNotFound = errors.New("shipments: expense batch not found")
	// ErrBatchNotDraft indicates the batch is already posted.
	ErrBatchNotDraft = errors.New("shipments: expense batch is not a draft")
	// ErrBatchEmpty indicates a batch with no items.
	ErrBatchEmpty = errors.New("shipments: expense batch has no items")
	// ErrDeclarationExists indicates the shipment already has a declaration
	// with the same number.
	ErrDeclarationExists = errors.New("shipments: declaration number already filed")
)

// ListFilters narrows shipment listings.
type ListFilters struct {
	Page       int
	PerPage    int
	Status     Status
	SupplierID int64
	Search     string
}
