package journals

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// PostingLineInput describes a journal line for a posting request. Amounts are
// in the line currency; empty currency means the company base currency.
type PostingLineInput struct {
	AccountID int64
	Currency  string
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	BranchID  *int64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	CompanyID    int64
	PeriodID     int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	// AllowSoftClosed permits posting into soft-closed periods, used by
	// reversals and closing entries.
	AllowSoftClosed bool
	Lines           []PostingLineInput
}

// Validate ensures posting input meets minimum criteria. Balance is checked
// later against base-currency amounts, after conversion.
func (in PostingInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("accounting: company required")
	}
	if in.PeriodID == 0 {
		return errors.New("accounting: period required")
	}
	if in.Date.IsZero() {
		return errors.New("accounting: date required")
	}
	if len(in.Lines) < 2 {
		return shared.ErrTooFewLines
	}
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("accounting: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("accounting: line %d cannot be both debit and credit", idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("accounting: line %d has no amount", idx)
		}
		if line.Currency != "" && !fx.ValidCode(line.Currency) {
			return fmt.Errorf("accounting: line %d invalid currency %q", idx, line.Currency)
		}
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("accounting: source id required")
	}
	return nil
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	EntryID int64
	ActorID int64
	Reason  string
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID    int64
	ActorID    int64
	Memo       string
	Override   bool
	TargetDate *time.Time
}

// ListFilters narrows journal listings.
type ListFilters struct {
	Page         int
	PerPage      int
	PeriodID     int64
	SourceModule string
	Status       JournalStatus
	DateFrom     *time.Time
	DateTo       *time.Time
}
