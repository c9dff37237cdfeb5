package journals

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoid   JournalStatus = "VOID"
)

// JournalEntry captures posting metadata. Number is gapless per company and
// fiscal year and only exists once the entry is committed.
type JournalEntry struct {
	ID           int64         `json:"id"`
	CompanyID    int64         `json:"company_id"`
	Number       int64         `json:"number"`
	PeriodID     int64         `json:"period_id"`
	Date         time.Time     `json:"date"`
	SourceModule string        `json:"source_module"`
	SourceID     uuid.UUID     `json:"source_id"`
	Memo         string        `json:"memo"`
	PostedBy     int64         `json:"posted_by"`
	PostedAt     time.Time     `json:"posted_at"`
	Status       JournalStatus `json:"status"`
	ReversalOf   *int64        `json:"reversal_of,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Lines        []JournalLine `json:"lines,omitempty"`
}

// JournalLine stores one leg of a posting in both transaction and base
// currency. Base amounts are what must balance.
type JournalLine struct {
	ID         int64           `json:"id"`
	JournalID  int64           `json:"journal_id"`
	AccountID  int64           `json:"account_id"`
	Currency   string          `json:"currency"`
	Debit      decimal.Decimal `json:"debit"`
	Credit     decimal.Decimal `json:"credit"`
	Rate       decimal.Decimal `json:"rate"`
	BaseDebit  decimal.Decimal `json:"base_debit"`
	BaseCredit decimal.Decimal `json:"base_credit"`
	BranchID   *int64          `json:"branch_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
