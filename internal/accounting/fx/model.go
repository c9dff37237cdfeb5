package fx

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate stores one (from, to, date) quotation.
type ExchangeRate struct {
	ID        int64           `json:"id"`
	FromCode  string          `json:"from"`
	ToCode    string          `json:"to"`
	Rate      decimal.Decimal `json:"rate"`
	RateDate  time.Time       `json:"rate_date"`
	Source    string          `json:"source"`
	CreatedAt time.Time       `json:"created_at"`
}
