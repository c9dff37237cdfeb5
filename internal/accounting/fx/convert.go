package fx

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// Exponent returns the minor-unit digits for an ISO currency code, defaulting
// to 2 when the code is unknown.
func Exponent(code string) int32 {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// ValidCode reports whether code is ISO 4217.
func ValidCode(code string) bool {
	_, err := currency.ParseISO(strings.TrimSpace(code))
	return err == nil
}

// Convert applies rate to amount and rounds half-up to the target currency's
// exponent. Identity conversions bypass the rate entirely.
func Convert(amount decimal.Decimal, from, to string, rate decimal.Decimal) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return amount.Round(Exponent(to)), nil
	}
	if rate.IsZero() || rate.IsNegative() {
		return decimal.Zero, shared.ErrRateUnavailable
	}
	return amount.Mul(rate).Round(Exponent(to)), nil
}
