package fx

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

func TestConvertIdentity(t *testing.T) {
	out, err := Convert(decimal.RequireFromString("100.456"), "USD", "USD", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "100.46", out.StringFixed(2))
}

func TestConvertAppliesRate(t *testing.T) {
	out, err := Convert(decimal.NewFromInt(100), "EUR", "USD", decimal.RequireFromString("1.0876"))
	require.NoError(t, err)
	assert.Equal(t, "108.76", out.StringFixed(2))
}

func TestConvertRoundsHalfUp(t *testing.T) {
	// 33.33 * 1.5 = 49.995 rounds up to 50.00
	out, err := Convert(decimal.RequireFromString("33.33"), "EUR", "USD", decimal.RequireFromString("1.5"))
	require.NoError(t, err)
	assert.Equal(t, "50.00", out.StringFixed(2))
}

func TestConvertZeroExponentCurrency(t *testing.T) {
	// JPY has no minor unit.
	out, err := Convert(decimal.NewFromInt(10), "USD", "JPY", decimal.RequireFromString("151.3"))
	require.NoError(t, err)
	assert.Equal(t, "1513", out.String())
}

func TestConvertRejectsBadRate(t *testing.T) {
	_, err := Convert(decimal.NewFromInt(100), "EUR", "USD", decimal.Zero)
	assert.ErrorIs(t, err, shared.ErrRateUnavailable)

	_, err = Convert(decimal.NewFromInt(100), "EUR", "USD", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, shared.ErrRateUnavailable)
}

func TestExponent(t *testing.T) {
	assert.Equal(t, int32(2), Exponent("USD"))
	assert.Equal(t, int32(0), Exponent("JPY"))
	assert.Equal(t, int32(3), Exponent("KWD"))
	assert.Equal(t, int32(2), Exponent("???"))
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("USD"))
	assert.True(t, ValidCode(" eur "))
	assert.False(t, ValidCode("US"))
	assert.False(t, ValidCode(""))
}
