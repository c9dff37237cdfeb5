package procurement

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/masterdata"
)

type mockTaxSource struct {
	taxes map[int64]masterdata.Tax
}

func (m *mockTaxSource) GetTax(ctx context.Context, id int64) (masterdata.Tax, error) {
	tax, ok := m.taxes[id]
	if !ok {
		return masterdata.Tax{}, masterdata.ErrNotFound
	}
	return tax, nil
}

func newTaxedService() *Service {
	taxes := &mockTaxSource{taxes: map[int64]masterdata.Tax{
		1: {ID: 1, CompanyID: 1, Code: "VAT11", RatePct: decimal.RequireFromString("11"), AccountID: 400},
		2: {ID: 2, CompanyID: 1, Code: "VAT5", RatePct: decimal.RequireFromString("5"), AccountID: 401},
		9: {ID: 9, CompanyID: 2, Code: "GST", RatePct: decimal.RequireFromString("10"), AccountID: 900},
	}}
	return NewService(nil, nil, nil, taxes, nil, nil)
}

func testInvoice() PurchaseInvoice {
	taxID := int64(1)
	return PurchaseInvoice{
		CompanyID:        1,
		SupplierID:       5,
		InvoiceNo:        "INV-2025-001",
		InvoiceDate:      time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		Currency:         "USD",
		PayableAccountID: 300,
		Lines: []InvoiceLine{
			{ExpenseAccountID: 600, NetAmount: decimal.RequireFromString("100.00"), TaxID: &taxID},
			{ExpenseAccountID: 610, NetAmount: decimal.RequireFromString("50.00")},
		},
	}
}

func TestSplitTaxes(t *testing.T) {
	svc := newTaxedService()
	lines, err := svc.splitTaxes(context.Background(), testInvoice())
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, "11.00", lines[0].TaxAmount.StringFixed(2))
	require.NotNil(t, lines[0].TaxAccountID)
	assert.Equal(t, int64(400), *lines[0].TaxAccountID)

	assert.True(t, lines[1].TaxAmount.IsZero())
	assert.Nil(t, lines[1].TaxAccountID)
}

func TestSplitTaxesRounding(t *testing.T) {
	svc := newTaxedService()
	inv := testInvoice()
	// 33.33 * 11% = 3.6663 rounds to 3.67
	inv.Lines[0].NetAmount = decimal.RequireFromString("33.33")

	lines, err := svc.splitTaxes(context.Background(), inv)
	require.NoError(t, err)
	assert.Equal(t, "3.67", lines[0].TaxAmount.StringFixed(2))
}

func TestSplitTaxesForeignTax(t *testing.T) {
	svc := newTaxedService()
	inv := testInvoice()
	foreign := int64(9)
	inv.Lines[0].TaxID = &foreign

	_, err := svc.splitTaxes(context.Background(), inv)
	assert.Error(t, err)
}

func TestSplitTaxesRejectsBadLine(t *testing.T) {
	svc := newTaxedService()
	inv := testInvoice()
	inv.Lines[1].NetAmount = decimal.Zero

	_, err := svc.splitTaxes(context.Background(), inv)
	assert.Error(t, err)
}

func TestInvoiceJournalLines(t *testing.T) {
	taxAcc := int64(400)
	inv := testInvoice()
	inv.Lines[0].TaxAccountID = &taxAcc
	inv.Lines[0].TaxAmount = decimal.RequireFromString("11.00")

	lines := invoiceJournalLines(inv)
	require.Len(t, lines, 4)

	assert.Equal(t, int64(600), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, int64(610), lines[1].AccountID)
	assert.True(t, lines[1].Debit.Equal(decimal.RequireFromString("50.00")))

	assert.Equal(t, int64(400), lines[2].AccountID)
	assert.True(t, lines[2].Debit.Equal(decimal.RequireFromString("11.00")))

	assert.Equal(t, int64(300), lines[3].AccountID)
	assert.True(t, lines[3].Credit.Equal(decimal.RequireFromString("161.00")))
}

func TestInvoiceJournalLinesGroupsTaxAccounts(t *testing.T) {
	taxAcc := int64(400)
	inv := testInvoice()
	inv.Lines = []InvoiceLine{
		{ExpenseAccountID: 600, NetAmount: decimal.NewFromInt(100), TaxAccountID: &taxAcc, TaxAmount: decimal.NewFromInt(11)},
		{ExpenseAccountID: 610, NetAmount: decimal.NewFromInt(200), TaxAccountID: &taxAcc, TaxAmount: decimal.NewFromInt(22)},
	}

	lines := invoiceJournalLines(inv)
	// Two expense debits, one grouped tax debit, one AP credit.
	require.Len(t, lines, 4)
	assert.Equal(t, int64(400), lines[2].AccountID)
	assert.True(t, lines[2].Debit.Equal(decimal.NewFromInt(33)))
	assert.True(t, lines[3].Credit.Equal(decimal.NewFromInt(333)))
}

func TestGrossTotal(t *testing.T) {
	inv := testInvoice()
	inv.Lines[0].TaxAmount = decimal.RequireFromString("11.00")
	assert.Equal(t, "161.00", inv.GrossTotal().StringFixed(2))
}
