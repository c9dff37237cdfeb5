package vouchers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	accShared "github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

func testVoucher(kind Kind) Voucher {
	return Voucher{
		CompanyID:        1,
		Kind:             kind,
		Date:             time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Currency:         "USD",
		Amount:           decimal.RequireFromString("500.00"),
		CashAccountID:    10,
		CounterAccountID: 20,
	}
}

func TestVoucherLinesReceipt(t *testing.T) {
	lines := voucherLines(testVoucher(KindReceipt))
	require.Len(t, lines, 2)

	assert.Equal(t, int64(10), lines[0].AccountID)
	assert.True(t, lines[0].Debit.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, lines[0].Credit.IsZero())

	assert.Equal(t, int64(20), lines[1].AccountID)
	assert.True(t, lines[1].Credit.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, lines[1].Debit.IsZero())
}

func TestVoucherLinesPayment(t *testing.T) {
	lines := voucherLines(testVoucher(KindPayment))
	require.Len(t, lines, 2)

	assert.True(t, lines[0].Credit.Equal(decimal.RequireFromString("500.00")))
	assert.True(t, lines[1].Debit.Equal(decimal.RequireFromString("500.00")))
}

func TestValidateVoucher(t *testing.T) {
	require.NoError(t, validateVoucher(testVoucher(KindPayment)))

	v := testVoucher(KindPayment)
	v.Amount = decimal.Zero
	assert.ErrorIs(t, validateVoucher(v), ErrInvalidAmount)

	v = testVoucher(KindPayment)
	v.Amount = decimal.RequireFromString("-1")
	assert.ErrorIs(t, validateVoucher(v), ErrInvalidAmount)

	v = testVoucher(KindPayment)
	v.Kind = "TRANSFER"
	assert.Error(t, validateVoucher(v))

	v = testVoucher(KindPayment)
	v.Currency = "DOLLARS"
	assert.Error(t, validateVoucher(v))

	v = testVoucher(KindPayment)
	v.CounterAccountID = v.CashAccountID
	assert.Error(t, validateVoucher(v))

	v = testVoucher(KindPayment)
	v.CompanyID = 0
	assert.Error(t, validateVoucher(v))
}

func TestKindNumberPrefix(t *testing.T) {
	assert.Equal(t, "PV", KindPayment.NumberPrefix())
	assert.Equal(t, "RV", KindReceipt.NumberPrefix())
}

func TestVoucherMemoDefault(t *testing.T) {
	v := testVoucher(KindReceipt)
	assert.Equal(t, "Receipt voucher", voucherMemo(v))
	v.Memo = "march rent"
	assert.Equal(t, "march rent", voucherMemo(v))
}

type mockVoucherStore struct {
	vouchers map[int64]Voucher
	seq      int64
}

func newMockVoucherStore() *mockVoucherStore {
	return &mockVoucherStore{vouchers: map[int64]Voucher{}}
}

func (m *mockVoucherStore) CreateDraft(_ context.Context, v Voucher) (Voucher, error) {
	v.ID = int64(len(m.vouchers) + 1)
	v.Status = StatusDraft
	m.vouchers[v.ID] = v
	return v, nil
}

func (m *mockVoucherStore) UpdateDraft(_ context.Context, v Voucher) (Voucher, error) {
	existing, ok := m.vouchers[v.ID]
	if !ok || existing.Status != StatusDraft {
		return Voucher{}, ErrNotDraft
	}
	m.vouchers[v.ID] = v
	return v, nil
}

func (m *mockVoucherStore) Get(_ context.Context, companyID, id int64) (Voucher, error) {
	v, ok := m.vouchers[id]
	if !ok || v.CompanyID != companyID {
		return Voucher{}, ErrNotFound
	}
	return v, nil
}

func (m *mockVoucherStore) List(_ context.Context, _ int64, _ ListFilters) ([]Voucher, int, error) {
	return nil, 0, nil
}

func (m *mockVoucherStore) DeleteDraft(_ context.Context, companyID, id int64) error {
	v, ok := m.vouchers[id]
	if !ok || v.CompanyID != companyID || v.Status != StatusDraft {
		return ErrNotDraft
	}
	delete(m.vouchers, id)
	return nil
}

func (m *mockVoucherStore) FinalizePost(_ context.Context, companyID, id int64, kind Kind, year int, journalID int64) (string, error) {
	v, ok := m.vouchers[id]
	if !ok || v.CompanyID != companyID || v.Status != StatusDraft {
		return "", ErrNotDraft
	}
	m.seq++
	number := fmt.Sprintf("%s-%d-%d-%05d", kind.NumberPrefix(), companyID, year, m.seq)
	v.Status = StatusPosted
	v.Number = number
	v.JournalID = &journalID
	m.vouchers[id] = v
	return number, nil
}

func (m *mockVoucherStore) SetCancelled(_ context.Context, companyID, id, cancelJournalID int64) error {
	v, ok := m.vouchers[id]
	if !ok || v.CompanyID != companyID || v.Status != StatusPosted {
		return ErrNotPosted
	}
	v.Status = StatusCancelled
	v.CancelJournalID = &cancelJournalID
	m.vouchers[id] = v
	return nil
}

type mockPostingEngine struct {
	postErr  error
	posted   int
	reversed []journals.ReverseInput
}

func (m *mockPostingEngine) PostJournal(_ context.Context, _ journals.PostingInput) (journals.JournalEntry, error) {
	if m.postErr != nil {
		return journals.JournalEntry{}, m.postErr
	}
	m.posted++
	return journals.JournalEntry{ID: int64(700 + m.posted)}, nil
}

func (m *mockPostingEngine) ReverseJournal(_ context.Context, _ int64, input journals.ReverseInput) (journals.JournalEntry, error) {
	m.reversed = append(m.reversed, input)
	return journals.JournalEntry{ID: 900}, nil
}

type mockPeriodFinder struct{}

func (mockPeriodFinder) FindByDate(_ context.Context, companyID int64, _ time.Time) (periods.Period, error) {
	return periods.Period{ID: 100, CompanyID: companyID}, nil
}

type mockKeyStore struct {
	keys map[string]bool
}

func (m *mockKeyStore) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys[key] {
		return internalShared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *mockKeyStore) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func newVoucherService(t *testing.T) (*Service, *mockVoucherStore, *mockPostingEngine, *mockKeyStore) {
	t.Helper()
	store := newMockVoucherStore()
	engine := &mockPostingEngine{}
	idem := &mockKeyStore{keys: map[string]bool{}}
	return NewService(store, engine, mockPeriodFinder{}, idem, nil, nil), store, engine, idem
}

func TestPostAssignsNumberAndFlipsStatus(t *testing.T) {
	svc, store, _, _ := newVoucherService(t)
	draft, err := store.CreateDraft(context.Background(), testVoucher(KindPayment))
	require.NoError(t, err)

	posted, err := svc.Post(context.Background(), 1, draft.ID, 9, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, posted.Status)
	assert.Equal(t, "PV-1-2025-00001", posted.Number)
	require.NotNil(t, posted.JournalID)
}

func TestFailedPostConsumesNoNumberAndReleasesKey(t *testing.T) {
	svc, store, engine, idem := newVoucherService(t)
	draft, err := store.CreateDraft(context.Background(), testVoucher(KindPayment))
	require.NoError(t, err)

	engine.postErr = accShared.ErrPeriodLocked
	_, err = svc.Post(context.Background(), 1, draft.ID, 9, "retry-1")
	require.ErrorIs(t, err, accShared.ErrPeriodLocked)
	assert.Zero(t, store.seq)
	assert.Equal(t, StatusDraft, store.vouchers[draft.ID].Status)
	assert.Empty(t, idem.keys)

	engine.postErr = nil
	posted, err := svc.Post(context.Background(), 1, draft.ID, 9, "retry-1")
	require.NoError(t, err)
	assert.Equal(t, "PV-1-2025-00001", posted.Number)
}

func TestPostDuplicateIdempotencyKey(t *testing.T) {
	svc, store, engine, _ := newVoucherService(t)
	first, err := store.CreateDraft(context.Background(), testVoucher(KindPayment))
	require.NoError(t, err)
	second, err := store.CreateDraft(context.Background(), testVoucher(KindPayment))
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), 1, first.ID, 9, "once")
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), 1, second.ID, 9, "once")
	require.ErrorIs(t, err, internalShared.ErrIdempotencyConflict)
	assert.Equal(t, 1, engine.posted)
	assert.Equal(t, StatusDraft, store.vouchers[second.ID].Status)
}

func TestCancelOverrideOnlyWhenForced(t *testing.T) {
	svc, store, engine, _ := newVoucherService(t)
	first, err := store.CreateDraft(context.Background(), testVoucher(KindReceipt))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), 1, first.ID, 9, "")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), 1, first.ID, 9, "entered twice", false)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.Len(t, engine.reversed, 1)
	assert.False(t, engine.reversed[0].Override)

	second, err := store.CreateDraft(context.Background(), testVoucher(KindReceipt))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), 1, second.ID, 9, "")
	require.NoError(t, err)
	_, err = svc.Cancel(context.Background(), 1, second.ID, 9, "soft closed month", true)
	require.NoError(t, err)
	require.Len(t, engine.reversed, 2)
	assert.True(t, engine.reversed[1].Override)
}

func TestDeleteDraftRejectsPosted(t *testing.T) {
	svc, store, _, _ := newVoucherService(t)
	draft, err := store.CreateDraft(context.Background(), testVoucher(KindPayment))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteDraft(context.Background(), 1, draft.ID, 9))
	_, err = store.Get(context.Background(), 1, draft.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	posted, err := store.CreateDraft(context.Background(), testVoucher(KindPayment))
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), 1, posted.ID, 9, "")
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteDraft(context.Background(), 1, posted.ID, 9), ErrNotDraft)
}
