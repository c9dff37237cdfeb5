package journals

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

type mockRepository struct {
	periods     map[int64]periods.Period
	accounts    map[int64]PostingAccount
	baseCcy     map[int64]string
	rates       map[string]decimal.Decimal
	sequences   map[[2]int64]int64
	entries     map[int64]JournalEntry
	lines       map[int64][]JournalLine
	links       map[string]int64
	nextEntryID int64
	audits      []internalShared.AuditLog
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		periods:     make(map[int64]periods.Period),
		accounts:    make(map[int64]PostingAccount),
		baseCcy:     make(map[int64]string),
		rates:       make(map[string]decimal.Decimal),
		sequences:   make(map[[2]int64]int64),
		entries:     make(map[int64]JournalEntry),
		lines:       make(map[int64][]JournalLine),
		links:       make(map[string]int64),
		nextEntryID: 1,
	}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTx{m: m})
}

func (m *mockRepository) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	e, ok := m.entries[id]
	if !ok || e.CompanyID != companyID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	e.Lines = m.lines[id]
	return e, nil
}

func (m *mockRepository) List(ctx context.Context, companyID int64, filters ListFilters) ([]JournalEntry, int, error) {
	var out []JournalEntry
	for _, e := range m.entries {
		if e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, len(out), nil
}

func (m *mockRepository) Record(ctx context.Context, log internalShared.AuditLog) error {
	m.audits = append(m.audits, log)
	return nil
}

type mockTx struct {
	m *mockRepository
}

func (t *mockTx) GetPeriodForUpdate(ctx context.Context, periodID int64) (periods.Period, error) {
	p, ok := t.m.periods[periodID]
	if !ok {
		return periods.Period{}, shared.ErrInvalidPeriod
	}
	return p, nil
}

func (t *mockTx) FindOpenPeriodOnOrAfter(ctx context.Context, companyID int64, date time.Time) (periods.Period, error) {
	var best *periods.Period
	for _, p := range t.m.periods {
		if p.CompanyID != companyID || p.Status != periods.PeriodStatusOpen || p.EndDate.Before(date) {
			continue
		}
		if best == nil || p.StartDate.Before(best.StartDate) {
			candidate := p
			best = &candidate
		}
	}
	if best == nil {
		return periods.Period{}, shared.ErrInvalidPeriod
	}
	return *best, nil
}

func (t *mockTx) GetPostingAccount(ctx context.Context, accountID int64) (PostingAccount, error) {
	a, ok := t.m.accounts[accountID]
	if !ok {
		return PostingAccount{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (t *mockTx) CompanyBaseCurrency(ctx context.Context, companyID int64) (string, error) {
	code, ok := t.m.baseCcy[companyID]
	if !ok {
		return "", shared.ErrCompanyMismatch
	}
	return code, nil
}

func (t *mockTx) LatestRate(ctx context.Context, from, to string, onDate time.Time) (decimal.Decimal, error) {
	rate, ok := t.m.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, shared.ErrRateUnavailable
	}
	return rate, nil
}

func (t *mockTx) NextJournalNumber(ctx context.Context, companyID, fiscalYearID int64) (int64, error) {
	key := [2]int64{companyID, fiscalYearID}
	t.m.sequences[key]++
	return t.m.sequences[key], nil
}

func (t *mockTx) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	entry.ID = t.m.nextEntryID
	t.m.nextEntryID++
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	t.m.entries[entry.ID] = entry
	return entry, nil
}

func (t *mockTx) InsertLines(ctx context.Context, journalID int64, lines []JournalLine) ([]JournalLine, error) {
	for i := range lines {
		lines[i].JournalID = journalID
		lines[i].ID = int64(len(t.m.lines[journalID]) + i + 1)
	}
	t.m.lines[journalID] = append(t.m.lines[journalID], lines...)
	return lines, nil
}

func (t *mockTx) LinkSource(ctx context.Context, module string, sourceID uuid.UUID, journalID int64) error {
	key := module + "|" + sourceID.String()
	if _, exists := t.m.links[key]; exists {
		return shared.ErrSourceAlreadyLinked
	}
	t.m.links[key] = journalID
	return nil
}

func (t *mockTx) GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	e, ok := t.m.entries[id]
	if !ok || e.CompanyID != companyID {
		return JournalEntry{}, shared.ErrJournalNotFound
	}
	return e, nil
}

func (t *mockTx) GetLines(ctx context.Context, journalID int64) ([]JournalLine, error) {
	return t.m.lines[journalID], nil
}

func (t *mockTx) UpdateStatus(ctx context.Context, id int64, status JournalStatus) error {
	e, ok := t.m.entries[id]
	if !ok {
		return shared.ErrJournalNotFound
	}
	e.Status = status
	t.m.entries[id] = e
	return nil
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newTestService() (*Service, *mockRepository) {
	repo := newMockRepository()
	repo.baseCcy[1] = "USD"
	repo.accounts[10] = PostingAccount{ID: 10, CompanyID: 1, Code: "1000", IsActive: true}
	repo.accounts[20] = PostingAccount{ID: 20, CompanyID: 1, Code: "6000", IsActive: true}
	repo.accounts[30] = PostingAccount{ID: 30, CompanyID: 1, Code: "6100", IsActive: false}
	repo.accounts[99] = PostingAccount{ID: 99, CompanyID: 2, Code: "1000", IsActive: true}
	repo.periods[100] = periods.Period{
		ID: 100, CompanyID: 1, FiscalYearID: 5, Code: "2025-03",
		StartDate: date(2025, 3, 1), EndDate: date(2025, 3, 31),
		Status: periods.PeriodStatusOpen,
	}
	repo.periods[101] = periods.Period{
		ID: 101, CompanyID: 1, FiscalYearID: 5, Code: "2025-04",
		StartDate: date(2025, 4, 1), EndDate: date(2025, 4, 30),
		Status: periods.PeriodStatusOpen,
	}
	svc := NewService(repo, repo, slog.Default())
	svc.WithNow(func() time.Time { return date(2025, 3, 20) })
	return svc, repo
}

func balancedInput(amount string) PostingInput {
	amt := decimal.RequireFromString(amount)
	return PostingInput{
		CompanyID:    1,
		PeriodID:     100,
		Date:         date(2025, 3, 15),
		SourceModule: "MANUAL",
		SourceID:     uuid.New(),
		Memo:         "office supplies",
		PostedBy:     7,
		Lines: []PostingLineInput{
			{AccountID: 20, Debit: amt},
			{AccountID: 10, Credit: amt},
		},
	}
}

func TestPostJournal(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	entry, err := svc.PostJournal(ctx, balancedInput("125.50"))
	require.NoError(t, err)

	assert.Equal(t, int64(1), entry.Number)
	assert.Equal(t, JournalStatusPosted, entry.Status)
	assert.Equal(t, int64(100), entry.PeriodID)
	require.Len(t, entry.Lines, 2)
	assert.True(t, entry.Lines[0].BaseDebit.Equal(decimal.RequireFromString("125.50")))
	assert.True(t, entry.Lines[1].BaseCredit.Equal(decimal.RequireFromString("125.50")))
	assert.True(t, entry.Lines[0].Rate.Equal(decimal.NewFromInt(1)))

	require.Len(t, repo.audits, 1)
	assert.Equal(t, "journal.post", repo.audits[0].Action)
}

func TestPostJournalUnbalanced(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines[1].Credit = decimal.RequireFromString("99.99")

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrUnbalanced)
}

func TestPostJournalTooFewLines(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines = input.Lines[:1]

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrTooFewLines)
}

func TestPostJournalLineBothSides(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines[0].Credit = decimal.NewFromInt(1)

	_, err := svc.PostJournal(context.Background(), input)
	assert.Error(t, err)
}

func TestPostJournalNegativeAmount(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines[0].Debit = decimal.RequireFromString("-100")

	_, err := svc.PostJournal(context.Background(), input)
	assert.Error(t, err)
}

func TestPostJournalHardClosedPeriod(t *testing.T) {
	svc, repo := newTestService()
	p := repo.periods[100]
	p.Status = periods.PeriodStatusHardClosed
	repo.periods[100] = p

	_, err := svc.PostJournal(context.Background(), balancedInput("100"))
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestPostJournalSoftClosedPeriod(t *testing.T) {
	svc, repo := newTestService()
	p := repo.periods[100]
	p.Status = periods.PeriodStatusSoftClosed
	repo.periods[100] = p

	_, err := svc.PostJournal(context.Background(), balancedInput("100"))
	assert.ErrorIs(t, err, shared.ErrInvalidPeriod)

	input := balancedInput("100")
	input.AllowSoftClosed = true
	entry, err := svc.PostJournal(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, JournalStatusPosted, entry.Status)
}

func TestPostJournalDateOutsidePeriod(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Date = date(2025, 4, 2)

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrDateOutOfRange)
}

func TestPostJournalForeignPeriod(t *testing.T) {
	svc, repo := newTestService()
	repo.periods[200] = periods.Period{
		ID: 200, CompanyID: 2, FiscalYearID: 9,
		StartDate: date(2025, 3, 1), EndDate: date(2025, 3, 31),
		Status: periods.PeriodStatusOpen,
	}
	input := balancedInput("100")
	input.PeriodID = 200

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrCompanyMismatch)
}

func TestPostJournalForeignAccount(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines[0].AccountID = 99

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrCompanyMismatch)
}

func TestPostJournalInactiveAccount(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines[0].AccountID = 30

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrAccountInactive)
}

func TestPostJournalDuplicateSource(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	input := balancedInput("100")

	_, err := svc.PostJournal(ctx, input)
	require.NoError(t, err)

	_, err = svc.PostJournal(ctx, input)
	assert.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
}

func TestPostJournalCurrencyConversion(t *testing.T) {
	svc, repo := newTestService()
	repo.rates["EUR/USD"] = decimal.RequireFromString("1.1")

	input := PostingInput{
		CompanyID:    1,
		PeriodID:     100,
		Date:         date(2025, 3, 15),
		SourceModule: "MANUAL",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Lines: []PostingLineInput{
			{AccountID: 20, Currency: "EUR", Debit: decimal.NewFromInt(100)},
			{AccountID: 10, Credit: decimal.NewFromInt(110)},
		},
	}
	entry, err := svc.PostJournal(context.Background(), input)
	require.NoError(t, err)

	require.Len(t, entry.Lines, 2)
	assert.Equal(t, "EUR", entry.Lines[0].Currency)
	assert.True(t, entry.Lines[0].Rate.Equal(decimal.RequireFromString("1.1")))
	assert.True(t, entry.Lines[0].BaseDebit.Equal(decimal.NewFromInt(110)), "base debit %s", entry.Lines[0].BaseDebit)
	assert.True(t, entry.Lines[0].Debit.Equal(decimal.NewFromInt(100)))
}

func TestPostJournalMissingRate(t *testing.T) {
	svc, _ := newTestService()
	input := balancedInput("100")
	input.Lines[0].Currency = "EUR"

	_, err := svc.PostJournal(context.Background(), input)
	assert.ErrorIs(t, err, shared.ErrRateUnavailable)
}

func TestPostJournalNumbersSequential(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		entry, err := svc.PostJournal(ctx, balancedInput("50"))
		require.NoError(t, err)
		assert.Equal(t, want, entry.Number)
	}

	// A rejected posting must not consume a number.
	bad := balancedInput("10")
	bad.Lines[1].Credit = decimal.NewFromInt(11)
	_, err := svc.PostJournal(ctx, bad)
	require.Error(t, err)

	entry, err := svc.PostJournal(ctx, balancedInput("50"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), entry.Number)
}

func TestVoidJournal(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	entry, err := svc.PostJournal(ctx, balancedInput("100"))
	require.NoError(t, err)

	err = svc.VoidJournal(ctx, 1, VoidInput{EntryID: entry.ID, ActorID: 7, Reason: "fat finger"})
	require.NoError(t, err)
	assert.Equal(t, JournalStatusVoid, repo.entries[entry.ID].Status)
}

func TestVoidJournalClosedPeriod(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	entry, err := svc.PostJournal(ctx, balancedInput("100"))
	require.NoError(t, err)

	p := repo.periods[100]
	p.Status = periods.PeriodStatusSoftClosed
	repo.periods[100] = p

	err = svc.VoidJournal(ctx, 1, VoidInput{EntryID: entry.ID, ActorID: 7})
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)
	assert.Equal(t, JournalStatusPosted, repo.entries[entry.ID].Status)
}

func TestVoidJournalTwice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	entry, err := svc.PostJournal(ctx, balancedInput("100"))
	require.NoError(t, err)

	require.NoError(t, svc.VoidJournal(ctx, 1, VoidInput{EntryID: entry.ID, ActorID: 7}))
	err = svc.VoidJournal(ctx, 1, VoidInput{EntryID: entry.ID, ActorID: 7})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestReverseJournal(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, balancedInput("250"))
	require.NoError(t, err)

	reversal, err := svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7})
	require.NoError(t, err)

	assert.Equal(t, "MANUAL:REVERSAL", reversal.SourceModule)
	assert.Equal(t, original.SourceID, reversal.SourceID)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.Equal(t, int64(2), reversal.Number)

	require.Len(t, reversal.Lines, 2)
	assert.True(t, reversal.Lines[0].Credit.Equal(decimal.NewFromInt(250)))
	assert.True(t, reversal.Lines[1].Debit.Equal(decimal.NewFromInt(250)))

	// Original untouched.
	assert.Equal(t, JournalStatusPosted, repo.entries[original.ID].Status)
}

func TestReverseJournalTwice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, balancedInput("250"))
	require.NoError(t, err)

	_, err = svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7})
	require.NoError(t, err)

	_, err = svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7})
	assert.ErrorIs(t, err, shared.ErrSourceAlreadyLinked)
}

func TestReverseJournalClosedPeriodRollsForward(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, balancedInput("250"))
	require.NoError(t, err)

	p := repo.periods[100]
	p.Status = periods.PeriodStatusSoftClosed
	repo.periods[100] = p

	reversal, err := svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7})
	require.NoError(t, err)

	assert.Equal(t, int64(101), reversal.PeriodID)
	assert.Equal(t, date(2025, 4, 1), reversal.Date)
}

func TestReverseJournalSoftClosedWithOverride(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, balancedInput("250"))
	require.NoError(t, err)

	p := repo.periods[100]
	p.Status = periods.PeriodStatusSoftClosed
	repo.periods[100] = p

	reversal, err := svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7, Override: true})
	require.NoError(t, err)
	assert.Equal(t, int64(100), reversal.PeriodID)
	assert.Equal(t, original.Date, reversal.Date)
}

func TestReverseJournalNoOpenPeriod(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, balancedInput("250"))
	require.NoError(t, err)

	for id, p := range repo.periods {
		p.Status = periods.PeriodStatusHardClosed
		repo.periods[id] = p
	}

	_, err = svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7})
	assert.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestReverseJournalVoidEntry(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	original, err := svc.PostJournal(ctx, balancedInput("250"))
	require.NoError(t, err)
	require.NoError(t, svc.VoidJournal(ctx, 1, VoidInput{EntryID: original.ID, ActorID: 7}))

	_, err = svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: original.ID, ActorID: 7})
	assert.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestMirrorLinesSwapsSides(t *testing.T) {
	branch := int64(3)
	lines := []JournalLine{
		{AccountID: 10, Currency: "EUR", Debit: decimal.NewFromInt(100), BaseDebit: decimal.NewFromInt(110), Rate: decimal.RequireFromString("1.1"), BranchID: &branch},
		{AccountID: 20, Currency: "USD", Credit: decimal.NewFromInt(110), BaseCredit: decimal.NewFromInt(110), Rate: decimal.NewFromInt(1)},
	}
	mirrored := mirrorLines(lines)
	require.Len(t, mirrored, 2)
	assert.True(t, mirrored[0].Credit.Equal(decimal.NewFromInt(100)))
	assert.True(t, mirrored[0].BaseCredit.Equal(decimal.NewFromInt(110)))
	assert.True(t, mirrored[0].Debit.IsZero())
	assert.Equal(t, &branch, mirrored[0].BranchID)
	assert.True(t, mirrored[1].Debit.Equal(decimal.NewFromInt(110)))
}

type countingMetrics struct {
	posted int
}

func (m *countingMetrics) JournalPosted() { m.posted++ }

func TestPostJournalBumpsMetric(t *testing.T) {
	svc, _ := newTestService()
	metrics := &countingMetrics{}
	svc.WithMetrics(metrics)
	ctx := context.Background()

	entry, err := svc.PostJournal(ctx, balancedInput("50"))
	require.NoError(t, err)
	assert.Equal(t, 1, metrics.posted)

	bad := balancedInput("100")
	bad.Lines[1].Credit = decimal.RequireFromString("99")
	_, err = svc.PostJournal(ctx, bad)
	require.Error(t, err)
	assert.Equal(t, 1, metrics.posted)

	_, err = svc.ReverseJournal(ctx, 1, ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, metrics.posted)
}
