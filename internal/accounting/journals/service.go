package journals

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records journal mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts entries committed through the engine.
type MetricsPort interface {
	JournalPosted()
}

// Service is the double-entry posting engine. Every write path runs in one
// RepeatableRead transaction with the period row locked first.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the posting engine.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches the posting counter.
func (s *Service) WithMetrics(m MetricsPort) {
	s.metrics = m
}

func (s *Service) countPosted() {
	if s.metrics != nil {
		s.metrics.JournalPosted()
	}
}

// PostJournal validates, converts, numbers, and persists one balanced entry.
// Lines in foreign currencies are converted to the company base currency with
// the rate effective on the journal date; the balance check runs on the base
// amounts.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var posted JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		period, err := tx.GetPeriodForUpdate(ctx, input.PeriodID)
		if err != nil {
			return err
		}
		if period.CompanyID != input.CompanyID {
			return shared.ErrCompanyMismatch
		}
		if err := checkPeriodOpen(period, input.AllowSoftClosed); err != nil {
			return err
		}
		if !period.Contains(input.Date) {
			return shared.ErrDateOutOfRange
		}

		baseCode, err := tx.CompanyBaseCurrency(ctx, input.CompanyID)
		if err != nil {
			return err
		}

		lines, err := s.buildLines(ctx, tx, input, baseCode)
		if err != nil {
			return err
		}

		number, err := tx.NextJournalNumber(ctx, input.CompanyID, period.FiscalYearID)
		if err != nil {
			return err
		}

		entry := JournalEntry{
			CompanyID:    input.CompanyID,
			Number:       number,
			PeriodID:     period.ID,
			Date:         input.Date,
			SourceModule: input.SourceModule,
			SourceID:     input.SourceID,
			Memo:         input.Memo,
			PostedBy:     input.PostedBy,
			PostedAt:     s.now().UTC(),
			Status:       JournalStatusPosted,
		}
		entry, err = tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.Lines, err = tx.InsertLines(ctx, entry.ID, lines)
		if err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, entry.ID); err != nil {
			return err
		}
		posted = entry
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.countPosted()
	s.record(ctx, input.PostedBy, posted.CompanyID, "journal.post", posted.ID, map[string]any{
		"number": posted.Number, "source": posted.SourceModule,
	})
	return posted, nil
}

// buildLines converts each line to base currency and verifies the balance.
func (s *Service) buildLines(ctx context.Context, tx TxRepository, input PostingInput, baseCode string) ([]JournalLine, error) {
	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	lines := make([]JournalLine, 0, len(input.Lines))
	for _, in := range input.Lines {
		account, err := tx.GetPostingAccount(ctx, in.AccountID)
		if err != nil {
			return nil, err
		}
		if account.CompanyID != input.CompanyID {
			return nil, shared.ErrCompanyMismatch
		}
		if !account.IsActive {
			return nil, shared.ErrAccountInactive
		}

		currency := in.Currency
		if currency == "" {
			currency = baseCode
		}
		rate := decimal.NewFromInt(1)
		if currency != baseCode {
			rate, err = tx.LatestRate(ctx, currency, baseCode, input.Date)
			if err != nil {
				return nil, err
			}
		}
		baseDebit, err := fx.Convert(in.Debit, currency, baseCode, rate)
		if err != nil {
			return nil, err
		}
		baseCredit, err := fx.Convert(in.Credit, currency, baseCode, rate)
		if err != nil {
			return nil, err
		}
		totalDebit = totalDebit.Add(baseDebit)
		totalCredit = totalCredit.Add(baseCredit)
		lines = append(lines, JournalLine{
			AccountID:  in.AccountID,
			Currency:   currency,
			Debit:      in.Debit,
			Credit:     in.Credit,
			Rate:       rate,
			BaseDebit:  baseDebit,
			BaseCredit: baseCredit,
			BranchID:   in.BranchID,
		})
	}
	if !totalDebit.Equal(totalCredit) {
		return nil, shared.ErrUnbalanced
	}
	return lines, nil
}

// VoidJournal flips a posted entry to VOID without touching its lines. Voiding
// is only allowed while the period is still open; afterwards use a reversal.
func (s *Service) VoidJournal(ctx context.Context, companyID int64, input VoidInput) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err := tx.GetEntryForUpdate(ctx, companyID, input.EntryID)
		if err != nil {
			return err
		}
		if entry.Status != JournalStatusPosted {
			return shared.ErrInvalidStatus
		}
		period, err := tx.GetPeriodForUpdate(ctx, entry.PeriodID)
		if err != nil {
			return err
		}
		if period.Status != periods.PeriodStatusOpen {
			return shared.ErrPeriodLocked
		}
		return tx.UpdateStatus(ctx, entry.ID, JournalStatusVoid)
	})
	if err != nil {
		return err
	}
	s.record(ctx, input.ActorID, companyID, "journal.void", input.EntryID, map[string]any{"reason": input.Reason})
	return nil
}

// ReverseJournal posts a mirrored entry linked to the original. The original
// row is never modified. Reversal of a reversal-linked source is rejected by
// the source link constraint, so an entry can be reversed at most once.
func (s *Service) ReverseJournal(ctx context.Context, companyID int64, input ReverseInput) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, companyID, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return shared.ErrInvalidStatus
		}
		lines, err := tx.GetLines(ctx, original.ID)
		if err != nil {
			return err
		}

		reversalDate := original.Date
		if input.TargetDate != nil {
			reversalDate = *input.TargetDate
		}
		period, err := s.resolveReversalPeriod(ctx, tx, original, reversalDate, input.Override)
		if err != nil {
			return err
		}
		if !period.Contains(reversalDate) {
			reversalDate = period.StartDate
		}

		number, err := tx.NextJournalNumber(ctx, companyID, period.FiscalYearID)
		if err != nil {
			return err
		}
		memo := input.Memo
		if memo == "" {
			memo = fmt.Sprintf("Reversal of journal #%d", original.Number)
		}
		entry := JournalEntry{
			CompanyID:    companyID,
			Number:       number,
			PeriodID:     period.ID,
			Date:         reversalDate,
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceID:     original.SourceID,
			Memo:         memo,
			PostedBy:     input.ActorID,
			PostedAt:     s.now().UTC(),
			Status:       JournalStatusPosted,
			ReversalOf:   &original.ID,
		}
		entry, err = tx.InsertEntry(ctx, entry)
		if err != nil {
			return err
		}
		entry.Lines, err = tx.InsertLines(ctx, entry.ID, mirrorLines(lines))
		if err != nil {
			return err
		}
		// Same source id under the ":REVERSAL" module makes a second reversal
		// attempt fail on the unique constraint.
		if err := tx.LinkSource(ctx, entry.SourceModule, entry.SourceID, entry.ID); err != nil {
			return err
		}
		reversal = entry
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.countPosted()
	s.record(ctx, input.ActorID, companyID, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id": reversal.ID, "number": reversal.Number,
	})
	return reversal, nil
}

// resolveReversalPeriod picks the period the reversal lands in. The original
// period is used while it still accepts postings; otherwise the earliest open
// period covering or following the reversal date.
func (s *Service) resolveReversalPeriod(ctx context.Context, tx TxRepository, original JournalEntry, reversalDate time.Time, override bool) (periods.Period, error) {
	period, err := tx.GetPeriodForUpdate(ctx, original.PeriodID)
	if err != nil {
		return periods.Period{}, err
	}
	usable := period.Status == periods.PeriodStatusOpen ||
		(period.Status == periods.PeriodStatusSoftClosed && override)
	if usable && period.Contains(reversalDate) {
		return period, nil
	}
	next, err := tx.FindOpenPeriodOnOrAfter(ctx, original.CompanyID, reversalDate)
	if err != nil {
		return periods.Period{}, shared.ErrPeriodLocked
	}
	return next, nil
}

// Get loads one entry with lines, scoped to the company.
func (s *Service) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns entries matching the filters plus the total count.
func (s *Service) List(ctx context.Context, companyID int64, filters ListFilters) ([]JournalEntry, int, error) {
	return s.repo.List(ctx, companyID, filters)
}

func checkPeriodOpen(period periods.Period, allowSoftClosed bool) error {
	switch period.Status {
	case periods.PeriodStatusOpen:
		return nil
	case periods.PeriodStatusSoftClosed:
		if allowSoftClosed {
			return nil
		}
		return shared.ErrInvalidPeriod
	default:
		return shared.ErrPeriodLocked
	}
}

func mirrorLines(lines []JournalLine) []JournalLine {
	mirrored := make([]JournalLine, 0, len(lines))
	for _, l := range lines {
		mirrored = append(mirrored, JournalLine{
			AccountID:  l.AccountID,
			Currency:   l.Currency,
			Debit:      l.Credit,
			Credit:     l.Debit,
			Rate:       l.Rate,
			BaseDebit:  l.BaseCredit,
			BaseCredit: l.BaseDebit,
			BranchID:   l.BranchID,
		})
	}
	return mirrored
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "journal",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
