package vouchers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// PostingEngine is the slice of the journal service vouchers need.
type PostingEngine interface {
	PostJournal(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
	ReverseJournal(ctx context.Context, companyID int64, input journals.ReverseInput) (journals.JournalEntry, error)
}

// Store is the persistence surface of the service. *Repository satisfies it.
type Store interface {
	CreateDraft(ctx context.Context, v Voucher) (Voucher, error)
	UpdateDraft(ctx context.Context, v Voucher) (Voucher, error)
	Get(ctx context.Context, companyID, id int64) (Voucher, error)
	List(ctx context.Context, companyID int64, f ListFilters) ([]Voucher, int, error)
	DeleteDraft(ctx context.Context, companyID, id int64) error
	FinalizePost(ctx context.Context, companyID, id int64, kind Kind, year int, journalID int64) (string, error)
	SetCancelled(ctx context.Context, companyID, id, cancelJournalID int64) error
}

// IdempotencyPort guards duplicate post submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// PeriodFinder resolves the posting period for a voucher date.
type PeriodFinder interface {
	FindByDate(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
}

// AuditPort records voucher mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// SourceModule tags voucher journals in source_links.
const SourceModule = "VOUCHER"

// Service manages the voucher lifecycle. Posting and cancelling delegate the
// ledger work to the journal engine, so vouchers inherit its period and
// balance guarantees.
type Service struct {
	repo        Store
	engine      PostingEngine
	periods     PeriodFinder
	idempotency IdempotencyPort
	audit       AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the vouchers service.
func NewService(repo Store, engine PostingEngine, finder PeriodFinder, idem IdempotencyPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, periods: finder, idempotency: idem, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateDraft validates and stores a new draft voucher.
func (s *Service) CreateDraft(ctx context.Context, v Voucher) (Voucher, error) {
	if err := validateVoucher(v); err != nil {
		return Voucher{}, err
	}
	v.SourceID = uuid.New()
	created, err := s.repo.CreateDraft(ctx, v)
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, v.CreatedBy, v.CompanyID, "voucher.create", created.ID, map[string]any{"kind": created.Kind})
	return created, nil
}

// UpdateDraft replaces editable fields of a draft.
func (s *Service) UpdateDraft(ctx context.Context, v Voucher, actorID int64) (Voucher, error) {
	if err := validateVoucher(v); err != nil {
		return Voucher{}, err
	}
	updated, err := s.repo.UpdateDraft(ctx, v)
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, actorID, v.CompanyID, "voucher.update", updated.ID, nil)
	return updated, nil
}

// Post turns a draft into a posted voucher: one balanced journal through the
// engine, then the document number and status flip in a single transaction.
// An idempotency key, when given, is claimed before any work and released
// again on failure, so an honest retry after a transient error is not locked
// out. The engine's source link makes a duplicate post fail regardless.
func (s *Service) Post(ctx context.Context, companyID, id, actorID int64, idemKey string) (Voucher, error) {
	if idemKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "voucher.post"); err != nil {
			return Voucher{}, err
		}
	}
	posted, err := s.post(ctx, companyID, id, actorID)
	if err != nil {
		if idemKey != "" && s.idempotency != nil {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return Voucher{}, err
	}
	return posted, nil
}

func (s *Service) post(ctx context.Context, companyID, id, actorID int64) (Voucher, error) {
	v, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Voucher{}, err
	}
	if v.Status != StatusDraft {
		return Voucher{}, ErrNotDraft
	}
	period, err := s.periods.FindByDate(ctx, companyID, v.Date)
	if err != nil {
		return Voucher{}, err
	}
	entry, err := s.engine.PostJournal(ctx, journals.PostingInput{
		CompanyID:    companyID,
		PeriodID:     period.ID,
		Date:         v.Date,
		SourceModule: SourceModule,
		SourceID:     v.SourceID,
		Memo:         voucherMemo(v),
		PostedBy:     actorID,
		Lines:        voucherLines(v),
	})
	if err != nil {
		return Voucher{}, err
	}
	number, err := s.repo.FinalizePost(ctx, companyID, id, v.Kind, v.Date.Year(), entry.ID)
	if err != nil {
		return Voucher{}, err
	}
	s.record(ctx, actorID, companyID, "voucher.post", id, map[string]any{"number": number, "journal_id": entry.ID})
	return s.repo.Get(ctx, companyID, id)
}

// DeleteDraft removes a draft voucher. Posted or cancelled vouchers cannot be
// deleted; they are cancelled by reversal instead.
func (s *Service) DeleteDraft(ctx context.Context, companyID, id, actorID int64) error {
	if _, err := s.repo.Get(ctx, companyID, id); err != nil {
		return err
	}
	if err := s.repo.DeleteDraft(ctx, companyID, id); err != nil {
		return err
	}
	s.record(ctx, actorID, companyID, "voucher.delete", id, nil)
	return nil
}

// Cancel reverses the voucher's journal and marks the document cancelled. The
// original journal is kept intact; the reversal carries the audit trail.
// Without force the reversal rolls forward past locked periods; force reverses
// into a soft-closed period and is reserved for superusers.
func (s *Service) Cancel(ctx context.Context, companyID, id, actorID int64, reason string, force bool) (Voucher, error) {
	v, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Voucher{}, err
	}
	if v.Status != StatusPosted || v.JournalID == nil {
		return Voucher{}, ErrNotPosted
	}
	reversal, err := s.engine.ReverseJournal(ctx, companyID, journals.ReverseInput{
		EntryID:  *v.JournalID,
		ActorID:  actorID,
		Memo:     fmt.Sprintf("Cancel voucher %s: %s", v.Number, reason),
		Override: force,
	})
	if err != nil {
		return Voucher{}, err
	}
	if err := s.repo.SetCancelled(ctx, companyID, id, reversal.ID); err != nil {
		return Voucher{}, err
	}
	s.record(ctx, actorID, companyID, "voucher.cancel", id, map[string]any{"reason": reason, "reversal_id": reversal.ID, "force": force})
	return s.repo.Get(ctx, companyID, id)
}

// Get loads one voucher.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Voucher, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns vouchers matching filters.
func (s *Service) List(ctx context.Context, companyID int64, f ListFilters) ([]Voucher, int, error) {
	return s.repo.List(ctx, companyID, f)
}

// voucherLines builds the two journal legs. Payments credit cash, receipts
// debit cash; the counter account takes the other side.
func voucherLines(v Voucher) []journals.PostingLineInput {
	cash := journals.PostingLineInput{AccountID: v.CashAccountID, Currency: v.Currency}
	counter := journals.PostingLineInput{AccountID: v.CounterAccountID, Currency: v.Currency}
	if v.Kind == KindReceipt {
		cash.Debit = v.Amount
		counter.Credit = v.Amount
	} else {
		counter.Debit = v.Amount
		cash.Credit = v.Amount
	}
	return []journals.PostingLineInput{cash, counter}
}

func voucherMemo(v Voucher) string {
	if v.Memo != "" {
		return v.Memo
	}
	if v.Kind == KindReceipt {
		return "Receipt voucher"
	}
	return "Payment voucher"
}

func validateVoucher(v Voucher) error {
	if v.CompanyID == 0 {
		return errors.New("vouchers: company required")
	}
	if !v.Kind.Valid() {
		return errors.New("vouchers: kind must be PAYMENT or RECEIPT")
	}
	if v.Date.IsZero() {
		return errors.New("vouchers: date required")
	}
	if !fx.ValidCode(v.Currency) {
		return errors.New("vouchers: invalid currency code")
	}
	if !v.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if v.CashAccountID == 0 || v.CounterAccountID == 0 {
		return errors.New("vouchers: cash and counter accounts required")
	}
	if v.CashAccountID == v.CounterAccountID {
		return errors.New("vouchers: cash and counter accounts must differ")
	}
	return nil
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "voucher",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
