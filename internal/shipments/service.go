package shipments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// PostingEngine is the slice of the journal service shipments need.
type PostingEngine interface {
	PostJournal(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
}

// PeriodFinder resolves the posting period for an expense date.
type PeriodFinder interface {
	FindByDate(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
}

// AuditPort records shipment mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// SourceModule tags shipment expense journals in source_links.
const SourceModule = "SHIPMENT_EXPENSE"

// Service manages shipments and posts their landed cost accruals.
type Service struct {
	repo    *Repository
	engine  PostingEngine
	periods PeriodFinder
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the shipments service.
func NewService(repo *Repository, engine PostingEngine, finder PeriodFinder, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, periods: finder, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and stores a draft shipment.
func (s *Service) Create(ctx context.Context, sh Shipment) (Shipment, error) {
	sh.Reference = strings.TrimSpace(sh.Reference)
	if sh.CompanyID == 0 || sh.Reference == "" {
		return Shipment{}, errors.New("shipments: company and reference required")
	}
	created, err := s.repo.Create(ctx, sh)
	if err != nil {
		return Shipment{}, err
	}
	s.record(ctx, sh.CreatedBy, sh.CompanyID, "shipment.create", created.ID, map[string]any{"reference": created.Reference})
	return created, nil
}

// Update replaces editable fields.
func (s *Service) Update(ctx context.Context, sh Shipment, actorID int64) (Shipment, error) {
	sh.Reference = strings.TrimSpace(sh.Reference)
	if sh.ID == 0 || sh.Reference == "" {
		return Shipment{}, errors.New("shipments: id and reference required")
	}
	updated, err := s.repo.Update(ctx, sh)
	if err != nil {
		return Shipment{}, err
	}
	s.record(ctx, actorID, sh.CompanyID, "shipment.update", updated.ID, nil)
	return updated, nil
}

// Transition moves a shipment along its lifecycle.
func (s *Service) Transition(ctx context.Context, companyID, id int64, next Status, actorID int64) (Shipment, error) {
	current, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return Shipment{}, err
	}
	if !CanTransition(current.Status, next) {
		return Shipment{}, ErrBadTransition
	}
	if err := s.repo.UpdateStatus(ctx, companyID, id, current.Status, next); err != nil {
		return Shipment{}, err
	}
	s.record(ctx, actorID, companyID, "shipment.transition", id, map[string]any{
		"from": current.Status, "to": next,
	})
	return s.repo.Get(ctx, companyID, id)
}

// Get loads one shipment.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Shipment, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns shipments matching filters.
func (s *Service) List(ctx context.Context, companyID int64, f ListFilters) ([]Shipment, int, error) {
	return s.repo.List(ctx, companyID, f)
}

// FileDeclaration records a customs declaration on an arrived shipment.
func (s *Service) FileDeclaration(ctx context.Context, companyID int64, d CustomsDeclaration, actorID int64) (CustomsDeclaration, error) {
	sh, err := s.repo.Get(ctx, companyID, d.ShipmentID)
	if err != nil {
		return CustomsDeclaration{}, err
	}
	if sh.Status != StatusArrived && sh.Status != StatusCleared {
		return CustomsDeclaration{}, ErrBadTransition
	}
	d.DeclarationNo = strings.TrimSpace(d.DeclarationNo)
	if d.DeclarationNo == "" {
		return CustomsDeclaration{}, errors.New("shipments: declaration number required")
	}
	if !fx.ValidCode(d.Currency) {
		return CustomsDeclaration{}, errors.New("shipments: invalid declaration currency")
	}
	if d.DeclaredValue.IsNegative() || d.DutyAmount.IsNegative() || d.VATAmount.IsNegative() {
		return CustomsDeclaration{}, errors.New("shipments: declaration amounts must not be negative")
	}
	created, err := s.repo.AddDeclaration(ctx, d)
	if err != nil {
		return CustomsDeclaration{}, err
	}
	s.record(ctx, actorID, companyID, "shipment.declaration", sh.ID, map[string]any{"declaration_no": created.DeclarationNo})
	return created, nil
}

// Declarations lists declarations for a shipment.
func (s *Service) Declarations(ctx context.Context, companyID, shipmentID int64) ([]CustomsDeclaration, error) {
	if _, err := s.repo.Get(ctx, companyID, shipmentID); err != nil {
		return nil, err
	}
	return s.repo.ListDeclarations(ctx, shipmentID)
}

// ClearDeclaration stamps a declaration cleared.
func (s *Service) ClearDeclaration(ctx context.Context, companyID, shipmentID, declarationID, actorID int64) error {
	if _, err := s.repo.Get(ctx, companyID, shipmentID); err != nil {
		return err
	}
	if err := s.repo.MarkDeclarationCleared(ctx, shipmentID, declarationID); err != nil {
		return err
	}
	s.record(ctx, actorID, companyID, "shipment.declaration.clear", shipmentID, map[string]any{"declaration_id": declarationID})
	return nil
}

// CreateExpenseBatch stores a draft landed cost batch.
func (s *Service) CreateExpenseBatch(ctx context.Context, b ExpenseBatch) (ExpenseBatch, error) {
	if _, err := s.repo.Get(ctx, b.CompanyID, b.ShipmentID); err != nil {
		return ExpenseBatch{}, err
	}
	if len(b.Items) == 0 {
		return ExpenseBatch{}, ErrBatchEmpty
	}
	if b.AccrualAccountID == 0 {
		return ExpenseBatch{}, errors.New("shipments: accrual account required")
	}
	for _, it := range b.Items {
		if it.ExpenseAccountID == 0 || !it.Amount.IsPositive() {
			return ExpenseBatch{}, errors.New("shipments: each item needs an account and a positive amount")
		}
		if it.Currency != "" && !fx.ValidCode(it.Currency) {
			return ExpenseBatch{}, errors.New("shipments: invalid item currency")
		}
	}
	if b.ExpenseDate.IsZero() {
		b.ExpenseDate = s.now().UTC().Truncate(24 * time.Hour)
	}
	b.SourceID = uuid.New()
	created, err := s.repo.CreateBatch(ctx, b)
	if err != nil {
		return ExpenseBatch{}, err
	}
	s.record(ctx, b.CreatedBy, b.CompanyID, "shipment.expense.create", created.ID, map[string]any{"shipment_id": b.ShipmentID})
	return created, nil
}

// PostExpenseBatch accrues the batch: each expense account is debited and the
// accrual account credited for the item total, all in one balanced journal.
func (s *Service) PostExpenseBatch(ctx context.Context, companyID, batchID, actorID int64) (ExpenseBatch, error) {
	b, err := s.repo.GetBatch(ctx, companyID, batchID)
	if err != nil {
		return ExpenseBatch{}, err
	}
	if b.Status != BatchStatusDraft {
		return ExpenseBatch{}, ErrBatchNotDraft
	}
	if len(b.Items) == 0 {
		return ExpenseBatch{}, ErrBatchEmpty
	}
	period, err := s.periods.FindByDate(ctx, companyID, b.ExpenseDate)
	if err != nil {
		return ExpenseBatch{}, err
	}
	lines := make([]journals.PostingLineInput, 0, len(b.Items)+len(b.Items))
	for _, it := range b.Items {
		lines = append(lines,
			journals.PostingLineInput{AccountID: it.ExpenseAccountID, Currency: it.Currency, Debit: it.Amount},
			journals.PostingLineInput{AccountID: b.AccrualAccountID, Currency: it.Currency, Credit: it.Amount},
		)
	}
	memo := b.Description
	if memo == "" {
		memo = fmt.Sprintf("Landed cost accrual for shipment %d", b.ShipmentID)
	}
	entry, err := s.engine.PostJournal(ctx, journals.PostingInput{
		CompanyID:    companyID,
		PeriodID:     period.ID,
		Date:         b.ExpenseDate,
		SourceModule: SourceModule,
		SourceID:     b.SourceID,
		Memo:         memo,
		PostedBy:     actorID,
		Lines:        lines,
	})
	if err != nil {
		return ExpenseBatch{}, err
	}
	if err := s.repo.SetBatchPosted(ctx, companyID, batchID, entry.ID); err != nil {
		return ExpenseBatch{}, err
	}
	s.record(ctx, actorID, companyID, "shipment.expense.post", batchID, map[string]any{"journal_id": entry.ID})
	return s.repo.GetBatch(ctx, companyID, batchID)
}

// ExpenseBatches lists batches for a shipment.
func (s *Service) ExpenseBatches(ctx context.Context, companyID, shipmentID int64) ([]ExpenseBatch, error) {
	if _, err := s.repo.Get(ctx, companyID, shipmentID); err != nil {
		return nil, err
	}
	return s.repo.ListBatches(ctx, companyID, shipmentID)
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "shipment",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
