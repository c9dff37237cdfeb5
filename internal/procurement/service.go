package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// PostingEngine is the slice of the journal service procurement needs.
type PostingEngine interface {
	PostJournal(ctx context.Context, input journals.PostingInput) (journals.JournalEntry, error)
}

// PeriodFinder resolves the posting period for an invoice date.
type PeriodFinder interface {
	FindByDate(ctx context.Context, companyID int64, date time.Time) (periods.Period, error)
}

// TaxSource resolves tax codes for the split computation.
type TaxSource interface {
	GetTax(ctx context.Context, id int64) (masterdata.Tax, error)
}

// AuditPort records invoice mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// SourceModule tags AP journals in source_links.
const SourceModule = "PURCHASE_INVOICE"

// Service runs the capture, approve, post flow for supplier invoices.
type Service struct {
	repo    *Repository
	engine  PostingEngine
	periods PeriodFinder
	taxes   TaxSource
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the procurement service.
func NewService(repo *Repository, engine PostingEngine, finder PeriodFinder, taxes TaxSource, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, engine: engine, periods: finder, taxes: taxes, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create captures a draft invoice, computing the tax split per line.
func (s *Service) Create(ctx context.Context, inv PurchaseInvoice) (PurchaseInvoice, error) {
	if err := s.validateHeader(inv); err != nil {
		return PurchaseInvoice{}, err
	}
	lines, err := s.splitTaxes(ctx, inv)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	inv.Lines = lines
	inv.SourceID = uuid.New()
	created, err := s.repo.Create(ctx, inv)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	s.record(ctx, inv.CreatedBy, inv.CompanyID, "invoice.create", created.ID, map[string]any{"invoice_no": created.InvoiceNo})
	return created, nil
}

// UpdateLines replaces the lines of a draft, recomputing tax splits.
func (s *Service) UpdateLines(ctx context.Context, companyID, invoiceID int64, lines []InvoiceLine, actorID int64) (PurchaseInvoice, error) {
	inv, err := s.repo.Get(ctx, companyID, invoiceID)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	if inv.Status != InvoiceStatusDraft {
		return PurchaseInvoice{}, ErrNotDraft
	}
	inv.Lines = lines
	split, err := s.splitTaxes(ctx, inv)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	if err := s.repo.ReplaceLines(ctx, companyID, invoiceID, split); err != nil {
		return PurchaseInvoice{}, err
	}
	s.record(ctx, actorID, companyID, "invoice.update", invoiceID, nil)
	return s.repo.Get(ctx, companyID, invoiceID)
}

// Approve moves a draft to approved. Approval is a separate permission from
// capture, so four eyes can be enforced through roles.
func (s *Service) Approve(ctx context.Context, companyID, id, actorID int64) (PurchaseInvoice, error) {
	if err := s.repo.SetApproved(ctx, companyID, id, actorID); err != nil {
		return PurchaseInvoice{}, err
	}
	s.record(ctx, actorID, companyID, "invoice.approve", id, nil)
	return s.repo.Get(ctx, companyID, id)
}

// Post books the approved invoice: expenses and input tax debited, accounts
// payable credited with the gross total.
func (s *Service) Post(ctx context.Context, companyID, id, actorID int64) (PurchaseInvoice, error) {
	inv, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	if inv.Status != InvoiceStatusApproved {
		return PurchaseInvoice{}, ErrNotApproved
	}
	if len(inv.Lines) == 0 {
		return PurchaseInvoice{}, ErrNoLines
	}
	period, err := s.periods.FindByDate(ctx, companyID, inv.InvoiceDate)
	if err != nil {
		return PurchaseInvoice{}, err
	}
	entry, err := s.engine.PostJournal(ctx, journals.PostingInput{
		CompanyID:    companyID,
		PeriodID:     period.ID,
		Date:         inv.InvoiceDate,
		SourceModule: SourceModule,
		SourceID:     inv.SourceID,
		Memo:         fmt.Sprintf("Supplier invoice %s", inv.InvoiceNo),
		PostedBy:     actorID,
		Lines:        invoiceJournalLines(inv),
	})
	if err != nil {
		return PurchaseInvoice{}, err
	}
	if err := s.repo.SetPosted(ctx, companyID, id, entry.ID); err != nil {
		return PurchaseInvoice{}, err
	}
	s.record(ctx, actorID, companyID, "invoice.post", id, map[string]any{"journal_id": entry.ID})
	return s.repo.Get(ctx, companyID, id)
}

// Get loads one invoice.
func (s *Service) Get(ctx context.Context, companyID, id int64) (PurchaseInvoice, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns invoices matching filters.
func (s *Service) List(ctx context.Context, companyID int64, f ListFilters) ([]PurchaseInvoice, int, error) {
	return s.repo.List(ctx, companyID, f)
}

// invoiceJournalLines builds the AP posting. Tax debits are grouped per tax
// account to keep the journal compact.
func invoiceJournalLines(inv PurchaseInvoice) []journals.PostingLineInput {
	var lines []journals.PostingLineInput
	taxTotals := map[int64]decimal.Decimal{}
	var taxOrder []int64
	for _, l := range inv.Lines {
		lines = append(lines, journals.PostingLineInput{
			AccountID: l.ExpenseAccountID,
			Currency:  inv.Currency,
			Debit:     l.NetAmount,
		})
		if l.TaxAccountID != nil && l.TaxAmount.IsPositive() {
			if _, seen := taxTotals[*l.TaxAccountID]; !seen {
				taxOrder = append(taxOrder, *l.TaxAccountID)
			}
			taxTotals[*l.TaxAccountID] = taxTotals[*l.TaxAccountID].Add(l.TaxAmount)
		}
	}
	for _, accountID := range taxOrder {
		lines = append(lines, journals.PostingLineInput{
			AccountID: accountID,
			Currency:  inv.Currency,
			Debit:     taxTotals[accountID],
		})
	}
	lines = append(lines, journals.PostingLineInput{
		AccountID: inv.PayableAccountID,
		Currency:  inv.Currency,
		Credit:    inv.GrossTotal(),
	})
	return lines
}

// splitTaxes computes the tax amount for every line carrying a tax code. The
// amount rounds to the invoice currency exponent, matching what the journal
// conversion does later, so the gross credit always balances.
func (s *Service) splitTaxes(ctx context.Context, inv PurchaseInvoice) ([]InvoiceLine, error) {
	exp := fx.Exponent(inv.Currency)
	out := make([]InvoiceLine, 0, len(inv.Lines))
	for _, l := range inv.Lines {
		if l.ExpenseAccountID == 0 || !l.NetAmount.IsPositive() {
			return nil, errors.New("procurement: each line needs an expense account and a positive net amount")
		}
		l.NetAmount = l.NetAmount.Round(exp)
		l.TaxAmount = decimal.Zero
		l.TaxAccountID = nil
		if l.TaxID != nil {
			tax, err := s.taxes.GetTax(ctx, *l.TaxID)
			if err != nil {
				return nil, err
			}
			if tax.CompanyID != inv.CompanyID {
				return nil, errors.New("procurement: tax code belongs to another company")
			}
			l.TaxAmount = l.NetAmount.Mul(tax.RatePct).Div(decimal.NewFromInt(100)).Round(exp)
			accountID := tax.AccountID
			l.TaxAccountID = &accountID
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *Service) validateHeader(inv PurchaseInvoice) error {
	if inv.CompanyID == 0 || inv.SupplierID == 0 {
		return errors.New("procurement: company and supplier required")
	}
	if strings.TrimSpace(inv.InvoiceNo) == "" {
		return errors.New("procurement: invoice number required")
	}
	if inv.InvoiceDate.IsZero() {
		return errors.New("procurement: invoice date required")
	}
	if !fx.ValidCode(inv.Currency) {
		return errors.New("procurement: invalid currency code")
	}
	if inv.PayableAccountID == 0 {
		return errors.New("procurement: payable account required")
	}
	if len(inv.Lines) == 0 {
		return ErrNoLines
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
		Entity:    "purchase_invoice",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
