package close

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records close mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service runs the close protocol: start a run, tick the checklist, soft
// close, hard close, reopen. Period status transitions always lock the period
// row so they serialise against concurrent postings.
type Service struct {
	runs    *Repository
	periods *periods.Repository
	audit   AuditPort
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs the close service.
func NewService(runs *Repository, periodRepo *periods.Repository, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{runs: runs, periods: periodRepo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// StartRun opens a close run for a period and seeds the default checklist.
func (s *Service) StartRun(ctx context.Context, companyID, periodID, actorID int64) (CloseRun, error) {
	var created CloseRun
	err := s.periods.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		period, err := s.periods.GetForUpdate(ctx, tx, periodID)
		if err != nil {
			return err
		}
		if period.CompanyID != companyID {
			return shared.ErrCompanyMismatch
		}
		if period.Status == periods.PeriodStatusHardClosed {
			return shared.ErrPeriodLocked
		}
		items := make([]ChecklistItem, len(defaultChecklist))
		copy(items, defaultChecklist)
		created, err = s.runs.CreateRun(ctx, tx, CloseRun{
			CompanyID: companyID,
			PeriodID:  periodID,
			Status:    RunStatusInProgress,
			StartedBy: actorID,
			StartedAt: s.now().UTC(),
			Items:     items,
		})
		return err
	})
	if err != nil {
		return CloseRun{}, err
	}
	s.record(ctx, actorID, companyID, "close.start", created.ID, map[string]any{"period_id": periodID})
	return created, nil
}

// SetChecklistItem marks one gate as done or not done on an active run.
func (s *Service) SetChecklistItem(ctx context.Context, companyID, runID int64, key string, done bool, actorID int64) (CloseRun, error) {
	var updated CloseRun
	err := s.periods.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		run, err := s.runs.GetRunForUpdate(ctx, tx, companyID, runID)
		if err != nil {
			return err
		}
		if run.Status != RunStatusInProgress {
			return ErrRunNotActive
		}
		if err := s.runs.SetItemDone(ctx, tx, run.ID, key, done, actorID); err != nil {
			return err
		}
		updated, err = s.runs.GetRunForUpdate(ctx, tx, companyID, runID)
		return err
	})
	if err != nil {
		return CloseRun{}, err
	}
	s.record(ctx, actorID, companyID, "close.checklist", runID, map[string]any{"item": key, "done": done})
	return updated, nil
}

// SoftClose freezes a period for routine postings. Reversals and closing
// entries still go through until the hard close.
func (s *Service) SoftClose(ctx context.Context, companyID, runID, actorID int64) error {
	err := s.transition(ctx, companyID, runID, actorID, func(run CloseRun, period periods.Period) (periods.PeriodStatus, RunStatus, error) {
		if period.Status != periods.PeriodStatusOpen {
			return "", "", shared.ErrInvalidStatus
		}
		return periods.PeriodStatusSoftClosed, RunStatusInProgress, nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, companyID, "close.soft", runID, nil)
	return nil
}

// HardClose locks a period for good. Every checklist item must be done, and
// the period must already be soft closed. The run completes with it.
func (s *Service) HardClose(ctx context.Context, companyID, runID, actorID int64) error {
	err := s.transition(ctx, companyID, runID, actorID, func(run CloseRun, period periods.Period) (periods.PeriodStatus, RunStatus, error) {
		if period.Status != periods.PeriodStatusSoftClosed {
			return "", "", shared.ErrInvalidStatus
		}
		for _, item := range run.Items {
			if !item.Done {
				return "", "", fmt.Errorf("%w: %s", ErrChecklistIncomplete, item.Key)
			}
		}
		return periods.PeriodStatusHardClosed, RunStatusCompleted, nil
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, companyID, "close.hard", runID, nil)
	return nil
}

// Reopen reverts a soft close. Hard-closed periods never reopen.
func (s *Service) Reopen(ctx context.Context, companyID, runID, actorID int64) error {
	err := s.transition(ctx, companyID, runID, actorID, func(run CloseRun, period periods.Period) (periods.PeriodStatus, RunStatus, error) {
		switch period.Status {
		case periods.PeriodStatusSoftClosed:
			return periods.PeriodStatusOpen, RunStatusCancelled, nil
		case periods.PeriodStatusHardClosed:
			return "", "", ErrReopenForbidden
		default:
			return "", "", shared.ErrInvalidStatus
		}
	})
	if err != nil {
		return err
	}
	s.record(ctx, actorID, companyID, "close.reopen", runID, nil)
	return nil
}

// transition locks run and period, applies decide, and persists both statuses.
func (s *Service) transition(ctx context.Context, companyID, runID, actorID int64,
	decide func(CloseRun, periods.Period) (periods.PeriodStatus, RunStatus, error)) error {
	return s.periods.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		run, err := s.runs.GetRunForUpdate(ctx, tx, companyID, runID)
		if err != nil {
			return err
		}
		if run.Status != RunStatusInProgress {
			return ErrRunNotActive
		}
		period, err := s.periods.GetForUpdate(ctx, tx, run.PeriodID)
		if err != nil {
			return err
		}
		periodStatus, runStatus, err := decide(run, period)
		if err != nil {
			return err
		}
		if err := s.periods.UpdateStatus(ctx, tx, period.ID, periodStatus, actorID); err != nil {
			return err
		}
		if runStatus != run.Status {
			return s.runs.UpdateRunStatus(ctx, tx, run.ID, runStatus)
		}
		return nil
	})
}

// GetRun loads a run with checklist.
func (s *Service) GetRun(ctx context.Context, companyID, runID int64) (CloseRun, error) {
	return s.runs.GetRun(ctx, companyID, runID)
}

// ListRuns returns all runs for the company.
func (s *Service) ListRuns(ctx context.Context, companyID int64) ([]CloseRun, error) {
	return s.runs.ListRuns(ctx, companyID)
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "close_run",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
