// Package jobs contains background task definitions and the Asynq worker.
package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const (
	// QueueDefault is the default queue for background jobs.
	QueueDefault = "default"
	// TaskFxRefresh pulls fresh exchange rates from the provider feed.
	TaskFxRefresh = "fx:refresh"
	// TaskIdempotencyCleanup prunes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskGLIntegrity scans for journals whose base amounts do not balance.
	TaskGLIntegrity = "gl:integrity"
	// TaskAuditRetention prunes audit entries past the retention window.
	TaskAuditRetention = "audit:retention"
)

// FxRefreshPayload selects the base currency to refresh against.
type FxRefreshPayload struct {
	Base string `json:"base"`
}

// NewFxRefreshTask constructs an fx refresh task.
func NewFxRefreshTask(base string) (*asynq.Task, error) {
	data, err := json.Marshal(FxRefreshPayload{Base: base})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFxRefresh, data), nil
}

// RetentionPayload carries a duration in hours for pruning tasks.
type RetentionPayload struct {
	Hours int `json:"hours"`
}

// NewRetentionTask constructs a pruning task of the given type.
func NewRetentionTask(taskType string, retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(RetentionPayload{Hours: int(retention.Hours())})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, data), nil
}

// NewGLIntegrityTask constructs an integrity scan task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil)
}

// RateStore is the slice of the fx service the refresh task needs.
type RateStore interface {
	SetRate(ctx context.Context, rate fx.ExchangeRate) (fx.ExchangeRate, error)
}

// HandleFxRefresh returns the handler that pulls provider quotations and
// upserts them.
func HandleFxRefresh(provider *fx.ProviderClient, store RateStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if !provider.Enabled() {
			logger.Info("fx refresh skipped, no provider configured")
			return nil
		}
		var payload FxRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		rates, err := provider.FetchLatest(ctx, payload.Base)
		if err != nil {
			return err
		}
		stored := 0
		for _, rate := range rates {
			if _, err := store.SetRate(ctx, rate); err != nil {
				logger.Warn("fx refresh upsert", slog.String("pair", rate.FromCode+"/"+rate.ToCode), slog.Any("error", err))
				continue
			}
			stored++
		}
		logger.Info("fx refresh done", slog.Int("stored", stored), slog.String("base", payload.Base))
		return nil
	}
}

// HandleIdempotencyCleanup returns the handler pruning old idempotency keys.
func HandleIdempotencyCleanup(store *shared.IdempotencyStore, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		retention := time.Duration(payload.Hours) * time.Hour
		if retention <= 0 {
			retention = 72 * time.Hour
		}
		if err := store.Cleanup(ctx, retention); err != nil {
			return err
		}
		logger.Info("idempotency cleanup done", slog.Int("hours", payload.Hours))
		return nil
	}
}

// AuditPruner is the slice of the audit repository the retention task needs.
type AuditPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// HandleAuditRetention returns the handler pruning aged audit entries.
func HandleAuditRetention(pruner AuditPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RetentionPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Hours <= 0 {
			return asynq.SkipRetry
		}
		cutoff := time.Now().UTC().Add(-time.Duration(payload.Hours) * time.Hour)
		removed, err := pruner.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			return err
		}
		logger.Info("audit retention done", slog.Int64("removed", removed))
		return nil
	}
}

// DriftGauge records how many journals the integrity scan found unbalanced.
type DriftGauge interface {
	GLUnbalanced(count int)
}

// HandleGLIntegrity returns the handler that scans posted journals for base
// amount imbalances. A hit means a bug or manual data tampering; it is logged
// loudly and reported on the drift gauge rather than silently repaired.
func HandleGLIntegrity(db *pgxpool.Pool, drift DriftGauge, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		rows, err := db.Query(ctx, `SELECT journal_id, SUM(base_debit) AS d, SUM(base_credit) AS c
FROM journal_lines GROUP BY journal_id HAVING SUM(base_debit) <> SUM(base_credit)`)
		if err != nil {
			return err
		}
		defer rows.Close()
		bad := 0
		for rows.Next() {
			var journalID int64
			var debit, credit string
			if err := rows.Scan(&journalID, &debit, &credit); err != nil {
				return err
			}
			bad++
			logger.Error("unbalanced journal detected",
				slog.Int64("journal_id", journalID),
				slog.String("base_debit", debit),
				slog.String("base_credit", credit))
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if drift != nil {
			drift.GLUnbalanced(bad)
		}
		if bad == 0 {
			logger.Info("gl integrity scan clean")
		}
		return nil
	}
}
