package fx

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// Repository persists exchange rates.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the fx repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Upsert stores or replaces the quotation for (from, to, rate_date).
func (r *Repository) Upsert(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO exchange_rates (from_code, to_code, rate, rate_date, source)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (from_code, to_code, rate_date) DO UPDATE SET rate=EXCLUDED.rate, source=EXCLUDED.source
RETURNING id, created_at`, rate.FromCode, rate.ToCode, rate.Rate, rate.RateDate, rate.Source).
		Scan(&rate.ID, &rate.CreatedAt)
	if err != nil {
		return ExchangeRate{}, err
	}
	return rate, nil
}

// Latest returns the newest quotation on or before the given date.
func (r *Repository) Latest(ctx context.Context, from, to string, onDate time.Time) (ExchangeRate, error) {
	return latest(ctx, r.db, from, to, onDate)
}

// LatestTx is Latest executed against an open transaction so posting sees a
// consistent snapshot.
func (r *Repository) LatestTx(ctx context.Context, tx pgx.Tx, from, to string, onDate time.Time) (ExchangeRate, error) {
	return latest(ctx, tx, from, to, onDate)
}

// List returns quotations for a pair, newest first.
func (r *Repository) List(ctx context.Context, from, to string, limit int) ([]ExchangeRate, error) {
	if limit <= 0 || limit > 500 {
		limit = 90
	}
	rows, err := r.db.Query(ctx, `SELECT id, from_code, to_code, rate, rate_date, source, created_at
FROM exchange_rates WHERE from_code=$1 AND to_code=$2 ORDER BY rate_date DESC LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rates []ExchangeRate
	for rows.Next() {
		var rate ExchangeRate
		if err := rows.Scan(&rate.ID, &rate.FromCode, &rate.ToCode, &rate.Rate, &rate.RateDate, &rate.Source, &rate.CreatedAt); err != nil {
			return nil, err
		}
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func latest(ctx context.Context, q queryer, from, to string, onDate time.Time) (ExchangeRate, error) {
	var rate ExchangeRate
	err := q.QueryRow(ctx, `SELECT id, from_code, to_code, rate, rate_date, source, created_at
FROM exchange_rates WHERE from_code=$1 AND to_code=$2 AND rate_date <= $3
ORDER BY rate_date DESC LIMIT 1`, from, to, onDate).
		Scan(&rate.ID, &rate.FromCode, &rate.ToCode, &rate.Rate, &rate.RateDate, &rate.Source, &rate.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ExchangeRate{}, shared.ErrRateUnavailable
		}
		return ExchangeRate{}, err
	}
	return rate, nil
}
