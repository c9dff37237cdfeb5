package fx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
)

// Service validates and serves exchange rates.
type Service struct {
	repo   *Repository
	lookup singleflight.Group
	now    func() time.Time
}

// NewService constructs the fx service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetRate upserts a quotation after validating codes and value.
func (s *Service) SetRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	rate.FromCode = strings.ToUpper(strings.TrimSpace(rate.FromCode))
	rate.ToCode = strings.ToUpper(strings.TrimSpace(rate.ToCode))
	if !ValidCode(rate.FromCode) || !ValidCode(rate.ToCode) {
		return ExchangeRate{}, errors.New("fx: invalid currency code")
	}
	if rate.FromCode == rate.ToCode {
		return ExchangeRate{}, errors.New("fx: identical currency pair")
	}
	if rate.Rate.IsZero() || rate.Rate.IsNegative() {
		return ExchangeRate{}, errors.New("fx: rate must be positive")
	}
	if rate.RateDate.IsZero() {
		rate.RateDate = s.now().Truncate(24 * time.Hour)
	}
	if rate.Source == "" {
		rate.Source = "manual"
	}
	return s.repo.Upsert(ctx, rate)
}

// RateOn returns the effective rate for a pair on a date, with date fallback
// to the most recent earlier quotation. Concurrent lookups for the same pair
// and date collapse into one query.
func (s *Service) RateOn(ctx context.Context, from, to string, onDate time.Time) (decimal.Decimal, error) {
	if strings.EqualFold(from, to) {
		return decimal.NewFromInt(1), nil
	}
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)
	key := from + "|" + to + "|" + onDate.Format("2006-01-02")
	resultCh := s.lookup.DoChan(key, func() (any, error) {
		rate, err := s.repo.Latest(ctx, from, to, onDate)
		if err != nil {
			return decimal.Zero, err
		}
		return rate.Rate, nil
	})
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}

// ConvertOn converts an amount using the effective rate for the date.
func (s *Service) ConvertOn(ctx context.Context, amount decimal.Decimal, from, to string, onDate time.Time) (decimal.Decimal, error) {
	rate, err := s.RateOn(ctx, from, to, onDate)
	if err != nil {
		return decimal.Zero, err
	}
	converted, err := Convert(amount, from, to, rate)
	if err != nil {
		return decimal.Zero, err
	}
	return converted, nil
}

// History lists stored quotations for a pair.
func (s *Service) History(ctx context.Context, from, to string, limit int) ([]ExchangeRate, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !ValidCode(from) || !ValidCode(to) {
		return nil, shared.ErrRateUnavailable
	}
	return s.repo.List(ctx, from, to, limit)
}
