package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Service manages fiscal years and monthly periods.
type Service struct {
	repo *Repository
	now  func() time.Time
}

// NewService constructs the periods service.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListYears returns fiscal years for a company.
func (s *Service) ListYears(ctx context.Context, companyID int64) ([]FiscalYear, error) {
	return s.repo.ListYears(ctx, companyID)
}

// ListPeriods returns periods of a fiscal year.
func (s *Service) ListPeriods(ctx context.Context, companyID, fiscalYearID int64) ([]Period, error) {
	return s.repo.ListPeriods(ctx, companyID, fiscalYearID)
}

// Get returns a single period.
func (s *Service) Get(ctx context.Context, id int64) (Period, error) {
	return s.repo.Get(ctx, id)
}

// GenerateYear creates a fiscal year with twelve monthly periods.
func (s *Service) GenerateYear(ctx context.Context, companyID int64, year int) (FiscalYear, []Period, error) {
	if companyID <= 0 {
		return FiscalYear{}, nil, errors.New("accounting: company required")
	}
	if year < 1990 || year > 2100 {
		return FiscalYear{}, nil, errors.New("accounting: year out of range")
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	var fy FiscalYear
	var created []Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		fy, err = s.repo.InsertYear(ctx, tx, companyID, year, start, end)
		if err != nil {
			return err
		}
		for month := time.January; month <= time.December; month++ {
			first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			last := first.AddDate(0, 1, -1)
			period, err := s.repo.InsertPeriod(ctx, tx, Period{
				CompanyID:    companyID,
				FiscalYearID: fy.ID,
				Code:         fmt.Sprintf("%d-%02d", year, month),
				StartDate:    first,
				EndDate:      last,
			})
			if err != nil {
				return err
			}
			created = append(created, period)
		}
		return nil
	})
	if err != nil {
		return FiscalYear{}, nil, err
	}
	return fy, created, nil
}
