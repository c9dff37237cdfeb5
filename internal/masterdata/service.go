package masterdata

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/text/currency"
)

// Service validates and persists master data.
type Service struct {
	repo Repository
}

// NewService creates a master data service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ErrInvalidCurrency indicates a code that is not ISO 4217.
var ErrInvalidCurrency = errors.New("masterdata: invalid currency code")

// Company operations

func (s *Service) ListCompanies(ctx context.Context, filters ListFilters) ([]Company, int, error) {
	return s.repo.ListCompanies(ctx, filters)
}

func (s *Service) GetCompany(ctx context.Context, id int64) (Company, error) {
	if id <= 0 {
		return Company{}, ErrNotFound
	}
	return s.repo.GetCompany(ctx, id)
}

func (s *Service) CreateCompany(ctx context.Context, c Company) (Company, error) {
	c.Code = strings.ToUpper(strings.TrimSpace(c.Code))
	c.Name = strings.TrimSpace(c.Name)
	if c.Code == "" || c.Name == "" {
		return Company{}, errors.New("masterdata: company code and name required")
	}
	base, err := normalizeCurrency(c.BaseCurrency)
	if err != nil {
		return Company{}, err
	}
	c.BaseCurrency = base
	return s.repo.CreateCompany(ctx, c)
}

func (s *Service) UpdateCompany(ctx context.Context, c Company) (Company, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.ID <= 0 || c.Name == "" {
		return Company{}, errors.New("masterdata: company id and name required")
	}
	return s.repo.UpdateCompany(ctx, c)
}

// Branch operations

func (s *Service) ListBranches(ctx context.Context, filters ListFilters) ([]Branch, int, error) {
	return s.repo.ListBranches(ctx, filters)
}

func (s *Service) GetBranch(ctx context.Context, id int64) (Branch, error) {
	return s.repo.GetBranch(ctx, id)
}

func (s *Service) CreateBranch(ctx context.Context, b Branch) (Branch, error) {
	b.Code = strings.ToUpper(strings.TrimSpace(b.Code))
	b.Name = strings.TrimSpace(b.Name)
	if b.CompanyID <= 0 || b.Code == "" || b.Name == "" {
		return Branch{}, errors.New("masterdata: branch company, code, and name required")
	}
	return s.repo.CreateBranch(ctx, b)
}

func (s *Service) UpdateBranch(ctx context.Context, b Branch) (Branch, error) {
	if b.ID <= 0 {
		return Branch{}, ErrNotFound
	}
	return s.repo.UpdateBranch(ctx, b)
}

func (s *Service) DeleteBranch(ctx context.Context, id int64) error {
	return s.repo.DeleteBranch(ctx, id)
}

// Currency operations

func (s *Service) ListCurrencies(ctx context.Context) ([]Currency, error) {
	return s.repo.ListCurrencies(ctx)
}

func (s *Service) UpsertCurrency(ctx context.Context, c Currency) (Currency, error) {
	code, err := normalizeCurrency(c.Code)
	if err != nil {
		return Currency{}, err
	}
	c.Code = code
	c.Name = strings.TrimSpace(c.Name)
	if c.Exponent < 0 || c.Exponent > 4 {
		return Currency{}, errors.New("masterdata: currency exponent out of range")
	}
	return s.repo.UpsertCurrency(ctx, c)
}

// Tax operations

func (s *Service) ListTaxes(ctx context.Context, companyID int64) ([]Tax, error) {
	return s.repo.ListTaxes(ctx, companyID)
}

func (s *Service) GetTax(ctx context.Context, id int64) (Tax, error) {
	return s.repo.GetTax(ctx, id)
}

func (s *Service) CreateTax(ctx context.Context, t Tax) (Tax, error) {
	t.Code = strings.ToUpper(strings.TrimSpace(t.Code))
	if t.CompanyID <= 0 || t.Code == "" || t.AccountID <= 0 {
		return Tax{}, errors.New("masterdata: tax company, code, and account required")
	}
	if t.RatePct.IsNegative() {
		return Tax{}, errors.New("masterdata: tax rate cannot be negative")
	}
	return s.repo.CreateTax(ctx, t)
}

func (s *Service) UpdateTax(ctx context.Context, t Tax) (Tax, error) {
	if t.ID <= 0 {
		return Tax{}, ErrNotFound
	}
	if t.RatePct.IsNegative() {
		return Tax{}, errors.New("masterdata: tax rate cannot be negative")
	}
	return s.repo.UpdateTax(ctx, t)
}

// Partner operations

func (s *Service) ListPartners(ctx context.Context, filters ListFilters) ([]Partner, int, error) {
	return s.repo.ListPartners(ctx, filters)
}

func (s *Service) GetPartner(ctx context.Context, id int64) (Partner, error) {
	return s.repo.GetPartner(ctx, id)
}

func (s *Service) CreatePartner(ctx context.Context, p Partner) (Partner, error) {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)
	if p.CompanyID <= 0 || p.Code == "" || p.Name == "" {
		return Partner{}, errors.New("masterdata: partner company, code, and name required")
	}
	if !validPartnerKind(p.Kind) {
		return Partner{}, errors.New("masterdata: invalid partner kind")
	}
	if p.Currency != "" {
		code, err := normalizeCurrency(p.Currency)
		if err != nil {
			return Partner{}, err
		}
		p.Currency = code
	}
	return s.repo.CreatePartner(ctx, p)
}

func (s *Service) UpdatePartner(ctx context.Context, p Partner) (Partner, error) {
	if p.ID <= 0 {
		return Partner{}, ErrNotFound
	}
	if !validPartnerKind(p.Kind) {
		return Partner{}, errors.New("masterdata: invalid partner kind")
	}
	return s.repo.UpdatePartner(ctx, p)
}

func normalizeCurrency(code string) (string, error) {
	unit, err := currency.ParseISO(strings.TrimSpace(code))
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return unit.String(), nil
}
