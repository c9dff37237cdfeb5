package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// AuditPort records account mutations.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service validates and persists chart of accounts changes.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the accounts service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// ErrHasPostings prevents deactivating an account still used as leaf-only guard target.
var ErrHasPostings = errors.New("accounting: account has postings and cannot be removed")

func (s *Service) List(ctx context.Context, companyID int64, includeInactive bool) ([]Account, error) {
	return s.repo.List(ctx, companyID, includeInactive)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, a Account, actorID int64) (Account, error) {
	a.Code = strings.TrimSpace(a.Code)
	a.Name = strings.TrimSpace(a.Name)
	if a.CompanyID <= 0 || a.Code == "" || a.Name == "" {
		return Account{}, errors.New("accounting: account company, code, and name required")
	}
	if !ValidType(a.Type) {
		return Account{}, errors.New("accounting: invalid account type")
	}
	if a.ParentID != nil {
		parent, err := s.repo.Get(ctx, *a.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.CompanyID != a.CompanyID {
			return Account{}, errors.New("accounting: parent account belongs to another company")
		}
	}
	created, err := s.repo.Create(ctx, a)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, created.CompanyID, "account.create", created.ID, map[string]any{"code": created.Code})
	return created, nil
}

func (s *Service) Update(ctx context.Context, a Account, actorID int64) (Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.ID <= 0 || a.Name == "" {
		return Account{}, errors.New("accounting: account id and name required")
	}
	updated, err := s.repo.Update(ctx, a)
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, actorID, updated.CompanyID, "account.update", updated.ID, nil)
	return updated, nil
}

// Deactivate disables an account. Accounts with postings are never deleted,
// only deactivated, so historical journals keep resolving.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	s.record(ctx, actorID, account.CompanyID, "account.deactivate", id, nil)
	return nil
}

func (s *Service) Activate(ctx context.Context, id, actorID int64) error {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return err
	}
	s.record(ctx, actorID, account.CompanyID, "account.activate", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "account",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
		At:        s.now(),
	})
}
