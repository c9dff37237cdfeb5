package masterdata

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes master data CRUD endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("masterdata.view"))
		r.Get("/companies", h.listCompanies)
		r.Get("/companies/{id}", h.getCompany)
		r.Get("/branches", h.listBranches)
		r.Get("/branches/{id}", h.getBranch)
		r.Get("/currencies", h.listCurrencies)
		r.Get("/taxes", h.listTaxes)
		r.Get("/taxes/{id}", h.getTax)
		r.Get("/partners", h.listPartners)
		r.Get("/partners/{id}", h.getPartner)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("masterdata.manage"))
		r.Post("/companies", h.createCompany)
		r.Put("/companies/{id}", h.updateCompany)
		r.Post("/branches", h.createBranch)
		r.Put("/branches/{id}", h.updateBranch)
		r.Delete("/branches/{id}", h.deleteBranch)
		r.Put("/currencies/{code}", h.upsertCurrency)
		r.Post("/taxes", h.createTax)
		r.Put("/taxes/{id}", h.updateTax)
		r.Post("/partners", h.createPartner)
		r.Put("/partners/{id}", h.updatePartner)
	})
}

func (h *Handler) filters(r *http.Request) ListFilters {
	page, perPage := shared.PageParams(r)
	f := ListFilters{
		Page:      page,
		PerPage:   perPage,
		Search:    r.URL.Query().Get("q"),
		CompanyID: shared.CompanyFromContext(r.Context()),
	}
	if raw := r.URL.Query().Get("active"); raw != "" {
		active := raw == "true" || raw == "1"
		f.IsActive = &active
	}
	return f
}

// Companies

type companyRequest struct {
	Code         string `json:"code" validate:"required,max=20"`
	Name         string `json:"name" validate:"required,max=200"`
	Address      string `json:"address" validate:"max=500"`
	TaxID        string `json:"tax_id" validate:"max=50"`
	BaseCurrency string `json:"base_currency" validate:"required,len=3"`
	IsActive     *bool  `json:"is_active"`
}

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	f := h.filters(r)
	companies, total, err := h.service.ListCompanies(r.Context(), f)
	if err != nil {
		h.respondErr(w, "list companies", err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal != nil && !principal.SuperUser {
		companies = filterCompaniesByScope(companies, principal)
		total = len(companies)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"companies":  companies,
		"pagination": shared.NewPagination(f.Page, f.PerPage, total),
	})
}

func filterCompaniesByScope(companies []Company, principal *shared.Principal) []Company {
	scoped := companies[:0]
	for _, c := range companies {
		if principal.CanAccessCompany(c.ID) {
			scoped = append(scoped, c)
		}
	}
	return scoped
}

func (h *Handler) getCompany(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	principal := shared.PrincipalFromContext(r.Context())
	if !principal.CanAccessCompany(id) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "company outside principal scope")
		return
	}
	company, err := h.service.GetCompany(r.Context(), id)
	if err != nil {
		h.respondErr(w, "get company", err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

func (h *Handler) createCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !h.decode(w, r, &req) {
		return
	}
	company, err := h.service.CreateCompany(r.Context(), Company{
		Code: req.Code, Name: req.Name, Address: req.Address, TaxID: req.TaxID, BaseCurrency: req.BaseCurrency,
	})
	if err != nil {
		h.respondErr(w, "create company", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, company)
}

func (h *Handler) updateCompany(w http.ResponseWriter, r *http.Request) {
	var req companyRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	company, err := h.service.UpdateCompany(r.Context(), Company{
		ID: pathID(r, "id"), Name: req.Name, Address: req.Address, TaxID: req.TaxID, IsActive: active,
	})
	if err != nil {
		h.respondErr(w, "update company", err)
		return
	}
	httpx.JSON(w, http.StatusOK, company)
}

// Branches

type branchRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Code      string `json:"code" validate:"required,max=20"`
	Name      string `json:"name" validate:"required,max=200"`
	Address   string `json:"address" validate:"max=500"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) listBranches(w http.ResponseWriter, r *http.Request) {
	f := h.filters(r)
	branches, total, err := h.service.ListBranches(r.Context(), f)
	if err != nil {
		h.respondErr(w, "list branches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"branches":   branches,
		"pagination": shared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) getBranch(w http.ResponseWriter, r *http.Request) {
	branch, err := h.service.GetBranch(r.Context(), pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get branch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) createBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if !principal.CanAccessCompany(req.CompanyID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "company outside principal scope")
		return
	}
	branch, err := h.service.CreateBranch(r.Context(), Branch{
		CompanyID: req.CompanyID, Code: req.Code, Name: req.Name, Address: req.Address,
	})
	if err != nil {
		h.respondErr(w, "create branch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, branch)
}

func (h *Handler) updateBranch(w http.ResponseWriter, r *http.Request) {
	var req branchRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	branch, err := h.service.UpdateBranch(r.Context(), Branch{
		ID: pathID(r, "id"), Name: req.Name, Address: req.Address, IsActive: active,
	})
	if err != nil {
		h.respondErr(w, "update branch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, branch)
}

func (h *Handler) deleteBranch(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteBranch(r.Context(), pathID(r, "id")); err != nil {
		h.respondErr(w, "delete branch", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Currencies

type currencyRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Exponent int    `json:"exponent" validate:"gte=0,lte=4"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) listCurrencies(w http.ResponseWriter, r *http.Request) {
	currencies, err := h.service.ListCurrencies(r.Context())
	if err != nil {
		h.respondErr(w, "list currencies", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"currencies": currencies})
}

func (h *Handler) upsertCurrency(w http.ResponseWriter, r *http.Request) {
	var req currencyRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	cur, err := h.service.UpsertCurrency(r.Context(), Currency{
		Code: chi.URLParam(r, "code"), Name: req.Name, Exponent: req.Exponent, IsActive: active,
	})
	if err != nil {
		h.respondErr(w, "upsert currency", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cur)
}

// Taxes

type taxRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Code      string `json:"code" validate:"required,max=20"`
	Name      string `json:"name" validate:"required,max=200"`
	RatePct   string `json:"rate_pct" validate:"required"`
	AccountID int64  `json:"account_id" validate:"required,gt=0"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) listTaxes(w http.ResponseWriter, r *http.Request) {
	companyID := shared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "X-Company-ID header required")
		return
	}
	taxes, err := h.service.ListTaxes(r.Context(), companyID)
	if err != nil {
		h.respondErr(w, "list taxes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"taxes": taxes})
}

func (h *Handler) getTax(w http.ResponseWriter, r *http.Request) {
	tax, err := h.service.GetTax(r.Context(), pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get tax", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tax)
}

func (h *Handler) createTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if !h.decode(w, r, &req) {
		return
	}
	rate, err := decimal.NewFromString(req.RatePct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "rate_pct must be a decimal string")
		return
	}
	tax, err := h.service.CreateTax(r.Context(), Tax{
		CompanyID: req.CompanyID, Code: req.Code, Name: req.Name, RatePct: rate, AccountID: req.AccountID,
	})
	if err != nil {
		h.respondErr(w, "create tax", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tax)
}

func (h *Handler) updateTax(w http.ResponseWriter, r *http.Request) {
	var req taxRequest
	if !h.decode(w, r, &req) {
		return
	}
	rate, err := decimal.NewFromString(req.RatePct)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "rate_pct must be a decimal string")
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	tax, err := h.service.UpdateTax(r.Context(), Tax{
		ID: pathID(r, "id"), Name: req.Name, RatePct: rate, AccountID: req.AccountID, IsActive: active,
	})
	if err != nil {
		h.respondErr(w, "update tax", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tax)
}

// Partners

type partnerRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	Code      string `json:"code" validate:"required,max=20"`
	Name      string `json:"name" validate:"required,max=200"`
	Kind      string `json:"kind" validate:"required,oneof=CUSTOMER SUPPLIER BOTH"`
	TaxID     string `json:"tax_id" validate:"max=50"`
	Address   string `json:"address" validate:"max=500"`
	Currency  string `json:"currency" validate:"omitempty,len=3"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) listPartners(w http.ResponseWriter, r *http.Request) {
	f := h.filters(r)
	partners, total, err := h.service.ListPartners(r.Context(), f)
	if err != nil {
		h.respondErr(w, "list partners", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"partners":   partners,
		"pagination": shared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) getPartner(w http.ResponseWriter, r *http.Request) {
	partner, err := h.service.GetPartner(r.Context(), pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get partner", err)
		return
	}
	httpx.JSON(w, http.StatusOK, partner)
}

func (h *Handler) createPartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if !principal.CanAccessCompany(req.CompanyID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "company outside principal scope")
		return
	}
	partner, err := h.service.CreatePartner(r.Context(), Partner{
		CompanyID: req.CompanyID, Code: req.Code, Name: req.Name, Kind: PartnerKind(req.Kind),
		TaxID: req.TaxID, Address: req.Address, Currency: req.Currency,
	})
	if err != nil {
		h.respondErr(w, "create partner", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, partner)
}

func (h *Handler) updatePartner(w http.ResponseWriter, r *http.Request) {
	var req partnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	partner, err := h.service.UpdatePartner(r.Context(), Partner{
		ID: pathID(r, "id"), Name: req.Name, Kind: PartnerKind(req.Kind),
		TaxID: req.TaxID, Address: req.Address, Currency: req.Currency, IsActive: active,
	})
	if err != nil {
		h.respondErr(w, "update partner", err)
		return
	}
	httpx.JSON(w, http.StatusOK, partner)
}

// Shared helpers

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.ValidationProblem(w, err)
		return false
	}
	return true
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidCurrency):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
