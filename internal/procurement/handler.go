package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	accShared "github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes purchase invoice endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the procurement handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers procurement routes. Approval and posting carry their
// own permissions so capture and release can be split across roles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("procurement.view"))
		r.Get("/invoices", h.list)
		r.Get("/invoices/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("procurement.capture"))
		r.Post("/invoices", h.create)
		r.Put("/invoices/{id}/lines", h.updateLines)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("procurement.approve"))
		r.Post("/invoices/{id}/approve", h.approve)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("procurement.post"))
		r.Post("/invoices/{id}/post", h.post)
	})
}

type invoiceLineRequest struct {
	Description      string `json:"description" validate:"max=200"`
	ExpenseAccountID int64  `json:"expense_account_id" validate:"required"`
	NetAmount        string `json:"net_amount" validate:"required"`
	TaxID            *int64 `json:"tax_id"`
}

type invoiceRequest struct {
	SupplierID       int64                `json:"supplier_id" validate:"required"`
	InvoiceNo        string               `json:"invoice_no" validate:"required,max=60"`
	InvoiceDate      string               `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	Currency         string               `json:"currency" validate:"required,len=3"`
	PayableAccountID int64                `json:"payable_account_id" validate:"required"`
	Memo             string               `json:"memo" validate:"max=500"`
	Lines            []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

type invoiceLinesRequest struct {
	Lines []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	lines, ok := h.decodeLines(w, req.Lines)
	if !ok {
		return
	}
	date, _ := time.Parse("2006-01-02", req.InvoiceDate)
	inv, err := h.service.Create(r.Context(), PurchaseInvoice{
		CompanyID:        companyID,
		SupplierID:       req.SupplierID,
		InvoiceNo:        req.InvoiceNo,
		InvoiceDate:      date,
		Currency:         req.Currency,
		PayableAccountID: req.PayableAccountID,
		Memo:             req.Memo,
		CreatedBy:        principal.UserID,
		Lines:            lines,
	})
	if err != nil {
		h.respondErr(w, "create invoice", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) updateLines(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req invoiceLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	lines, ok := h.decodeLines(w, req.Lines)
	if !ok {
		return
	}
	inv, err := h.service.UpdateLines(r.Context(), companyID, pathID(r, "id"), lines, principal.UserID)
	if err != nil {
		h.respondErr(w, "update invoice lines", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Approve(r.Context(), companyID, pathID(r, "id"), principal.UserID)
	if err != nil {
		h.respondErr(w, "approve invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Post(r.Context(), companyID, pathID(r, "id"), principal.UserID)
	if err != nil {
		h.respondErr(w, "post invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Get(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get invoice", err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	page, perPage := internalShared.PageParams(r)
	f := ListFilters{
		Page:    page,
		PerPage: perPage,
		Status:  InvoiceStatus(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		f.SupplierID, _ = strconv.ParseInt(raw, 10, 64)
	}
	invoices, total, err := h.service.List(r.Context(), companyID, f)
	if err != nil {
		h.respondErr(w, "list invoices", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"invoices":   invoices,
		"pagination": internalShared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) decodeLines(w http.ResponseWriter, reqs []invoiceLineRequest) ([]InvoiceLine, bool) {
	lines := make([]InvoiceLine, 0, len(reqs))
	for _, l := range reqs {
		amount, err := decimal.NewFromString(l.NetAmount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "net_amount must be a decimal string")
			return nil, false
		}
		lines = append(lines, InvoiceLine{
			Description:      l.Description,
			ExpenseAccountID: l.ExpenseAccountID,
			NetAmount:        amount,
			TaxID:            l.TaxID,
		})
	}
	return lines, true
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (int64, *internalShared.Principal, bool) {
	companyID := internalShared.CompanyFromContext(r.Context())
	principal := internalShared.PrincipalFromContext(r.Context())
	if companyID == 0 || principal == nil {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return 0, nil, false
	}
	return companyID, principal, true
}

func (h *Handler) respondErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, masterdata.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, accShared.ErrCompanyMismatch):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNotDraft),
		errors.Is(err, ErrNotApproved),
		errors.Is(err, ErrDuplicateInvoiceNo),
		errors.Is(err, accShared.ErrPeriodLocked),
		errors.Is(err, accShared.ErrInvalidPeriod),
		errors.Is(err, accShared.ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoLines),
		errors.Is(err, accShared.ErrRateUnavailable),
		errors.Is(err, accShared.ErrDateOutOfRange),
		errors.Is(err, accShared.ErrAccountInactive),
		errors.Is(err, accShared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
