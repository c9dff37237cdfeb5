package vouchers

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
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes voucher endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the vouchers handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("vouchers.view"))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("vouchers.manage"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/post", h.post)
		r.Post("/{id}/cancel", h.cancel)
	})
}

type voucherRequest struct {
	Kind             string `json:"kind" validate:"required,oneof=PAYMENT RECEIPT"`
	PartnerID        *int64 `json:"partner_id"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Currency         string `json:"currency" validate:"required,len=3"`
	Amount           string `json:"amount" validate:"required"`
	CashAccountID    int64  `json:"cash_account_id" validate:"required"`
	CounterAccountID int64  `json:"counter_account_id" validate:"required"`
	Memo             string `json:"memo" validate:"max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
	Force  bool   `json:"force"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	v, ok := h.decodeVoucher(w, r)
	if !ok {
		return
	}
	v.CompanyID = companyID
	v.CreatedBy = principal.UserID
	created, err := h.service.CreateDraft(r.Context(), v)
	if err != nil {
		h.respondErr(w, "create voucher", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	v, ok := h.decodeVoucher(w, r)
	if !ok {
		return
	}
	v.ID = pathID(r, "id")
	v.CompanyID = companyID
	updated, err := h.service.UpdateDraft(r.Context(), v, principal.UserID)
	if err != nil {
		h.respondErr(w, "update voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

// post accepts an optional Idempotency-Key header so clients can safely retry
// over flaky connections.
func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	key := r.Header.Get("Idempotency-Key")
	posted, err := h.service.Post(r.Context(), companyID, pathID(r, "id"), principal.UserID, key)
	if err != nil {
		h.respondErr(w, "post voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, posted)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteDraft(r.Context(), companyID, pathID(r, "id"), principal.UserID); err != nil {
		h.respondErr(w, "delete voucher", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	if req.Force && !principal.SuperUser {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "forced cancellation requires superuser")
		return
	}
	cancelled, err := h.service.Cancel(r.Context(), companyID, pathID(r, "id"), principal.UserID, req.Reason, req.Force)
	if err != nil {
		h.respondErr(w, "cancel voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, cancelled)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get voucher", err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
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
		Kind:    Kind(r.URL.Query().Get("kind")),
		Status:  Status(r.URL.Query().Get("status")),
	}
	if raw := r.URL.Query().Get("partner_id"); raw != "" {
		f.PartnerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	vouchers, total, err := h.service.List(r.Context(), companyID, f)
	if err != nil {
		h.respondErr(w, "list vouchers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"vouchers":   vouchers,
		"pagination": internalShared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) decodeVoucher(w http.ResponseWriter, r *http.Request) (Voucher, bool) {
	var req voucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return Voucher{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return Voucher{}, false
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "amount must be a decimal string")
		return Voucher{}, false
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	return Voucher{
		Kind:             Kind(req.Kind),
		PartnerID:        req.PartnerID,
		Date:             date,
		Currency:         req.Currency,
		Amount:           amount,
		CashAccountID:    req.CashAccountID,
		CounterAccountID: req.CounterAccountID,
		Memo:             req.Memo,
	}, true
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
	case errors.Is(err, ErrNotFound), errors.Is(err, accShared.ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, accShared.ErrCompanyMismatch):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrNotDraft),
		errors.Is(err, ErrNotPosted),
		errors.Is(err, internalShared.ErrIdempotencyConflict),
		errors.Is(err, accShared.ErrPeriodLocked),
		errors.Is(err, accShared.ErrInvalidPeriod),
		errors.Is(err, accShared.ErrSourceAlreadyLinked),
		errors.Is(err, accShared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInvalidAmount),
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
