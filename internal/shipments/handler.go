package shipments

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

// Handler exposes shipment endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the shipments handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers shipment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("shipments.view"))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/{id}/declarations", h.listDeclarations)
		r.Get("/{id}/expenses", h.listBatches)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("shipments.manage"))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Post("/{id}/transition", h.transition)
		r.Post("/{id}/declarations", h.fileDeclaration)
		r.Post("/{id}/declarations/{declID}/clear", h.clearDeclaration)
		r.Post("/{id}/expenses", h.createBatch)
		r.Post("/{id}/expenses/{batchID}/post", h.postBatch)
	})
}

type shipmentRequest struct {
	Reference   string `json:"reference" validate:"required,max=60"`
	SupplierID  *int64 `json:"supplier_id"`
	Origin      string `json:"origin" validate:"max=120"`
	Destination string `json:"destination" validate:"max=120"`
	Incoterm    string `json:"incoterm" validate:"omitempty,max=10"`
	ETD         string `json:"etd" validate:"omitempty,datetime=2006-01-02"`
	ETA         string `json:"eta" validate:"omitempty,datetime=2006-01-02"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=IN_TRANSIT ARRIVED CLEARED DELIVERED CANCELLED"`
}

type declarationRequest struct {
	DeclarationNo string `json:"declaration_no" validate:"required,max=60"`
	Currency      string `json:"currency" validate:"required,len=3"`
	DeclaredValue string `json:"declared_value" validate:"required"`
	DutyAmount    string `json:"duty_amount"`
	VATAmount     string `json:"vat_amount"`
}

type expenseItemRequest struct {
	ExpenseAccountID int64  `json:"expense_account_id" validate:"required"`
	Description      string `json:"description" validate:"max=200"`
	Currency         string `json:"currency" validate:"omitempty,len=3"`
	Amount           string `json:"amount" validate:"required"`
}

type expenseBatchRequest struct {
	Description      string               `json:"description" validate:"max=200"`
	AccrualAccountID int64                `json:"accrual_account_id" validate:"required"`
	ExpenseDate      string               `json:"expense_date" validate:"omitempty,datetime=2006-01-02"`
	Items            []expenseItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	sh, ok := h.decodeShipment(w, r)
	if !ok {
		return
	}
	sh.CompanyID = companyID
	sh.CreatedBy = principal.UserID
	created, err := h.service.Create(r.Context(), sh)
	if err != nil {
		h.respondErr(w, "create shipment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	sh, ok := h.decodeShipment(w, r)
	if !ok {
		return
	}
	sh.ID = pathID(r, "id")
	sh.CompanyID = companyID
	updated, err := h.service.Update(r.Context(), sh, principal.UserID)
	if err != nil {
		h.respondErr(w, "update shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	sh, err := h.service.Transition(r.Context(), companyID, pathID(r, "id"), Status(req.Status), principal.UserID)
	if err != nil {
		h.respondErr(w, "transition shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	sh, err := h.service.Get(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get shipment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sh)
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
		Status:  Status(r.URL.Query().Get("status")),
		Search:  r.URL.Query().Get("q"),
	}
	if raw := r.URL.Query().Get("supplier_id"); raw != "" {
		f.SupplierID, _ = strconv.ParseInt(raw, 10, 64)
	}
	shipments, total, err := h.service.List(r.Context(), companyID, f)
	if err != nil {
		h.respondErr(w, "list shipments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"shipments":  shipments,
		"pagination": internalShared.NewPagination(f.Page, f.PerPage, total),
	})
}

func (h *Handler) fileDeclaration(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req declarationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	declared, err := parseAmount(req.DeclaredValue)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "declared_value must be a decimal string")
		return
	}
	duty, err := parseAmount(req.DutyAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "duty_amount must be a decimal string")
		return
	}
	vat, err := parseAmount(req.VATAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "vat_amount must be a decimal string")
		return
	}
	d, err := h.service.FileDeclaration(r.Context(), companyID, CustomsDeclaration{
		ShipmentID:    pathID(r, "id"),
		DeclarationNo: req.DeclarationNo,
		Currency:      req.Currency,
		DeclaredValue: declared,
		DutyAmount:    duty,
		VATAmount:     vat,
	}, principal.UserID)
	if err != nil {
		h.respondErr(w, "file declaration", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) clearDeclaration(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.service.ClearDeclaration(r.Context(), companyID, pathID(r, "id"), pathID(r, "declID"), principal.UserID); err != nil {
		h.respondErr(w, "clear declaration", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (h *Handler) listDeclarations(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	declarations, err := h.service.Declarations(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "list declarations", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"declarations": declarations})
}

func (h *Handler) createBatch(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req expenseBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	batch := ExpenseBatch{
		CompanyID:        companyID,
		ShipmentID:       pathID(r, "id"),
		Description:      req.Description,
		AccrualAccountID: req.AccrualAccountID,
		CreatedBy:        principal.UserID,
	}
	if req.ExpenseDate != "" {
		batch.ExpenseDate, _ = time.Parse("2006-01-02", req.ExpenseDate)
	}
	for _, it := range req.Items {
		amount, err := parseAmount(it.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "item amount must be a decimal string")
			return
		}
		batch.Items = append(batch.Items, ExpenseItem{
			ExpenseAccountID: it.ExpenseAccountID,
			Description:      it.Description,
			Currency:         it.Currency,
			Amount:           amount,
		})
	}
	created, err := h.service.CreateExpenseBatch(r.Context(), batch)
	if err != nil {
		h.respondErr(w, "create expense batch", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) postBatch(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	batch, err := h.service.PostExpenseBatch(r.Context(), companyID, pathID(r, "batchID"), principal.UserID)
	if err != nil {
		h.respondErr(w, "post expense batch", err)
		return
	}
	httpx.JSON(w, http.StatusOK, batch)
}

func (h *Handler) listBatches(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	batches, err := h.service.ExpenseBatches(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "list expense batches", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (h *Handler) decodeShipment(w http.ResponseWriter, r *http.Request) (Shipment, bool) {
	var req shipmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return Shipment{}, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return Shipment{}, false
	}
	sh := Shipment{
		Reference:   req.Reference,
		SupplierID:  req.SupplierID,
		Origin:      req.Origin,
		Destination: req.Destination,
		Incoterm:    req.Incoterm,
	}
	if req.ETD != "" {
		etd, _ := time.Parse("2006-01-02", req.ETD)
		sh.ETD = &etd
	}
	if req.ETA != "" {
		eta, _ := time.Parse("2006-01-02", req.ETA)
		sh.ETA = &eta
	}
	return sh, true
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
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
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, accShared.ErrCompanyMismatch):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrBadTransition),
		errors.Is(err, ErrBatchNotDraft),
		errors.Is(err, ErrDeclarationExists),
		errors.Is(err, accShared.ErrPeriodLocked),
		errors.Is(err, accShared.ErrInvalidPeriod),
		errors.Is(err, accShared.ErrSourceAlreadyLinked):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrBatchEmpty),
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
