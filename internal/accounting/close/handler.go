package close

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/accounting/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes close run endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the close handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers close routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("periods.view"))
		r.Get("/runs", h.listRuns)
		r.Get("/runs/{id}", h.getRun)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("periods.close"))
		r.Post("/runs", h.startRun)
		r.Put("/runs/{id}/checklist/{key}", h.setChecklistItem)
		r.Post("/runs/{id}/soft-close", h.softClose)
		r.Post("/runs/{id}/hard-close", h.hardClose)
		r.Post("/runs/{id}/reopen", h.reopen)
	})
}

type startRunRequest struct {
	PeriodID int64 `json:"period_id" validate:"required"`
}

type checklistRequest struct {
	Done bool `json:"done"`
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req startRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	run, err := h.service.StartRun(r.Context(), companyID, req.PeriodID, principal.UserID)
	if err != nil {
		h.respondErr(w, "start close run", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, run)
}

func (h *Handler) setChecklistItem(w http.ResponseWriter, r *http.Request) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	var req checklistRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	run, err := h.service.SetChecklistItem(r.Context(), companyID, pathID(r, "id"), chi.URLParam(r, "key"), req.Done, principal.UserID)
	if err != nil {
		h.respondErr(w, "update checklist", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) softClose(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, "soft close", h.service.SoftClose)
}

func (h *Handler) hardClose(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, "hard close", h.service.HardClose)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	h.runTransition(w, r, "reopen", h.service.Reopen)
}

func (h *Handler) runTransition(w http.ResponseWriter, r *http.Request, op string,
	fn func(ctx context.Context, companyID, runID, actorID int64) error) {
	companyID, principal, ok := h.scope(w, r)
	if !ok {
		return
	}
	runID := pathID(r, "id")
	if err := fn(r.Context(), companyID, runID, principal.UserID); err != nil {
		h.respondErr(w, op, err)
		return
	}
	run, err := h.service.GetRun(r.Context(), companyID, runID)
	if err != nil {
		h.respondErr(w, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	run, err := h.service.GetRun(r.Context(), companyID, pathID(r, "id"))
	if err != nil {
		h.respondErr(w, "get close run", err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	companyID, _, ok := h.scope(w, r)
	if !ok {
		return
	}
	runs, err := h.service.ListRuns(r.Context(), companyID)
	if err != nil {
		h.respondErr(w, "list close runs", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"runs": runs})
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
	case errors.Is(err, ErrRunNotFound), errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrCompanyMismatch):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrRunExists),
		errors.Is(err, ErrRunNotActive),
		errors.Is(err, ErrChecklistIncomplete),
		errors.Is(err, ErrReopenForbidden),
		errors.Is(err, shared.ErrPeriodLocked),
		errors.Is(err, shared.ErrInvalidPeriod),
		errors.Is(err, shared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}
