package periods

import (
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

// Handler exposes fiscal year and period endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the periods handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("periods.view"))
		r.Get("/years", h.listYears)
		r.Get("/years/{yearID}/periods", h.listPeriods)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("periods.manage"))
		r.Post("/years", h.generateYear)
	})
}

type generateYearRequest struct {
	Year int `json:"year" validate:"required,min=1990,max=2100"`
}

func (h *Handler) generateYear(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	var req generateYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	year, createdPeriods, err := h.service.GenerateYear(r.Context(), companyID, req.Year)
	if err != nil {
		if errors.Is(err, ErrYearExists) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("generate fiscal year", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"fiscal_year": year, "periods": createdPeriods})
}

func (h *Handler) listYears(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	years, err := h.service.ListYears(r.Context(), companyID)
	if err != nil {
		h.logger.Error("list fiscal years", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_years": years})
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	yearID, _ := strconv.ParseInt(chi.URLParam(r, "yearID"), 10, 64)
	list, err := h.service.ListPeriods(r.Context(), companyID, yearID)
	if err != nil {
		h.logger.Error("list periods", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	period, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidPeriod) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "period not found")
			return
		}
		h.logger.Error("get period", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if companyID != 0 && period.CompanyID != companyID {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "period outside company scope")
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}
