package fx

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
)

// Handler exposes exchange rate endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rbac     rbac.Middleware
	validate *validator.Validate
}

// NewHandler constructs the fx handler.
func NewHandler(logger *slog.Logger, service *Service, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: mw, validate: validator.New()}
}

// MountRoutes registers fx routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("fx.view"))
		r.Get("/rates", h.history)
		r.Get("/rates/effective", h.effective)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll("fx.manage"))
		r.Put("/rates", h.setRate)
	})
}

type rateRequest struct {
	From     string `json:"from" validate:"required,len=3"`
	To       string `json:"to" validate:"required,len=3"`
	Rate     string `json:"rate" validate:"required"`
	RateDate string `json:"rate_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) setRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ValidationProblem(w, err)
		return
	}
	value, err := decimal.NewFromString(req.Rate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "rate must be a decimal string")
		return
	}
	var rateDate time.Time
	if req.RateDate != "" {
		rateDate, _ = time.Parse("2006-01-02", req.RateDate)
	}
	rate, err := h.service.SetRate(r.Context(), ExchangeRate{
		FromCode: req.From,
		ToCode:   req.To,
		Rate:     value,
		RateDate: rateDate,
	})
	if err != nil {
		h.logger.Error("set rate", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, rate)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "from and to query parameters required")
		return
	}
	rates, err := h.service.History(r.Context(), from, to, 0)
	if err != nil {
		h.logger.Error("rate history", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rates": rates})
}

func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	onDate := time.Now().UTC()
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "date must be YYYY-MM-DD")
			return
		}
		onDate = parsed
	}
	rate, err := h.service.RateOn(r.Context(), from, to, onDate)
	if err != nil {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no rate for pair on date")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"from": from, "to": to, "date": onDate.Format("2006-01-02"), "rate": rate,
	})
}
