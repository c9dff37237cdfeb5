package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/export"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	internalShared "github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes read-only audit endpoints.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
	rbac   rbac.Middleware
}

// NewHandler constructs the audit handler.
func NewHandler(logger *slog.Logger, repo *Repository, mw rbac.Middleware) *Handler {
	return &Handler{logger: logger, repo: repo, rbac: mw}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny("audit.view"))
		r.Get("/", h.list)
		r.Get("/export.csv", h.exportCSV)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	f := filters(r)
	entries, total, err := h.repo.List(r.Context(), companyID, f)
	if err != nil {
		h.logger.Error("list audit", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": internalShared.NewPagination(f.Page, f.PerPage, total),
	})
}

const exportPageSize = 500

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	companyID := internalShared.CompanyFromContext(r.Context())
	if companyID == 0 {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "active company scope required")
		return
	}
	f := filters(r)
	f.Page = 1
	f.PerPage = exportPageSize

	streamer := export.NewCSVStreamer(w, "audit.csv")
	if err := streamer.Write([]string{"occurred_at", "actor_id", "action", "entity", "entity_id", "meta"}); err != nil {
		return
	}
	for {
		entries, total, err := h.repo.List(r.Context(), companyID, f)
		if err != nil {
			h.logger.Error("export audit", slog.Any("error", err))
			return
		}
		for _, e := range entries {
			meta := ""
			if e.Meta != nil {
				raw, _ := json.Marshal(e.Meta)
				meta = string(raw)
			}
			record := []string{
				e.OccurredAt.UTC().Format(time.RFC3339),
				strconv.FormatInt(e.ActorID, 10),
				e.Action,
				e.Entity,
				e.EntityID,
				meta,
			}
			if err := streamer.Write(record); err != nil {
				return
			}
		}
		if f.Page*f.PerPage >= total || len(entries) == 0 {
			break
		}
		f.Page++
	}
	_ = streamer.Close()
}

func filters(r *http.Request) ListFilters {
	page, perPage := internalShared.PageParams(r)
	f := ListFilters{
		Page:     page,
		PerPage:  perPage,
		Action:   r.URL.Query().Get("action"),
		Entity:   r.URL.Query().Get("entity"),
		EntityID: r.URL.Query().Get("entity_id"),
	}
	if raw := r.URL.Query().Get("actor_id"); raw != "" {
		f.ActorID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			f.From = &parsed
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if parsed, err := time.Parse("2006-01-02", raw); err == nil {
			end := parsed.Add(24*time.Hour - time.Nanosecond)
			f.To = &end
		}
	}
	return f
}
