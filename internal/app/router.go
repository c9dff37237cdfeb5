package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	closepkg "github.com/meridian-erp/meridian-erp/internal/accounting/close"
	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shipments"
	"github.com/meridian-erp/meridian-erp/internal/vouchers"
	"github.com/meridian-erp/meridian-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	AuthService *auth.Service

	AuthHandler        *auth.Handler
	RBACHandler        *rbac.Handler
	MasterDataHandler  *masterdata.Handler
	AccountsHandler    *accounts.Handler
	PeriodsHandler     *periods.Handler
	CloseHandler       *closepkg.Handler
	JournalsHandler    *journals.Handler
	FXHandler          *fx.Handler
	VouchersHandler    *vouchers.Handler
	ShipmentsHandler   *shipments.Handler
	ProcurementHandler *procurement.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi router. Everything under /api/v1 except login
// and refresh requires a bearer token; company scope comes from the
// X-Company-ID header.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthService.Authenticator)
			r.Use(auth.CompanyContext)

			r.Route("/rbac", params.RBACHandler.MountRoutes)
			r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
			r.Route("/periods", params.PeriodsHandler.MountRoutes)
			r.Route("/close", params.CloseHandler.MountRoutes)
			r.Route("/journals", params.JournalsHandler.MountRoutes)
			r.Route("/fx", params.FXHandler.MountRoutes)
			r.Route("/vouchers", params.VouchersHandler.MountRoutes)
			r.Route("/shipments", params.ShipmentsHandler.MountRoutes)
			r.Route("/procurement", params.ProcurementHandler.MountRoutes)
			r.Route("/audit", params.AuditHandler.MountRoutes)
			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}
