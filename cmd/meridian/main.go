package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian-erp/internal/accounting/accounts"
	closepkg "github.com/meridian-erp/meridian-erp/internal/accounting/close"
	"github.com/meridian-erp/meridian-erp/internal/accounting/fx"
	"github.com/meridian-erp/meridian-erp/internal/accounting/journals"
	"github.com/meridian-erp/meridian-erp/internal/accounting/periods"
	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/rbac"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/shipments"
	"github.com/meridian-erp/meridian-erp/internal/vouchers"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{
		MaxConns:        cfg.PGMaxConns,
		MaxConnLifetime: cfg.PGConnLifetime,
	})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	// Auth
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTTL)
	authService := auth.NewService(auth.NewRepository(pool), issuer, redisClient, cfg.RefreshTTL)
	authHandler := auth.NewHandler(logger, authService)

	// RBAC
	rbacService := rbac.NewService(pool)
	rbacMiddleware := rbac.Middleware{Source: rbacService, Logger: logger}
	rbacHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	// Master data
	masterdataService := masterdata.NewService(masterdata.NewRepository(pool))
	masterdataHandler := masterdata.NewHandler(logger, masterdataService, rbacMiddleware)

	// Accounting
	accountsService := accounts.NewService(accounts.NewRepository(pool), auditLogger)
	accountsHandler := accounts.NewHandler(logger, accountsService, rbacMiddleware)

	periodsRepo := periods.NewRepository(pool)
	periodsService := periods.NewService(periodsRepo)
	periodsHandler := periods.NewHandler(logger, periodsService, rbacMiddleware)

	closeService := closepkg.NewService(closepkg.NewRepository(pool), periodsRepo, auditLogger, logger)
	closeHandler := closepkg.NewHandler(logger, closeService, rbacMiddleware)

	journalsService := journals.NewService(journals.NewRepository(pool), auditLogger, logger)
	journalsService.WithMetrics(metrics)
	journalsHandler := journals.NewHandler(logger, journalsService, rbacMiddleware)

	fxService := fx.NewService(fx.NewRepository(pool))
	fxHandler := fx.NewHandler(logger, fxService, rbacMiddleware)

	// Documents
	vouchersService := vouchers.NewService(vouchers.NewRepository(pool), journalsService, periodsRepo, idempotency, auditLogger, logger)
	vouchersHandler := vouchers.NewHandler(logger, vouchersService, rbacMiddleware)

	shipmentsService := shipments.NewService(shipments.NewRepository(pool), journalsService, periodsRepo, auditLogger, logger)
	shipmentsHandler := shipments.NewHandler(logger, shipmentsService, rbacMiddleware)

	procurementService := procurement.NewService(procurement.NewRepository(pool), journalsService, periodsRepo, masterdataService, auditLogger, logger)
	procurementHandler := procurement.NewHandler(logger, procurementService, rbacMiddleware)

	auditHandler := audit.NewHandler(logger, audit.NewRepository(pool), rbacMiddleware)

	// Job observability endpoint.
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		AuthService:        authService,
		AuthHandler:        authHandler,
		RBACHandler:        rbacHandler,
		MasterDataHandler:  masterdataHandler,
		AccountsHandler:    accountsHandler,
		PeriodsHandler:     periodsHandler,
		CloseHandler:       closeHandler,
		JournalsHandler:    journalsHandler,
		FXHandler:          fxHandler,
		VouchersHandler:    vouchersHandler,
		ShipmentsHandler:   shipmentsHandler,
		ProcurementHandler: procurementHandler,
		AuditHandler:       auditHandler,
		JobHandler:         jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}
