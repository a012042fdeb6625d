package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/autoservis/autoservis/internal/app"
	"github.com/autoservis/autoservis/internal/audit"
	"github.com/autoservis/autoservis/internal/auth"
	"github.com/autoservis/autoservis/internal/invoices"
	"github.com/autoservis/autoservis/internal/observability"
	"github.com/autoservis/autoservis/internal/platform/cache"
	"github.com/autoservis/autoservis/internal/platform/db"
	"github.com/autoservis/autoservis/internal/rbac"
	"github.com/autoservis/autoservis/internal/roles"
	"github.com/autoservis/autoservis/internal/stats"
	"github.com/autoservis/autoservis/internal/users"
	"github.com/autoservis/autoservis/internal/vehicles"
	"github.com/autoservis/autoservis/internal/workorders"
	"github.com/autoservis/autoservis/jobs"
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

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.Database("autoservis-api"))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	// Caches are optional; without Redis every read goes to Postgres.
	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	recorder := audit.NewRecorder(metrics)

	rbacService := rbac.NewService(rbac.NewRepository(dbpool), cache.NewVersioned(redisClient, "rbac", cfg.PermissionCacheTTL))
	rbacMiddleware := rbac.Middleware{Authorizer: rbacService, Logger: logger, Observer: metrics}

	tokens, err := auth.NewTokens(cfg.SessionSecret, nil)
	if err != nil {
		logger.Error("init tokens", slog.Any("error", err))
		os.Exit(1)
	}
	authConfig := auth.ServiceConfig{
		Repo:     auth.NewRepository(dbpool),
		Tokens:   tokens,
		Recorder: recorder,
		Logins:   metrics,
		TTL:      cfg.SessionTTL,
		Logger:   logger,
	}
	if redisClient != nil {
		authConfig.Cache = auth.NewRedisSessionCache(redisClient)
	}
	authService := auth.NewService(authConfig)

	usersService := users.NewService(users.NewRepository(dbpool), recorder, 0)
	rolesService := roles.NewService(roles.NewRepository(dbpool), recorder, rbacService, logger)
	vehiclesService := vehicles.NewService(vehicles.NewRepository(dbpool), recorder)
	workOrdersService := workorders.NewService(workorders.NewRepository(dbpool), recorder, cfg.TransitionPolicy())
	invoicesService := invoices.NewService(invoices.NewRepository(dbpool), recorder)
	auditService := audit.NewService(audit.NewRepository(dbpool))
	statsService := stats.NewService(stats.NewRepository(dbpool), cache.NewVersioned(redisClient, "stats", cfg.StatsCacheTTL))

	inspector := asynq.NewInspector(cfg.Asynq())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Metrics:            metrics,
		RequireSession:     auth.RequireSession(authService, logger),
		Database:           dbpool,
		AuthHandler:        auth.NewHandler(logger, authService),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		PermissionsHandler: rbac.NewPermissionsHandler(rbacService, logger),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		VehiclesHandler:    vehicles.NewHandler(logger, vehiclesService, rbacMiddleware),
		WorkOrdersHandler:  workorders.NewHandler(logger, workOrdersService, rbacMiddleware),
		InvoicesHandler:    invoices.NewHandler(logger, invoicesService, rbacMiddleware),
		AuditHandler:       audit.NewHandler(logger, auditService),
		StatsHandler:       stats.NewHandler(logger, statsService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("transition_policy", string(cfg.TransitionPolicy())))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
