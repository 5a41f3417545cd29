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
	"golang.org/x/sync/errgroup"

	"github.com/vialibre/vialibre/internal/app"
	"github.com/vialibre/vialibre/internal/audit"
	"github.com/vialibre/vialibre/internal/auth"
	"github.com/vialibre/vialibre/internal/booking"
	"github.com/vialibre/vialibre/internal/gps"
	"github.com/vialibre/vialibre/internal/observability"
	"github.com/vialibre/vialibre/internal/platform/cache"
	"github.com/vialibre/vialibre/internal/platform/db"
	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/roles"
	"github.com/vialibre/vialibre/internal/shared"
	"github.com/vialibre/vialibre/internal/transit"
	"github.com/vialibre/vialibre/internal/users"
	"github.com/vialibre/vialibre/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
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

	sessionManager := shared.NewSessionManager(redisClient, "vialibre_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	auditService := audit.NewService(audit.NewRepository(pool), logger)
	auditHandler := audit.NewHandler(auditService)

	rbacStore := rbac.NewPGStore(pool)
	evaluator := rbac.NewEvaluator(rbacStore)
	gate := rbac.Gate{Evaluator: evaluator, Resolver: rbacStore, Logger: logger, Metrics: metrics}
	rbacService := rbac.NewService(pool)
	rbacHandler := rbac.NewHandler(logger, rbacService, auditService)

	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, auditService)

	rolesService := roles.NewService(roles.NewRepository(pool))
	rolesHandler := roles.NewHandler(logger, rolesService, auditService)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	resetTokens := auth.NewResetTokenStore(redisClient, cfg.ResetTokenTTL)
	authService := auth.NewService(logger, usersRepo, usersService, resetTokens, jobsClient)
	authHandler := auth.NewHandler(logger, authService, usersService, sessionManager, csrfManager, auditService)

	transitService := transit.NewService(transit.NewRepository(pool))
	transitHandler := transit.NewHandler(logger, transitService, auditService)

	bookingService := booking.NewService(booking.NewRepository(pool))
	bookingHandler := booking.NewHandler(logger, bookingService, auditService)

	gpsService := gps.NewService(logger, gps.NewRepository(pool))
	gpsHandler := gps.NewHandler(logger, gpsService, auditService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		Gate:           gate,
		AuthHandler:    authHandler,
		UsersHandler:   usersHandler,
		RolesHandler:   rolesHandler,
		RBACHandler:    rbacHandler,
		AuditHandler:   auditHandler,
		TransitHandler: transitHandler,
		BookingHandler: bookingHandler,
		GPSHandler:     gpsHandler,
		JobHandler:     jobHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
