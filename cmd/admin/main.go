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

	"github.com/autobid/autobid-admin/internal/app"
	"github.com/autobid/autobid-admin/internal/auctions"
	"github.com/autobid/autobid-admin/internal/audit"
	audithttp "github.com/autobid/autobid-admin/internal/audit/http"
	"github.com/autobid/autobid-admin/internal/auth"
	"github.com/autobid/autobid-admin/internal/console"
	"github.com/autobid/autobid-admin/internal/dashboard"
	"github.com/autobid/autobid-admin/internal/monitor"
	"github.com/autobid/autobid-admin/internal/observability"
	"github.com/autobid/autobid-admin/internal/platform/cache"
	"github.com/autobid/autobid-admin/internal/platform/db"
	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/realtime"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/internal/view"
	"github.com/autobid/autobid-admin/jobs"
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
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxConnIdle})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	routes := rbac.DefaultRouteMap(cfg.RoutePolicy())
	templates, err := view.NewEngine(routes)
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	tokens := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	authHandler := auth.NewHandler(logger, authService, tokens, templates, sessionManager, csrfManager)
	resolver := auth.NewCachedResolver(auth.NewSessionResolver(tokens, authService))

	rbacMiddleware := rbac.Middleware{
		Resolver: resolver,
		Routes:   routes,
		Logger:   logger,
		Observer: metrics,
	}

	hub := realtime.NewHub()
	listener := realtime.NewListener(dbpool, hub, logger, monitor.ChangeTopic)
	go func() {
		if err := listener.Run(ctx); err != nil {
			logger.Error("realtime listener stopped", slog.Any("error", err))
		}
	}()

	auctionCache := auctions.NewCache(redisClient, cfg.MonitorCacheTTL, logger)
	// Bumps from other console instances reach local viewers through the hub.
	if err := auctionCache.Subscribe(ctx, func() {
		hub.Publish(realtime.Notification{Topic: monitor.ChangeTopic, Payload: auctions.ChangedChannel})
	}); err != nil {
		logger.Warn("subscribe monitoring changes", slog.Any("error", err))
	}
	auctionRepo := auctions.NewRepository(dbpool)
	auctionService := auctions.NewService(auctionRepo, auctionCache, logger)
	auctionsHandler := auctions.NewHandler(logger, auctionService, templates, csrfManager)
	streamHandler := monitor.NewStreamHandler(logger, auctionService, hub, cfg.MonitorRefreshInterval, metrics, cfg.WSAllowedOrigins)

	dashboardRepo := dashboard.NewRepository(dbpool)
	dashboardHandler := dashboard.NewHandler(logger, dashboard.NewService(dashboardRepo), templates, csrfManager, routes)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, templates, audit.NewExporter(), csrfManager)

	consoleHandler := console.NewHandler(logger, templates, csrfManager, routes)

	queueOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(queueOpts)
	jobClient := jobs.NewClient(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		RBACMiddleware:   rbacMiddleware,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		AuctionsHandler:  auctionsHandler,
		StreamHandler:    streamHandler,
		AuditHandler:     auditHandler,
		ConsoleHandler:   consoleHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
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
