package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/app"
	"github.com/sheetdesk/sheetdesk/internal/auth"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
	"github.com/sheetdesk/sheetdesk/internal/observability"
	"github.com/sheetdesk/sheetdesk/internal/platform/cache"
	"github.com/sheetdesk/sheetdesk/internal/shared"
	"github.com/sheetdesk/sheetdesk/internal/sheets"
	"github.com/sheetdesk/sheetdesk/internal/subscribers"
	"github.com/sheetdesk/sheetdesk/internal/view"
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

	logger := app.NewLogger(cfg.LogFormat, cfg.LogLevel)

	redisClient, err := cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "sheetdesk_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	api := apiclient.New(cfg.APIBaseURL, apiclient.WithTimeout(cfg.APITimeout))
	metrics := observability.NewMetrics("sheetdesk")

	authService := auth.NewService(api)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	sheetsService := sheets.NewService(cache.NewJSON(redisClient, "sheetdesk:dashboard", cfg.DashboardTTL))
	sheetsHandler := sheets.NewHandler(logger, sheetsService, api, templates, csrfManager)

	lists := listing.NewRegistry[domain.Subscriber, int64](cfg.ListIdleTTL)
	go lists.Run(ctx, cfg.ListSweep)

	optionsService := subscribers.NewOptionsService(logger, cache.NewJSON(redisClient, "sheetdesk:options", cfg.OptionsCacheTTL))
	subscribersHandler := subscribers.NewHandler(subscribers.HandlerParams{
		Logger:    logger,
		API:       api,
		Templates: templates,
		CSRF:      csrfManager,
		Lists:     lists,
		Options:   optionsService,
		Reporter:  observability.NewListReporter(logger, metrics),
		Dashboard: sheetsService,
		PageSize:  cfg.ListPageSize,
	})
	authHandler.OnLogout(subscribersHandler.DropSession)

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		AuthHandler:        authHandler,
		SheetsHandler:      sheetsHandler,
		SubscribersHandler: subscribersHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("api", cfg.APIBaseURL))
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
