// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/ammerola/stockroom/internal/bootstrap"
	"github.com/ammerola/stockroom/internal/handlers"
	"github.com/ammerola/stockroom/internal/handlers/middleware"
	"github.com/ammerola/stockroom/internal/pkg/config"
	"github.com/ammerola/stockroom/internal/pkg/logger"
)

// Build information injected at compile time
var (
	Version   = "dev"
	BuildTime = "unknown"
	GoVersion = "unknown"
)

func main() {
	slogger := logger.SetupLogger("debug", "json")

	slogger.Info("starting stockroom API",
		slog.String("version", Version),
		slog.String("build_time", BuildTime),
		slog.String("go_version", GoVersion),
	)

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Reconfigure logger with loaded settings
	slogger = logger.SetupLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	slogger.Info("configuration loaded",
		slog.String("environment", cfg.App.Environment),
		slog.String("log_level", cfg.App.LogLevel),
	)

	ctx := context.Background()

	app, err := newApplication(ctx, cfg, slogger)
	if err != nil {
		slogger.Error("failed to initialize dependencies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer app.cleanup()

	server := setupHTTPServer(cfg, app.router, slogger)

	serverErrors := make(chan error, 1)
	go func() {
		slogger.Info("starting HTTP server", slog.String("address", cfg.GetServerAddress()))
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("server error", slog.String("error", err.Error()))
		}
	case sig := <-shutdown:
		slogger.Info("shutdown signal received",
			slog.String("signal", sig.String()),
		)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
			server.Close()
		}

		slogger.Info("server shutdown complete")
	}
}

// application holds everything the HTTP server needs
type application struct {
	deps           *bootstrap.Dependencies
	asynqClient    *asynq.Client
	asynqInspector *asynq.Inspector
	router         *handlers.Router
}

func (a *application) cleanup() {
	if a.asynqClient != nil {
		a.asynqClient.Close()
	}
	if a.asynqInspector != nil {
		a.asynqInspector.Close()
	}
	a.deps.Close()
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	deps, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &application{deps: deps}

	service := bootstrap.NewInventoryService(cfg, deps, logger)
	router := &handlers.Router{
		Inventory: handlers.NewInventoryHandler(service, int64(cfg.Inventory.MaxAssetSizeMB)<<20, logger),
		Export:    handlers.NewExportHandler(service, logger),
	}

	// Only set when enabled; a typed nil would read as a configured inspector.
	var queues handlers.QueueInspector
	if cfg.Asynq.Enabled {
		logger.Info("initializing Asynq client")
		redisOpt := bootstrap.AsynqRedisOpt(cfg)
		app.asynqClient = asynq.NewClient(redisOpt)
		app.asynqInspector = asynq.NewInspector(redisOpt)
		queues = app.asynqInspector

		router.Import = handlers.NewImportHandler(
			app.asynqClient,
			app.asynqInspector,
			logger,
			int64(cfg.Inventory.ImportMaxSizeMB)<<20,
			cfg.Inventory.UploadDir,
		)
	}

	router.Health = handlers.NewHealthHandler(
		deps.BaseRecords,
		deps.Redis,
		queues,
		cfg.App.Version,
		cfg.App.Environment,
		logger,
	)

	if deps.LocalAssets != nil {
		router.Assets = handlers.NewAssetHandler(deps.LocalAssets.Root(), logger)
		router.AssetsPath = deps.LocalAssets.URLPath()
	}

	app.router = router
	logger.Info("all dependencies initialized successfully")
	return app, nil
}

func setupHTTPServer(cfg *config.Config, router *handlers.Router, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	router.Register(mux)

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.Recovery(logger),
	}
	if cfg.Security.RateLimitRequests > 0 {
		mws = append(mws, middleware.RateLimit(cfg.Security.RateLimitRequests, cfg.Security.RateLimitDuration))
	}
	if len(cfg.Security.AllowedOrigins) > 0 {
		mws = append(mws, middleware.CORS(cfg.Security.AllowedOrigins))
	}
	if cfg.Security.SecureHeaders {
		mws = append(mws, middleware.SecureHeaders)
	}
	mws = append(mws, middleware.Compression)
	if cfg.Server.RequestTimeout > 0 {
		mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))
	}

	return &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        middleware.Chain(mux, mws...),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}
}
