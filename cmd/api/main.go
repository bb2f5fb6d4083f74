package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"notify-dispatch/internal/app"
	"notify-dispatch/internal/common/pagination"
	"notify-dispatch/internal/handler/http/middleware"
	"notify-dispatch/internal/observability/logging"
	"notify-dispatch/internal/observability/metrics"
	"notify-dispatch/internal/observability/tracing"
	"notify-dispatch/internal/usecase/analytics"
	"notify-dispatch/internal/usecase/notify"
	"notify-dispatch/pkg/config"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}

	logger := logging.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("api server failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := loadAPIConfig()
	if err != nil {
		return fmt.Errorf("load api configuration: %w", err)
	}
	corsCfg, err := middleware.LoadCORSConfig()
	if err != nil {
		return fmt.Errorf("load cors configuration: %w", err)
	}

	shutdownTracing := tracing.InitProvider(config.GetEnvFloat("TRACE_SAMPLE_RATIO", 0.1))
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to shut down tracing", slog.Any("error", err))
		}
	}()
	metrics.SetBuildInfo(version)

	core, err := app.New(ctx, logger, app.OptionsFromEnv(cfg.dispatcherConfig()))
	if err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if rlCfg := middleware.LoadRateLimitConfig(); rlCfg.Enabled {
		limiter = middleware.NewRateLimiter(rlCfg, time.Now)
	}

	handler := newRouter(logger, services{
		Notifications: notify.NewService(core.Dispatcher),
		Templates:     core.Templates,
		Preferences:   core.Preferences,
		Reports:       analytics.Reporter{Repo: core.AnalyticsRepo},
		Inbox:         core.Inbox,
	}, routeOptions{
		DB:           core.DB,
		Version:      version,
		JWTSecret:    []byte(cfg.JWTSecret),
		Pagination:   pagination.LoadFromEnv(),
		MaxBodyBytes: cfg.MaxBodyBytes,
		CORS:         corsCfg,
		RateLimiter:  limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       120 * time.Second,
		// Requests keep their own context on shutdown so in-flight
		// dispatches can finish.
		BaseContext: func(_ net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Addr),
			slog.String("version", version),
			slog.Bool("cors", corsCfg.Enabled()),
			slog.Bool("rate_limit", limiter != nil))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
	case runErr = <-serveErr:
		logger.Error("server failed", slog.Any("error", runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	if err := core.Close(shutdownCtx); err != nil {
		logger.Error("core shutdown failed", slog.Any("error", err))
	}
	logger.Info("server stopped")
	return runErr
}
