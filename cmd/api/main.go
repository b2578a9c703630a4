package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/intake-agent/internal/api/router"
	"github.com/wolfman30/intake-agent/internal/app/bootstrap"
	appconfig "github.com/wolfman30/intake-agent/internal/config"
	"github.com/wolfman30/intake-agent/internal/conversation"
	httpmiddleware "github.com/wolfman30/intake-agent/internal/http/middleware"
	"github.com/wolfman30/intake-agent/internal/observability/metrics"
	"github.com/wolfman30/intake-agent/internal/webchat"
	"github.com/wolfman30/intake-agent/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting intake-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"llm_provider", cfg.LLMProvider,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

func run(cfg *appconfig.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsHandler, intakeMetrics := setupMetrics()

	awsCfg, err := bootstrap.LoadAWS(ctx, cfg)
	if err != nil {
		return err
	}
	oracle, err := bootstrap.BuildOracle(ctx, cfg, awsCfg, intakeMetrics, logger)
	if err != nil {
		return err
	}

	store, redisClient := bootstrap.BuildSessionStore(ctx, cfg, intakeMetrics, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	pool := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		defer pool.Close()
	}

	service, err := bootstrap.BuildConversationService(cfg, bootstrap.ConversationDeps{
		Oracle:  oracle,
		Store:   store,
		Sink:    bootstrap.BuildBookingSink(cfg, awsCfg, pool, logger),
		Metrics: intakeMetrics,
	}, logger)
	if err != nil {
		return err
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer limiter.Close()

	handler := router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(service, logger),
		WebChatHandler:      webchat.NewHandler(service, cfg.CORSAllowedOrigins, logger),
		AdvisoryHandler:     bootstrap.BuildAdvisoryHandler(cfg, intakeMetrics, logger),
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
		OperatorJWTSecret:   cfg.OperatorJWTSecret,
	})

	return serve(ctx, newServer(cfg.Port, handler), logger)
}

// setupMetrics registers the intake collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.IntakeMetrics) {
	reg := prometheus.NewRegistry()
	m := metrics.NewIntakeMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func newServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: a turn can wait on several oracle calls and
		// websocket connections stay open.
		IdleTimeout: 60 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, logger *logging.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("api: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
