package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/api/router"
	"github.com/wolfman30/booking-reminders/internal/app/bootstrap"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	appconfig "github.com/wolfman30/booking-reminders/internal/config"
	"github.com/wolfman30/booking-reminders/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/booking-reminders/internal/http/middleware"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("redis is required for reminder markers and rate limiting")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	engine, err := bootstrap.BuildEngine(cfg, bookings.NewPostgresRepository(pool), accounts.NewPostgresDirectory(pool), redisClient)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}

	metricsHandler, registry := setupMetrics()
	svc := bootstrap.BuildAppointmentService(cfg, engine, redisClient, registry, logger)

	routerCfg := &router.Config{
		Logger:       logger,
		Appointments: handlers.NewAppointmentsHandler(svc, engine.Translator, logger),
		Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
			"postgres": pool,
			"redis":    bootstrap.RedisPinger{Client: redisClient},
		}, registry),
		JWTSecret:          cfg.JWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.MetricsEnabled {
		routerCfg.MetricsHandler = metricsHandler
	}
	if cfg.RateLimitPerMinute > 0 {
		routerCfg.RateLimiter = httpmiddleware.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics returns the /metrics handler and the registry components
// register their collectors on.
func setupMetrics() (http.Handler, *prometheus.Registry) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), registry
}

func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		logger.Error("DATABASE_URL is required")
		return nil
	}
	pool, err := bootstrap.BuildPostgresPool(ctx, &appconfig.Config{DatabaseURL: url})
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		return nil
	}
	return pool
}
