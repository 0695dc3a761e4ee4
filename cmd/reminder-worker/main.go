package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/api/router"
	"github.com/wolfman30/booking-reminders/internal/app/bootstrap"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/config"
	"github.com/wolfman30/booking-reminders/internal/http/handlers"
	"github.com/wolfman30/booking-reminders/internal/notify"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		logger.Error("reminder worker requires REDIS_ADDR")
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	engine, err := bootstrap.BuildEngine(cfg, bookings.NewPostgresRepository(pool), accounts.NewPostgresDirectory(pool), redisClient)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	deliverer, err := bootstrap.BuildDeliverer(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build deliverer", "error", err)
		os.Exit(1)
	}

	var recorder notify.Recorder
	if auditDB, err := bootstrap.BuildAuditDB(cfg); err != nil {
		logger.Warn("delivery audit disabled", "error", err)
	} else {
		defer func() { _ = auditDB.Close() }()
		recorder = notify.NewAuditLog(auditDB)
	}

	registry := prometheus.NewRegistry()
	sweeper := bootstrap.BuildSweeper(cfg, engine, deliverer, recorder, registry, logger)

	ops := &http.Server{
		Addr: ":" + cfg.MetricsPort,
		Handler: router.NewOps(&router.Config{
			Health: handlers.NewHealthHandler(map[string]handlers.Pinger{
				"postgres": pool,
				"redis":    bootstrap.RedisPinger{Client: redisClient},
			}, registry),
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()
	logger.Info("reminder worker started",
		"transport", deliverer.Channel(),
		"day_ahead_period", cfg.DayAheadSweepPeriod,
		"hours_ahead_period", cfg.HoursAheadSweepPeriod,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("reminder worker shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = ops.Shutdown(shutdownCtx)
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("sweeps did not stop before shutdown deadline")
	}
}
