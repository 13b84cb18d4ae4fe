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

	"github.com/transitops/transitops/internal/app"
	"github.com/transitops/transitops/internal/gateway"
	"github.com/transitops/transitops/internal/metrics"
	metricshttp "github.com/transitops/transitops/internal/metrics/http"
	"github.com/transitops/transitops/internal/observability"
	"github.com/transitops/transitops/internal/platform/cache"
	"github.com/transitops/transitops/jobs"
)

// cacheBumper pairs a manual cache invalidation with a queued warmup so the
// next dashboard view does not pay the cold-cache cost.
type cacheBumper struct {
	cache      *metrics.Cache
	jobs       *jobs.Client
	windowDays int
	logger     *slog.Logger
}

func (b *cacheBumper) Bump(ctx context.Context) error {
	if err := b.cache.Bump(ctx); err != nil {
		return err
	}
	if _, err := b.jobs.EnqueueDashboardWarmup(ctx, b.windowDays); err != nil {
		b.logger.Warn("enqueue warmup after bump", slog.Any("error", err))
	}
	return nil
}

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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	gatewayClient := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewayToken, cfg.GatewayTimeout)
	if err := gatewayClient.Ping(ctx); err != nil {
		logger.Warn("gateway ping", slog.Any("error", err))
	}

	obs := observability.NewMetrics()

	dashboardCache := metrics.NewCache(redisClient, cfg.CacheTTL).
		WithLookupObserver(obs.ObserveCacheLookup)
	if err := dashboardCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	dashboardService := metrics.NewService(gatewayClient, dashboardCache, logger)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	bumper := &cacheBumper{
		cache:      dashboardCache,
		jobs:       jobClient,
		windowDays: cfg.WarmupWindowDays,
		logger:     logger,
	}
	dashboardHandler := metricshttp.NewHandler(logger, dashboardService, bumper)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboardHandler,
		JobHandler:       jobHandler,
		Metrics:          obs,
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
