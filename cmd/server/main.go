package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"compliance-monitor/internal/api"
	"compliance-monitor/internal/bus"
	"compliance-monitor/internal/catalog"
	"compliance-monitor/internal/compliance"
	"compliance-monitor/internal/config"
	"compliance-monitor/internal/logging"
	"compliance-monitor/internal/metrics"
	"compliance-monitor/internal/service"
	"compliance-monitor/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	if err := cfg.Validate(config.RoleServer); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to db", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()
	repo := storage.NewRepository(store)
	metrics.RegisterPgxPoolMetrics(prometheus.DefaultRegisterer, store.Pool)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load rule catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := repo.UpsertRules(ctx, cat.Rules); err != nil {
		logger.Error("failed to store rule catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("rule catalog loaded", slog.Int("rules", len(cat.Rules)))

	publisher, err := bus.NewPublisher(cfg.NATSURL)
	if err != nil {
		logger.Error("failed to connect to nats", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer publisher.Close()
	subscriber, err := bus.NewSubscriber(cfg.NATSURL, logger)
	if err != nil {
		logger.Error("failed to connect to nats", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer subscriber.Close()

	generator := compliance.NewGenerator()
	generator.DefaultStatementTimeout = int64(cfg.DefaultStatementTimeoutSeconds)
	generator.SnapshotSchema = cfg.SnapshotSchema
	svc := service.New(repo, publisher, service.Options{
		Evaluator: compliance.NewEvaluator(cat.Applicability),
		Generator: generator,
		Metrics:   metrics.NewCompliance(prometheus.DefaultRegisterer),
		Logger:    logger,
	})

	recompute := func(reason string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := svc.Recompute(ctx); err != nil {
			logger.Error("compliance recompute failed", slog.String("reason", reason), slog.String("error", err.Error()))
		}
	}
	if _, err := bus.Subscribe(subscriber, bus.SubjectInventoryRefreshed, func(evt bus.InventoryRefreshed) {
		if evt.Status != storage.RunStatusSucceeded {
			return
		}
		recompute("inventory refreshed: " + evt.Source)
	}); err != nil {
		logger.Error("failed to subscribe", slog.String("subject", bus.SubjectInventoryRefreshed), slog.String("error", err.Error()))
		os.Exit(1)
	}
	go recompute("startup")

	handler := &api.Handler{
		Service: svc,
		Timeout: cfg.RequestTimeout,
		Logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(2 * cfg.RequestTimeout))

	r.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         cfg.HTTPListenAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	logger.Info("compliance server listening", slog.String("addr", cfg.HTTPListenAddr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", slog.String("error", err.Error()))
	}
}
