package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"compliance-monitor/internal/bus"
	"compliance-monitor/internal/config"
	"compliance-monitor/internal/logging"
	"compliance-monitor/internal/metrics"
	"compliance-monitor/internal/scheduler"
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
	if err := cfg.Validate(config.RoleWorker); err != nil {
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

	sources, err := scheduler.LoadSources(cfg.SourcesPath)
	if err != nil {
		logger.Error("failed to load sources", slog.String("error", err.Error()))
		os.Exit(1)
	}

	reg := scheduler.NewRegistry(repo, publisher, scheduler.Options{
		Workers:    cfg.WorkerCount,
		JobTimeout: cfg.JobTimeout,
		Metrics:    metrics.NewRefresh(prometheus.DefaultRegisterer),
		Logger:     logger,
	})
	defer reg.Stop()
	reg.Reload(sources.Enabled())
	if err := reg.Trigger(""); err != nil {
		logger.Warn("initial refresh not queued", slog.String("error", err.Error()))
	}

	if _, err := bus.Subscribe(subscriber, bus.SubjectRefreshRequested, func(req bus.RefreshRequest) {
		if err := reg.Trigger(req.Source); err != nil {
			logger.Warn("refresh request rejected",
				slog.String("request_id", req.RequestID),
				slog.String("source", req.Source),
				slog.String("error", err.Error()))
			return
		}
		logger.Info("refresh requested",
			slog.String("request_id", req.RequestID),
			slog.String("source", req.Source),
			slog.String("requested_by", req.RequestedBy))
	}); err != nil {
		logger.Error("failed to subscribe", slog.String("subject", bus.SubjectRefreshRequested), slog.String("error", err.Error()))
		os.Exit(1)
	}

	admin := &http.Server{
		Addr:              cfg.AdminListenAddr,
		Handler:           adminHandler(reg, cfg.SourcesPath, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	go func() {
		logger.Info("worker admin server listening", slog.String("addr", cfg.AdminListenAddr))
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", slog.String("error", err.Error()))
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = admin.Shutdown(shutdownCtx)
}

type jobRegistry interface {
	ListJobs() []scheduler.JobInfo
	Reload(sources []scheduler.Source)
	Trigger(name string) error
}

// adminHandler serves metrics and health next to the job controls.
func adminHandler(reg jobRegistry, sourcesPath string, logger *slog.Logger) http.Handler {
	mux := metrics.NewMux(prometheus.DefaultGatherer)
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, reg.ListJobs())
	})
	mux.HandleFunc("/jobs/reload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		sources, err := scheduler.LoadSources(sourcesPath)
		if err != nil {
			logger.Error("sources reload failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		reg.Reload(sources.Enabled())
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sources": len(sources.Enabled())})
	})
	mux.HandleFunc("/jobs/trigger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		source := r.URL.Query().Get("source")
		if err := reg.Trigger(source); err != nil {
			status := http.StatusInternalServerError
			switch {
			case errors.Is(err, scheduler.ErrUnknownSource):
				status = http.StatusNotFound
			case errors.Is(err, scheduler.ErrQueueFull):
				status = http.StatusServiceUnavailable
			}
			writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "source": source})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
