package main

import (
	"log/slog"
	"os"

	"compliance-monitor/internal/config"
	"compliance-monitor/internal/logging"
	"compliance-monitor/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(config.RoleMigrate); err != nil {
		logger.Error("invalid config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}
	switch command {
	case "up":
		if err := migrations.Up(cfg.DatabaseURL); err != nil {
			logger.Error("failed to apply migrations", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("migrations applied")
	case "status":
		if err := migrations.Status(cfg.DatabaseURL); err != nil {
			logger.Error("failed to read migration status", slog.String("error", err.Error()))
			os.Exit(1)
		}
	default:
		logger.Error("unknown command, expected up or status", slog.String("command", command))
		os.Exit(2)
	}
}
