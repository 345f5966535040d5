package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	RoleServer  = "server"
	RoleWorker  = "worker"
	RoleMigrate = "migrate"
)

type Config struct {
	HTTPListenAddr  string
	AdminListenAddr string
	DatabaseURL     string
	NATSURL         string
	LogLevel        string
	// LogFormat is json or text.
	LogFormat string
	// CatalogPath points at a rule catalog YAML file. The embedded default
	// catalog is used when empty.
	CatalogPath string
	SourcesPath string
	// SnapshotSchema is the schema named in generated snapshot UPDATE statements.
	SnapshotSchema                 string
	DefaultStatementTimeoutSeconds int
	WorkerCount                    int
	JobTimeout                     time.Duration
	RequestTimeout                 time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPListenAddr:                 getEnv("HTTP_LISTEN_ADDR", ":8090"),
		AdminListenAddr:                getEnv("ADMIN_LISTEN_ADDR", ":8091"),
		DatabaseURL:                    getEnv("DATABASE_URL", ""),
		NATSURL:                        getEnv("NATS_URL", "nats://localhost:4222"),
		LogLevel:                       getEnv("LOG_LEVEL", "info"),
		LogFormat:                      getEnv("LOG_FORMAT", "json"),
		CatalogPath:                    getEnv("CATALOG_PATH", ""),
		SourcesPath:                    getEnv("SOURCES_PATH", ""),
		SnapshotSchema:                 getEnv("SNAPSHOT_SCHEMA", "data_schema"),
		DefaultStatementTimeoutSeconds: getEnvInt("DEFAULT_STATEMENT_TIMEOUT_SECONDS", 14400),
		WorkerCount:                    getEnvInt("WORKER_COUNT", 4),
		JobTimeout:                     time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 60)) * time.Second,
		RequestTimeout:                 time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 5)) * time.Second,
	}
	if cfg.WorkerCount <= 0 {
		return nil, fmt.Errorf("WORKER_COUNT must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.DefaultStatementTimeoutSeconds < 0 {
		return nil, fmt.Errorf("DEFAULT_STATEMENT_TIMEOUT_SECONDS must not be negative")
	}
	return cfg, nil
}

// Validate checks the settings a binary needs before it starts.
func (c *Config) Validate(role string) error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	switch role {
	case RoleServer:
		if c.HTTPListenAddr == "" {
			missing = append(missing, "HTTP_LISTEN_ADDR")
		}
		if c.NATSURL == "" {
			missing = append(missing, "NATS_URL")
		}
	case RoleWorker:
		if c.NATSURL == "" {
			missing = append(missing, "NATS_URL")
		}
		if c.SourcesPath == "" {
			missing = append(missing, "SOURCES_PATH")
		}
		if c.AdminListenAddr == "" {
			missing = append(missing, "ADMIN_LISTEN_ADDR")
		}
	case RoleMigrate:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}
	return fallback
}
