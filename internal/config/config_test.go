package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_LISTEN_ADDR", "ADMIN_LISTEN_ADDR", "DATABASE_URL", "NATS_URL", "LOG_LEVEL", "LOG_FORMAT",
		"CATALOG_PATH", "SOURCES_PATH", "SNAPSHOT_SCHEMA", "DEFAULT_STATEMENT_TIMEOUT_SECONDS",
		"WORKER_COUNT", "JOB_TIMEOUT_SECONDS", "REQUEST_TIMEOUT_SECONDS",
	} {
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, ":8091", cfg.AdminListenAddr)
	assert.Equal(t, "", cfg.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "data_schema", cfg.SnapshotSchema)
	assert.Equal(t, 14400, cfg.DefaultStatementTimeoutSeconds)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, 60*time.Second, cfg.JobTimeout)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("HTTP_LISTEN_ADDR", ":9000")
	t.Setenv("DATABASE_URL", "postgres://localhost/compliance")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("CATALOG_PATH", "/etc/compliance/catalog.yaml")
	t.Setenv("SOURCES_PATH", "/etc/compliance/sources.yaml")
	t.Setenv("DEFAULT_STATEMENT_TIMEOUT_SECONDS", "3600")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("JOB_TIMEOUT_SECONDS", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTPListenAddr)
	assert.Equal(t, "postgres://localhost/compliance", cfg.DatabaseURL)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/etc/compliance/catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, "/etc/compliance/sources.yaml", cfg.SourcesPath)
	assert.Equal(t, 3600, cfg.DefaultStatementTimeoutSeconds)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 15*time.Second, cfg.JobTimeout)
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerCount)
}

func TestLoad_RejectsNonPositiveWorkers(t *testing.T) {
	t.Setenv("WORKER_COUNT", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WORKER_COUNT")
}

func TestValidate_Server_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate(RoleServer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "NATS_URL")
}

func TestValidate_Worker_MissingFields(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://localhost/db", NATSURL: "nats://localhost:4222"}
	err := cfg.Validate(RoleWorker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SOURCES_PATH")
	assert.Contains(t, err.Error(), "ADMIN_LISTEN_ADDR")
	assert.NotContains(t, err.Error(), "DATABASE_URL")
}

func TestValidate_UnknownRole(t *testing.T) {
	cfg := &Config{DatabaseURL: "postgres://localhost/db"}
	assert.Error(t, cfg.Validate("scheduler"))
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := &Config{
		HTTPListenAddr:  ":8090",
		AdminListenAddr: ":8091",
		DatabaseURL:     "postgres://localhost/db",
		NATSURL:         "nats://localhost:4222",
		SourcesPath:     "sources.yaml",
	}

	assert.NoError(t, cfg.Validate(RoleServer))
	assert.NoError(t, cfg.Validate(RoleWorker))
	assert.NoError(t, cfg.Validate(RoleMigrate))
}
