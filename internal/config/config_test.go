package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8090, cfg.Server.Port)
	assert.Equal(t, int64(100<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Convert.HopTimeout)
	assert.Equal(t, 3, cfg.Worker.MaxRetries)
	assert.Equal(t, "conversion-engine", cfg.Observability.ServiceName)

	require.NoError(t, cfg.Validate())
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  driver: postgres
  postgres:
    dsn: postgres://app@localhost/conv
worker:
  concurrency: 8
  job_timeout: 90s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://app@localhost/conv", cfg.DatabaseDSN())
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 90*time.Second, cfg.Worker.JobTimeout)

	// Untouched sections keep their defaults.
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 150, cfg.Convert.RasterDPI)
}

func TestLoad_MissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("DATABASE_URL", "sqlite:/var/data/conv.db")
	t.Setenv("REDIS_URL", "redis://queue.internal:6380")
	t.Setenv("WORKER_CONCURRENCY", "5")
	t.Setenv("LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/data/conv.db", cfg.Database.SQLite.Path)
	assert.Equal(t, "redis", cfg.Queue.Driver, "REDIS_URL switches the queue driver")
	assert.Equal(t, "queue.internal:6380", cfg.Queue.Redis.Addr)
	assert.Equal(t, 5, cfg.Worker.Concurrency)
	assert.Equal(t, "warn", cfg.Observability.LogLevel)
}

func TestEnvOverrides_PostgresURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://app@db/conv")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://app@db/conv", cfg.Database.Postgres.DSN)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad database driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"bad queue driver", func(c *Config) { c.Queue.Driver = "kafka" }},
		{"zero concurrency", func(c *Config) { c.Worker.Concurrency = 0 }},
		{"negative retries", func(c *Config) { c.Worker.MaxRetries = -1 }},
		{"zero hop timeout", func(c *Config) { c.Convert.HopTimeout = 0 }},
		{"missing blob root", func(c *Config) { c.Blob.Root = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestResolveRelativePath(t *testing.T) {
	assert.Equal(t, "/abs/path", ResolveRelativePath("/etc/conv/config.yaml", "/abs/path"))
	assert.Equal(t, "/etc/conv/blobs", ResolveRelativePath("/etc/conv/config.yaml", "blobs"))
}
