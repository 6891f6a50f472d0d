package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	// Load reads exportd.yaml from the working directory when present; run
	// every case from an isolated directory.
	t.Run("Defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "STRUCTURED", cfg.Logging.Profile)

		assert.Equal(t, "exportd", cfg.Batch.NamePrefix)
		assert.Equal(t, "exportd.db", cfg.Store.Path)
		assert.Equal(t, "lock-projects.txt", cfg.Lock.ManifestKey)

		assert.Equal(t, 4, cfg.Scheduler.Concurrency)
		assert.Equal(t, float64(0), cfg.Scheduler.RateLimit)
		assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)

		yaml := `
server:
  port: 9000
storage:
  bucket: scpca-portal-data
  region: us-east-1
batch:
  queue: exportd-queue
  env:
    PORTAL_ENV: prod
scheduler:
  concurrency: 8
  rate_limit: 2.5
`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "exportd.yaml"), []byte(yaml), 0644))

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "scpca-portal-data", cfg.Storage.Bucket)
		assert.Equal(t, "us-east-1", cfg.Storage.Region)
		assert.Equal(t, "exportd-queue", cfg.Batch.Queue)
		assert.Equal(t, map[string]string{"PORTAL_ENV": "prod"}, cfg.Batch.Env)
		assert.Equal(t, 8, cfg.Scheduler.Concurrency)
		assert.Equal(t, 2.5, cfg.Scheduler.RateLimit)

		// Non-overridden values keep their defaults.
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("EXPORTD_SERVER_PORT", "3000")
		t.Setenv("EXPORTD_LOGGING_LEVEL", "warn")
		t.Setenv("EXPORTD_SCHEDULER_MAX_ATTEMPTS", "5")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	})

	t.Run("EnvBeatsConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		t.Chdir(dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "exportd.yaml"),
			[]byte("server:\n  port: 9000\n"), 0644))
		t.Setenv("EXPORTD_SERVER_PORT", "4000")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4000, cfg.Server.Port)
	})

	t.Run("InvalidValuesRejected", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("EXPORTD_SCHEDULER_CONCURRENCY", "0")

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "scheduler.concurrency")
	})
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: 8080},
			Scheduler: SchedulerConfig{Concurrency: 4, MaxAttempts: 3},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Scheduler.Concurrency = 0 },
			wantErr: "scheduler.concurrency",
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Scheduler.MaxAttempts = 0 },
			wantErr: "scheduler.max_attempts",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
