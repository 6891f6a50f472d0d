// Package config loads exportd configuration from defaults, an optional
// config file, and EXPORTD_* environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved exportd configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Batch     BatchConfig     `mapstructure:"batch"`
	Store     StoreConfig     `mapstructure:"store"`
	Lock      LockConfig      `mapstructure:"lock"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig configures the operational status server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig configures the shared logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Profile string `mapstructure:"profile"`
}

// StorageConfig configures the object storage collaborator.
type StorageConfig struct {
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Profile        string `mapstructure:"profile"`
	Endpoint       string `mapstructure:"endpoint"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// BatchConfig configures the external batch-compute gateway.
type BatchConfig struct {
	Queue      string            `mapstructure:"queue"`
	Region     string            `mapstructure:"region"`
	Profile    string            `mapstructure:"profile"`
	Env        map[string]string `mapstructure:"env"`
	NamePrefix string            `mapstructure:"name_prefix"`
}

// StoreConfig configures the local job database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LockConfig configures the project lock coordinator.
type LockConfig struct {
	ManifestKey string `mapstructure:"manifest_key"`
	LocalPath   string `mapstructure:"local_path"`
}

// SchedulerConfig bounds scheduler behavior.
type SchedulerConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	RateLimit   float64 `mapstructure:"rate_limit"`
	MaxAttempts int     `mapstructure:"max_attempts"`
}

// Load resolves configuration with precedence: defaults < config file < env.
//
// The config file is optional; a missing file is not an error. Environment
// variables use the EXPORTD_ prefix with underscores, e.g.
// EXPORTD_STORAGE_BUCKET.
func Load(ctx context.Context) (*Config, error) {
	_ = ctx

	v := viper.New()

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "STRUCTURED")

	// Batch defaults
	v.SetDefault("batch.name_prefix", "exportd")

	// Store defaults
	v.SetDefault("store.path", "exportd.db")

	// Lock defaults
	v.SetDefault("lock.manifest_key", "lock-projects.txt")
	v.SetDefault("lock.local_path", "lock-projects.txt")

	// Scheduler defaults
	v.SetDefault("scheduler.concurrency", 4)
	v.SetDefault("scheduler.rate_limit", 0)
	v.SetDefault("scheduler.max_attempts", 3)

	v.SetConfigName("exportd")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/exportd")

	v.SetEnvPrefix("EXPORTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks bounds that defaults alone cannot guarantee.
func (c *Config) Validate() error {
	if c.Scheduler.Concurrency <= 0 {
		return fmt.Errorf("scheduler.concurrency must be >= 1")
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be >= 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [0, 65535]")
	}
	return nil
}
