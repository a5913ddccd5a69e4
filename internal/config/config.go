// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration. Every field has a sensible
// default so a bare environment still boots.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `env:"FIAR_ADDR" envDefault:":8080"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `env:"FIAR_DB_PATH" envDefault:"fiar.db"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"FIAR_LOG_LEVEL" envDefault:"info"`

	// PersistTimeout bounds persistence calls during gameplay.
	PersistTimeout time.Duration `env:"FIAR_PERSIST_TIMEOUT" envDefault:"5s"`

	// WriteTimeout bounds WebSocket frame writes.
	WriteTimeout time.Duration `env:"FIAR_WRITE_TIMEOUT" envDefault:"10s"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `env:"FIAR_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// ArchiveBucket enables S3 replay archival when non-empty.
	ArchiveBucket string `env:"FIAR_ARCHIVE_BUCKET"`

	// ArchivePrefix is the object key prefix for replays.
	ArchivePrefix string `env:"FIAR_ARCHIVE_PREFIX" envDefault:"replays/"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:            ":8080",
		DatabasePath:    "fiar.db",
		LogLevel:        "info",
		PersistTimeout:  5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ArchivePrefix:   "replays/",
	}
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured log level to its slog value.
func (c Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
}
