// Package config loads token-stash settings from defaults, an optional
// TOML file and the environment, in that order of precedence.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"

	"github.com/pavel-fokin/token-stash/internal/logging"
)

// Version is set at build time via -ldflags.
var Version = "dev"

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendFS     = "fs"
)

type Config struct {
	Addr    string `toml:"addr" env:"TOKEN_STASH_ADDR"`
	Backend string `toml:"backend" env:"TOKEN_STASH_BACKEND"`
	DBPath  string `toml:"db_path" env:"TOKEN_STASH_DB_PATH"`
	DataDir string `toml:"data_dir" env:"TOKEN_STASH_DATA_DIR"`

	// MaxSize is a human-readable byte size such as "32MiB".
	MaxSize string `toml:"max_size" env:"TOKEN_STASH_MAX_SIZE"`

	Workers       int      `toml:"workers" env:"TOKEN_STASH_WORKERS"`
	UploadTimeout Duration `toml:"upload_timeout" env:"TOKEN_STASH_UPLOAD_TIMEOUT"`

	CacheSize int      `toml:"cache_size" env:"TOKEN_STASH_CACHE_SIZE"`
	CacheTTL  Duration `toml:"cache_ttl" env:"TOKEN_STASH_CACHE_TTL"`

	LogLevel  string `toml:"log_level" env:"TOKEN_STASH_LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"TOKEN_STASH_LOG_FORMAT"`

	ReadTimeout     Duration `toml:"read_timeout" env:"TOKEN_STASH_READ_TIMEOUT"`
	WriteTimeout    Duration `toml:"write_timeout" env:"TOKEN_STASH_WRITE_TIMEOUT"`
	IdleTimeout     Duration `toml:"idle_timeout" env:"TOKEN_STASH_IDLE_TIMEOUT"`
	ShutdownTimeout Duration `toml:"shutdown_timeout" env:"TOKEN_STASH_SHUTDOWN_TIMEOUT"`
}

// Duration decodes from strings like "30s" in both TOML and env.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		Addr:            ":8080",
		Backend:         BackendSQLite,
		DBPath:          "token-stash.db",
		DataDir:         "data",
		MaxSize:         "32MiB",
		Workers:         8,
		UploadTimeout:   Duration{30 * time.Second},
		CacheSize:       1024,
		CacheTTL:        Duration{5 * time.Minute},
		LogLevel:        "info",
		LogFormat:       "json",
		ReadTimeout:     Duration{30 * time.Second},
		WriteTimeout:    Duration{60 * time.Second},
		IdleTimeout:     Duration{120 * time.Second},
		ShutdownTimeout: Duration{10 * time.Second},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("db_path is required for the sqlite backend")
		}
	case BackendFS:
		if c.DataDir == "" {
			return fmt.Errorf("data_dir is required for the fs backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if _, err := c.MaxSizeBytes(); err != nil {
		return err
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.UploadTimeout.Duration <= 0 {
		return fmt.Errorf("upload_timeout must be positive")
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}
	if c.CacheSize > 0 && c.CacheTTL.Duration <= 0 {
		return fmt.Errorf("cache_ttl must be positive when the cache is enabled")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("log_format must be json or text, got %q", c.LogFormat)
	}
	return nil
}

// MaxSizeBytes parses MaxSize.
func (c *Config) MaxSizeBytes() (int64, error) {
	n, err := humanize.ParseBytes(c.MaxSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_size %q: %w", c.MaxSize, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("max_size must be positive")
	}
	return int64(n), nil
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() slog.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}
