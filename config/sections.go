package config

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Host        string          `mapstructure:"host"`
	Port        int             `mapstructure:"port" validate:"min=1,max=65535"`
	CORSOrigins []string        `mapstructure:"cors_origins"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + itoa(s.Port)
}

// RateLimitConfig bounds mutating requests (requested changes, deposits,
// phase transitions).
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"min=1"`
}

// DatabaseConfig holds persistence settings. An empty path keeps everything
// in memory.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// EngineConfig holds turn controller settings
type EngineConfig struct {
	// Keep each category's requested amount across turns
	CarryOverRequested bool `mapstructure:"carry_over_requested"`

	// Nations finalized concurrently
	Parallelism int `mapstructure:"parallelism" validate:"min=1,max=256"`

	// Run Processing and EnemyTurn inside EndTurn
	AutoAdvance bool `mapstructure:"auto_advance"`

	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// SchedulerConfig drives the background phase scheduler
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval" validate:"min=0"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Log level: debug, info, warn, error
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`

	// Log format: json, text
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// NewLogger builds the slog logger described by the config.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(l.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// MetricsConfig holds metrics collection and exposure configuration
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active
	Enabled bool `mapstructure:"enabled"`

	// Path for the metrics endpoint (default: /metrics)
	Path string `mapstructure:"path" validate:"omitempty,startswith=/"`
}

// RulesConfig points at the ruleset document. Empty uses the built-in
// default game.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}
