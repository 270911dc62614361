package config

import (
	"strconv"
	"time"
)

// SetDefaults fills in default values for any unset fields
func SetDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = 20
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 40
	}

	// Engine defaults
	if cfg.Engine.Parallelism == 0 {
		cfg.Engine.Parallelism = 4
	}
	if cfg.Engine.Scheduler.Interval == 0 {
		cfg.Engine.Scheduler.Interval = 2 * time.Second
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	// Metrics defaults
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
