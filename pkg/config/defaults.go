package config

import (
	"strings"
	"time"
)

// ApplyDefaults fills any unspecified configuration fields. Zero values are
// replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStoreDefaults(&cfg.Store)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalized so the oneof validation and the logger see one casing.
	cfg.Level = strings.ToUpper(cfg.Level)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":5452"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RateLimit > 0 && cfg.RateBurst == 0 {
		cfg.RateBurst = cfg.RateLimit * 2
	}
}

func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if _, ok := cfg.Badger["dir"]; !ok {
		cfg.Badger["dir"] = "/var/lib/dittochat"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}
