// Package config loads and validates the dittochat configuration from file,
// environment, and defaults, and provides factory functions for the
// configurable collaborators.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete dittochat configuration.
//
// Sources, in order of precedence:
//  1. Environment variables (DITTOCHAT_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains the chat server settings
	Server ServerConfig `mapstructure:"server"`

	// Store specifies the mailbox store type and type-specific options
	Store StoreConfig `mapstructure:"store"`

	// Metrics controls the optional Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
}

// ServerConfig contains the chat server settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server binds to
	ListenAddr string `mapstructure:"listen_addr" validate:"required"`

	// ReadTimeout bounds how long the server waits for a full frame; a
	// timeout expiring mid-read terminates the connection
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"gte=0"`

	// WriteTimeout bounds response and push writes
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// MaxConnections caps concurrent client connections; 0 means unlimited
	MaxConnections int `mapstructure:"max_connections" validate:"gte=0"`

	// RateLimit is the per-connection sustained request rate in requests
	// per second; 0 disables limiting
	RateLimit uint `mapstructure:"rate_limit"`

	// RateBurst is the per-connection burst capacity
	RateBurst uint `mapstructure:"rate_burst"`
}

// StoreConfig specifies the mailbox store. The Type field selects the
// implementation; only the matching options section is used.
type StoreConfig struct {
	// Type specifies which mailbox store implementation to use.
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger"`

	// Badger contains BadgerDB-specific options, used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// MetricsConfig controls the optional Prometheus endpoint.
type MetricsConfig struct {
	// Enabled turns metric collection and the /metrics server on
	Enabled bool `mapstructure:"enabled"`

	// Port is the /metrics HTTP port
	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`
}

// Load reads configuration from configPath (or the default location when
// empty), applies environment overrides and defaults, and validates the
// result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOCHAT_SERVER_LISTEN_ADDR=:5452
	v.SetEnvPrefix("DITTOCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory: $XDG_CONFIG_HOME/dittochat
// or ~/.config/dittochat, falling back to the current directory.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittochat")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "dittochat")
}
