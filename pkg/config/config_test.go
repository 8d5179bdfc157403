package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittochat/internal/store/badger"
	"github.com/marmos91/dittochat/internal/store/memory"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, ":5452", cfg.Server.ListenAddr)
	assert.Equal(t, 5*time.Minute, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 0, cfg.Server.MaxConnections)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
logging:
  level: debug
server:
  listen_addr: "127.0.0.1:6000"
  read_timeout: 90s
  max_connections: 100
  rate_limit: 50
store:
  type: badger
  badger:
    dir: /tmp/dittochat-test
metrics:
  enabled: true
  port: 9100
`))
	require.NoError(t, err)

	// Log level is normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:6000", cfg.Server.ListenAddr)
	assert.Equal(t, 90*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 100, cfg.Server.MaxConnections)
	assert.Equal(t, uint(50), cfg.Server.RateLimit)
	// Burst defaults to twice the rate.
	assert.Equal(t, uint(100), cfg.Server.RateBurst)
	assert.Equal(t, "badger", cfg.Store.Type)
	assert.Equal(t, "/tmp/dittochat-test", cfg.Store.Badger["dir"])
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9100, cfg.Metrics.Port)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DITTOCHAT_SERVER_LISTEN_ADDR", "127.0.0.1:7000")
	t.Setenv("DITTOCHAT_LOGGING_LEVEL", "warn")

	// Env overrides apply to keys the file declares.
	cfg, err := Load(writeConfigFile(t, `
logging:
  level: info
server:
  listen_addr: "127.0.0.1:6000"
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.ListenAddr)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "bad log level",
			mutate:  func(cfg *Config) { cfg.Logging.Level = "LOUD" },
			wantErr: true,
		},
		{
			name:    "bad store type",
			mutate:  func(cfg *Config) { cfg.Store.Type = "postgres" },
			wantErr: true,
		},
		{
			name: "badger without dir",
			mutate: func(cfg *Config) {
				cfg.Store.Type = "badger"
				cfg.Store.Badger = map[string]any{}
			},
			wantErr: true,
		},
		{
			name: "burst without rate",
			mutate: func(cfg *Config) {
				cfg.Server.RateLimit = 0
				cfg.Server.RateBurst = 10
			},
			wantErr: true,
		},
		{
			name:    "negative max connections",
			mutate:  func(cfg *Config) { cfg.Server.MaxConnections = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			ApplyDefaults(&cfg)
			tt.mutate(&cfg)

			err := Validate(&cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCreateMailboxStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := CreateMailboxStore(&StoreConfig{Type: "memory"})
		require.NoError(t, err)
		defer s.Close()

		_, ok := s.(*memory.MemoryStore)
		assert.True(t, ok)
	})

	t.Run("badger", func(t *testing.T) {
		s, err := CreateMailboxStore(&StoreConfig{
			Type:   "badger",
			Badger: map[string]any{"dir": t.TempDir()},
		})
		require.NoError(t, err)
		defer s.Close()

		_, ok := s.(*badger.BadgerStore)
		assert.True(t, ok)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := CreateMailboxStore(&StoreConfig{Type: "postgres"})
		assert.Error(t, err)
	})

	t.Run("badger without dir", func(t *testing.T) {
		_, err := CreateMailboxStore(&StoreConfig{Type: "badger", Badger: map[string]any{}})
		assert.Error(t, err)
	})
}
