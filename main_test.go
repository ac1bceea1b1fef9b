package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "BASE_URL", "STORE_DRIVER", "DB_PATH", "DATABASE_URL", "REDIS_ADDR",
		"CACHE_TTL", "CLICK_TIMEOUT", "MAX_ATTEMPTS", "CODE_BYTES", "METRICS_ENABLED",
		"LOG_LEVEL", "DEBUG",
	} {
		t.Setenv(key, "")
	}

	cfg, err := newConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite", cfg.StoreDriver)
	assert.Equal(t, "shortlink.db", cfg.DBPath)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.ClickTimeout)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 4, cfg.CodeBytes)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Debug)
}

func TestConfigOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/shortlink")
	t.Setenv("MAX_ATTEMPTS", "8")
	t.Setenv("CLICK_TIMEOUT", "250ms")
	t.Setenv("METRICS_ENABLED", "0")

	cfg, err := newConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 8, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.ClickTimeout)
	assert.False(t, cfg.MetricsEnabled)
}

func TestConfigErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"postgres without dsn": {"STORE_DRIVER": "postgres", "DATABASE_URL": ""},
		"unknown driver":       {"STORE_DRIVER": "mysql"},
		"bad attempts":         {"MAX_ATTEMPTS": "0"},
		"bad ttl":              {"CACHE_TTL": "forever"},
		"bad code size":        {"CODE_BYTES": "x"},
	}

	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := newConfigFromEnv()
			assert.Error(t, err)
		})
	}
}
