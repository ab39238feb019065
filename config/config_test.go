package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "local")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.App.Port)
	assert.Equal(t, 3*time.Second, cfg.Market.TickInterval)
	assert.Equal(t, 0.25, cfg.Market.MaxMovePct)
	assert.Equal(t, 2*time.Second, cfg.Feed.ReconnectDelay)
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 100000.0, cfg.Auth.StartingBalance)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.NotEmpty(t, cfg.Auth.JWTSecret, "local env falls back to a development secret")
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", ":9000")
	t.Setenv("MARKET_TICK_INTERVAL", "5s")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("STORE_DRIVER", "postgres")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.App.Port)
	assert.Equal(t, 5*time.Second, cfg.Market.TickInterval)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, 6543, cfg.Store.Postgres.Port)
	assert.Contains(t, cfg.Store.Postgres.DSN(), "host=db.internal port=6543")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			App:    AppConfig{Env: "prod"},
			Auth:   AuthConfig{JWTSecret: "x"},
			Store:  StoreConfig{Driver: "memory"},
			Market: MarketConfig{TickInterval: 3 * time.Second, MaxMovePct: 0.25, PriceFloor: 0.01},
			Feed:   FeedConfig{PingPeriod: 54 * time.Second, PongWait: 60 * time.Second},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"missing secret in prod", func(c *Config) { c.Auth.JWTSecret = "" }, false},
		{"sub-second tick", func(c *Config) { c.Market.TickInterval = 500 * time.Millisecond }, false},
		{"zero floor", func(c *Config) { c.Market.PriceFloor = 0 }, false},
		{"ping after pong", func(c *Config) { c.Feed.PingPeriod = 2 * time.Minute }, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "sqlite" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "papertrade.log")

	logger, err := NewLogger(LoggerConfig{Level: "debug", File: path, MaxSize: 1})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	assert.FileExists(t, path)
}

func TestNewLogger_BadLevel(t *testing.T) {
	_, err := NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}
