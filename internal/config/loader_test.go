package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDecodesViperSettings(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server.host", "0.0.0.0")
	viper.Set("server.port", 9999)
	viper.Set("engine.bucket_capacity", 25)
	viper.Set("engine.refill_rate_per_second", "2.5")
	viper.Set("engine.ttl", "45m")
	viper.Set("engine.sweep_interval", "30s")
	viper.Set("engine.max_retries", 3)
	viper.Set("engine.auto_start", true)
	viper.Set("upstream.base_url", "https://workshop.example.test")
	viper.Set("upstream.timeout", "10s")
	viper.Set("store.enabled", false)
	viper.Set("logging.level", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0", cfg.Server.Host)
	require.Equal(t, 9999, cfg.Server.Port)
	require.Equal(t, 25, cfg.Engine.BucketCapacity)
	require.Equal(t, 2.5, cfg.Engine.RefillRatePerSecond)
	require.Equal(t, 45*time.Minute, cfg.Engine.TTL)
	require.Equal(t, 30*time.Second, cfg.Engine.SweepInterval)
	require.Equal(t, 3, cfg.Engine.MaxRetries)
	require.True(t, cfg.Engine.AutoStart)
	require.Equal(t, "https://workshop.example.test", cfg.Upstream.BaseURL)
	require.Equal(t, 10*time.Second, cfg.Upstream.Timeout)
	require.False(t, cfg.Store.Enabled)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFillsStorePathWhenEnabled(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("store.enabled", true)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Store.Path)
}

func TestGetConfigReturnsLastLoaded(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("server.port", 1234)

	cfg, err := Load()
	require.NoError(t, err)
	require.Same(t, cfg, GetConfig())
}
