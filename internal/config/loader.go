// Package config provides centralized configuration management for modlens.
// Defaults, config file, and environment variables all flow through viper;
// Load decodes the merged result into the typed Config.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// Load decodes the current viper state into a Config. Safe to call multiple
// times (config reload re-runs it).
func Load() (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(viper.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Store.Enabled && cfg.Store.URL == "" && cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultStorePath returns the XDG-compliant path to the snapshot database
// file, falling back to the working directory when no data dir resolves.
func DefaultStorePath() string {
	dataDir := gfconfig.GetAppDataDir("modlens")
	if strings.TrimSpace(dataDir) == "" {
		return "./modlens.db"
	}
	return filepath.Join(dataDir, "modlens.db")
}
