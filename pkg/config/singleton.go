package config

import (
	"fmt"
	"sync"
)

// The process-wide configuration used by the CLI.
var (
	current   *Config
	currentMu sync.RWMutex
	loadOnce  sync.Once
)

// Initialize loads path with environment overrides and makes it the
// process-wide configuration. Only the first call loads; later calls
// return nil without reading anything.
func Initialize(path string) error {
	var err error
	loadOnce.Do(func() {
		var cfg *Config
		if cfg, err = LoadConfigWithEnvOverrides(path); err == nil {
			SetConfig(cfg)
		}
	})
	return err
}

// GetConfig returns the process-wide configuration, or nil before a
// successful Initialize.
func GetConfig() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

// SetConfig replaces the process-wide configuration.
func SetConfig(cfg *Config) {
	currentMu.Lock()
	current = cfg
	currentMu.Unlock()
}

// ReloadConfig loads path again and swaps it in. On error the current
// configuration stays in place.
func ReloadConfig(path string) error {
	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}
	SetConfig(cfg)
	return nil
}

// MustGetConfig is GetConfig for callers that cannot continue without a
// configuration. It panics before Initialize.
func MustGetConfig() *Config {
	cfg := GetConfig()
	if cfg == nil {
		panic("configuration not initialized: call Initialize first")
	}
	return cfg
}
