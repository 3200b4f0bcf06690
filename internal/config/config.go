package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied by Load when a field is absent from the file.
const (
	DefaultRemoteTimeoutMS = 10000
	DefaultDebounceMS      = 500
)

// Config represents the global ~/.parlo/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`

	// RemoteTimeoutMS bounds every remote store call so a hung request
	// surfaces as a retryable network error instead of a stuck queue item.
	RemoteTimeoutMS int `toml:"remote_timeout_ms"`

	// DebounceMS is the settle window for connectivity transitions.
	DebounceMS int `toml:"connectivity_debounce_ms"`
}

// Default returns a config populated with built-in defaults.
func Default() *Config {
	return &Config{
		RemoteTimeoutMS: DefaultRemoteTimeoutMS,
		DebounceMS:      DefaultDebounceMS,
	}
}

// RemoteTimeout returns the remote call deadline as a duration.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutMS) * time.Millisecond
}

// Debounce returns the connectivity settle window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Load reads config from the given path, filling unset fields with
// defaults. A missing file is a fresh install, not an error: built-in
// defaults are returned. A malformed file is an error.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if cfg.RemoteTimeoutMS <= 0 {
		cfg.RemoteTimeoutMS = DefaultRemoteTimeoutMS
	}
	if cfg.DebounceMS <= 0 {
		cfg.DebounceMS = DefaultDebounceMS
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
