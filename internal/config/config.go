// Package config loads the jsondocs configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the content of the YAML configuration file.
type Config struct {
	// DataDir is the directory holding one <key>.json file per document.
	DataDir string `yaml:"data_dir"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Default is the document returned for keys without a valid file.
	Default any `yaml:"default"`

	Cache   Cache   `yaml:"cache"`
	History History `yaml:"history"`
}

// Cache bounds the in-memory document cache. Zero values mean unbounded.
type Cache struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// History configures committing saves to git.
type History struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Email   string `yaml:"email"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "info",
		Default:  map[string]any{},
		History: History{
			Name:  "jsondocs",
			Email: "jsondocs@localhost",
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from a flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level: %q", c.LogLevel)
	}
	if c.Cache.TTL < 0 {
		return errors.New("cache.ttl must be non-negative")
	}
	if c.Cache.Capacity < 0 {
		return errors.New("cache.capacity must be non-negative")
	}
	if c.History.Enabled && (c.History.Name == "" || c.History.Email == "") {
		return errors.New("history.name and history.email are required when history is enabled")
	}
	return nil
}
