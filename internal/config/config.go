// Package config defines process configuration and its loading hooks.
//
// Conventions:
// - New() returns a Config filled with defaults.
// - Load layers defaults, an optional YAML file and NH_ environment variables.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"fmt"

	"github.com/neighbourhoods/nh-tray/pkg/logger"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// Agent is the seed the local agent key is derived from.
	Agent string `koanf:"agent"`

	// Store selects the assessment store: memory or sqlite.
	Store string `koanf:"store"`

	// SQLitePath is the database file used when Store is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// DispatchWorkers sets the number of loops running subscriber callbacks.
	// One keeps callbacks strictly ordered.
	DispatchWorkers int `koanf:"dispatch_workers"`

	// Tray seeds dimensions, methods, widgets and trays at startup.
	Tray TrayFile `koanf:"tray"`
}

// New creates a Config holding defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		Agent:           "local",
		Store:           StoreMemory,
		SQLitePath:      "nh-tray.db",
		DispatchWorkers: 1,
		Tray:            DefaultTray(),
	}
}

// Validate checks field values and the tray section.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	if c.DispatchWorkers < 1 {
		return fmt.Errorf("%w: dispatch_workers must be at least 1", ErrInvalidConfig)
	}
	if err := c.Tray.Validate(); err != nil {
		return fmt.Errorf("%w: tray: %w", ErrInvalidConfig, err)
	}
	return nil
}
