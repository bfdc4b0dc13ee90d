package config

import (
	"fmt"

	"github.com/kilianp07/solarcharge/infra/logger"
)

// LogConfig controls the application log output.
type LogConfig struct {
	// Level is a zerolog level name, info when empty.
	Level string `json:"level"`
	// Format is "json" or "console".
	Format string `json:"format"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = logger.FormatJSON
	}
}

func (c LogConfig) Validate() error {
	if _, err := logger.ParseLevel(c.Level); err != nil {
		return err
	}
	if c.Format != logger.FormatJSON && c.Format != logger.FormatConsole {
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}

// Decision log backends.
const (
	LogBackendJSONL    = "jsonl"
	LogBackendRotating = "rotating"
	LogBackendSQLite   = "sqlite"
)

// LoggingConfig defines where tick decisions are persisted.
type LoggingConfig struct {
	// Backend selects the log store type: "jsonl", "rotating" or "sqlite".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = LogBackendJSONL
	}
	if c.Path == "" {
		if c.Backend == LogBackendSQLite {
			c.Path = "decisions.db"
		} else {
			c.Path = "decisions.jsonl"
		}
	}
	if c.Backend == LogBackendRotating && c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch c.Backend {
	case LogBackendJSONL, LogBackendRotating, LogBackendSQLite:
	default:
		return fmt.Errorf("unknown backend %s", c.Backend)
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
