package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// LiteConfig is a simplified configuration for standalone operation: no
// Postgres, no Redis, in-memory data with SQLite feedback storage.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// Fixture data
	FormularyFile string // Optional JSON formulary to load at startup
	PlanID        string // Plan the fixture formulary belongs to

	// Server settings
	HTTPPort int

	// Logging
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".formulary-engine")

	return &LiteConfig{
		DataDir:   dataDir,
		PlanID:    "default",
		HTTPPort:  8080,
		LogLevel:  "info",
		LogFormat: "json",
	}
}

// LoadLiteConfig loads configuration from environment variables, falling
// back to defaults.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("FORMULARY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FORMULARY_FILE"); v != "" {
		cfg.FormularyFile = v
	}
	if v := os.Getenv("FORMULARY_PLAN_ID"); v != "" {
		cfg.PlanID = v
	}
	if v := os.Getenv("FORMULARY_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("FORMULARY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FORMULARY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
