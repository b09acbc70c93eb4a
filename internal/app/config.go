package app

import (
	"io"

	"incidentrelay/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// ConfigPath is the YAML file to load. Empty selects the default location.
	ConfigPath string

	// LogOutput receives log records; nil means stderr.
	LogOutput io.Writer

	// RelayConfig is populated by NewApplication. Setting it beforehand skips
	// loading from disk.
	RelayConfig *config.RelayConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
