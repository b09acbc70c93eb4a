package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"incidentrelay/pkg/logging"
)

const (
	userConfigDir  = ".config/incidentrelay"
	configFileName = "config.yaml"
)

// DefaultConfigPath returns ~/.config/incidentrelay/config.yaml.
func DefaultConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// LoadConfig loads configuration from path, or from DefaultConfigPath when path
// is empty. A missing file yields the defaults. The result is not validated.
func LoadConfig(path string) (RelayConfig, error) {
	config := GetDefaultConfig()

	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return RelayConfig{}, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config file found at %s, using defaults", path)
			config.applyDerived()
			return config, nil
		}
		return RelayConfig{}, fmt.Errorf("error reading config from %s: %w", path, err)
	}

	if err := Parse(data, &config); err != nil {
		return RelayConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	logging.Info("Config", "Loaded configuration from %s", path)
	return config, nil
}

// Parse expands environment references in data and decodes it over config.
func Parse(data []byte, config *RelayConfig) error {
	expanded := os.ExpandEnv(string(data))
	if strings.TrimSpace(expanded) != "" {
		if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
			return err
		}
	}
	config.applyDerived()
	return nil
}

// applyDerived fills values that default to other settings.
func (c *RelayConfig) applyDerived() {
	if c.Server.PublicURL == "" {
		scheme := "http"
		if c.Server.TLS.Enabled {
			scheme = "https"
		}
		c.Server.PublicURL = fmt.Sprintf("%s://%s:%d", scheme, c.Server.Host, c.Server.Port)
	}
	c.Server.PublicURL = strings.TrimSuffix(c.Server.PublicURL, "/")

	if c.OAuth.RedirectURL == "" {
		c.OAuth.RedirectURL = c.Server.PublicURL + DefaultCallbackPath
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = append([]string(nil), DefaultScopes...)
	}
}
