package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const sessionFileName = "session.yaml"

// savedSession is what login persists so later commands can omit --session.
type savedSession struct {
	Server    string `yaml:"server"`
	SessionID string `yaml:"sessionId"`
}

// sessionFilePath can be overridden in tests.
var sessionFilePath = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "incidentrelay", sessionFileName), nil
}

func saveSession(s savedSession) (string, error) {
	path, err := sessionFilePath()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func loadSession() (*savedSession, error) {
	path, err := sessionFilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var s savedSession
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &s, nil
}

func clearSession() error {
	path, err := sessionFilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

// resolveSession returns --session, or the saved session when it belongs to
// the selected server.
func resolveSession() (string, error) {
	if sessionFlag != "" {
		return sessionFlag, nil
	}
	saved, err := loadSession()
	if err != nil {
		return "", err
	}
	if saved == nil || saved.SessionID == "" || !sameServer(saved.Server, serverURL) {
		return "", &AuthRequiredError{Server: serverURL}
	}
	return saved.SessionID, nil
}

func sameServer(a, b string) bool {
	return strings.EqualFold(strings.TrimSuffix(a, "/"), strings.TrimSuffix(b, "/"))
}
