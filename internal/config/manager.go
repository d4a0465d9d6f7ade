package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manager loads and saves the YAML config file.
type Manager struct {
	path string
}

// NewManager uses ~/.config/toolgate/config.yaml (the platform user config dir).
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{path: filepath.Join(configDir, "toolgate", "config.yaml")}, nil
}

// NewManagerAt uses an explicit file path.
func NewManagerAt(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the config file location.
func (m *Manager) Path() string {
	return m.path
}

// LoadInto overlays the file onto s. Fields absent from the file keep their
// current values; a missing file is not an error.
func (m *Manager) LoadInto(s *Settings) error {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", m.path, err)
	}
	return nil
}

// Save writes s with owner-only permissions, since it may hold API keys.
func (m *Manager) Save(s Settings) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists reports whether the config file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
