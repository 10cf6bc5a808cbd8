package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const defaultServer = "http://localhost:8080"

// clientConfig is what the device remembers between runs.
type clientConfig struct {
	Server string `yaml:"server"`
	Token  string `yaml:"token,omitempty"`
	Email  string `yaml:"email,omitempty"`
	// Outbox is the SQLite file queuing taps while offline. Relative
	// paths are resolved against the config directory.
	Outbox string `yaml:"outbox,omitempty"`
}

func defaultConfigPath() string {
	if p := os.Getenv("POINTEUSE_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "pointeuse.yaml"
	}
	return filepath.Join(dir, "pointeuse", "config.yaml")
}

// loadClientConfig reads path. A missing file yields the defaults.
func loadClientConfig(path string) (clientConfig, error) {
	cfg := clientConfig{Server: defaultServer, Outbox: "outbox.db"}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return clientConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return clientConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Server == "" {
		cfg.Server = defaultServer
	}
	if cfg.Outbox == "" {
		cfg.Outbox = "outbox.db"
	}
	return cfg, nil
}

// saveClientConfig writes the file readable by its owner only since it
// holds the session token.
func saveClientConfig(path string, cfg clientConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (c clientConfig) outboxPath(configPath string) string {
	if filepath.IsAbs(c.Outbox) {
		return c.Outbox
	}
	return filepath.Join(filepath.Dir(configPath), c.Outbox)
}
