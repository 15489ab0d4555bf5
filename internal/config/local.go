package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for the local CLI
type LocalConfig struct {
	// Username is the player all CLI commands act as.
	Username string `yaml:"username"`
	// Database is the SQLite file path. Empty means ~/.hone/hone.db. A
	// DATABASE_URL in the environment overrides it with PostgreSQL.
	Database string `yaml:"database"`
	LogLevel string `yaml:"log_level"`
	// RabbitMQURL, when set, makes `hone import` enqueue the PGN for the
	// honed worker instead of importing inline.
	RabbitMQURL string `yaml:"rabbitmq_url,omitempty"`
	Worker      WorkerConfig `yaml:"worker"`
}

// WorkerConfig holds the honed status-server address the CLI polls
type WorkerConfig struct {
	Port int    `yaml:"port"`
	Bind string `yaml:"bind"`
}

// HoneDir returns the path to ~/.hone
func HoneDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hone"), nil
}

// EnsureHoneDir creates ~/.hone and subdirectories if they don't exist
func EnsureHoneDir() (string, error) {
	dir, err := HoneDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"imports",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		LogLevel: "info",
		Worker: WorkerConfig{
			Port: 7632,
			Bind: "127.0.0.1",
		},
	}
}

// DatabasePath resolves the SQLite file the CLI should open.
func (c *LocalConfig) DatabasePath() (string, error) {
	if c.Database != "" {
		return c.Database, nil
	}
	dir, err := HoneDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "hone.db"), nil
}

// LoadLocalConfig loads configuration from ~/.hone/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := HoneDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(dir, "config.yaml")

	// If config doesn't exist, return defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultLocalConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultLocalConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// SaveLocalConfig saves configuration to ~/.hone/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureHoneDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(dir, "config.yaml")

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
