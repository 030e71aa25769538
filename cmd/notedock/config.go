// ABOUTME: Configuration loading for the notedock client
// ABOUTME: Loads TOML config from XDG path with environment variable expansion

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Daemon  DaemonConfig  `toml:"daemon"`
	Storage StorageConfig `toml:"storage"`
	Logging LoggingConfig `toml:"logging"`
}

type DaemonConfig struct {
	SocketPath string `toml:"socket_path"`
}

type StorageConfig struct {
	FallbackPath string `toml:"fallback_path"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// defaultConfigPath resolves the client config file location.
// Priority: NOTEDOCK_CLIENT_CONFIG env var > XDG_CONFIG_HOME/notedock/notedock.toml
func defaultConfigPath() string {
	if envPath := os.Getenv("NOTEDOCK_CLIENT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "notedock.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "notedock", "notedock.toml")
}

// defaultDataPath resolves the shared notedock data directory.
func defaultDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "notedock")
}

// loadClientConfig reads the TOML config, falling back to defaults rooted in
// the shared data directory when no file exists.
func loadClientConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dataPath := defaultDataPath()
		return &Config{
			Daemon:  DaemonConfig{SocketPath: filepath.Join(dataPath, "notedock.sock")},
			Storage: StorageConfig{FallbackPath: filepath.Join(dataPath, "fallback.json")},
			Logging: LoggingConfig{Level: "warn"},
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present.
func (c *Config) Validate() error {
	if c.Daemon.SocketPath == "" {
		return fmt.Errorf("daemon.socket_path is required")
	}
	if c.Storage.FallbackPath == "" {
		return fmt.Errorf("storage.fallback_path is required")
	}
	return nil
}
