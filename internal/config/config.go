// ABOUTME: Configuration loading and parsing for the notedock daemon
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete notedockd configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Broker  BrokerConfig  `yaml:"broker"`
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds the file locations of the persistence layers
type StorageConfig struct {
	// DatabasePath locates the durable SQLite store
	DatabasePath string `yaml:"database_path"`

	// LegacyPath locates the old synchronized store snapshot migrated on
	// first start. Optional; when empty no migration source exists.
	LegacyPath string `yaml:"legacy_path"`

	// FallbackPath locates the page-local fallback key-value file
	FallbackPath string `yaml:"fallback_path"`
}

// BrokerConfig holds the storage broker channel configuration
type BrokerConfig struct {
	SocketPath string `yaml:"socket_path"`

	ShutdownGrace time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ShutdownGraceRaw string `yaml:"shutdown_grace"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists, with
// every path rooted under dataDir.
func Default(dataDir string) *Config {
	return &Config{
		Storage: StorageConfig{
			DatabasePath: filepath.Join(dataDir, "notedock.db"),
			LegacyPath:   filepath.Join(dataDir, "legacy.json"),
			FallbackPath: filepath.Join(dataDir, "fallback.json"),
		},
		Broker: BrokerConfig{
			SocketPath:    filepath.Join(dataDir, "notedock.sock"),
			ShutdownGrace: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage.database_path is required")
	}
	if c.Storage.FallbackPath == "" {
		return fmt.Errorf("storage.fallback_path is required")
	}
	if c.Broker.SocketPath == "" {
		return fmt.Errorf("broker.socket_path is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Broker.ShutdownGraceRaw != "" {
		cfg.Broker.ShutdownGrace, err = time.ParseDuration(cfg.Broker.ShutdownGraceRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_grace %q: %w", cfg.Broker.ShutdownGraceRaw, err)
		}
	}

	return nil
}
