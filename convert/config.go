package convert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docmill/docmill/pipeline"
)

// Config holds the full service configuration.
type Config struct {
	DBPath    string           `yaml:"db_path"`
	OutputDir string           `yaml:"output_dir"`
	LogLevel  string           `yaml:"log_level"` // debug | info | warn | error
	Pipeline  pipeline.Options `yaml:"pipeline"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath:    "docmill.db",
		OutputDir: ".",
		LogLevel:  "info",
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig
// merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return c.Pipeline.Validate()
}
