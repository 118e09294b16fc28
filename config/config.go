/*
config.go - Runtime configuration for the scenario tools

PURPOSE:
  One YAML file drives both binaries: where the collection lives, the
  legacy name tables the normalizer rewrites with, the field rows the
  matrix extractor recognizes and how loud the logs are. Every value has
  a default so the file is optional.

ENVIRONMENT OVERRIDES:
  SCENARIO_COLLECTION  path of the collection JSON file
  SCENARIO_DB          sqlite database path (server)
  SCENARIO_PORT        HTTP port (server)
  SCENARIO_LOG_LEVEL   debug, info, warn, error

SEE ALSO:
  - scenario/tables.go: The built-in tables
  - extract/extract.go: The built-in field labels
*/
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/warp/scenario-engine/extract"
	"github.com/warp/scenario-engine/scenario"
)

// Config holds all scenario tool configuration.
type Config struct {
	// Collection is the scenario collection file the CLI reads and writes.
	Collection string `yaml:"collection"`

	Server  ServerConfig  `yaml:"server"`
	Tables  TablesConfig  `yaml:"tables"`
	Extract ExtractConfig `yaml:"extract"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// TablesConfig holds the legacy-to-canonical name tables.
type TablesConfig struct {
	FieldNames      map[string]string `yaml:"field_names"`
	VariableNames   map[string]string `yaml:"variable_names"`
	StringVariables []string          `yaml:"string_variables"`
	Enumerants      []string          `yaml:"enumerants"`
}

// ExtractConfig configures the matrix extractor.
type ExtractConfig struct {
	FieldLabels []string `yaml:"field_labels"`
	Sheet       string   `yaml:"sheet"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	t := scenario.DefaultTables()
	return &Config{
		Collection: "scenarios.json",
		Server: ServerConfig{
			Port:     8080,
			Database: "scenarios.db",
		},
		Tables: TablesConfig{
			FieldNames:      t.FieldNames(),
			VariableNames:   t.VariableNames(),
			StringVariables: t.StringVariables(),
			Enumerants:      t.Enumerants(),
		},
		Extract: ExtractConfig{
			FieldLabels: append([]string(nil), extract.DefaultFieldLabels...),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if path := os.Getenv("SCENARIO_COLLECTION"); path != "" {
		c.Collection = path
	}
	if path := os.Getenv("SCENARIO_DB"); path != "" {
		c.Server.Database = path
	}
	if port := os.Getenv("SCENARIO_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SCENARIO_PORT %q: %w", port, err)
		}
		c.Server.Port = p
	}
	if level := os.Getenv("SCENARIO_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	return nil
}

// Validate checks the configuration for values the tools cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if len(c.Tables.FieldNames) == 0 {
		return fmt.Errorf("tables.field_names must not be empty")
	}
	if len(c.Extract.FieldLabels) == 0 {
		return fmt.Errorf("extract.field_labels must not be empty")
	}
	for legacy, canonical := range c.Tables.VariableNames {
		if canonical == "" {
			return fmt.Errorf("tables.variable_names: %s maps to an empty name", legacy)
		}
	}
	return nil
}

// ScenarioTables builds the normalizer tables from the configuration.
func (c *Config) ScenarioTables() scenario.Tables {
	return scenario.NewTables(c.Tables.FieldNames, c.Tables.VariableNames, c.Tables.StringVariables, c.Tables.Enumerants)
}

// Logger builds a zap logger for the configured level. verbose forces
// debug output.
func (c *Config) Logger(verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Logging.Development {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}
