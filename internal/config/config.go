// Package config loads the lineage configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the LINEAGE_ prefix (e.g.
// LINEAGE_DATABASE_DSN overrides database.dsn in the YAML), so the same
// binary runs with a config.yaml locally and with pure environment variables
// in containerized deployments.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Type is the database backend: sqlite, mysql, or postgres.
	Type string `mapstructure:"type"`
	// DSN is the driver connection string. For sqlite this is a file path
	// or ":memory:".
	DSN            string `mapstructure:"dsn"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuditConfig holds audit query defaults.
type AuditConfig struct {
	// PageSize is the default page size for audit listings.
	PageSize int `mapstructure:"page_size"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// AutomaticEnv alone does not surface unset nested keys through Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		"database.type",
		"database.dsn",
		"database.max_connections",
		"logging.level",
		"logging.format",
		"audit.page_size",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lineage")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and environment variables only.
	}

	v.SetEnvPrefix("LINEAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "lineage.db")
	v.SetDefault("database.max_connections", 25)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("audit.page_size", 20)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Database.Type {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("invalid database type: %s (must be sqlite, mysql, or postgres)", c.Database.Type)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Audit.PageSize < 1 || c.Audit.PageSize > 100 {
		return fmt.Errorf("invalid audit page size: %d (must be 1-100)", c.Audit.PageSize)
	}
	return nil
}
