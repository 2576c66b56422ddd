// Package config loads bulkstep settings.
//
// Precedence, lowest first: built-in defaults, the YAML config file,
// BULKSTEP_* environment variables, command-line flags. Flags are applied
// by the CLI after Load returns.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/bulkstep/internal/bulk"
)

// Config is the complete tool configuration.
type Config struct {
	// Database is the SQLite file path.
	Database string `yaml:"database" env:"BULKSTEP_DATABASE"`
	// Schema is a CUE schema file or directory.
	Schema string `yaml:"schema" env:"BULKSTEP_SCHEMA"`
	// Step is the default chunk size.
	Step int `yaml:"step" env:"BULKSTEP_STEP"`
	// Atomic makes import and delete run in one transaction.
	Atomic bool      `yaml:"atomic" env:"BULKSTEP_ATOMIC"`
	Log    LogConfig `yaml:"log"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" env:"BULKSTEP_LOG_LEVEL"`
	Format string `yaml:"format" env:"BULKSTEP_LOG_FORMAT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: "bulkstep.db",
		Step:     bulk.DefaultStep,
		Atomic:   true,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config load: %s: %w", path, err)
		}
	}

	if err := loadEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// loadEnv overrides fields that carry an env tag with set variables.
func loadEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)
		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := loadEnv(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		value, ok := os.LookupEnv(envName)
		if !ok || value == "" {
			continue
		}
		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}
	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}
	return nil
}

// Validate checks that the configuration is usable and reports every
// problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Database == "" {
		errs = append(errs, "database path is required")
	}
	if c.Step <= 0 {
		errs = append(errs, fmt.Sprintf("step (%d) must be positive", c.Step))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err.Error())
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log format %q must be text or json", c.Log.Format))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// SlogLevel parses the configured level. Accepts "debug", "info",
// "warn" or "warning", and "error" in any case.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level %q must be debug, info, warn or error", l.Level)
	}
}
