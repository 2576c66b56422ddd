package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bulkstep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 1000, cfg.Step)
	assert.True(t, cfg.Atomic)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
database: /tmp/shop.db
schema: ./schema
step: 250
atomic: false
log:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/shop.db", cfg.Database)
	assert.Equal(t, "./schema", cfg.Schema)
	assert.Equal(t, 250, cfg.Step)
	assert.False(t, cfg.Atomic)
	assert.Equal(t, LogConfig{Level: "debug", Format: "json"}, cfg.Log)
}

func TestLoadFileKeepsUnsetDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "schema: s.cue\n"))
	require.NoError(t, err)
	assert.Equal(t, "bulkstep.db", cfg.Database)
	assert.Equal(t, "s.cue", cfg.Schema)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "step: 250\nlog:\n  level: debug\n")
	t.Setenv("BULKSTEP_STEP", "75")
	t.Setenv("BULKSTEP_LOG_LEVEL", "warn")
	t.Setenv("BULKSTEP_ATOMIC", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 75, cfg.Step)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.False(t, cfg.Atomic)
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("BULKSTEP_STEP", "lots")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BULKSTEP_STEP")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "step: [1, 2\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "zero step", mutate: func(c *Config) { c.Step = 0 }, wantErr: "step (0) must be positive"},
		{name: "negative step", mutate: func(c *Config) { c.Step = -5 }, wantErr: "must be positive"},
		{name: "no database", mutate: func(c *Config) { c.Database = "" }, wantErr: "database path is required"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log format"},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log level"},
		{name: "upper case format", mutate: func(c *Config) { c.Log.Format = "JSON" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Step = 0
	cfg.Log.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step")
	assert.Contains(t, err.Error(), "log format")
}

func TestSlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = LogConfig{Level: "WARN"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}

func TestSlogLevelWarningAlias(t *testing.T) {
	level, err := LogConfig{Level: "warning"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)
}
