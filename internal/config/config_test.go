package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvModel, EnvSource, EnvListenAddr, EnvDB, EnvLogLevel, EnvCORSOrigins} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := LoadFromEnv()
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.DBPath, "history is in memory by default")
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvModel, "models/census.cue")
	t.Setenv(EnvSource, "names")
	t.Setenv(EnvListenAddr, "127.0.0.1:9000")
	t.Setenv(EnvDB, "/tmp/composer.db")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvCORSOrigins, "http://localhost:3000, https://app.example.com,")

	cfg := LoadFromEnv()
	assert.Equal(t, "models/census.cue", cfg.ModelPath)
	assert.Equal(t, "names", cfg.Source)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, "/tmp/composer.db", cfg.DBPath)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, []string{"http://localhost:3000", "https://app.example.com"}, cfg.CORSOrigins)
	require.NoError(t, cfg.Validate())
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.want, (&Config{LogLevel: tt.level}).SlogLevel())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{ModelPath: "m.cue", Source: "names", ListenAddr: ":8080", LogLevel: "info", CORSOrigins: []string{"*"}}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no model", func(c *Config) { c.ModelPath = "" }, EnvModel},
		{"no source", func(c *Config) { c.Source = "" }, EnvSource},
		{"no addr", func(c *Config) { c.ListenAddr = "" }, "listen address"},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"mixed wildcard", func(c *Config) { c.CORSOrigins = []string{"*", "http://x"} }, "wildcard"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
