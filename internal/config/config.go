// Package config handles composer configuration loaded from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Environment variable names.
const (
	EnvModel       = "COMPOSER_MODEL"
	EnvSource      = "COMPOSER_SOURCE"
	EnvListenAddr  = "COMPOSER_LISTEN_ADDR"
	EnvDB          = "COMPOSER_DB"
	EnvLogLevel    = "COMPOSER_LOG_LEVEL"
	EnvCORSOrigins = "COMPOSER_CORS_ORIGINS"
)

// Config holds the settings shared by the CLI and the HTTP server.
// Command-line flags override values loaded here.
type Config struct {
	ModelPath   string   // model definition file or CUE package directory
	Source      string   // root source to compose against
	ListenAddr  string   // HTTP listen address (default ":8080")
	DBPath      string   // SQLite file for session history; empty keeps it in memory
	LogLevel    string   // debug, info, warn, error (default "info")
	CORSOrigins []string // allowed browser origins (default ["*"])
}

// LoadFromEnv loads configuration from COMPOSER_* environment variables
// and fills in defaults.
func LoadFromEnv() *Config {
	cfg := &Config{
		ModelPath:  os.Getenv(EnvModel),
		Source:     os.Getenv(EnvSource),
		ListenAddr: os.Getenv(EnvListenAddr),
		DBPath:     os.Getenv(EnvDB),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
	if v := os.Getenv(EnvCORSOrigins); v != "" {
		cfg.CORSOrigins = splitList(v)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return cfg
}

// SlogLevel maps LogLevel to an slog.Level. Unknown names map to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate reports missing or inconsistent settings for serving.
func (c *Config) Validate() error {
	if c.ModelPath == "" {
		return fmt.Errorf("a model is required (set %s or --model)", EnvModel)
	}
	if c.Source == "" {
		return fmt.Errorf("a source is required (set %s or --source)", EnvSource)
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	for _, o := range c.CORSOrigins {
		if o == "*" && len(c.CORSOrigins) > 1 {
			return fmt.Errorf("CORS wildcard (*) cannot be combined with other origins")
		}
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
