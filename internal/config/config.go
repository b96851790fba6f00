// Package config manages owotrackd daemon configuration using koanf/v2.
//
// Supports YAML files and environment variable overrides; there is no
// flag layer in Load.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete owotrackd configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Introspect IntrospectConfig `koanf:"introspect"`
	Log        LogConfig        `koanf:"log"`
}

// ServerConfig holds the UDP tracker server configuration.
type ServerConfig struct {
	// Port is the UDP port the event loop listens on.
	Port uint16 `koanf:"port"`
	// ThreadName is used only in log messages, matching the reference
	// firmware's naming of its own receive thread.
	ThreadName string `koanf:"thread_name"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9100").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// IntrospectConfig holds the plain HTTP introspection API configuration.
type IntrospectConfig struct {
	// Addr is the HTTP listen address for the introspection API.
	Addr string `koanf:"addr"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults. Port
// 6969 matches the SlimeVR server's conventional listen port, preserved
// here so existing tracker firmware needs no reconfiguration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       6969,
			ThreadName: "Sensors",
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Introspect: IntrospectConfig{
			Addr: ":9970",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for owotrackd configuration.
// Variables are named OWOTRACKD_<section>_<key>, e.g., OWOTRACKD_SERVER_PORT.
const envPrefix = "OWOTRACKD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (OWOTRACKD_ prefix), and merges on top of
// DefaultConfig(). Missing fields inherit defaults. An empty path skips the
// file layer (defaults and environment overrides still apply); a non-empty
// path that cannot be read is an error.
//
// Environment variable mapping:
//
//	OWOTRACKD_SERVER_PORT     -> server.port
//	OWOTRACKD_SERVER_THREAD_NAME -> server.thread_name
//	OWOTRACKD_METRICS_ADDR    -> metrics.addr
//	OWOTRACKD_METRICS_PATH    -> metrics.path
//	OWOTRACKD_INTROSPECT_ADDR -> introspect.addr
//	OWOTRACKD_LOG_LEVEL       -> log.level
//	OWOTRACKD_LOG_FORMAT      -> log.format
//
// Uses koanf/v2 with file + env providers and YAML parser.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms OWOTRACKD_SERVER_PORT -> server.port.
// Strips the OWOTRACKD_ prefix, lowercases, and replaces the first _ (the
// section separator) with ., so OWOTRACKD_SERVER_THREAD_NAME maps to
// server.thread_name.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"server.port":        defaults.Server.Port,
		"server.thread_name": defaults.Server.ThreadName,
		"metrics.addr":       defaults.Metrics.Addr,
		"metrics.path":       defaults.Metrics.Path,
		"introspect.addr":    defaults.Introspect.Addr,
		"log.level":          defaults.Log.Level,
		"log.format":         defaults.Log.Format,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrInvalidPort indicates the server port is zero.
	ErrInvalidPort = errors.New("server.port must be nonzero")

	// ErrEmptyThreadName indicates the server thread name is empty.
	ErrEmptyThreadName = errors.New("server.thread_name must not be empty")

	// ErrEmptyMetricsAddr indicates the metrics listen address is empty.
	ErrEmptyMetricsAddr = errors.New("metrics.addr must not be empty")

	// ErrEmptyIntrospectAddr indicates the introspection listen address is empty.
	ErrEmptyIntrospectAddr = errors.New("introspect.addr must not be empty")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Server.Port == 0 {
		return ErrInvalidPort
	}
	if cfg.Server.ThreadName == "" {
		return ErrEmptyThreadName
	}
	if cfg.Metrics.Addr == "" {
		return ErrEmptyMetricsAddr
	}
	if cfg.Introspect.Addr == "" {
		return ErrEmptyIntrospectAddr
	}

	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
