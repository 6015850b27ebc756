/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package config covers process-level configuration for the
// mediafoxctl binary and devtools server. Library callers configure
// an engine instance directly via engine.Options; this package only
// governs the handful of ambient concerns a host process needs:
// log level, metrics bind address, OTLP endpoint, position-store DSN.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseBackend selects the dialector used by internal/position.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	LogLevel    string

	MetricsBind string

	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Position-store backend, used by internal/position for
	// playlist savedPosition persistence across process restarts.
	PositionBackend DatabaseBackend
	PositionDSN     string

	// Redis-backed shared cache for the fallback transcoder
	// (internal/transcode), optional.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// S3 configuration for network-backed MediaSource resolution
	// (internal/source).
	S3Region        string
	S3Endpoint      string
	S3UsePathStyle  bool

	DebugServerBind string

	LegacyEnvWarnings []string
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:       getEnvAny([]string{"MEDIAFOX_ENV"}, "development"),
		LogLevel:          getEnvAny([]string{"MEDIAFOX_LOG_LEVEL"}, ""),
		MetricsBind:       getEnvAny([]string{"MEDIAFOX_METRICS_BIND"}, "127.0.0.1:9000"),
		TracingEnabled:    getEnvBoolAny([]string{"MEDIAFOX_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"MEDIAFOX_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"MEDIAFOX_TRACING_SAMPLE_RATE"}, 1.0),

		PositionBackend: DatabaseBackend(getEnvAny([]string{"MEDIAFOX_POSITION_BACKEND"}, string(DatabaseSQLite))),
		PositionDSN:     getEnvAny([]string{"MEDIAFOX_POSITION_DSN"}, "file:mediafox_position.db?cache=shared"),

		RedisAddr:     getEnvAny([]string{"MEDIAFOX_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"MEDIAFOX_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"MEDIAFOX_REDIS_DB"}, 0),

		S3Region:       getEnvAny([]string{"MEDIAFOX_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Endpoint:     getEnvAny([]string{"MEDIAFOX_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle: getEnvBoolAny([]string{"MEDIAFOX_S3_USE_PATH_STYLE"}, false),

		DebugServerBind: getEnvAny([]string{"MEDIAFOX_DEBUG_BIND"}, "127.0.0.1:9900"),
	}

	switch cfg.PositionBackend {
	case DatabasePostgres, DatabaseMySQL, DatabaseSQLite:
	default:
		return nil, fmt.Errorf("unsupported position backend %q", cfg.PositionBackend)
	}

	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":   "use MEDIAFOX_ENV",
		"LOG_LEVEL":     "use MEDIAFOX_LOG_LEVEL",
		"OTLP_ENDPOINT": "use MEDIAFOX_OTLP_ENDPOINT",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// DecoderWarmupTimeout is a 10-second decoder warmup bound. No package
// reads it: the decode pipeline does not time out a decoder that is
// slow to produce its first frame.
const DecoderWarmupTimeout = 10 * time.Second

func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}
