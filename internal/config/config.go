/*
Copyright (C) 2026 Coup de Feu

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	DBBackend DatabaseBackend
	DBDSN     string

	// ProfilePath points at the restaurant scheduling profile (YAML). Empty
	// means built-in defaults.
	ProfilePath string

	// SchedulerHorizon bounds the forward feasibility scan and the timeline
	// window. The scan never looks further ahead than this.
	SchedulerHorizon time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("COUPDEFEU_ENV", "development"),
		HTTPBind:    getEnv("COUPDEFEU_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("COUPDEFEU_HTTP_PORT", 8080),
		MetricsBind: getEnv("COUPDEFEU_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("COUPDEFEU_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("COUPDEFEU_DB_DSN", ""),

		ProfilePath:      getEnv("COUPDEFEU_PROFILE_PATH", ""),
		SchedulerHorizon: time.Duration(getEnvInt("COUPDEFEU_SCHEDULER_HORIZON_HOURS", 6)) * time.Hour,

		TracingEnabled:    getEnvBool("COUPDEFEU_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("COUPDEFEU_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("COUPDEFEU_TRACING_SAMPLE_RATE", 1.0),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("COUPDEFEU_DB_DSN must be provided")
	}

	if cfg.SchedulerHorizon <= 0 {
		return nil, fmt.Errorf("COUPDEFEU_SCHEDULER_HORIZON_HOURS must be positive")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "true" || val == "1" || val == "yes" {
			return true
		}
		if val == "false" || val == "0" || val == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}
