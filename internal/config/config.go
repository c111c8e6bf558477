/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"path/filepath"
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
// Operator-tunable playout policy lives in the YAML file referenced by
// PolicyPath (see policy.go); everything here is deployment wiring.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string

	DBBackend DatabaseBackend
	DBDSN     string

	// Filesystem layout. MediaRoot holds registered assets, SpoolRoot the
	// three queue directories, InboxDir the drop-in pickup point. All queue
	// paths must live on the same filesystem as their temp directories so
	// rename-based publication stays atomic.
	MediaRoot    string
	SpoolRoot    string
	InboxDir     string
	ProcessedDir string
	LogDir       string

	// Station civil timezone; scheduling buckets are computed in it.
	Timezone string

	PolicyPath string

	JWTSigningKey string

	// Operator flags.
	KillSwitchPath     string
	ForceBreakFlagPath string

	// Emergency loop asset: always present, never pruned, terminal
	// fallback level.
	EmergencyAssetPath string

	// Break generation service (external collaborator).
	BreakGeneratorURL string
	BreakGenTimeout   time.Duration

	// Event mirroring for external consumers (optional).
	NATSURL       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Archive storage for pruned content (optional).
	ArchiveBackend    string // "", "fs" or "s3"
	ArchiveFSRoot     string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3UsePathStyle    bool
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	dataRoot := getEnv("MUNINN_DATA_ROOT", "./data")

	cfg := &Config{
		Environment: getEnv("MUNINN_ENV", "development"),
		HTTPBind:    getEnv("MUNINN_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("MUNINN_HTTP_PORT", 8080),
		MetricsBind: getEnv("MUNINN_METRICS_BIND", "127.0.0.1:9000"),

		DBBackend: DatabaseBackend(getEnv("MUNINN_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:     getEnv("MUNINN_DB_DSN", filepath.Join(dataRoot, "muninn.db")),

		MediaRoot:    getEnv("MUNINN_MEDIA_ROOT", filepath.Join(dataRoot, "media")),
		SpoolRoot:    getEnv("MUNINN_SPOOL_ROOT", filepath.Join(dataRoot, "spool")),
		InboxDir:     getEnv("MUNINN_INBOX_DIR", filepath.Join(dataRoot, "inbox")),
		ProcessedDir: getEnv("MUNINN_PROCESSED_DIR", filepath.Join(dataRoot, "processed")),
		LogDir:       getEnv("MUNINN_LOG_DIR", filepath.Join(dataRoot, "logs")),

		Timezone: getEnv("MUNINN_TIMEZONE", "UTC"),

		PolicyPath: getEnv("MUNINN_POLICY_PATH", ""),

		JWTSigningKey: getEnv("MUNINN_JWT_SIGNING_KEY", ""),

		KillSwitchPath:     getEnv("MUNINN_KILLSWITCH_PATH", filepath.Join(dataRoot, "killswitch")),
		ForceBreakFlagPath: getEnv("MUNINN_FORCE_BREAK_PATH", filepath.Join(dataRoot, "force_break")),

		EmergencyAssetPath: getEnv("MUNINN_EMERGENCY_ASSET", ""),

		BreakGeneratorURL: getEnv("MUNINN_BREAK_GENERATOR_URL", ""),
		BreakGenTimeout:   time.Duration(getEnvInt("MUNINN_BREAK_GEN_TIMEOUT_SECONDS", 300)) * time.Second,

		NATSURL:       getEnv("MUNINN_NATS_URL", ""),
		RedisAddr:     getEnv("MUNINN_REDIS_ADDR", ""),
		RedisPassword: getEnv("MUNINN_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("MUNINN_REDIS_DB", 0),

		TracingEnabled:    getEnvBool("MUNINN_TRACING_ENABLED", false),
		OTLPEndpoint:      getEnv("MUNINN_OTLP_ENDPOINT", "localhost:4317"),
		TracingSampleRate: getEnvFloat("MUNINN_TRACING_SAMPLE_RATE", 1.0),

		ArchiveBackend:    getEnv("MUNINN_ARCHIVE_BACKEND", ""),
		ArchiveFSRoot:     getEnv("MUNINN_ARCHIVE_FS_ROOT", filepath.Join(dataRoot, "archive")),
		S3AccessKeyID:     getEnvAny([]string{"MUNINN_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"MUNINN_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"MUNINN_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"MUNINN_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"MUNINN_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBool("MUNINN_S3_USE_PATH_STYLE", false),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("MUNINN_DB_DSN must be provided")
	}

	if cfg.EmergencyAssetPath == "" {
		return nil, fmt.Errorf("MUNINN_EMERGENCY_ASSET must point at a looping emergency file")
	}

	switch cfg.ArchiveBackend {
	case "", "fs":
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("MUNINN_S3_BUCKET is required when the archive backend is s3")
		}
	default:
		return nil, fmt.Errorf("unsupported archive backend %q", cfg.ArchiveBackend)
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("MUNINN_JWT_SIGNING_KEY must be provided in production")
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
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "true" || v == "1" || v == "yes" {
			return true
		}
		if v == "false" || v == "0" || v == "no" {
			return false
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}
