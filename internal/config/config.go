/*
Copyright (C) 2026 Friends Incode

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

// Tile origin selection.
const (
	TileSourceHTTP = "http"
	TileSourceS3   = "s3"
	TileSourceFS   = "fs"
)

// Event transports.
const (
	EventTransportLocal = "local"
	EventTransportNATS  = "nats"
	EventTransportRedis = "redis"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	MetricsBind string
	InstanceID  string

	// Intervals come from a YAML manifest or from the catalog database.
	Manifest  string
	Dataset   string
	DBBackend DatabaseBackend
	DBDSN     string

	// Tile origin
	TileSource      string
	TileURL         string // URL template for the http source
	TileRoot        string // Directory for the fs source
	TilePrefix      string // Key prefix inside the bucket or directory
	TileContentType string
	FetchTimeout    time.Duration
	MaxInFlight     int

	// S3 Object Storage configuration
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3UsePathStyle    bool   // Required for MinIO

	// Completed-tile store. Empty RedisAddr keeps tiles in process memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TileTTL       time.Duration

	// Cross-node events: local, nats or redis. Empty picks nats when
	// NATSURL is set and local otherwise.
	EventTransport string
	NATSURL        string
	NATSToken      string

	// Scheduler and playback
	Lookahead      time.Duration
	BufferCapacity int
	BufferTrim     int
	TickInterval   time.Duration
	Multiplier     float64
	ClockRange     string // unbounded, clamped or loop
	StartTime      time.Time
	Paused         bool

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads environment variables and applies defaults without
// validating. Commands that only need part of the configuration use it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Environment: getEnvAny([]string{"TIMETILE_ENV"}, "development"),
		HTTPBind:    getEnvAny([]string{"TIMETILE_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:    getEnvIntAny([]string{"TIMETILE_HTTP_PORT", "PORT"}, 8080),
		MetricsBind: getEnvAny([]string{"TIMETILE_METRICS_BIND"}, "127.0.0.1:9000"),
		InstanceID:  getEnvAny([]string{"TIMETILE_INSTANCE_ID"}, ""),

		Manifest:  getEnvAny([]string{"TIMETILE_MANIFEST"}, ""),
		Dataset:   getEnvAny([]string{"TIMETILE_DATASET"}, ""),
		DBBackend: DatabaseBackend(getEnvAny([]string{"TIMETILE_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:     getEnvAny([]string{"TIMETILE_DB_DSN"}, "timetile.db"),

		TileSource:      strings.ToLower(getEnvAny([]string{"TIMETILE_TILE_SOURCE"}, TileSourceHTTP)),
		TileURL:         getEnvAny([]string{"TIMETILE_TILE_URL"}, ""),
		TileRoot:        getEnvAny([]string{"TIMETILE_TILE_ROOT"}, "./tiles"),
		TilePrefix:      getEnvAny([]string{"TIMETILE_TILE_PREFIX"}, ""),
		TileContentType: getEnvAny([]string{"TIMETILE_TILE_CONTENT_TYPE"}, ""),
		FetchTimeout:    time.Duration(getEnvIntAny([]string{"TIMETILE_FETCH_TIMEOUT_SECONDS"}, 30)) * time.Second,
		MaxInFlight:     getEnvIntAny([]string{"TIMETILE_MAX_INFLIGHT"}, 16),

		S3AccessKeyID:     getEnvAny([]string{"TIMETILE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"TIMETILE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"TIMETILE_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"TIMETILE_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"TIMETILE_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"TIMETILE_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		RedisAddr:     getEnvAny([]string{"TIMETILE_REDIS_ADDR"}, ""),
		RedisPassword: getEnvAny([]string{"TIMETILE_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"TIMETILE_REDIS_DB"}, 0),
		TileTTL:       time.Duration(getEnvIntAny([]string{"TIMETILE_TILE_TTL_SECONDS"}, 600)) * time.Second,

		EventTransport: strings.ToLower(getEnvAny([]string{"TIMETILE_EVENT_TRANSPORT"}, "")),
		NATSURL:        getEnvAny([]string{"TIMETILE_NATS_URL", "NATS_URL"}, ""),
		NATSToken:      getEnvAny([]string{"TIMETILE_NATS_TOKEN"}, ""),

		Lookahead:      time.Duration(getEnvFloatAny([]string{"TIMETILE_LOOKAHEAD_SECONDS"}, 5.0) * float64(time.Second)),
		BufferCapacity: getEnvIntAny([]string{"TIMETILE_BUFFER_CAPACITY"}, 512),
		BufferTrim:     getEnvIntAny([]string{"TIMETILE_BUFFER_TRIM"}, 256),
		TickInterval:   time.Duration(getEnvIntAny([]string{"TIMETILE_TICK_MS"}, 100)) * time.Millisecond,
		Multiplier:     getEnvFloatAny([]string{"TIMETILE_MULTIPLIER"}, 1.0),
		ClockRange:     strings.ToLower(getEnvAny([]string{"TIMETILE_CLOCK_RANGE"}, "loop")),
		Paused:         getEnvBoolAny([]string{"TIMETILE_PAUSED"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"TIMETILE_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TIMETILE_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TIMETILE_TRACING_SAMPLE_RATE"}, 1.0),
	}

	if v := getEnvAny([]string{"TIMETILE_START_TIME"}, ""); v != "" {
		start, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, fmt.Errorf("TIMETILE_START_TIME must be RFC 3339: %w", err)
		}
		cfg.StartTime = start
	}
	if cfg.EventTransport == "" {
		cfg.EventTransport = EventTransportLocal
		if cfg.NATSURL != "" {
			cfg.EventTransport = EventTransportNATS
		}
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.DBBackend != DatabasePostgres && c.DBBackend != DatabaseMySQL && c.DBBackend != DatabaseSQLite {
		return fmt.Errorf("unsupported database backend %q", c.DBBackend)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("TIMETILE_DB_DSN must be provided")
	}

	switch c.TileSource {
	case TileSourceHTTP:
		if c.TileURL == "" && c.Manifest == "" {
			return fmt.Errorf("TIMETILE_TILE_URL must be provided for the http tile source")
		}
	case TileSourceS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("TIMETILE_S3_BUCKET or S3_BUCKET must be provided for the s3 tile source")
		}
	case TileSourceFS:
		if c.TileRoot == "" {
			return fmt.Errorf("TIMETILE_TILE_ROOT must be provided for the fs tile source")
		}
	default:
		return fmt.Errorf("unsupported tile source %q", c.TileSource)
	}

	switch c.EventTransport {
	case EventTransportLocal:
	case EventTransportNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("TIMETILE_NATS_URL must be provided for the nats event transport")
		}
	case EventTransportRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("TIMETILE_REDIS_ADDR must be provided for the redis event transport")
		}
	default:
		return fmt.Errorf("TIMETILE_EVENT_TRANSPORT must be local, nats or redis, got %q", c.EventTransport)
	}

	switch c.ClockRange {
	case "unbounded", "clamped", "loop":
	default:
		return fmt.Errorf("TIMETILE_CLOCK_RANGE must be unbounded, clamped or loop, got %q", c.ClockRange)
	}

	if c.MaxInFlight <= 0 {
		return fmt.Errorf("TIMETILE_MAX_INFLIGHT must be positive")
	}
	if c.Lookahead <= 0 {
		return fmt.Errorf("TIMETILE_LOOKAHEAD_SECONDS must be positive")
	}
	if c.BufferCapacity <= 0 || c.BufferTrim <= 0 || c.BufferTrim >= c.BufferCapacity {
		return fmt.Errorf("TIMETILE_BUFFER_TRIM must be positive and below TIMETILE_BUFFER_CAPACITY")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TIMETILE_TICK_MS must be positive")
	}
	if c.TracingSampleRate < 0 || c.TracingSampleRate > 1 {
		return fmt.Errorf("TIMETILE_TRACING_SAMPLE_RATE must be between 0 and 1")
	}
	return nil
}

// HTTPAddr returns the listen address for the tile API.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
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

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
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

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
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

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
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
