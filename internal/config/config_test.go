package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TIMETILE_TILE_URL", "https://tiles.example.com/{date}/{z}/{x}/{y}.png")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Lookahead != 5*time.Second {
		t.Fatalf("Lookahead = %v, want 5s", cfg.Lookahead)
	}
	if cfg.BufferCapacity != 512 || cfg.BufferTrim != 256 {
		t.Fatalf("buffer = %d/%d, want 512/256", cfg.BufferCapacity, cfg.BufferTrim)
	}
	if cfg.DBBackend != DatabaseSQLite {
		t.Fatalf("DBBackend = %q", cfg.DBBackend)
	}
	if cfg.HTTPAddr() != "0.0.0.0:8080" {
		t.Fatalf("HTTPAddr() = %q", cfg.HTTPAddr())
	}
}

func TestLoadReadsSchedulerKeys(t *testing.T) {
	t.Setenv("TIMETILE_TILE_URL", "https://tiles.example.com/{z}/{x}/{y}")
	t.Setenv("TIMETILE_LOOKAHEAD_SECONDS", "2.5")
	t.Setenv("TIMETILE_BUFFER_CAPACITY", "64")
	t.Setenv("TIMETILE_BUFFER_TRIM", "16")
	t.Setenv("TIMETILE_TICK_MS", "250")
	t.Setenv("TIMETILE_MULTIPLIER", "-3600")
	t.Setenv("TIMETILE_START_TIME", "2026-03-01T00:00:00Z")
	t.Setenv("TIMETILE_PAUSED", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Lookahead != 2500*time.Millisecond {
		t.Fatalf("Lookahead = %v", cfg.Lookahead)
	}
	if cfg.BufferCapacity != 64 || cfg.BufferTrim != 16 {
		t.Fatalf("buffer = %d/%d", cfg.BufferCapacity, cfg.BufferTrim)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Fatalf("TickInterval = %v", cfg.TickInterval)
	}
	if cfg.Multiplier != -3600 {
		t.Fatalf("Multiplier = %v", cfg.Multiplier)
	}
	if !cfg.StartTime.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartTime = %v", cfg.StartTime)
	}
	if !cfg.Paused {
		t.Fatal("expected paused")
	}
}

func TestLoadS3FallsBackToAWSKeys(t *testing.T) {
	t.Setenv("TIMETILE_TILE_SOURCE", "s3")
	t.Setenv("S3_BUCKET", "tiles")
	t.Setenv("AWS_REGION", "eu-west-1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.S3Bucket != "tiles" || cfg.S3Region != "eu-west-1" {
		t.Fatalf("s3 = %q/%q", cfg.S3Bucket, cfg.S3Region)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown backend", map[string]string{"TIMETILE_DB_BACKEND": "oracle"}},
		{"http without url", map[string]string{"TIMETILE_TILE_URL": ""}},
		{"s3 without bucket", map[string]string{"TIMETILE_TILE_SOURCE": "s3"}},
		{"unknown source", map[string]string{"TIMETILE_TILE_SOURCE": "ftp"}},
		{"trim above capacity", map[string]string{"TIMETILE_BUFFER_CAPACITY": "10", "TIMETILE_BUFFER_TRIM": "10"}},
		{"zero in flight", map[string]string{"TIMETILE_MAX_INFLIGHT": "0"}},
		{"bad range", map[string]string{"TIMETILE_CLOCK_RANGE": "bounce"}},
		{"bad start", map[string]string{"TIMETILE_START_TIME": "yesterday"}},
		{"bad sample rate", map[string]string{"TIMETILE_TRACING_SAMPLE_RATE": "2"}},
		{"redis events without redis", map[string]string{"TIMETILE_EVENT_TRANSPORT": "redis", "TIMETILE_REDIS_ADDR": ""}},
		{"nats events without url", map[string]string{"TIMETILE_EVENT_TRANSPORT": "nats", "TIMETILE_NATS_URL": "", "NATS_URL": ""}},
		{"unknown event transport", map[string]string{"TIMETILE_EVENT_TRANSPORT": "kafka"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TIMETILE_TILE_URL", "https://tiles.example.com/{z}/{x}/{y}")
			t.Setenv("S3_BUCKET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEventTransportFollowsNATSURL(t *testing.T) {
	t.Setenv("TIMETILE_TILE_URL", "https://tiles.example.com/{z}/{x}/{y}")
	t.Setenv("TIMETILE_EVENT_TRANSPORT", "")
	t.Setenv("TIMETILE_NATS_URL", "")
	t.Setenv("NATS_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventTransport != EventTransportLocal {
		t.Fatalf("EventTransport = %q, want local", cfg.EventTransport)
	}

	t.Setenv("NATS_URL", "nats://127.0.0.1:4222")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.EventTransport != EventTransportNATS || cfg.NATSURL != "nats://127.0.0.1:4222" {
		t.Fatalf("events = %q via %q", cfg.EventTransport, cfg.NATSURL)
	}
}

func TestFromEnvSkipsValidation(t *testing.T) {
	t.Setenv("TIMETILE_TILE_URL", "")
	t.Setenv("TIMETILE_MANIFEST", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject a missing tile URL")
	}
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.DBDSN != "timetile.db" {
		t.Fatalf("DBDSN = %q", cfg.DBDSN)
	}
}
