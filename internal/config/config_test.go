package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SNAPSHOT_BACKEND", "AUTOSAVE_DEBOUNCE_MS", "TICK_INTERVAL_MS", "PAPER_DIR", "ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.SnapshotBackend != SnapshotBackendRedis {
		t.Fatalf("expected redis backend, got %q", cfg.SnapshotBackend)
	}
	if cfg.AutosaveDelay != 2*time.Second || cfg.TickInterval != time.Second {
		t.Fatalf("unexpected timings %v/%v", cfg.AutosaveDelay, cfg.TickInterval)
	}
	if cfg.PaperDir != "" || cfg.AllowedOrigins != nil {
		t.Fatalf("unexpected paper dir %q or origins %v", cfg.PaperDir, cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SNAPSHOT_BACKEND", " Postgres ")
	t.Setenv("AUTOSAVE_DEBOUNCE_MS", "500")
	t.Setenv("FLUSH_TIMEOUT_MS", "not-a-number")
	t.Setenv("SNAPSHOT_TTL_HOURS", "6")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	if cfg.SnapshotBackend != SnapshotBackendPostgres {
		t.Fatalf("expected postgres backend, got %q", cfg.SnapshotBackend)
	}
	if cfg.AutosaveDelay != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", cfg.AutosaveDelay)
	}
	if cfg.FlushTimeout != 3*time.Second {
		t.Fatalf("expected fallback flush timeout, got %v", cfg.FlushTimeout)
	}
	if cfg.SnapshotTTL != 6*time.Hour {
		t.Fatalf("expected 6h ttl, got %v", cfg.SnapshotTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", cfg.AllowedOrigins)
	}
}

func TestParseBackendUnknown(t *testing.T) {
	if got := parseBackend("etcd"); got != SnapshotBackendRedis {
		t.Fatalf("expected redis fallback, got %q", got)
	}
}

func TestKeys(t *testing.T) {
	if got := CacheKey.SessionSnapshotKey(7, "cgl-1"); got != "student:7:paper:cgl-1:snapshot" {
		t.Fatalf("unexpected snapshot key %q", got)
	}
	if got := CacheKey.PaperPayloadKey("cgl-1"); got != "paper:cgl-1:payload" {
		t.Fatalf("unexpected paper key %q", got)
	}
}
