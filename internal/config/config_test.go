package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store.Backend != BackendPebble {
		t.Fatalf("default backend: %q", cfg.Store.Backend)
	}
	if cfg.Queue.ScanLimit != 50 {
		t.Fatalf("scan limit default")
	}
	if cfg.Queue.EntryTTL() != 12*time.Hour {
		t.Fatalf("entry ttl default: %v", cfg.Queue.EntryTTL())
	}
	if cfg.Queue.SessionTTL() != 15*time.Minute {
		t.Fatalf("session ttl default")
	}
	if !cfg.WorkOrders.Enabled || cfg.WorkOrders.MaxDeliveries != 5 {
		t.Fatalf("work order defaults: %+v", cfg.WorkOrders)
	}
	if !cfg.Events.Journal || cfg.Events.JournalRetention() != 7*24*time.Hour {
		t.Fatalf("journal defaults: %+v", cfg.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "walkin.json")
	data := []byte(`{"store":{"backend":"memory"},"queue":{"scanLimit":10,"entryTtlMs":60000}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory {
		t.Fatalf("expected memory, got %q", cfg.Store.Backend)
	}
	if cfg.Queue.ScanLimit != 10 {
		t.Fatalf("expected 10")
	}
	if cfg.Queue.EntryTTL() != time.Minute {
		t.Fatalf("expected 1m, got %v", cfg.Queue.EntryTTL())
	}
	// untouched fields keep defaults
	if cfg.Queue.SessionTTL() != 15*time.Minute {
		t.Fatalf("session ttl lost")
	}
}

func TestLoadJSONWithComments(t *testing.T) {
	file := filepath.Join(t.TempDir(), "walkin.jsonc")
	data := []byte(`{
		// memory store for local runs
		"store": {"backend": "memory"},
		/* shorter tickets */
		"queue": {"entryTtlMs": 60000,},
	}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendMemory || cfg.Queue.EntryTTL() != time.Minute {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "walkin.yaml")
	data := []byte("store:\n  backend: redis\nredis:\n  url: redis://localhost:6379/0\ncache:\n  backend: redis\n  ttlMs: 5000\n")
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != BackendRedis || cfg.Cache.Backend != BackendRedis {
		t.Fatalf("backends: %+v %+v", cfg.Store, cfg.Cache)
	}
	if cfg.Cache.TTL() != 5*time.Second {
		t.Fatalf("cache ttl: %v", cfg.Cache.TTL())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("WALKIN_STORE_BACKEND", "postgres")
	t.Setenv("WALKIN_POSTGRES_DSN", "postgres://localhost/walkin")
	t.Setenv("WALKIN_QUEUE_SCAN_LIMIT", "24")
	t.Setenv("WALKIN_WORKORDERS_ENABLED", "false")
	t.Setenv("WALKIN_WORKORDERS_MAX_DELIVERIES", "9")
	t.Setenv("WALKIN_RETRY_BACKOFF_FACTOR", "1.5")
	t.Setenv("WALKIN_CACHE_TTL_MS", "not-a-number")
	t.Setenv("WALKIN_EVENTS_JOURNAL", "false")
	FromEnv(&cfg)
	if cfg.Events.Journal {
		t.Fatalf("journal should be disabled")
	}
	if cfg.Store.Backend != BackendPostgres || cfg.Store.PostgresDSN == "" {
		t.Fatalf("store: %+v", cfg.Store)
	}
	if cfg.Queue.ScanLimit != 24 {
		t.Fatalf("expected 24")
	}
	if cfg.WorkOrders.Enabled || cfg.WorkOrders.MaxDeliveries != 9 {
		t.Fatalf("work orders: %+v", cfg.WorkOrders)
	}
	if cfg.Retry.BackoffFactor != 1.5 {
		t.Fatalf("backoff factor")
	}
	if cfg.Cache.TTLMs != 30_000 {
		t.Fatalf("malformed value should be ignored, got %d", cfg.Cache.TTLMs)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	if err := os.WriteFile(file, []byte("WALKIN_HTTP_ADDR=:9999\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("WALKIN_HTTP_ADDR", "")
	os.Unsetenv("WALKIN_HTTP_ADDR")
	if err := LoadDotEnv(file, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("dotenv: %v", err)
	}
	cfg := Default()
	FromEnv(&cfg)
	if cfg.HTTPAddr != ":9999" {
		t.Fatalf("http addr: %q", cfg.HTTPAddr)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store.Backend = "mongo" }},
		{"redis without url", func(c *Config) { c.Store.Backend = BackendRedis }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = BackendPostgres }},
		{"unknown cache", func(c *Config) { c.Cache.Backend = "memcached" }},
		{"redis events without url", func(c *Config) { c.Events.RedisChannel = "x" }},
		{"negative scan", func(c *Config) { c.Queue.ScanLimit = -1 }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTLMs = 0 }},
		{"negative redis cache ttl", func(c *Config) {
			c.Cache.Backend = BackendRedis
			c.Redis.URL = "redis://localhost:6379"
			c.Cache.TTLMs = -5
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mut(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Cache.Backend = BackendNone
	cfg.Cache.TTLMs = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled cache needs no ttl: %v", err)
	}
}
