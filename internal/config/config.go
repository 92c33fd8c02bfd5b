package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPebble   = "pebble"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendNone     = "none"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir    string           `json:"dataDir" yaml:"dataDir"`
	HTTPAddr   string           `json:"httpAddr" yaml:"httpAddr"`
	GRPCAddr   string           `json:"grpcAddr" yaml:"grpcAddr"`
	Log        logpkg.Config    `json:"log" yaml:"log"`
	Queue      QueueConfig      `json:"queue" yaml:"queue"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Events     EventsConfig     `json:"events" yaml:"events"`
	Retry      RetryConfig      `json:"retry" yaml:"retry"`
	Auth       AuthConfig       `json:"auth" yaml:"auth"`
	WorkOrders WorkOrdersConfig `json:"workOrders" yaml:"workOrders"`
}

// QueueConfig holds engine tunables. Durations are milliseconds.
type QueueConfig struct {
	EntryTTLMs       int64 `json:"entryTtlMs" yaml:"entryTtlMs"`
	SessionTTLMs     int64 `json:"sessionTtlMs" yaml:"sessionTtlMs"`
	SessionSweepMs   int64 `json:"sessionSweepMs" yaml:"sessionSweepMs"`
	ScanLimit        int   `json:"scanLimit" yaml:"scanLimit"`
	AvgServiceTimeMs int64 `json:"avgServiceTimeMs" yaml:"avgServiceTimeMs"`
	WatchPollMs      int64 `json:"watchPollMs" yaml:"watchPollMs"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is one of memory, pebble, redis or postgres.
	Backend string `json:"backend" yaml:"backend"`
	// Fsync is the Pebble WAL policy: always, interval or never.
	Fsync       string `json:"fsync" yaml:"fsync"`
	PostgresDSN string `json:"postgresDsn" yaml:"postgresDsn"`
}

// RedisConfig is shared by the redis store, cache and event sink.
type RedisConfig struct {
	URL    string `json:"url" yaml:"url"`
	Prefix string `json:"prefix" yaml:"prefix"`
}

// CacheConfig selects the read cache.
type CacheConfig struct {
	// Backend is one of memory, redis or none.
	Backend string `json:"backend" yaml:"backend"`
	TTLMs   int64  `json:"ttlMs" yaml:"ttlMs"`
}

// EventsConfig enables event sinks. Empty values disable a sink.
type EventsConfig struct {
	Log          bool   `json:"log" yaml:"log"`
	RedisChannel string `json:"redisChannel" yaml:"redisChannel"`
	AMQPURL      string `json:"amqpUrl" yaml:"amqpUrl"`
	AMQPExchange string `json:"amqpExchange" yaml:"amqpExchange"`
	// Journal keeps a replayable event history in Pebble.
	Journal            bool  `json:"journal" yaml:"journal"`
	JournalRetentionMs int64 `json:"journalRetentionMs" yaml:"journalRetentionMs"`
	JournalTrimMs      int64 `json:"journalTrimMs" yaml:"journalTrimMs"`
}

// RetryConfig bounds store retries.
type RetryConfig struct {
	MaxAttempts   int     `json:"maxAttempts" yaml:"maxAttempts"`
	BaseDelayMs   int64   `json:"baseDelayMs" yaml:"baseDelayMs"`
	MaxDelayMs    int64   `json:"maxDelayMs" yaml:"maxDelayMs"`
	BackoffFactor float64 `json:"backoffFactor" yaml:"backoffFactor"`
}

// AuthConfig protects staff routes when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `json:"jwtSecret" yaml:"jwtSecret"`
	Issuer    string `json:"issuer" yaml:"issuer"`
}

// WorkOrdersConfig controls the work-order outbox.
type WorkOrdersConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`
	Queue         string `json:"queue" yaml:"queue"`
	LeaseMs       int64  `json:"leaseMs" yaml:"leaseMs"`
	MaxDeliveries uint32 `json:"maxDeliveries" yaml:"maxDeliveries"`
	SweepMs       int64  `json:"sweepMs" yaml:"sweepMs"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		Log:      logpkg.Config{Level: "info", Format: "text"},
		Queue: QueueConfig{
			EntryTTLMs:       (12 * time.Hour).Milliseconds(),
			SessionTTLMs:     (15 * time.Minute).Milliseconds(),
			SessionSweepMs:   (5 * time.Minute).Milliseconds(),
			ScanLimit:        50,
			AvgServiceTimeMs: (15 * time.Minute).Milliseconds(),
			WatchPollMs:      2000,
		},
		Store:  StoreConfig{Backend: BackendPebble, Fsync: "interval"},
		Redis:  RedisConfig{Prefix: "walkin:"},
		Cache:  CacheConfig{Backend: BackendMemory, TTLMs: 30_000},
		Events: EventsConfig{
			Log:                true,
			AMQPExchange:       "walkin.events",
			Journal:            true,
			JournalRetentionMs: 7 * 24 * 3600 * 1000,
			JournalTrimMs:      60_000,
		},
		Retry: RetryConfig{
			MaxAttempts:   5,
			BaseDelayMs:   50,
			MaxDelayMs:    2000,
			BackoffFactor: 2,
		},
		WorkOrders: WorkOrdersConfig{
			Enabled:       true,
			Queue:         "workorders",
			LeaseMs:       (5 * time.Minute).Milliseconds(),
			MaxDeliveries: 5,
			SweepMs:       1000,
		},
	}
}

// Load reads configuration from a JSON(C) or YAML file (by extension) on top
// of Default(). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		// JSON files may carry comments and trailing commas.
		if err := json.Unmarshal(jsonc.ToJSON(b), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate rejects unknown backends and values the engine cannot use.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendPebble:
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("store backend redis requires redis.url")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store backend postgres requires store.postgresDsn")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	switch c.Cache.Backend {
	case BackendMemory, BackendNone, "":
	case BackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("cache backend redis requires redis.url")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend != BackendNone && c.Cache.Backend != "" && c.Cache.TTLMs <= 0 {
		return fmt.Errorf("cache.ttlMs must be positive when a cache backend is set")
	}
	if c.Events.RedisChannel != "" && c.Redis.URL == "" {
		return fmt.Errorf("events.redisChannel requires redis.url")
	}
	if c.Queue.ScanLimit < 0 {
		return fmt.Errorf("queue.scanLimit must not be negative")
	}
	return nil
}

func ms(v int64) time.Duration { return time.Duration(v) * time.Millisecond }

func (q QueueConfig) EntryTTL() time.Duration       { return ms(q.EntryTTLMs) }
func (q QueueConfig) SessionTTL() time.Duration     { return ms(q.SessionTTLMs) }
func (q QueueConfig) SessionSweep() time.Duration   { return ms(q.SessionSweepMs) }
func (q QueueConfig) AvgServiceTime() time.Duration { return ms(q.AvgServiceTimeMs) }
func (q QueueConfig) WatchPoll() time.Duration      { return ms(q.WatchPollMs) }
func (c CacheConfig) TTL() time.Duration            { return ms(c.TTLMs) }
func (w WorkOrdersConfig) Lease() time.Duration     { return ms(w.LeaseMs) }
func (w WorkOrdersConfig) Sweep() time.Duration     { return ms(w.SweepMs) }
func (r RetryConfig) BaseDelay() time.Duration      { return ms(r.BaseDelayMs) }
func (r RetryConfig) MaxDelay() time.Duration       { return ms(r.MaxDelayMs) }

func (e EventsConfig) JournalRetention() time.Duration { return ms(e.JournalRetentionMs) }
func (e EventsConfig) JournalTrim() time.Duration      { return ms(e.JournalTrimMs) }
