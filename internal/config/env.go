package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped;
// with no arguments ".env" is tried.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// FromEnv overlays WALKIN_* environment variables onto cfg. Malformed
// numbers and booleans are ignored.
func FromEnv(cfg *Config) {
	envString("WALKIN_DATA_DIR", &cfg.DataDir)
	envString("WALKIN_HTTP_ADDR", &cfg.HTTPAddr)
	envString("WALKIN_GRPC_ADDR", &cfg.GRPCAddr)
	envString("WALKIN_LOG_LEVEL", &cfg.Log.Level)
	envString("WALKIN_LOG_FORMAT", &cfg.Log.Format)
	envString("WALKIN_LOG_FILE", &cfg.Log.File)

	envInt64("WALKIN_QUEUE_ENTRY_TTL_MS", &cfg.Queue.EntryTTLMs)
	envInt64("WALKIN_QUEUE_SESSION_TTL_MS", &cfg.Queue.SessionTTLMs)
	envInt64("WALKIN_QUEUE_SESSION_SWEEP_MS", &cfg.Queue.SessionSweepMs)
	envInt("WALKIN_QUEUE_SCAN_LIMIT", &cfg.Queue.ScanLimit)
	envInt64("WALKIN_QUEUE_AVG_SERVICE_TIME_MS", &cfg.Queue.AvgServiceTimeMs)
	envInt64("WALKIN_QUEUE_WATCH_POLL_MS", &cfg.Queue.WatchPollMs)

	envString("WALKIN_STORE_BACKEND", &cfg.Store.Backend)
	envString("WALKIN_STORE_FSYNC", &cfg.Store.Fsync)
	envString("WALKIN_POSTGRES_DSN", &cfg.Store.PostgresDSN)
	envString("WALKIN_REDIS_URL", &cfg.Redis.URL)
	envString("WALKIN_REDIS_PREFIX", &cfg.Redis.Prefix)

	envString("WALKIN_CACHE_BACKEND", &cfg.Cache.Backend)
	envInt64("WALKIN_CACHE_TTL_MS", &cfg.Cache.TTLMs)

	envBool("WALKIN_EVENTS_LOG", &cfg.Events.Log)
	envString("WALKIN_EVENTS_REDIS_CHANNEL", &cfg.Events.RedisChannel)
	envString("WALKIN_AMQP_URL", &cfg.Events.AMQPURL)
	envString("WALKIN_AMQP_EXCHANGE", &cfg.Events.AMQPExchange)
	envBool("WALKIN_EVENTS_JOURNAL", &cfg.Events.Journal)
	envInt64("WALKIN_EVENTS_JOURNAL_RETENTION_MS", &cfg.Events.JournalRetentionMs)
	envInt64("WALKIN_EVENTS_JOURNAL_TRIM_MS", &cfg.Events.JournalTrimMs)

	envInt("WALKIN_RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	envInt64("WALKIN_RETRY_BASE_DELAY_MS", &cfg.Retry.BaseDelayMs)
	envInt64("WALKIN_RETRY_MAX_DELAY_MS", &cfg.Retry.MaxDelayMs)
	if v := os.Getenv("WALKIN_RETRY_BACKOFF_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Retry.BackoffFactor = f
		}
	}

	envString("WALKIN_JWT_SECRET", &cfg.Auth.JWTSecret)
	envString("WALKIN_JWT_ISSUER", &cfg.Auth.Issuer)

	envBool("WALKIN_WORKORDERS_ENABLED", &cfg.WorkOrders.Enabled)
	envString("WALKIN_WORKORDERS_QUEUE", &cfg.WorkOrders.Queue)
	envInt64("WALKIN_WORKORDERS_LEASE_MS", &cfg.WorkOrders.LeaseMs)
	envInt64("WALKIN_WORKORDERS_SWEEP_MS", &cfg.WorkOrders.SweepMs)
	if v := os.Getenv("WALKIN_WORKORDERS_MAX_DELIVERIES"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.WorkOrders.MaxDeliveries = uint32(n)
		}
	}
}
