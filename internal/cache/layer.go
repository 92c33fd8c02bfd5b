package cache

import (
	"context"
	"encoding/json"
	"time"

	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// Layer is a JSON-typed, failure-tolerant view over a Backend. A nil *Layer
// is a valid, always-missing cache.
type Layer struct {
	backend Backend
	ttl     time.Duration
	logger  logpkg.Logger
}

// NewLayer returns a Layer writing entries with the given TTL.
func NewLayer(backend Backend, ttl time.Duration, logger logpkg.Logger) *Layer {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Layer{backend: backend, ttl: ttl, logger: logger}
}

// Get decodes the cached value for key into dst and reports a hit. Backend
// and decode failures count as misses.
func (l *Layer) Get(ctx context.Context, key string, dst any) bool {
	if l == nil || l.backend == nil {
		return false
	}
	b, ok, err := l.backend.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache read failed", logpkg.Str("key", key), logpkg.Err(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		l.logger.Warn("cache decode failed", logpkg.Str("key", key), logpkg.Err(err))
		return false
	}
	return true
}

// Set stores v under key; failures are logged.
func (l *Layer) Set(ctx context.Context, key string, v any) {
	if l == nil || l.backend == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("cache encode failed", logpkg.Str("key", key), logpkg.Err(err))
		return
	}
	if err := l.backend.Set(ctx, key, b, l.ttl); err != nil {
		l.logger.Warn("cache write failed", logpkg.Str("key", key), logpkg.Err(err))
	}
}

// Invalidate removes keys; failures are logged.
func (l *Layer) Invalidate(ctx context.Context, keys ...string) {
	if l == nil || l.backend == nil || len(keys) == 0 {
		return
	}
	if err := l.backend.Delete(ctx, keys...); err != nil {
		l.logger.Warn("cache invalidate failed", logpkg.F("keys", keys), logpkg.Err(err))
	}
}
