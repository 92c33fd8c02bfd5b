// Package retry runs operations with bounded exponential backoff.
//
// The delay before attempt k+1 is min(BaseDelay*BackoffFactor^(k-1), MaxDelay).
// Only errors accepted by Config.Retryable are retried; anything else is
// returned immediately. When attempts run out the caller gets an
// *ExhaustedError wrapping the last failure.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Config bounds a retried operation.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// Retryable classifies errors; nil retries nothing.
	Retryable func(error) bool
	// OnRetry, if set, observes each failed attempt that will be retried.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultConfig is used for store calls unless configured otherwise.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		BaseDelay:     50 * time.Millisecond,
		MaxDelay:      2 * time.Second,
		BackoffFactor: 2,
	}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// IsExhausted reports whether err is (or wraps) an *ExhaustedError.
func IsExhausted(err error) bool {
	var ee *ExhaustedError
	return errors.As(err, &ee)
}

// Delay returns the wait after the given failed attempt (1-based).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 || c.BaseDelay <= 0 {
		return 0
	}
	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	d := float64(c.BaseDelay) * math.Pow(factor, float64(attempt-1))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// Executor applies a fixed Config; it is safe for concurrent use.
type Executor struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns an Executor for cfg.
func New(cfg Config) *Executor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Executor{cfg: cfg, sleep: sleepCtx}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config { return e.cfg }

// Do runs op until it succeeds, fails fatally, or attempts run out.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return fmt.Errorf("%w (last error: %v)", err, last)
			}
			return err
		}
		last = op(ctx)
		if last == nil {
			return nil
		}
		if e.cfg.Retryable == nil || !e.cfg.Retryable(last) {
			return last
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}
		d := e.cfg.Delay(attempt)
		if e.cfg.OnRetry != nil {
			e.cfg.OnRetry(attempt, d, last)
		}
		if err := e.sleep(ctx, d); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, last)
		}
	}
	return &ExhaustedError{Attempts: e.cfg.MaxAttempts, Last: last}
}

// Do is a convenience wrapper for one-off calls.
func Do(ctx context.Context, cfg Config, op func(ctx context.Context) error) error {
	return New(cfg).Do(ctx, op)
}

// Value runs op like Do and returns its result.
func Value[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
