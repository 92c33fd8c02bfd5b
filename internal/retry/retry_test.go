package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")
var errFatal = errors.New("fatal")

func onlyFlaky(err error) bool { return errors.Is(err, errFlaky) }

func newTestExecutor(cfg Config, slept *[]time.Duration) *Executor {
	e := New(cfg)
	e.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return e
}

func TestDelayFormula(t *testing.T) {
	cfg := Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := cfg.Delay(i + 1); got != w {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
		}
	}
}

func TestSucceedsAfterRetryableFailures(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(Config{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second, BackoffFactor: 3, Retryable: onlyFlaky}, &slept)
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Millisecond || slept[1] != 3*time.Millisecond {
		t.Fatalf("unexpected delays: %v", slept)
	}
}

func TestFatalErrorIsNotRetried(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(Config{MaxAttempts: 5, Retryable: onlyFlaky}, &slept)
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return errFatal
	})
	if !errors.Is(err, errFatal) || calls != 1 {
		t.Fatalf("want single fatal call, got calls=%d err=%v", calls, err)
	}
	if IsExhausted(err) {
		t.Fatalf("fatal error must not be reported as exhausted")
	}
}

func TestExhaustionReturnsLastError(t *testing.T) {
	var slept []time.Duration
	e := newTestExecutor(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, BackoffFactor: 2, Retryable: onlyFlaky}, &slept)
	calls := 0
	err := e.Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	var ee *ExhaustedError
	if !errors.As(err, &ee) {
		t.Fatalf("want ExhaustedError, got %v", err)
	}
	if ee.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts=%d calls=%d", ee.Attempts, calls)
	}
	if !errors.Is(err, errFlaky) {
		t.Fatalf("exhausted error should unwrap to last error")
	}
	if len(slept) != 2 {
		t.Fatalf("no sleep after final attempt, got %v", slept)
	}
}

func TestContextCancellationStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	e := New(Config{MaxAttempts: 10, BaseDelay: time.Hour, BackoffFactor: 1, Retryable: onlyFlaky})
	done := make(chan error, 1)
	go func() {
		done <- e.Do(ctx, func(context.Context) error { return errFlaky })
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("executor did not observe cancellation")
	}
}

func TestValue(t *testing.T) {
	e := New(Config{MaxAttempts: 2, Retryable: onlyFlaky})
	calls := 0
	v, err := Value(context.Background(), e, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errFlaky
		}
		return 42, nil
	})
	if err != nil || v != 42 {
		t.Fatalf("value: %v %v", v, err)
	}
}
