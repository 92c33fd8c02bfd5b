package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/clock"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

type item struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func TestMemoryTTL(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	m := NewMemory(clk)
	ctx := context.Background()
	if err := m.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := m.Get(ctx, "k"); !ok || string(v) != "v" {
		t.Fatalf("expected hit")
	}
	clk.Advance(time.Second)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if m.Len() != 0 {
		t.Fatalf("expired item should be dropped on access")
	}
}

func TestMemorySweep(t *testing.T) {
	clk := clock.NewManual(time.Unix(1000, 0))
	m := NewMemory(clk)
	ctx := context.Background()
	_ = m.Set(ctx, "a", []byte("1"), time.Second)
	_ = m.Set(ctx, "b", []byte("2"), time.Minute)
	clk.Advance(2 * time.Second)
	if n := m.Sweep(); n != 1 {
		t.Fatalf("sweep removed %d", n)
	}
	if _, ok, _ := m.Get(ctx, "b"); !ok {
		t.Fatalf("b should survive")
	}
}

func TestLayerRoundTripAndInvalidate(t *testing.T) {
	l := NewLayer(NewMemory(nil), time.Minute, nil)
	ctx := context.Background()
	l.Set(ctx, "entry:1", item{ID: "1", Count: 2})
	var got item
	if !l.Get(ctx, "entry:1", &got) || got.Count != 2 {
		t.Fatalf("expected cached item, got %+v", got)
	}
	l.Invalidate(ctx, "entry:1")
	if l.Get(ctx, "entry:1", &got) {
		t.Fatalf("expected miss after invalidate")
	}
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("down")
}
func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("down")
}
func (brokenBackend) Delete(context.Context, ...string) error { return errors.New("down") }

func TestLayerSwallowsBackendErrors(t *testing.T) {
	l := NewLayer(brokenBackend{}, time.Minute, logpkg.NewNopLogger())
	ctx := context.Background()
	l.Set(ctx, "k", item{ID: "x"})
	var got item
	if l.Get(ctx, "k", &got) {
		t.Fatalf("broken backend must read as miss")
	}
	l.Invalidate(ctx, "k")
}

func TestNilLayerIsMiss(t *testing.T) {
	var l *Layer
	var got item
	if l.Get(context.Background(), "k", &got) {
		t.Fatalf("nil layer must miss")
	}
	l.Set(context.Background(), "k", item{})
	l.Invalidate(context.Background(), "k")
}

func TestRedisBackend(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRedis(rdb, "walkin:cache:")
	ctx := context.Background()

	mock.ExpectGet("walkin:cache:entry:1").RedisNil()
	if _, ok, err := r.Get(ctx, "entry:1"); ok || err != nil {
		t.Fatalf("expected clean miss, ok=%v err=%v", ok, err)
	}

	mock.ExpectSet("walkin:cache:entry:1", []byte(`{"id":"1"}`), 30*time.Second).SetVal("OK")
	if err := r.Set(ctx, "entry:1", []byte(`{"id":"1"}`), 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	mock.ExpectGet("walkin:cache:entry:1").SetVal(`{"id":"1"}`)
	v, ok, err := r.Get(ctx, "entry:1")
	if err != nil || !ok || string(v) != `{"id":"1"}` {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}

	mock.ExpectDel("walkin:cache:entry:1", "walkin:cache:entries:active").SetVal(2)
	if err := r.Delete(ctx, "entry:1", "entries:active"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("redis expectations: %v", err)
	}
}

func TestRedisBackendSkipsNonPositiveTTL(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := NewRedis(rdb, "walkin:cache:")
	ctx := context.Background()

	for _, ttl := range []time.Duration{0, -time.Second} {
		if err := r.Set(ctx, "entry:1", []byte(`{"id":"1"}`), ttl); err != nil {
			t.Fatalf("set ttl=%v: %v", ttl, err)
		}
	}
	// No SET is expected, so a command sent above would have returned an error.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("redis expectations: %v", err)
	}

	m := NewMemory(nil)
	_ = m.Set(ctx, "entry:1", []byte("x"), 0)
	if m.Len() != 0 {
		t.Fatalf("memory stored %d items with zero ttl", m.Len())
	}
}
