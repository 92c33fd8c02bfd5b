package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
	"github.com/redis/go-redis/v9"
)

// Memory records events in emission order.
type Memory struct {
	mu     sync.Mutex
	events []queue.Event
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Emit(_ context.Context, ev queue.Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything emitted so far.
func (m *Memory) Events() []queue.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]queue.Event(nil), m.events...)
}

// Log writes each event as a structured log line.
type Log struct {
	logger logpkg.Logger
}

func NewLog(logger logpkg.Logger) *Log {
	return &Log{logger: logger.WithComponent("events")}
}

func (l *Log) Emit(_ context.Context, ev queue.Event) error {
	fields := []logpkg.Field{
		logpkg.Str("event_id", ev.ID),
		logpkg.Str("type", string(ev.Type)),
		logpkg.Str("entry", ev.Entry.ID),
		logpkg.Str("status", string(ev.Entry.Status)),
		logpkg.Int64("position", ev.Entry.Position),
	}
	if ev.TechnicianID != "" {
		fields = append(fields, logpkg.Str("technician", ev.TechnicianID))
	}
	if ev.PreviousStatus != "" {
		fields = append(fields, logpkg.Str("previous_status", string(ev.PreviousStatus)))
	}
	l.logger.Info("queue event", fields...)
	return nil
}

// Redis publishes the JSON event on a channel.
type Redis struct {
	rdb     redis.Cmdable
	channel string
}

// DefaultRedisChannel is used when NewRedis gets an empty channel.
const DefaultRedisChannel = "walkin.events"

func NewRedis(rdb redis.Cmdable, channel string) *Redis {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &Redis{rdb: rdb, channel: channel}
}

func (r *Redis) Emit(ctx context.Context, ev queue.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.rdb.Publish(ctx, r.channel, body).Err()
}

// Multi emits to every sink and joins their errors.
type Multi []queue.EventSink

func (m Multi) Emit(ctx context.Context, ev queue.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
