package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/streadway/amqp"
)

// DefaultExchange is the fanout exchange queue events are published to.
const DefaultExchange = "walkin.events"

// Publisher is the part of an AMQP channel the sink needs.
type Publisher interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQP publishes events to a durable fanout exchange. The exchange is
// declared once, on the first Emit.
type AMQP struct {
	pub      Publisher
	exchange string
	closer   func() error

	mu       sync.Mutex
	declared bool
}

// NewAMQP wraps an already open channel.
func NewAMQP(pub Publisher, exchange string) *AMQP {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQP{pub: pub, exchange: exchange}
}

// DialAMQP connects to url and opens a channel for publishing.
func DialAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	s := NewAMQP(ch, exchange)
	s.closer = func() error {
		ch.Close()
		return conn.Close()
	}
	return s, nil
}

func (a *AMQP) Emit(_ context.Context, ev queue.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.declared {
		if err := a.pub.ExchangeDeclare(a.exchange, "fanout", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", a.exchange, err)
		}
		a.declared = true
	}
	return a.pub.Publish(a.exchange, string(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.OccurredAt.Truncate(time.Second),
		Type:         string(ev.Type),
		Body:         body,
	})
}

// Close releases the connection opened by DialAMQP.
func (a *AMQP) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer()
}
