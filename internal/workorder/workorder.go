// Package workorder turns called queue entries into work orders. The
// Outbox persists each CBOR-encoded order in a Pebble-backed lease queue so the workshop
// system can pull, complete or fail them at its own pace.
package workorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/clock"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workqueue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Order is the work order handed to the workshop.
type Order struct {
	ID           string            `json:"id"`
	EntryID      string            `json:"entryId"`
	CustomerID   string            `json:"customerId"`
	TechnicianID string            `json:"technicianId"`
	ServiceType  queue.ServiceType `json:"serviceType"`
	MotorcycleID string            `json:"motorcycleId,omitempty"`
	Plate        string            `json:"plate,omitempty"`
	MileageKm    *float64          `json:"mileageKm,omitempty"`
	Notes        string            `json:"notes,omitempty"`
	Details      queue.Details     `json:"details"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// FromEntry builds the order for an entry called by technicianID.
func FromEntry(id string, e queue.Entry, technicianID string, now time.Time) Order {
	return Order{
		ID:           id,
		EntryID:      e.ID,
		CustomerID:   e.CustomerID,
		TechnicianID: technicianID,
		ServiceType:  e.ServiceType,
		MotorcycleID: e.MotorcycleID,
		Plate:        e.Plate,
		MileageKm:    e.MileageKm,
		Notes:        e.Notes,
		Details:      e.Details,
		CreatedAt:    now.UTC(),
	}
}

// Delivery is a pulled order under a lease.
type Delivery struct {
	Seq        uint64    `json:"seq"`
	Order      Order     `json:"order"`
	Deliveries uint32    `json:"deliveries"`
	LeaseUntil time.Time `json:"leaseUntil"`
}

// Options configures an Outbox.
type Options struct {
	// Lease is how long a pulled order stays with its consumer.
	Lease time.Duration
	// MaxDeliveries dead-letters an order after this many failed deliveries.
	MaxDeliveries uint32
	Clock         clock.Clock
	Logger        logpkg.Logger
}

// Outbox implements queue.WorkOrderCreator over a workqueue.WorkQueue.
type Outbox struct {
	q      *workqueue.WorkQueue
	opts   Options
	logger logpkg.Logger
}

var _ queue.WorkOrderCreator = (*Outbox)(nil)

// NewOutbox wraps q.
func NewOutbox(q *workqueue.WorkQueue, opts Options) *Outbox {
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}
	if opts.MaxDeliveries == 0 {
		opts.MaxDeliveries = 5
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	return &Outbox{q: q, opts: opts, logger: opts.Logger.WithComponent("workorders")}
}

// CreateFromQueueEntry enqueues a work order for entry.
func (o *Outbox) CreateFromQueueEntry(ctx context.Context, entry queue.Entry, technicianID string) (queue.WorkOrderRef, error) {
	now := o.opts.Clock.Now()
	order := FromEntry(uuid.NewString(), entry, technicianID, now)
	body, err := encMode.Marshal(order)
	if err != nil {
		return queue.WorkOrderRef{}, fmt.Errorf("encode work order: %w", err)
	}
	if _, err := o.q.Enqueue(ctx, []byte(entry.ID), body, now.UnixMilli()); err != nil {
		return queue.WorkOrderRef{}, fmt.Errorf("enqueue work order: %w", err)
	}
	o.logger.Debug("work order queued", logpkg.Str("order", order.ID), logpkg.Str("entry", entry.ID))
	return queue.WorkOrderRef{ID: order.ID}, nil
}

// Pull leases up to n orders to consumer.
func (o *Outbox) Pull(ctx context.Context, consumer string, n int) ([]Delivery, error) {
	if consumer == "" {
		return nil, errors.New("workorder: consumer is required")
	}
	msgs, err := o.q.Dequeue(ctx, consumer, n, o.opts.Lease.Milliseconds(), o.opts.Clock.Now().UnixMilli())
	if err != nil {
		return nil, err
	}
	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		var order Order
		if err := cbor.Unmarshal(m.Payload, &order); err != nil {
			o.logger.Error("undecodable work order dead-lettered", logpkg.F("seq", m.Seq), logpkg.Err(err))
			_, _ = o.q.Fail(ctx, m.Seq, 1)
			continue
		}
		out = append(out, Delivery{
			Seq:        m.Seq,
			Order:      order,
			Deliveries: m.Deliveries,
			LeaseUntil: time.UnixMilli(m.ExpiryMs).UTC(),
		})
	}
	return out, nil
}

// Complete acknowledges processed orders.
func (o *Outbox) Complete(ctx context.Context, seqs ...uint64) error {
	return o.q.Complete(ctx, seqs)
}

// Fail returns an order for redelivery or dead-letters it.
func (o *Outbox) Fail(ctx context.Context, seq uint64) (bool, error) {
	dl, err := o.q.Fail(ctx, seq, o.opts.MaxDeliveries)
	if err == nil && dl {
		o.logger.Warn("work order dead-lettered", logpkg.F("seq", seq))
	}
	return dl, err
}

// Stats reports queue depth.
func (o *Outbox) Stats() (workqueue.Stats, error) { return o.q.Stats() }

// Noop accepts every entry without creating anything.
type Noop struct{}

func (Noop) CreateFromQueueEntry(_ context.Context, e queue.Entry, _ string) (queue.WorkOrderRef, error) {
	return queue.WorkOrderRef{ID: "noop-" + e.ID}, nil
}
