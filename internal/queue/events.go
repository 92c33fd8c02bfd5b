package queue

import (
	"context"
	"time"
)

// EventType names a domain event.
type EventType string

const (
	EventEntryAdded    EventType = "queue.entry_added"
	EventCalled        EventType = "queue.called"
	EventStatusChanged EventType = "queue.status_changed"
)

// Event is emitted after a queue mutation has committed.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	OccurredAt     time.Time `json:"occurredAt"`
	Entry          Entry     `json:"entry"`
	TechnicianID   string    `json:"technicianId,omitempty"`
	PreviousStatus Status    `json:"previousStatus,omitempty"`
}

// EventSink receives domain events. Emit failures are logged by the engine
// and never undo the mutation that produced the event.
type EventSink interface {
	Emit(ctx context.Context, ev Event) error
}

// WorkOrderRef identifies a work order created downstream.
type WorkOrderRef struct {
	ID string `json:"id"`
}

// WorkOrderCreator opens a work order for a called entry. It runs after the
// call has committed; failures are reported, not rolled back.
type WorkOrderCreator interface {
	CreateFromQueueEntry(ctx context.Context, e Entry, technicianID string) (WorkOrderRef, error)
}
