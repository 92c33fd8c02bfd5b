package queuesvc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/events"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workorder"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workqueue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// ErrWorkOrdersDisabled is returned by outbox operations when the runtime
// was opened without work orders.
var ErrWorkOrdersDisabled = errors.New("work orders are disabled")

// ErrJournalDisabled is returned by Events when no event journal is open.
var ErrJournalDisabled = errors.New("event journal is disabled")

const (
	maxPull          = 100
	defaultEventPage = 100
	maxEventPage     = 1000
	maxEventWait     = 30 * time.Second
)

// Service exposes queue operations to transports.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	now    func() time.Time
}

// New creates a Service with a default logger.
func New(rt *runtime.Runtime) *Service {
	logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	return NewWithLogger(rt, logger)
}

// NewWithLogger creates a Service with a custom logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	}
	return &Service{rt: rt, logger: logger.WithComponent("queuesvc"), now: time.Now}
}

func (s *Service) engine() *queue.Engine { return s.rt.Engine() }

// Health reports runtime health.
func (s *Service) Health(ctx context.Context) error { return s.rt.CheckHealth(ctx) }

// CreateSession starts a single-ticket session.
func (s *Service) CreateSession(ctx context.Context, userID string) (queue.Session, error) {
	return s.engine().CreateSession(ctx, strings.TrimSpace(userID))
}

// GetSession reads a session.
func (s *Service) GetSession(ctx context.Context, id string) (queue.Session, error) {
	return s.engine().GetSession(ctx, strings.TrimSpace(id))
}

// Join admits a customer and returns the stored entry.
func (s *Service) Join(ctx context.Context, d queue.JoinData) (queue.Entry, error) {
	return s.engine().Join(ctx, d)
}

// Get returns the entry or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*queue.Entry, error) {
	return s.engine().GetEntryByID(ctx, id)
}

// Active returns the active list, narrowed by an optional CEL expression.
func (s *Service) Active(ctx context.Context, filter string) ([]queue.Entry, error) {
	f, err := newEntryFilter(filter)
	if err != nil {
		return nil, filterError(err)
	}
	entries, err := s.engine().ActiveEntries(ctx)
	if err != nil {
		return nil, err
	}
	return f.apply(entries, s.now()), nil
}

// Watch streams filtered active-list snapshots until ctx ends.
func (s *Service) Watch(ctx context.Context, filter string) (<-chan []queue.Entry, error) {
	f, err := newEntryFilter(filter)
	if err != nil {
		return nil, filterError(err)
	}
	in := s.engine().SubscribeActive(ctx)
	if !f.enabled {
		return in, nil
	}
	out := make(chan []queue.Entry, 1)
	go func() {
		defer close(out)
		for snap := range in {
			select {
			case out <- f.apply(snap, s.now()):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// CallNext assigns the next waiting entry to technicianID; nil means the
// queue is empty.
func (s *Service) CallNext(ctx context.Context, technicianID string) (*queue.Entry, error) {
	return s.engine().CallNext(ctx, technicianID)
}

// UpdateStatus applies a staff status change.
func (s *Service) UpdateStatus(ctx context.Context, id string, status queue.Status, technicianID string) error {
	return s.engine().UpdateEntryStatus(ctx, id, status, technicianID)
}

// Requeue re-admits an expired or cancelled entry at the back of the queue.
func (s *Service) Requeue(ctx context.Context, id string) (string, error) {
	return s.engine().Requeue(ctx, id)
}

// PullWorkOrders leases up to n work orders to consumer.
func (s *Service) PullWorkOrders(ctx context.Context, consumer string, n int) ([]workorder.Delivery, error) {
	ob := s.rt.Outbox()
	if ob == nil {
		return nil, ErrWorkOrdersDisabled
	}
	if n <= 0 {
		n = 1
	}
	if n > maxPull {
		n = maxPull
	}
	return ob.Pull(ctx, strings.TrimSpace(consumer), n)
}

// CompleteWorkOrders acknowledges processed work orders.
func (s *Service) CompleteWorkOrders(ctx context.Context, seqs []uint64) error {
	ob := s.rt.Outbox()
	if ob == nil {
		return ErrWorkOrdersDisabled
	}
	return ob.Complete(ctx, seqs...)
}

// FailWorkOrder returns a work order for redelivery; the result reports
// whether it was dead-lettered instead.
func (s *Service) FailWorkOrder(ctx context.Context, seq uint64) (bool, error) {
	ob := s.rt.Outbox()
	if ob == nil {
		return false, ErrWorkOrdersDisabled
	}
	return ob.Fail(ctx, seq)
}

// WorkOrderStats reports outbox depth.
func (s *Service) WorkOrderStats() (workqueue.Stats, error) {
	ob := s.rt.Outbox()
	if ob == nil {
		return workqueue.Stats{}, ErrWorkOrdersDisabled
	}
	return ob.Stats()
}

// Events returns journaled events after the given sequence. When nothing is
// available and wait is positive it long-polls for up to wait.
func (s *Service) Events(ctx context.Context, after uint64, limit int, wait time.Duration) ([]events.JournalEntry, error) {
	j := s.rt.Journal()
	if j == nil {
		return nil, ErrJournalDisabled
	}
	if limit <= 0 {
		limit = defaultEventPage
	}
	if limit > maxEventPage {
		limit = maxEventPage
	}
	if wait > maxEventWait {
		wait = maxEventWait
	}
	deadline := s.now().Add(wait)
	for {
		sig := j.Signal()
		out, err := j.Read(after, limit)
		if err != nil || len(out) > 0 || wait <= 0 {
			return out, err
		}
		left := deadline.Sub(s.now())
		if left <= 0 {
			return out, nil
		}
		if !j.WaitSignal(ctx, sig, left) && ctx.Err() != nil {
			return out, ctx.Err()
		}
	}
}

func filterError(err error) error {
	var ve *queue.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &queue.ValidationError{Field: "filter", Reason: err.Error()}
}
