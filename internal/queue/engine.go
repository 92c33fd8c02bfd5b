package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/cache"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/clock"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/retry"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

const (
	// DefaultScanLimit bounds how many waiting candidates CallNext examines.
	DefaultScanLimit = 50
	// DefaultEntryTTL is how long a waiting entry stays eligible.
	DefaultEntryTTL = 12 * time.Hour
	// DefaultSessionTTL is the lifetime of a queue-join session.
	DefaultSessionTTL = 15 * time.Minute
	// DefaultAvgServiceTime feeds the estimated wait of waiting entries.
	DefaultAvgServiceTime = 15 * time.Minute

	activeListKey = "entries:active"
)

func entryKey(id string) string { return "entry:" + id }

// Options configures an Engine. Store is required; everything else has a
// default.
type Options struct {
	Store      Store
	Cache      *cache.Layer
	Sink       EventSink
	WorkOrders WorkOrderCreator
	Clock      clock.Clock
	Logger     logpkg.Logger
	Codes      *CodeGenerator
	// NewID generates entry, session and event ids.
	NewID func() string

	// Retry bounds store calls; its Retryable field is set by the engine.
	Retry retry.Config
	// AllocatorRetry bounds position allocation under contention.
	AllocatorRetry retry.Config

	EntryTTL       time.Duration
	SessionTTL     time.Duration
	ScanLimit      int
	AvgServiceTime time.Duration
	// WatchPoll refreshes active-list subscribers from the store so writes
	// made by other processes are observed. Zero disables polling.
	WatchPoll time.Duration
}

// DefaultAllocatorRetry tolerates bursts of concurrent joins.
func DefaultAllocatorRetry() retry.Config {
	return retry.Config{MaxAttempts: 64, BaseDelay: time.Millisecond, MaxDelay: 50 * time.Millisecond, BackoffFactor: 2}
}

// Engine orchestrates the walk-in queue.
type Engine struct {
	store      Store
	cache      *cache.Layer
	sink       EventSink
	workOrders WorkOrderCreator
	clock      clock.Clock
	logger     logpkg.Logger
	codes      *CodeGenerator
	newID      func() string

	exec      *retry.Executor // conflicts and transient failures
	transient *retry.Executor // transient failures only
	positions *PositionAllocator

	entryTTL   time.Duration
	sessionTTL time.Duration
	scanLimit  int
	avgService time.Duration
	watchPoll  time.Duration

	hub *hub

	sweepMu   sync.Mutex
	sweepStop chan struct{}
	sweepWG   sync.WaitGroup
}

// NewEngine validates opts and builds an Engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("queue: Options.Store is required")
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Codes == nil {
		opts.Codes = NewCodeGenerator()
	}
	if opts.NewID == nil {
		opts.NewID = newUUID
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultConfig()
	}
	if opts.AllocatorRetry.MaxAttempts == 0 {
		opts.AllocatorRetry = DefaultAllocatorRetry()
	}
	if opts.EntryTTL <= 0 {
		opts.EntryTTL = DefaultEntryTTL
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.ScanLimit <= 0 {
		opts.ScanLimit = DefaultScanLimit
	}
	if opts.AvgServiceTime <= 0 {
		opts.AvgServiceTime = DefaultAvgServiceTime
	}

	logger := opts.Logger
	storeRetry := opts.Retry
	storeRetry.Retryable = IsRetryable
	storeRetry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Debug("retrying store call", logpkg.Int("attempt", attempt), logpkg.Dur("delay", delay), logpkg.Err(err))
	}
	transientRetry := storeRetry
	transientRetry.Retryable = isTransient
	allocRetry := opts.AllocatorRetry
	allocRetry.Retryable = IsRetryable

	return &Engine{
		store:      opts.Store,
		cache:      opts.Cache,
		sink:       opts.Sink,
		workOrders: opts.WorkOrders,
		clock:      opts.Clock,
		logger:     logger,
		codes:      opts.Codes,
		newID:      opts.NewID,
		exec:       retry.New(storeRetry),
		transient:  retry.New(transientRetry),
		positions:  NewPositionAllocator(opts.Store, retry.New(allocRetry)),
		entryTTL:   opts.EntryTTL,
		sessionTTL: opts.SessionTTL,
		scanLimit:  opts.ScanLimit,
		avgService: opts.AvgServiceTime,
		watchPoll:  opts.WatchPoll,
		hub:        newHub(),
	}, nil
}

func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Close stops background work started by the engine.
func (e *Engine) Close() {
	e.StopSessionSweeper()
}

// AddEntry validates data, allocates a position and a verification code and
// stores a new waiting entry. It returns the entry id.
func (e *Engine) AddEntry(ctx context.Context, data JoinData) (string, error) {
	entry, err := e.Join(ctx, data)
	if err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Join is AddEntry returning the full stored entry.
func (e *Engine) Join(ctx context.Context, data JoinData) (Entry, error) {
	d, err := Validate(data)
	if err != nil {
		return Entry{}, err
	}
	return e.admit(ctx, d, "")
}

func (e *Engine) admit(ctx context.Context, d JoinData, requeuedFrom string) (Entry, error) {
	if d.SessionID != "" {
		if err := e.claimSession(ctx, d.SessionID); err != nil {
			return Entry{}, err
		}
	}
	release := func() {
		if d.SessionID != "" {
			e.releaseSession(ctx, d.SessionID)
		}
	}

	pos, err := e.positions.Next(ctx)
	if err != nil {
		release()
		return Entry{}, fmt.Errorf("allocate position: %w", err)
	}

	now := e.clock.Now().UTC()
	entry := Entry{
		ID:               e.newID(),
		CustomerID:       d.CustomerID,
		ServiceType:      d.ServiceType,
		MotorcycleID:     d.MotorcycleID,
		Plate:            d.Plate,
		MileageKm:        d.MileageKm,
		Notes:            d.Notes,
		Details:          d.Details,
		Status:           StatusWaiting,
		Position:         pos,
		VerificationCode: e.codes.Generate(),
		JoinedAt:         now,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        now.Add(e.entryTTL),
		SessionID:        d.SessionID,
		RequeuedFrom:     requeuedFrom,
	}

	attempts := 0
	err = e.exec.Do(ctx, func(ctx context.Context) error {
		attempts++
		_, err := e.store.Create(ctx, entry)
		// An earlier attempt may have landed before its response was lost.
		if errors.Is(err, ErrAlreadyExists) && attempts > 1 {
			return nil
		}
		return err
	})
	if err != nil {
		release()
		return Entry{}, fmt.Errorf("create entry: %w", err)
	}

	e.cache.Set(ctx, entryKey(entry.ID), entry)
	e.cache.Invalidate(ctx, activeListKey)
	e.logger.Info("entry added",
		logpkg.Str("id", entry.ID),
		logpkg.Int64("position", entry.Position),
		logpkg.Str("service_type", string(entry.ServiceType)),
	)
	e.emit(ctx, Event{Type: EventEntryAdded, Entry: entry})
	e.hub.notify()
	return entry, nil
}

// CallNext assigns the waiting, unexpired entry with the lowest position to
// technicianID. It returns nil when no entry could be called.
func (e *Engine) CallNext(ctx context.Context, technicianID string) (*Entry, error) {
	technicianID = strings.TrimSpace(technicianID)
	if technicianID == "" {
		return nil, invalid("technicianId", "required")
	}
	candidates, err := retry.Value(ctx, e.exec, func(ctx context.Context) ([]Entry, error) {
		return e.store.Query(ctx, Filter{Statuses: []Status{StatusWaiting}, Limit: e.scanLimit})
	})
	if err != nil {
		return nil, fmt.Errorf("query waiting entries: %w", err)
	}

	now := e.clock.Now().UTC()
	for i, c := range candidates {
		if i >= e.scanLimit {
			break
		}
		if c.ExpiredAt(now) {
			e.expireLazily(ctx, c)
			continue
		}
		tech, calledAt := technicianID, now
		updated, err := retry.Value(ctx, e.transient, func(ctx context.Context) (Entry, error) {
			return e.store.ConditionalUpdate(ctx, c.ID, StatusWaiting, Patch{
				Status:     StatusCalled,
				AssignedTo: &tech,
				CalledAt:   &calledAt,
				UpdatedAt:  calledAt,
			})
		})
		if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
			e.logger.Debug("call-next candidate taken", logpkg.Str("id", c.ID), logpkg.Str("technician", technicianID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("call entry %s: %w", c.ID, err)
		}
		e.afterCall(ctx, updated, technicianID)
		return &updated, nil
	}
	return nil, nil
}

func (e *Engine) afterCall(ctx context.Context, entry Entry, technicianID string) {
	e.cache.Invalidate(ctx, entryKey(entry.ID), activeListKey)
	e.logger.Info("entry called",
		logpkg.Str("id", entry.ID),
		logpkg.Int64("position", entry.Position),
		logpkg.Str("technician", technicianID),
	)
	e.emit(ctx, Event{Type: EventCalled, Entry: entry, TechnicianID: technicianID, PreviousStatus: StatusWaiting})
	e.hub.notify()

	if e.workOrders == nil {
		return
	}
	ref, err := e.workOrders.CreateFromQueueEntry(ctx, entry, technicianID)
	if err != nil {
		e.logger.Error("work order creation failed; entry stays called",
			logpkg.Str("id", entry.ID),
			logpkg.Str("technician", technicianID),
			logpkg.Err(err),
		)
		return
	}
	e.logger.Info("work order created", logpkg.Str("id", entry.ID), logpkg.Str("work_order", ref.ID))
}

// UpdateEntryStatus moves entry id to status if the state machine allows it.
// technicianID is required when status is StatusCalled.
func (e *Engine) UpdateEntryStatus(ctx context.Context, id string, status Status, technicianID string) error {
	id = strings.TrimSpace(id)
	technicianID = strings.TrimSpace(technicianID)
	if id == "" {
		return invalid("id", "required")
	}
	if !status.Valid() {
		return invalid("status", "unknown status "+string(status))
	}
	if status == StatusCalled && technicianID == "" {
		return invalid("technicianId", "required when calling an entry")
	}

	var prev, updated Entry
	err := e.exec.Do(ctx, func(ctx context.Context) error {
		cur, err := e.store.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return &NotFoundError{ID: id}
		}
		if err != nil {
			return err
		}
		now := e.clock.Now().UTC()
		if cur.ExpiredAt(now) && status != StatusExpired {
			e.expireLazily(ctx, cur)
			return &IllegalTransitionError{ID: id, From: StatusExpired, To: status}
		}
		// Expiry is time based; staff remove a live ticket with cancelled.
		if status == StatusExpired && !cur.ExpiredAt(now) {
			return &IllegalTransitionError{ID: id, From: cur.Status, To: status}
		}
		if !CanTransition(cur.Status, status) {
			return &IllegalTransitionError{ID: id, From: cur.Status, To: status}
		}
		p := Patch{Status: status, UpdatedAt: now}
		if status == StatusCalled {
			p.AssignedTo = &technicianID
			p.CalledAt = &now
		}
		u, err := e.store.ConditionalUpdate(ctx, id, cur.Status, p)
		if err != nil {
			return err
		}
		prev, updated = cur, u
		return nil
	})
	if err != nil {
		return err
	}

	e.cache.Invalidate(ctx, entryKey(id), activeListKey)
	e.logger.Info("entry status changed",
		logpkg.Str("id", id),
		logpkg.Str("from", string(prev.Status)),
		logpkg.Str("to", string(status)),
	)
	e.emit(ctx, Event{Type: EventStatusChanged, Entry: updated, TechnicianID: technicianID, PreviousStatus: prev.Status})
	e.hub.notify()
	return nil
}

// GetEntryByID returns the entry or nil when the id is unknown. A waiting
// entry past its expiry is reported (and lazily stored) as expired.
func (e *Engine) GetEntryByID(ctx context.Context, id string) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("id", "required")
	}
	now := e.clock.Now().UTC()
	var cached Entry
	if e.cache.Get(ctx, entryKey(id), &cached) && !cached.ExpiredAt(now) {
		return &cached, nil
	}

	en, err := e.getFromStore(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", id, err)
	}
	if en.ExpiredAt(now) {
		if u, ok := e.expireLazily(ctx, en); ok {
			en = u
		} else if fresh, err := e.getFromStore(ctx, id); err == nil {
			en = fresh
			if en.ExpiredAt(now) {
				en.Status = StatusExpired
			}
		} else {
			en.Status = StatusExpired
		}
	}
	e.cache.Set(ctx, entryKey(id), en)
	return &en, nil
}

func (e *Engine) getFromStore(ctx context.Context, id string) (Entry, error) {
	return retry.Value(ctx, e.exec, func(ctx context.Context) (Entry, error) {
		return e.store.Get(ctx, id)
	})
}

// ActiveEntries returns waiting and called entries in position order with
// an estimated wait on each waiting entry.
func (e *Engine) ActiveEntries(ctx context.Context) ([]Entry, error) {
	return e.activeEntries(ctx, true)
}

func (e *Engine) activeEntries(ctx context.Context, useCache bool) ([]Entry, error) {
	now := e.clock.Now().UTC()
	if useCache {
		var cached []Entry
		if e.cache.Get(ctx, activeListKey, &cached) && !anyExpired(cached, now) {
			return cached, nil
		}
	}
	list, err := retry.Value(ctx, e.exec, func(ctx context.Context) ([]Entry, error) {
		return e.store.Query(ctx, Filter{Statuses: []Status{StatusWaiting, StatusCalled}})
	})
	if err != nil {
		return nil, fmt.Errorf("query active entries: %w", err)
	}
	out := make([]Entry, 0, len(list))
	ahead := int64(0)
	for _, en := range list {
		if en.ExpiredAt(now) {
			e.expireLazily(ctx, en)
			continue
		}
		if en.Status == StatusWaiting {
			en.EstimatedWaitMs = ahead * e.avgService.Milliseconds()
			ahead++
		}
		out = append(out, en)
	}
	e.cache.Set(ctx, activeListKey, out)
	return out, nil
}

func anyExpired(list []Entry, now time.Time) bool {
	for _, en := range list {
		if en.ExpiredAt(now) {
			return true
		}
	}
	return false
}

// SubscribeActive streams active-list snapshots until ctx ends. The channel
// holds only the newest snapshot; a slow reader skips intermediate ones.
func (e *Engine) SubscribeActive(ctx context.Context) <-chan []Entry {
	out := make(chan []Entry, 1)
	wake, unsubscribe := e.hub.subscribe()
	go func() {
		defer close(out)
		defer unsubscribe()
		var tick <-chan time.Time
		if e.watchPoll > 0 {
			t := time.NewTicker(e.watchPoll)
			defer t.Stop()
			tick = t.C
		}
		push := func() {
			list, err := e.activeEntries(ctx, false)
			if err != nil {
				if ctx.Err() == nil {
					e.logger.Warn("active list refresh failed", logpkg.Err(err))
				}
				return
			}
			select {
			case <-out:
			default:
			}
			out <- list
		}
		push()
		for {
			select {
			case <-ctx.Done():
				return
			case <-wake:
				push()
			case <-tick:
				push()
			}
		}
	}()
	return out
}

// Requeue re-creates an expired or cancelled entry as a new waiting entry
// with a fresh position and code. The original entry is left untouched.
func (e *Engine) Requeue(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", invalid("id", "required")
	}
	orig, err := e.getFromStore(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", &NotFoundError{ID: id}
	}
	if err != nil {
		return "", fmt.Errorf("get entry %s: %w", id, err)
	}
	status := orig.Status
	if orig.ExpiredAt(e.clock.Now().UTC()) {
		e.expireLazily(ctx, orig)
		status = StatusExpired
	}
	if status != StatusExpired && status != StatusCancelled {
		return "", &IllegalTransitionError{ID: id, From: status, To: StatusWaiting}
	}
	d, err := Validate(orig.joinData())
	if err != nil {
		return "", err
	}
	entry, err := e.admit(ctx, d, orig.ID)
	if err != nil {
		return "", err
	}
	e.logger.Info("entry requeued", logpkg.Str("from", orig.ID), logpkg.Str("id", entry.ID))
	return entry.ID, nil
}

// expireLazily stores the expired status of a waiting entry found past its
// expiry. It is best effort: a lost race or store failure is ignored.
func (e *Engine) expireLazily(ctx context.Context, en Entry) (Entry, bool) {
	now := e.clock.Now().UTC()
	u, err := e.store.ConditionalUpdate(ctx, en.ID, StatusWaiting, Patch{Status: StatusExpired, UpdatedAt: now})
	if err != nil {
		e.logger.Debug("lazy expiry skipped", logpkg.Str("id", en.ID), logpkg.Err(err))
		return Entry{}, false
	}
	e.cache.Invalidate(ctx, entryKey(en.ID), activeListKey)
	e.emit(ctx, Event{Type: EventStatusChanged, Entry: u, PreviousStatus: StatusWaiting})
	return u, true
}

func (e *Engine) emit(ctx context.Context, ev Event) {
	if e.sink == nil {
		return
	}
	ev.ID = e.newID()
	ev.OccurredAt = e.clock.Now().UTC()
	if err := e.sink.Emit(ctx, ev); err != nil {
		e.logger.Warn("event emit failed",
			logpkg.Str("type", string(ev.Type)),
			logpkg.Str("entry", ev.Entry.ID),
			logpkg.Err(err),
		)
	}
}
