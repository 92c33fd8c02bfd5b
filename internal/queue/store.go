package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by stores for unknown ids.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a conditional write lost against a concurrent writer.
	ErrConflict = errors.New("conditional write conflict")
	// ErrAlreadyExists is returned by Create when the id is taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrTransient marks network or availability failures worth retrying.
	ErrTransient = errors.New("transient store error")
)

// TransientError wraps a backend failure that is expected to clear up.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransient) match.
func (e *TransientError) Is(target error) bool { return target == ErrTransient }

// Transient wraps err as a TransientError; nil stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}

// Filter selects entries for Query. Results are always ordered by position
// ascending.
type Filter struct {
	// Statuses restricts matches; empty means all statuses.
	Statuses []Status
	// Limit caps the result size; 0 means unlimited.
	Limit int
}

// Matches reports whether e satisfies the status part of the filter.
func (f Filter) Matches(e Entry) bool {
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if e.Status == s {
			return true
		}
	}
	return false
}

// Patch is applied by ConditionalUpdate. Nil pointers leave fields untouched.
type Patch struct {
	Status     Status
	AssignedTo *string
	CalledAt   *time.Time
	UpdatedAt  time.Time
}

// Apply returns e with the patch applied.
func (p Patch) Apply(e Entry) Entry {
	if p.Status != "" {
		e.Status = p.Status
	}
	if p.AssignedTo != nil {
		e.AssignedTo = *p.AssignedTo
	}
	if p.CalledAt != nil {
		t := *p.CalledAt
		e.CalledAt = &t
	}
	if !p.UpdatedAt.IsZero() {
		e.UpdatedAt = p.UpdatedAt
	}
	return e
}

// EntryStore is the document store holding queue entries.
type EntryStore interface {
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (Entry, error)
	// Query returns entries matching f ordered by position ascending.
	Query(ctx context.Context, f Filter) ([]Entry, error)
	// Create stores a new entry; ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, e Entry) (string, error)
	// ConditionalUpdate applies p only if the stored status equals expected.
	// It returns ErrConflict when the precondition fails and ErrNotFound for
	// unknown ids.
	ConditionalUpdate(ctx context.Context, id string, expected Status, p Patch) (Entry, error)
}

// CounterStore holds named monotonically increasing counters.
type CounterStore interface {
	// ReadCounter returns the current value, 0 if the counter does not exist.
	ReadCounter(ctx context.Context, name string) (int64, error)
	// CompareAndSwapCounter sets name to next only if it currently equals
	// prev. It reports whether the swap happened.
	CompareAndSwapCounter(ctx context.Context, name string, prev, next int64) (bool, error)
}

// SessionStore persists queue-join sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	// GetSession returns ErrNotFound for unknown ids.
	GetSession(ctx context.Context, id string) (Session, error)
	// SetSessionTicket flips HasGeneratedTicket from expected to value,
	// returning ErrConflict when the stored flag differs from expected.
	SetSessionTicket(ctx context.Context, id string, expected, value bool) (Session, error)
	// PurgeExpiredSessions deletes sessions whose ExpiresAt is before now.
	PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error)
}

// Store is everything the engine needs from persistence.
type Store interface {
	EntryStore
	CounterStore
	SessionStore
}
