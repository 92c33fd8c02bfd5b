package queue

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrSessionUnavailable is returned when a join references a session that
// is unknown, expired, inactive or has already produced a ticket.
var ErrSessionUnavailable = errors.New("queue session unavailable")

// ValidationError reports malformed input. It is never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IllegalTransitionError reports a status change the state machine forbids.
type IllegalTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("entry %s: illegal transition %s -> %s", e.ID, e.From, e.To)
}

// NotFoundError reports an unknown entry id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return "queue entry " + e.ID + " not found" }

// Is lets errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsRetryable classifies errors for the retry executor: optimistic conflicts,
// transient store failures and timeouts are retried; validation, state
// machine and not-found errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	var ite *IllegalTransitionError
	if errors.As(err, &ve) || errors.As(err, &ite) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrSessionUnavailable) {
		return false
	}
	return errors.Is(err, ErrConflict) || isTransient(err)
}

// isTransient matches availability failures only; conflicts are excluded.
func isTransient(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
