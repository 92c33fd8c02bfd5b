package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/retry"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// CreateSession opens a queue-join session for userID (may be empty).
func (e *Engine) CreateSession(ctx context.Context, userID string) (Session, error) {
	now := e.clock.Now().UTC()
	s := Session{
		ID:        e.newID(),
		UserID:    strings.TrimSpace(userID),
		CreatedAt: now,
		ExpiresAt: now.Add(e.sessionTTL),
		IsActive:  true,
	}
	if err := e.exec.Do(ctx, func(ctx context.Context) error {
		return e.store.CreateSession(ctx, s)
	}); err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	e.logger.Debug("session created", logpkg.Str("session", s.ID))
	return s, nil
}

// GetSession returns the session or ErrNotFound.
func (e *Engine) GetSession(ctx context.Context, id string) (Session, error) {
	return retry.Value(ctx, e.exec, func(ctx context.Context) (Session, error) {
		return e.store.GetSession(ctx, id)
	})
}

// claimSession marks the session as having produced its ticket. It fails
// with ErrSessionUnavailable when the session cannot be used.
func (e *Engine) claimSession(ctx context.Context, id string) error {
	s, err := e.GetSession(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("session %s: %w", id, ErrSessionUnavailable)
	}
	if err != nil {
		return fmt.Errorf("get session %s: %w", id, err)
	}
	if !s.Usable(e.clock.Now().UTC()) {
		return fmt.Errorf("session %s: %w", id, ErrSessionUnavailable)
	}
	_, err = retry.Value(ctx, e.transient, func(ctx context.Context) (Session, error) {
		return e.store.SetSessionTicket(ctx, id, false, true)
	})
	if errors.Is(err, ErrConflict) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("session %s: %w", id, ErrSessionUnavailable)
	}
	return err
}

// releaseSession undoes claimSession after a failed join.
func (e *Engine) releaseSession(ctx context.Context, id string) {
	_, err := retry.Value(ctx, e.transient, func(ctx context.Context) (Session, error) {
		return e.store.SetSessionTicket(ctx, id, true, false)
	})
	if err != nil {
		e.logger.Warn("session release failed", logpkg.Str("session", id), logpkg.Err(err))
	}
}

// PurgeExpiredSessions deletes sessions past their expiry.
func (e *Engine) PurgeExpiredSessions(ctx context.Context) (int, error) {
	now := e.clock.Now().UTC()
	return retry.Value(ctx, e.exec, func(ctx context.Context) (int, error) {
		return e.store.PurgeExpiredSessions(ctx, now)
	})
}

// StartSessionSweeper purges expired sessions every interval with up to 10%
// jitter so several processes do not sweep in lockstep.
func (e *Engine) StartSessionSweeper(interval time.Duration) {
	e.sweepMu.Lock()
	defer e.sweepMu.Unlock()
	if interval <= 0 || e.sweepStop != nil {
		return
	}
	stop := make(chan struct{})
	e.sweepStop = stop
	e.sweepWG.Add(1)
	go func() {
		defer e.sweepWG.Done()
		for {
			jitter := time.Duration(0)
			if n := int64(interval / 10); n > 0 {
				jitter = time.Duration(rand.Int64N(n))
			}
			t := time.NewTimer(interval + jitter)
			select {
			case <-stop:
				t.Stop()
				return
			case <-t.C:
			}
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := e.PurgeExpiredSessions(ctx)
			cancel()
			if err != nil {
				e.logger.Warn("session sweep failed", logpkg.Err(err))
				continue
			}
			if n > 0 {
				e.logger.Info("expired sessions purged", logpkg.Int("count", n))
			}
		}
	}()
}

// StopSessionSweeper stops the sweeper started by StartSessionSweeper and
// waits for an in-flight purge to return.
func (e *Engine) StopSessionSweeper() {
	e.sweepMu.Lock()
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepStop = nil
	}
	e.sweepMu.Unlock()
	e.sweepWG.Wait()
}
