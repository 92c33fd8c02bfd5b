// Package memory is an in-process queue.Store. Conditional writes are
// serialized by a single mutex, which makes it the reference backend for
// tests and single-node deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// Store keeps entries, counters and sessions in maps.
type Store struct {
	mu       sync.Mutex
	entries  map[string]queue.Entry
	counters map[string]int64
	sessions map[string]queue.Session
}

var _ queue.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		entries:  make(map[string]queue.Entry),
		counters: make(map[string]int64),
		sessions: make(map[string]queue.Session),
	}
}

func (s *Store) Get(ctx context.Context, id string) (queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return queue.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return queue.Entry{}, queue.ErrNotFound
	}
	return e, nil
}

func (s *Store) Query(ctx context.Context, f queue.Filter) ([]queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]queue.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, e queue.Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[e.ID]; ok {
		return "", queue.ErrAlreadyExists
	}
	s.entries[e.ID] = e
	return e.ID, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected queue.Status, p queue.Patch) (queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return queue.Entry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return queue.Entry{}, queue.ErrNotFound
	}
	if e.Status != expected {
		return queue.Entry{}, queue.ErrConflict
	}
	e = p.Apply(e)
	s.entries[id] = e
	return e, nil
}

func (s *Store) ReadCounter(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[name], nil
}

func (s *Store) CompareAndSwapCounter(ctx context.Context, name string, prev, next int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counters[name] != prev {
		return false, nil
	}
	s.counters[name] = next
	return true, nil
}

func (s *Store) CreateSession(ctx context.Context, sess queue.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return queue.ErrAlreadyExists
	}
	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (queue.Session, error) {
	if err := ctx.Err(); err != nil {
		return queue.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return queue.Session{}, queue.ErrNotFound
	}
	return sess, nil
}

func (s *Store) SetSessionTicket(ctx context.Context, id string, expected, value bool) (queue.Session, error) {
	if err := ctx.Err(); err != nil {
		return queue.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return queue.Session{}, queue.ErrNotFound
	}
	if sess.HasGeneratedTicket != expected {
		return queue.Session{}, queue.ErrConflict
	}
	sess.HasGeneratedTicket = value
	s.sessions[id] = sess
	return sess, nil
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.ExpiresAt.Before(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
