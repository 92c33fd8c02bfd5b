// Package pebblekv is a queue.Store on an embedded Pebble database. Values
// are CBOR encoded; every conditional write runs inside a serialized
// pebblestore transaction, so it is safe for any number of goroutines in one
// process.
package pebblekv

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Store implements queue.Store.
type Store struct {
	db *pebblestore.DB
}

var _ queue.Store = (*Store)(nil)

// New wraps an open database. The caller owns db.
func New(db *pebblestore.DB) *Store { return &Store{db: db} }

func (s *Store) Get(ctx context.Context, id string) (queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return queue.Entry{}, err
	}
	raw, err := s.db.Get(entryKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return queue.Entry{}, queue.ErrNotFound
	}
	if err != nil {
		return queue.Entry{}, fmt.Errorf("pebble get entry: %w", err)
	}
	return decodeEntry(raw)
}

func (s *Store) Query(ctx context.Context, f queue.Filter) ([]queue.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	statuses := f.Statuses
	if len(statuses) == 0 {
		statuses = queue.Statuses
	}
	var out []queue.Entry
	for _, st := range statuses {
		p := statusPrefix(st)
		n := 0
		err := s.db.Scan(p, func(key, _ []byte) error {
			id := idFromIndexKey(p, key)
			raw, err := s.db.Get(entryKey(id))
			if errors.Is(err, pebblestore.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			e, err := decodeEntry(raw)
			if err != nil {
				return err
			}
			// The index may lag a concurrent status change by one write.
			if e.Status != st {
				return nil
			}
			out = append(out, e)
			n++
			if f.Limit > 0 && n >= f.Limit {
				return pebblestore.ErrStopScan
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("pebble scan %s: %w", st, err)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, e queue.Entry) (string, error) {
	raw, err := encMode.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("encode entry: %w", err)
	}
	err = s.db.Update(ctx, func(tx *pebblestore.Txn) error {
		if _, err := tx.Get(entryKey(e.ID)); err == nil {
			return queue.ErrAlreadyExists
		} else if !errors.Is(err, pebblestore.ErrNotFound) {
			return err
		}
		if err := tx.Set(entryKey(e.ID), raw); err != nil {
			return err
		}
		return tx.Set(indexKey(e.Status, e.Position, e.ID), nil)
	})
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected queue.Status, p queue.Patch) (queue.Entry, error) {
	var updated queue.Entry
	err := s.db.Update(ctx, func(tx *pebblestore.Txn) error {
		raw, err := tx.Get(entryKey(id))
		if errors.Is(err, pebblestore.ErrNotFound) {
			return queue.ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		if cur.Status != expected {
			s.db.Conflict()
			return queue.ErrConflict
		}
		updated = p.Apply(cur)
		next, err := encMode.Marshal(updated)
		if err != nil {
			return fmt.Errorf("encode entry: %w", err)
		}
		if err := tx.Set(entryKey(id), next); err != nil {
			return err
		}
		if updated.Status != cur.Status {
			if err := tx.Delete(indexKey(cur.Status, cur.Position, id)); err != nil {
				return err
			}
			return tx.Set(indexKey(updated.Status, updated.Position, id), nil)
		}
		return nil
	})
	if err != nil {
		return queue.Entry{}, err
	}
	return updated, nil
}

func (s *Store) ReadCounter(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := s.db.Get(counterKey(name))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pebble read counter: %w", err)
	}
	return decodeCounter(raw), nil
}

func (s *Store) CompareAndSwapCounter(ctx context.Context, name string, prev, next int64) (bool, error) {
	swapped := false
	err := s.db.Update(ctx, func(tx *pebblestore.Txn) error {
		var cur int64
		raw, err := tx.Get(counterKey(name))
		switch {
		case err == nil:
			cur = decodeCounter(raw)
		case !errors.Is(err, pebblestore.ErrNotFound):
			return err
		}
		if cur != prev {
			s.db.Conflict()
			return nil
		}
		swapped = true
		return tx.Set(counterKey(name), encodeCounter(next))
	})
	return swapped, err
}

func (s *Store) CreateSession(ctx context.Context, sess queue.Session) error {
	raw, err := encMode.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.db.Update(ctx, func(tx *pebblestore.Txn) error {
		if _, err := tx.Get(sessionKey(sess.ID)); err == nil {
			return queue.ErrAlreadyExists
		} else if !errors.Is(err, pebblestore.ErrNotFound) {
			return err
		}
		return tx.Set(sessionKey(sess.ID), raw)
	})
}

func (s *Store) GetSession(ctx context.Context, id string) (queue.Session, error) {
	if err := ctx.Err(); err != nil {
		return queue.Session{}, err
	}
	raw, err := s.db.Get(sessionKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return queue.Session{}, queue.ErrNotFound
	}
	if err != nil {
		return queue.Session{}, fmt.Errorf("pebble get session: %w", err)
	}
	var sess queue.Session
	if err := cbor.Unmarshal(raw, &sess); err != nil {
		return queue.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return sess, nil
}

func (s *Store) SetSessionTicket(ctx context.Context, id string, expected, value bool) (queue.Session, error) {
	var out queue.Session
	err := s.db.Update(ctx, func(tx *pebblestore.Txn) error {
		raw, err := tx.Get(sessionKey(id))
		if errors.Is(err, pebblestore.ErrNotFound) {
			return queue.ErrNotFound
		}
		if err != nil {
			return err
		}
		var sess queue.Session
		if err := cbor.Unmarshal(raw, &sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if sess.HasGeneratedTicket != expected {
			s.db.Conflict()
			return queue.ErrConflict
		}
		sess.HasGeneratedTicket = value
		next, err := encMode.Marshal(sess)
		if err != nil {
			return err
		}
		out = sess
		return tx.Set(sessionKey(id), next)
	})
	return out, err
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte
	err := s.db.Scan([]byte(prefixSession), func(key, val []byte) error {
		var sess queue.Session
		if err := cbor.Unmarshal(val, &sess); err != nil {
			return fmt.Errorf("decode session: %w", err)
		}
		if sess.ExpiresAt.Before(now) {
			expired = append(expired, append([]byte(nil), key...))
		}
		return nil
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	err = s.db.Update(ctx, func(tx *pebblestore.Txn) error {
		for _, k := range expired {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(expired), nil
}

func decodeEntry(raw []byte) (queue.Entry, error) {
	var e queue.Entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return queue.Entry{}, fmt.Errorf("decode entry: %w", err)
	}
	return e, nil
}
