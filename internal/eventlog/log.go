package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"

	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

// Log is a named append-only journal.
type Log struct {
	db   *pebblestore.DB
	name string

	mu       sync.Mutex
	lastSeq  uint64
	notifyCh chan struct{}

	retentionStop chan struct{}
	retentionWG   sync.WaitGroup
}

// Open initializes a Log and loads the last sequence from metadata if
// present.
func Open(db *pebblestore.DB, name string) (*Log, error) {
	if name == "" {
		return nil, errors.New("eventlog: name is required")
	}
	l := &Log{db: db, name: name, notifyCh: make(chan struct{})}
	meta, err := db.Get(KeyMeta(name))
	switch {
	case err == nil && len(meta) >= 8:
		l.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, err
	}
	return l, nil
}

// Name returns the log name.
func (l *Log) Name() string { return l.name }

// LastSeq returns the most recently assigned sequence, 0 when empty.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}

// Append writes recs atomically and returns their sequences.
func (l *Log) Append(ctx context.Context, recs []Record) ([]uint64, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	seqs := make([]uint64, len(recs))
	next := l.lastSeq
	err := l.db.Update(ctx, func(tx *pebblestore.Txn) error {
		for i, r := range recs {
			next++
			if err := tx.Set(KeyEntry(l.name, next), encodeRecord(r)); err != nil {
				return err
			}
			seqs[i] = next
		}
		var meta [8]byte
		binary.BigEndian.PutUint64(meta[:], next)
		return tx.Set(KeyMeta(l.name), meta[:])
	})
	if err != nil {
		return nil, err
	}
	l.lastSeq = next
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	return seqs, nil
}
