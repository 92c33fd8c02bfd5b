package eventlog

import (
	"context"
	"encoding/binary"
	"errors"

	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

// CommitCursor stores the last processed sequence for reader. Commits that
// would move the cursor backwards are ignored.
func (l *Log) CommitCursor(ctx context.Context, reader string, seq uint64) error {
	if reader == "" {
		return errors.New("eventlog: reader is required")
	}
	key := KeyCursor(l.name, reader)
	return l.db.Update(ctx, func(tx *pebblestore.Txn) error {
		cur, err := tx.Get(key)
		if err == nil && len(cur) >= 8 && seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
		if err != nil && !errors.Is(err, pebblestore.ErrNotFound) {
			return err
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], seq)
		return tx.Set(key, b[:])
	})
}

// Cursor loads the committed sequence for reader.
func (l *Log) Cursor(reader string) (uint64, bool) {
	cur, err := l.db.Get(KeyCursor(l.name, reader))
	if err != nil || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
