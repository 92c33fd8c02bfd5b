package eventlog

import (
	"context"
	"time"

	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

const defaultTrimBatch = 1024

// TrimOlderThan deletes records older than cutoffMs, oldest first, in
// batches of at most batchLimit keys. It stops at the first newer record
// and returns how many were deleted.
func (l *Log) TrimOlderThan(ctx context.Context, cutoffMs int64, batchLimit int) (int, error) {
	if batchLimit <= 0 {
		batchLimit = defaultTrimBatch
	}
	deleted := 0
	for {
		var keys [][]byte
		done := false
		err := l.db.Scan(EntryPrefix(l.name), func(k, v []byte) error {
			ms, ok := timeMsOf(v)
			if ok && ms >= cutoffMs {
				done = true
				return pebblestore.ErrStopScan
			}
			keys = append(keys, append([]byte(nil), k...))
			if len(keys) >= batchLimit {
				return pebblestore.ErrStopScan
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		if len(keys) == 0 {
			return deleted, nil
		}
		if err := l.db.Update(ctx, func(tx *pebblestore.Txn) error {
			for _, k := range keys {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			return deleted, err
		}
		deleted += len(keys)
		if done || len(keys) < batchLimit {
			return deleted, nil
		}
	}
}

// StartRetention trims records older than maxAge every interval until
// StopRetention is called. now supplies the current time.
func (l *Log) StartRetention(interval, maxAge time.Duration, now func() time.Time, onError func(error)) {
	if interval <= 0 || maxAge <= 0 {
		return
	}
	l.mu.Lock()
	if l.retentionStop != nil {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	l.retentionStop = stop
	l.retentionWG.Add(1)
	l.mu.Unlock()
	go func() {
		defer l.retentionWG.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				cutoff := now().Add(-maxAge).UnixMilli()
				if _, err := l.TrimOlderThan(context.Background(), cutoff, 0); err != nil && onError != nil {
					onError(err)
				}
			}
		}
	}()
}

// StopRetention stops the retention loop, if running, and waits for an
// in-flight trim to finish.
func (l *Log) StopRetention() {
	l.mu.Lock()
	if l.retentionStop != nil {
		close(l.retentionStop)
		l.retentionStop = nil
	}
	l.mu.Unlock()
	l.retentionWG.Wait()
}
