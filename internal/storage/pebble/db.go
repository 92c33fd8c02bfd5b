package pebblestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Get and Txn.Get for missing keys.
var ErrNotFound = pebble.ErrNotFound

// FsyncMode defines durability behavior for write operations.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed write.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to Pebble.
	FsyncModeNever
)

// ParseFsyncMode maps "always", "interval" and "never" to a mode; anything
// else is FsyncModeUnspecified.
func ParseFsyncMode(s string) FsyncMode {
	switch s {
	case "always":
		return FsyncModeAlways
	case "interval":
		return FsyncModeInterval
	case "never":
		return FsyncModeNever
	}
	return FsyncModeUnspecified
}

// Options configures the Pebble store wrapper.
type Options struct {
	// DataDir is the path to the Pebble database directory.
	DataDir string
	Fsync   FsyncMode
	// FsyncInterval controls group-commit when Fsync=FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. Nil uses defaults.
	PebbleOptions *pebble.Options
	// Metrics observes read and commit sizes. Optional.
	Metrics MetricsHook
}

// MetricsHook is a minimal hook surface for storage observations.
type MetricsHook interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveCommit(elapsed time.Duration, bytes int)
	ObserveConflict()
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveRead(time.Duration, int)   {}
func (NoopMetrics) ObserveCommit(time.Duration, int) {}
func (NoopMetrics) ObserveConflict()                 {}

// DB wraps a Pebble database with an fsync policy and a serialized
// read-modify-write path.
type DB struct {
	inner     *pebble.DB
	writeSync bool
	metrics   MetricsHook

	// writeMu serializes Update so reads inside a Txn stay valid until
	// commit.
	writeMu sync.Mutex
}

// Open creates or opens a Pebble database with the provided options.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	switch opts.Fsync {
	case FsyncModeAlways, FsyncModeNever:
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		interval := opts.FsyncInterval
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &DB{
		inner:     inner,
		writeSync: opts.Fsync == FsyncModeAlways,
		metrics:   metrics,
	}, nil
}

// Close closes the Pebble database.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

func (db *DB) writeOpts() *pebble.WriteOptions {
	if db.writeSync {
		return pebble.Sync
	}
	return pebble.NoSync
}

// Get copies the value for key or returns ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	buf := append([]byte(nil), val...)
	db.metrics.ObserveRead(time.Since(start), len(buf))
	return buf, nil
}

// Set writes a single key outside any transaction.
func (db *DB) Set(key, value []byte) error {
	return db.Update(context.Background(), func(tx *Txn) error {
		return tx.Set(key, value)
	})
}

// Delete removes a single key outside any transaction.
func (db *DB) Delete(key []byte) error {
	return db.Update(context.Background(), func(tx *Txn) error {
		return tx.Delete(key)
	})
}

// Txn is an indexed batch that reads its own writes on top of the committed
// state. It is only valid inside the Update callback.
type Txn struct {
	b *pebble.Batch
}

// Get returns a copy of the value for key or ErrNotFound.
func (tx *Txn) Get(key []byte) ([]byte, error) {
	val, closer, err := tx.b.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (tx *Txn) Set(key, value []byte) error { return tx.b.Set(key, value, nil) }

func (tx *Txn) Delete(key []byte) error { return tx.b.Delete(key, nil) }

// Update runs fn inside a serialized transaction and commits its writes
// when fn returns nil. Concurrent Updates on the same DB never interleave.
func (db *DB) Update(ctx context.Context, fn func(tx *Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	b := db.inner.NewIndexedBatch()
	defer b.Close()
	if err := fn(&Txn{b: b}); err != nil {
		return err
	}
	if b.Empty() {
		return nil
	}
	start := time.Now()
	size := b.Len()
	if err := b.Commit(db.writeOpts()); err != nil {
		return err
	}
	db.metrics.ObserveCommit(time.Since(start), size)
	return nil
}

// Conflict records a failed optimistic precondition in the metrics hook.
func (db *DB) Conflict() { db.metrics.ObserveConflict() }

// Scan calls fn for every key with the given prefix in key order. The
// slices passed to fn are only valid during the call. Returning
// ErrStopScan ends the scan without error.
func (db *DB) Scan(prefix []byte, fn func(key, value []byte) error) error {
	it, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return it.Error()
}

// ScanFrom is Scan restricted to keys >= start within prefix.
func (db *DB) ScanFrom(prefix, start []byte, fn func(key, value []byte) error) error {
	it, err := db.inner.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer it.Close()
	for ok := it.SeekGE(start); ok; ok = it.Next() {
		if err := fn(it.Key(), it.Value()); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return it.Error()
}

// ErrStopScan ends a Scan early.
var ErrStopScan = errors.New("pebblestore: stop scan")

// PrefixUpperBound returns the smallest key greater than every key with
// prefix p, or nil if no such key exists.
func PrefixUpperBound(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// NewSnapshot creates a consistent view of the database. Caller must Close
// the snapshot.
func (db *DB) NewSnapshot() *pebble.Snapshot {
	return db.inner.NewSnapshot()
}
