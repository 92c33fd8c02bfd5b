package workqueue

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// ErrNotLeased is returned by Complete and Fail for a sequence without an
// active lease, typically because it expired and was reclaimed.
var ErrNotLeased = errors.New("workqueue: message is not leased")

const defaultLeaseMs = 30_000

// WorkQueue is a named lease queue.
type WorkQueue struct {
	db     *pebblestore.DB
	name   string
	logger logpkg.Logger

	mu      sync.Mutex
	lastSeq uint64

	sweepStop chan struct{}
}

// OpenQueue initializes a WorkQueue and restores lastSeq from metadata if
// present.
func OpenQueue(db *pebblestore.DB, name string, logger logpkg.Logger) (*WorkQueue, error) {
	if name == "" {
		return nil, errors.New("workqueue: name is required")
	}
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	q := &WorkQueue{db: db, name: name, logger: logger.WithComponent("workqueue")}
	meta, err := db.Get(MetaKey(name))
	switch {
	case err == nil && len(meta) >= 8:
		q.lastSeq = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("workqueue: read meta: %w", err)
	}
	return q, nil
}

// Name returns the queue name.
func (q *WorkQueue) Name() string { return q.name }

// Enqueue appends a message and makes it available immediately. If nowMs <= 0,
// time.Now().UnixMilli() is used.
func (q *WorkQueue) Enqueue(ctx context.Context, header, payload []byte, nowMs int64) (uint64, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	seq := q.lastSeq + 1
	err := q.db.Update(ctx, func(tx *pebblestore.Txn) error {
		if err := tx.Set(MsgKey(q.name, seq), encodeMessage(nowMs, header, payload)); err != nil {
			return err
		}
		if err := tx.Set(ReadyKey(q.name, seq), nil); err != nil {
			return err
		}
		var meta [8]byte
		binary.BigEndian.PutUint64(meta[:], seq)
		return tx.Set(MetaKey(q.name), meta[:])
	})
	if err != nil {
		return 0, err
	}
	q.lastSeq = seq
	return seq, nil
}

// LeasedMessage is a dequeued message under a lease.
type LeasedMessage struct {
	Seq        uint64
	Header     []byte
	Payload    []byte
	EnqueuedMs int64
	ExpiryMs   int64
	Deliveries uint32
	Consumer   string
}

// Dequeue leases up to count available messages in FIFO order to consumer.
func (q *WorkQueue) Dequeue(ctx context.Context, consumer string, count int, leaseMs, nowMs int64) ([]LeasedMessage, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	if count <= 0 {
		count = 1
	}
	if leaseMs <= 0 {
		leaseMs = defaultLeaseMs
	}
	var msgs []LeasedMessage
	err := q.db.Update(ctx, func(tx *pebblestore.Txn) error {
		msgs = msgs[:0]
		var ready []uint64
		err := q.db.Scan(ReadyPrefix(q.name), func(k, _ []byte) error {
			ready = append(ready, seqFromKey(k))
			if len(ready) >= count {
				return pebblestore.ErrStopScan
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, seq := range ready {
			if err := tx.Delete(ReadyKey(q.name, seq)); err != nil {
				return err
			}
			raw, err := tx.Get(MsgKey(q.name, seq))
			if err != nil {
				continue
			}
			dec, ok := decodeMessage(raw)
			if !ok {
				q.logger.Warn("dropping corrupt message", logpkg.F("seq", seq))
				if err := tx.Delete(MsgKey(q.name, seq)); err != nil {
					return err
				}
				continue
			}
			l := lease{ExpiresMs: nowMs + leaseMs, Consumer: consumer, Deliveries: 1}
			if prev, err := tx.Get(LeaseKey(q.name, seq)); err == nil {
				if pl, ok := decodeLease(prev); ok {
					l.Deliveries = pl.Deliveries + 1
				}
			}
			if err := tx.Set(LeaseKey(q.name, seq), encodeLease(l)); err != nil {
				return err
			}
			if err := tx.Set(LeaseIdxKey(q.name, l.ExpiresMs, seq), nil); err != nil {
				return err
			}
			msgs = append(msgs, LeasedMessage{
				Seq: seq, Header: dec.Header, Payload: dec.Payload, EnqueuedMs: dec.EnqueuedMs,
				ExpiryMs: l.ExpiresMs, Deliveries: l.Deliveries, Consumer: consumer,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// activeLease returns the lease for seq if it is held (not merely a
// delivery counter left behind by a reclaim).
func (q *WorkQueue) activeLease(tx *pebblestore.Txn, seq uint64) (lease, bool) {
	raw, err := tx.Get(LeaseKey(q.name, seq))
	if err != nil {
		return lease{}, false
	}
	l, ok := decodeLease(raw)
	if !ok || l.ExpiresMs == 0 {
		return lease{}, false
	}
	return l, true
}

// Complete deletes leased messages.
func (q *WorkQueue) Complete(ctx context.Context, seqs []uint64) error {
	return q.db.Update(ctx, func(tx *pebblestore.Txn) error {
		for _, seq := range seqs {
			l, ok := q.activeLease(tx, seq)
			if !ok {
				return fmt.Errorf("complete %d: %w", seq, ErrNotLeased)
			}
			for _, k := range [][]byte{LeaseIdxKey(q.name, l.ExpiresMs, seq), LeaseKey(q.name, seq), MsgKey(q.name, seq)} {
				if err := tx.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Fail releases a leased message. After maxDeliveries deliveries (0 means
// unlimited) it moves to the dead-letter prefix; otherwise it becomes
// available again.
func (q *WorkQueue) Fail(ctx context.Context, seq uint64, maxDeliveries uint32) (deadLettered bool, err error) {
	err = q.db.Update(ctx, func(tx *pebblestore.Txn) error {
		l, ok := q.activeLease(tx, seq)
		if !ok {
			return fmt.Errorf("fail %d: %w", seq, ErrNotLeased)
		}
		if err := tx.Delete(LeaseIdxKey(q.name, l.ExpiresMs, seq)); err != nil {
			return err
		}
		if maxDeliveries > 0 && l.Deliveries >= maxDeliveries {
			raw, err := tx.Get(MsgKey(q.name, seq))
			if err != nil {
				return err
			}
			deadLettered = true
			if err := tx.Set(DLQKey(q.name, seq), raw); err != nil {
				return err
			}
			if err := tx.Delete(LeaseKey(q.name, seq)); err != nil {
				return err
			}
			return tx.Delete(MsgKey(q.name, seq))
		}
		return q.release(tx, seq, l)
	})
	return deadLettered, err
}

// release keeps the delivery count but drops ownership.
func (q *WorkQueue) release(tx *pebblestore.Txn, seq uint64, l lease) error {
	if err := tx.Set(LeaseKey(q.name, seq), encodeLease(lease{Deliveries: l.Deliveries})); err != nil {
		return err
	}
	return tx.Set(ReadyKey(q.name, seq), nil)
}

// ReclaimExpired returns messages whose lease expired at or before nowMs to
// availability. max <= 0 means no limit.
func (q *WorkQueue) ReclaimExpired(ctx context.Context, nowMs int64, max int) (int, error) {
	if nowMs <= 0 {
		nowMs = time.Now().UnixMilli()
	}
	prefix := LeaseIdxPrefix(q.name)
	reclaimed := 0
	err := q.db.Update(ctx, func(tx *pebblestore.Txn) error {
		reclaimed = 0
		type due struct {
			key []byte
			seq uint64
		}
		var expired []due
		err := q.db.Scan(prefix, func(k, _ []byte) error {
			exp, seq, ok := parseLeaseIdxKey(prefix, k)
			if !ok {
				return nil
			}
			if exp > nowMs {
				return pebblestore.ErrStopScan
			}
			expired = append(expired, due{key: append([]byte(nil), k...), seq: seq})
			if max > 0 && len(expired) >= max {
				return pebblestore.ErrStopScan
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, d := range expired {
			if err := tx.Delete(d.key); err != nil {
				return err
			}
			l, ok := q.activeLease(tx, d.seq)
			if !ok {
				continue
			}
			if err := q.release(tx, d.seq, l); err != nil {
				return err
			}
			reclaimed++
		}
		return nil
	})
	return reclaimed, err
}

// Stats counts available, leased and dead-lettered messages.
type Stats struct {
	Ready        int `json:"ready"`
	Leased       int `json:"leased"`
	DeadLettered int `json:"deadLettered"`
}

// Stats scans the indexes of the queue.
func (q *WorkQueue) Stats() (Stats, error) {
	var s Stats
	count := func(prefix []byte, n *int) error {
		return q.db.Scan(prefix, func(_, _ []byte) error {
			*n++
			return nil
		})
	}
	if err := count(ReadyPrefix(q.name), &s.Ready); err != nil {
		return s, err
	}
	if err := count(LeaseIdxPrefix(q.name), &s.Leased); err != nil {
		return s, err
	}
	if err := count(DLQPrefix(q.name), &s.DeadLettered); err != nil {
		return s, err
	}
	return s, nil
}

// StartSweeper reclaims expired leases every interval plus up to 10%
// jitter until StopSweeper is called.
func (q *WorkQueue) StartSweeper(interval time.Duration, maxPerTick int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sweepStop != nil {
		return
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	if maxPerTick <= 0 {
		maxPerTick = 1024
	}
	stop := make(chan struct{})
	q.sweepStop = stop
	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
				n, err := q.ReclaimExpired(context.Background(), time.Now().UnixMilli(), maxPerTick)
				if err != nil {
					q.logger.Warn("lease reclaim failed", logpkg.Str("queue", q.name), logpkg.Err(err))
				} else if n > 0 {
					q.logger.Info("leases reclaimed", logpkg.Str("queue", q.name), logpkg.Int("count", n))
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper.
func (q *WorkQueue) StopSweeper() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sweepStop != nil {
		close(q.sweepStop)
		q.sweepStop = nil
	}
}
