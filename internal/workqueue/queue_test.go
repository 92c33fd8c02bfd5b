package workqueue

import (
	"context"
	"errors"
	"testing"

	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

func openTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func openTestQueue(t *testing.T) *WorkQueue {
	t.Helper()
	q, err := OpenQueue(openTestDB(t), "wo", nil)
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	return q
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	s1, _ := q.Enqueue(ctx, nil, []byte("a"), 1000)
	s2, _ := q.Enqueue(ctx, []byte("h"), []byte("b"), 1001)
	if s1 != 1 || s2 != 2 {
		t.Fatalf("seqs %d %d", s1, s2)
	}
	msgs, err := q.Dequeue(ctx, "c1", 1, 1000, 2000)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Seq != s1 || string(msgs[0].Payload) != "a" || msgs[0].Deliveries != 1 {
		t.Fatalf("first dequeue: %+v", msgs)
	}
	msgs, _ = q.Dequeue(ctx, "c2", 5, 1000, 2000)
	if len(msgs) != 1 || msgs[0].Seq != s2 || string(msgs[0].Header) != "h" {
		t.Fatalf("second dequeue: %+v", msgs)
	}
	if msgs, _ := q.Dequeue(ctx, "c3", 5, 1000, 2000); len(msgs) != 0 {
		t.Fatalf("nothing should be left: %+v", msgs)
	}
}

func TestCompleteDeletes(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	seq, _ := q.Enqueue(ctx, nil, []byte("a"), 1000)
	if err := q.Complete(ctx, []uint64{seq}); !errors.Is(err, ErrNotLeased) {
		t.Fatalf("complete before dequeue: %v", err)
	}
	if _, err := q.Dequeue(ctx, "c", 1, 1000, 1000); err != nil {
		t.Fatal(err)
	}
	if err := q.Complete(ctx, []uint64{seq}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	st, _ := q.Stats()
	if st != (Stats{}) {
		t.Fatalf("stats after complete: %+v", st)
	}
}

func TestReclaimExpiredRedelivers(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	seq, _ := q.Enqueue(ctx, nil, []byte("a"), 1000)
	if _, err := q.Dequeue(ctx, "c1", 1, 500, 1000); err != nil {
		t.Fatal(err)
	}
	if n, _ := q.ReclaimExpired(ctx, 1400, 0); n != 0 {
		t.Fatalf("reclaimed before expiry: %d", n)
	}
	n, err := q.ReclaimExpired(ctx, 1500, 0)
	if err != nil || n != 1 {
		t.Fatalf("reclaim: n=%d err=%v", n, err)
	}
	if err := q.Complete(ctx, []uint64{seq}); !errors.Is(err, ErrNotLeased) {
		t.Fatalf("stale consumer completed a reclaimed message: %v", err)
	}
	msgs, _ := q.Dequeue(ctx, "c2", 1, 500, 1600)
	if len(msgs) != 1 || msgs[0].Deliveries != 2 || msgs[0].Consumer != "c2" {
		t.Fatalf("redelivery: %+v", msgs)
	}
}

func TestFailDeadLettersAfterMaxDeliveries(t *testing.T) {
	q := openTestQueue(t)
	ctx := context.Background()
	seq, _ := q.Enqueue(ctx, nil, []byte("a"), 1000)
	for i := 1; i <= 2; i++ {
		if _, err := q.Dequeue(ctx, "c", 1, 1000, 1000); err != nil {
			t.Fatal(err)
		}
		dl, err := q.Fail(ctx, seq, 2)
		if err != nil {
			t.Fatalf("fail %d: %v", i, err)
		}
		if dl != (i == 2) {
			t.Fatalf("attempt %d dead-lettered=%v", i, dl)
		}
	}
	st, _ := q.Stats()
	if st.DeadLettered != 1 || st.Ready != 0 || st.Leased != 0 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestReopenRestoresSequence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	q, _ := OpenQueue(db, "wo", nil)
	_, _ = q.Enqueue(ctx, nil, []byte("a"), 1)
	_, _ = q.Enqueue(ctx, nil, []byte("b"), 1)
	q2, err := OpenQueue(db, "wo", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	seq, _ := q2.Enqueue(ctx, nil, []byte("c"), 1)
	if seq != 3 {
		t.Fatalf("want seq 3 after reopen, got %d", seq)
	}
}
