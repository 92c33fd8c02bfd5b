package workorder

import (
	"context"
	"testing"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/clock"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutbox(t *testing.T, clk clock.Clock) *Outbox {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	q, err := workqueue.OpenQueue(db, "workorders", nil)
	require.NoError(t, err)
	return NewOutbox(q, Options{Lease: time.Minute, MaxDeliveries: 2, Clock: clk})
}

func TestCreatePullComplete(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	o := newOutbox(t, clk)
	ctx := context.Background()
	km := 5400.0
	entry := queue.Entry{ID: "e1", CustomerID: "c1", ServiceType: queue.ServiceDirectWorkOrder, Plate: "ABC123", MileageKm: &km}

	ref, err := o.CreateFromQueueEntry(ctx, entry, "tech1")
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)

	got, err := o.Pull(ctx, "bay-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ref.ID, got[0].Order.ID)
	assert.Equal(t, "e1", got[0].Order.EntryID)
	assert.Equal(t, "tech1", got[0].Order.TechnicianID)
	assert.True(t, clk.Now().Add(time.Minute).Equal(got[0].LeaseUntil))

	require.NoError(t, o.Complete(ctx, got[0].Seq))
	st, err := o.Stats()
	require.NoError(t, err)
	assert.Equal(t, workqueue.Stats{}, st)
}

func TestFailRedeliversThenDeadLetters(t *testing.T) {
	clk := clock.NewManual(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	o := newOutbox(t, clk)
	ctx := context.Background()
	_, err := o.CreateFromQueueEntry(ctx, queue.Entry{ID: "e1"}, "tech1")
	require.NoError(t, err)

	d, _ := o.Pull(ctx, "bay-1", 1)
	require.Len(t, d, 1)
	dl, err := o.Fail(ctx, d[0].Seq)
	require.NoError(t, err)
	assert.False(t, dl)

	d, _ = o.Pull(ctx, "bay-2", 1)
	require.Len(t, d, 1)
	assert.Equal(t, uint32(2), d[0].Deliveries)
	dl, err = o.Fail(ctx, d[0].Seq)
	require.NoError(t, err)
	assert.True(t, dl)

	st, _ := o.Stats()
	assert.Equal(t, 1, st.DeadLettered)
}

func TestPullRequiresConsumer(t *testing.T) {
	o := newOutbox(t, nil)
	_, err := o.Pull(context.Background(), "", 1)
	assert.Error(t, err)
}

func TestNoop(t *testing.T) {
	ref, err := Noop{}.CreateFromQueueEntry(context.Background(), queue.Entry{ID: "x"}, "t")
	require.NoError(t, err)
	assert.Equal(t, "noop-x", ref.ID)
}
