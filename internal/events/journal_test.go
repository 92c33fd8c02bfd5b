package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/eventlog"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

func newJournal(t *testing.T) *Journal {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeNever})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l, err := eventlog.Open(db, "queue")
	require.NoError(t, err)
	return NewJournal(l)
}

func TestJournalReplaysEvents(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	first := sampleEvent()
	second := sampleEvent()
	second.ID = "ev-2"
	second.Type = queue.EventStatusChanged
	second.PreviousStatus = queue.StatusCalled
	require.NoError(t, j.Emit(ctx, first))
	require.NoError(t, j.Emit(ctx, second))

	got, err := j.Read(0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, "ev-1", got[0].Event.ID)
	assert.True(t, first.OccurredAt.Equal(got[0].Event.OccurredAt))
	assert.Equal(t, "tech1", got[0].Event.TechnicianID)
	assert.Equal(t, queue.StatusCalled, got[1].Event.PreviousStatus)
	assert.Equal(t, uint64(2), j.LastSeq())

	tail, err := j.Read(1, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "ev-2", tail[0].Event.ID)
}

func TestJournalWaitWakesOnEmit(t *testing.T) {
	j := newJournal(t)
	done := make(chan bool, 1)
	go func() { done <- j.Wait(context.Background(), 2*time.Second) }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, j.Emit(context.Background(), sampleEvent()))
	select {
	case woke := <-done:
		assert.True(t, woke)
	case <-time.After(time.Second):
		t.Fatal("wait not woken")
	}
}

func TestJournalSignalTakenBeforeReadSeesEmit(t *testing.T) {
	j := newJournal(t)
	ctx := context.Background()
	sig := j.Signal()
	got, err := j.Read(0, 10)
	require.NoError(t, err)
	require.Empty(t, got)
	require.NoError(t, j.Emit(ctx, sampleEvent()))

	start := time.Now()
	assert.True(t, j.WaitSignal(ctx, sig, 2*time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
