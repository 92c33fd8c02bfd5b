package queuesvc

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cfgpkg "github.com/nduplat/motorcycle-service-app-sub002/internal/config"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

func newService(t *testing.T, workOrders bool) *Service {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = cfgpkg.BackendMemory
	cfg.Events.Log = false
	cfg.Queue.SessionSweepMs = 0
	cfg.WorkOrders.Enabled = workOrders
	cfg.WorkOrders.SweepMs = 0
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return NewWithLogger(rt, logpkg.NewNopLogger())
}

func join(t *testing.T, s *Service, customer string, st queue.ServiceType) queue.Entry {
	t.Helper()
	e, err := s.Join(context.Background(), queue.JoinData{CustomerID: customer, ServiceType: st})
	require.NoError(t, err)
	return e
}

func TestActiveFilter(t *testing.T) {
	ctx := context.Background()
	s := newService(t, false)
	a := join(t, s, "c1", queue.ServiceInquiry)
	join(t, s, "c2", queue.ServiceAppointment)
	c := join(t, s, "c3", queue.ServiceInquiry)

	all, err := s.Active(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)

	got, err := s.Active(ctx, `service_type == "inquiry"`)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, a.ID, got[0].ID)
	require.Equal(t, c.ID, got[1].ID)

	got, err = s.Active(ctx, `position > 1 && customer_id != "c3"`)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "c2", got[0].CustomerID)
}

func TestActiveFilterRejectsBadExpressions(t *testing.T) {
	s := newService(t, false)
	for _, expr := range []string{"position +", "position + 1", "unknown_var == 1"} {
		_, err := s.Active(context.Background(), expr)
		var ve *queue.ValidationError
		require.True(t, errors.As(err, &ve), "expr %q: %v", expr, err)
	}
}

func TestWaitedMsFilter(t *testing.T) {
	s := newService(t, false)
	e := join(t, s, "c1", queue.ServiceInquiry)
	s.now = func() time.Time { return e.JoinedAt.Add(20 * time.Minute) }
	got, err := s.Active(context.Background(), "waited_ms > 600000")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestWatchFiltersSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := newService(t, false)
	ch, err := s.Watch(ctx, `status == "called"`)
	require.NoError(t, err)

	join(t, s, "c1", queue.ServiceInquiry)
	_, err = s.CallNext(ctx, "tech-1")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if len(snap) == 1 && snap[0].Status == queue.StatusCalled {
				return
			}
			for _, e := range snap {
				require.Equal(t, queue.StatusCalled, e.Status)
			}
		case <-deadline:
			t.Fatalf("no called snapshot received")
		}
	}
}

func TestTicketPNG(t *testing.T) {
	ctx := context.Background()
	s := newService(t, false)
	e := join(t, s, "c1", queue.ServiceInquiry)
	png, err := s.TicketPNG(ctx, e.ID, 0)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
	require.Equal(t, e.ID+":"+e.VerificationCode, TicketPayload(e))

	_, err = s.TicketPNG(ctx, "missing", 0)
	require.ErrorIs(t, err, queue.ErrNotFound)
}

func TestTicketPDF(t *testing.T) {
	ctx := context.Background()
	s := newService(t, false)
	e, err := s.Join(ctx, queue.JoinData{CustomerID: "c1", ServiceType: queue.ServiceDirectWorkOrder, Plate: "abc-12d"})
	require.NoError(t, err)

	pdf, err := s.TicketPDF(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(pdf, []byte("%PDF-")))
	require.True(t, bytes.Contains(pdf, []byte("%%EOF")))

	_, err = s.TicketPDF(ctx, "missing")
	require.ErrorIs(t, err, queue.ErrNotFound)
}

func TestWorkOrdersThroughService(t *testing.T) {
	ctx := context.Background()
	s := newService(t, true)
	e := join(t, s, "c1", queue.ServiceDirectWorkOrder)
	_, err := s.CallNext(ctx, "tech-9")
	require.NoError(t, err)

	ds, err := s.PullWorkOrders(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, e.ID, ds[0].Order.EntryID)
	require.Equal(t, "tech-9", ds[0].Order.TechnicianID)

	require.NoError(t, s.CompleteWorkOrders(ctx, []uint64{ds[0].Seq}))
	st, err := s.WorkOrderStats()
	require.NoError(t, err)
	require.Zero(t, st.Ready+st.Leased)
}

func TestWorkOrdersDisabled(t *testing.T) {
	s := newService(t, false)
	_, err := s.PullWorkOrders(context.Background(), "w", 1)
	require.ErrorIs(t, err, ErrWorkOrdersDisabled)
	require.ErrorIs(t, s.CompleteWorkOrders(context.Background(), []uint64{1}), ErrWorkOrdersDisabled)
}

func TestSessionFlow(t *testing.T) {
	ctx := context.Background()
	s := newService(t, false)
	sess, err := s.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	_, err = s.Join(ctx, queue.JoinData{CustomerID: "c1", ServiceType: queue.ServiceInquiry, SessionID: sess.ID})
	require.NoError(t, err)
	_, err = s.Join(ctx, queue.JoinData{CustomerID: "c1", ServiceType: queue.ServiceInquiry, SessionID: sess.ID})
	require.ErrorIs(t, err, queue.ErrSessionUnavailable)
	got, err := s.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, got.HasGeneratedTicket)
}

func TestEventsLongPoll(t *testing.T) {
	ctx := context.Background()
	s := newService(t, false)
	join(t, s, "c1", queue.ServiceInquiry)

	page, err := s.Events(ctx, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, queue.EventEntryAdded, page[0].Event.Type)

	done := make(chan int, 1)
	go func() {
		got, _ := s.Events(ctx, page[0].Seq, 10, 2*time.Second)
		done <- len(got)
	}()
	time.Sleep(30 * time.Millisecond)
	join(t, s, "c2", queue.ServiceInquiry)
	select {
	case n := <-done:
		require.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("long poll did not return")
	}

	start := time.Now()
	empty, err := s.Events(ctx, 99, 10, 30*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, empty)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestEventsJournalDisabled(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = cfgpkg.BackendMemory
	cfg.Events.Log = false
	cfg.Events.Journal = false
	cfg.WorkOrders.Enabled = false
	cfg.Queue.SessionSweepMs = 0
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	require.NoError(t, err)
	defer rt.Close()
	_, err = NewWithLogger(rt, nil).Events(context.Background(), 0, 0, 0)
	require.True(t, errors.Is(err, ErrJournalDisabled))
}
