package runtime

import (
	"context"
	"testing"

	cfgpkg "github.com/nduplat/motorcycle-service-app-sub002/internal/config"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

func testConfig(t *testing.T, backend string) cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = backend
	cfg.Store.Fsync = "always"
	cfg.Events.Log = false
	cfg.Queue.SessionSweepMs = 0
	cfg.WorkOrders.SweepMs = 0
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(t, cfgpkg.BackendPebble)})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rt.DB() == nil || rt.Outbox() == nil {
		t.Fatalf("expected pebble db and outbox")
	}
}

func TestPebbleJoinCallCreatesWorkOrder(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(Options{Config: testConfig(t, cfgpkg.BackendPebble)})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()

	e, err := rt.Engine().Join(ctx, queue.JoinData{CustomerID: "c1", ServiceType: queue.ServiceInquiry})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	called, err := rt.Engine().CallNext(ctx, "tech-1")
	if err != nil || called == nil || called.ID != e.ID {
		t.Fatalf("call next: %v %+v", err, called)
	}
	ds, err := rt.Outbox().Pull(ctx, "worker", 10)
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if len(ds) != 1 || ds[0].Order.EntryID != e.ID {
		t.Fatalf("unexpected deliveries: %+v", ds)
	}

	hist, err := rt.Journal().Read(0, 0)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(hist) != 2 || hist[0].Event.Type != queue.EventEntryAdded || hist[1].Event.Type != queue.EventCalled {
		t.Fatalf("unexpected journal: %+v", hist)
	}
}

func TestMemoryBackendWithoutWorkOrders(t *testing.T) {
	cfg := testConfig(t, cfgpkg.BackendMemory)
	cfg.WorkOrders.Enabled = false
	cfg.Events.Journal = false
	cfg.Cache.Backend = cfgpkg.BackendNone
	rt, err := Open(Options{Config: cfg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.DB() != nil {
		t.Fatalf("pebble should not be opened")
	}
	if rt.Outbox() != nil {
		t.Fatalf("outbox should be nil")
	}
	if _, err := rt.Engine().AddEntry(context.Background(), queue.JoinData{CustomerID: "c", ServiceType: queue.ServiceInquiry}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "cassandra")
	if _, err := Open(Options{Config: cfg}); err == nil {
		t.Fatalf("expected error")
	}
}
