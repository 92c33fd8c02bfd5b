package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/nduplat/motorcycle-service-app-sub002/internal/config"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func openRuntime(t *testing.T) *runtime.Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = cfgpkg.BackendMemory
	cfg.WorkOrders.Enabled = false
	cfg.Events.Log = false
	cfg.Queue.SessionSweepMs = 0
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	return rt
}

func TestHealthOverGRPC(t *testing.T) {
	rt := openRuntime(t)
	defer rt.Close()
	srv := New(rt, nil, 10*time.Millisecond)
	defer srv.Close()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(srv.grpc)),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	c := healthpb.NewHealthClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		res, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: QueueService})
		if err == nil && res.GetStatus() == healthpb.HealthCheckResponse_SERVING {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("never became SERVING: %v %v", res, err)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHealthNotServingWhenBackendDown(t *testing.T) {
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Store.Backend = cfgpkg.BackendRedis
	cfg.Redis.URL = "redis://127.0.0.1:1/0"
	cfg.Cache.Backend = cfgpkg.BackendNone
	cfg.WorkOrders.Enabled = false
	cfg.Events.Log = false
	cfg.Queue.SessionSweepMs = 0
	rt, err := runtime.Open(runtime.Options{Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	defer rt.Close()
	srv := New(rt, nil, time.Hour)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		res, err := srv.health.Check(ctx, &healthpb.HealthCheckRequest{Service: QueueService})
		if err != nil {
			t.Fatalf("check: %v", err)
		}
		if res.GetStatus() == healthpb.HealthCheckResponse_NOT_SERVING {
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("status: %v", res.GetStatus())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
