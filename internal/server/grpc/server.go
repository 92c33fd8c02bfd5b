package grpcserver

import (
	"context"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener

	watcher *healthWatcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a gRPC server and registers the health service. Health
// status is refreshed every interval; zero uses the default.
func New(rt *runtime.Runtime, logger logpkg.Logger, interval time.Duration, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	hs := health.NewServer()
	hs.SetServingStatus(QueueService, healthpb.HealthCheckResponse_NOT_SERVING)
	s := &Server{rt: rt, grpc: grpc.NewServer(opts...), health: hs}
	s.watcher = &healthWatcher{rt: rt, hs: hs, logger: logger.WithComponent("grpc.health"), interval: interval}
	healthpb.RegisterHealthServer(s.grpc, hs)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.watcher.run(ctx)
	}()
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.lis = l
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.Close()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close marks every service as not serving, stops the watcher and the
// server, and closes the listener.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	s.health.Shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}
