package grpcserver

import (
	"context"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// QueueService is the health service name reported for the queue.
const QueueService = "walkin.queue"

const (
	defaultHealthInterval = 5 * time.Second
	healthCheckTimeout    = 2 * time.Second
)

// healthWatcher mirrors Runtime.CheckHealth into the standard health server.
type healthWatcher struct {
	rt       *runtime.Runtime
	hs       *health.Server
	logger   logpkg.Logger
	interval time.Duration
	last     healthpb.HealthCheckResponse_ServingStatus
}

func (h *healthWatcher) probe(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	status := healthpb.HealthCheckResponse_SERVING
	if err := h.rt.CheckHealth(cctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if h.last != status {
			h.logger.Warn("queue not serving", logpkg.Err(err))
		}
	}
	h.last = status
	h.hs.SetServingStatus(QueueService, status)
	h.hs.SetServingStatus("", status)
}

func (h *healthWatcher) run(ctx context.Context) {
	h.probe(ctx)
	t := time.NewTicker(h.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			h.probe(ctx)
		}
	}
}
