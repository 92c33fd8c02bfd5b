package controllers

import (
	"net/http"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
	queuesvc "github.com/nduplat/motorcycle-service-app-sub002/internal/services/queue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general    *GeneralController
	queue      *QueueController
	workorders *WorkOrdersController
}

// NewControllerRegistry creates a new controller registry. Staff routes are
// guarded by auth; a nil or secretless Authenticator leaves them open.
func NewControllerRegistry(rt *runtime.Runtime, svc *queuesvc.Service, auth *Authenticator, logger logpkg.Logger) *ControllerRegistry {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &ControllerRegistry{
		general:    NewGeneralController(rt),
		queue:      NewQueueController(svc, auth, logger),
		workorders: NewWorkOrdersController(svc, auth, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.queue.RegisterRoutes(mux)
	r.workorders.RegisterRoutes(mux)
}
