package controllers

import (
	"net/http"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/runtime"
)

// GeneralController serves process-level endpoints.
type GeneralController struct {
	rt *runtime.Runtime
}

func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
}

type healthResp struct {
	Status     string `json:"status"`
	Store      string `json:"store"`
	WorkOrders bool   `json:"workOrders"`
	Journal    bool   `json:"journal"`
	Error      string `json:"error,omitempty"`
}

// handleHealth reports backend reachability and which optional parts are
// enabled. Unhealthy backends answer 503 with the same body.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	cfg := c.rt.Config()
	resp := healthResp{
		Status:     "ok",
		Store:      cfg.Store.Backend,
		WorkOrders: c.rt.Outbox() != nil,
		Journal:    c.rt.Journal() != nil,
	}
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		resp.Status = "not_serving"
		resp.Error = err.Error()
		writeStatusJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, resp)
}
