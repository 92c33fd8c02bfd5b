package controllers

import (
	"net/http"

	queuesvc "github.com/nduplat/motorcycle-service-app-sub002/internal/services/queue"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/workorder"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

// WorkOrdersController lets downstream workers drain the work-order outbox.
type WorkOrdersController struct {
	svc    *queuesvc.Service
	auth   *Authenticator
	logger logpkg.Logger
}

// NewWorkOrdersController creates a new work-orders controller.
func NewWorkOrdersController(svc *queuesvc.Service, auth *Authenticator, logger logpkg.Logger) *WorkOrdersController {
	return &WorkOrdersController{svc: svc, auth: auth, logger: logger.WithComponent("http.workorders")}
}

// RegisterRoutes registers work-order routes with the given mux. All of
// them are staff routes.
func (c *WorkOrdersController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/workorders/dequeue", c.auth.Require(c.handleDequeue))
	mux.HandleFunc("/v1/workorders/complete", c.auth.Require(c.handleComplete))
	mux.HandleFunc("/v1/workorders/fail", c.auth.Require(c.handleFail))
	mux.HandleFunc("/v1/workorders/stats", c.auth.Require(c.handleStats))
}

func (c *WorkOrdersController) handleDequeue(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req pullReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Consumer == "" {
		req.Consumer, _ = technicianFrom(r.Context(), "")
	}
	if req.Consumer == "" {
		writeError(w, http.StatusBadRequest, "consumer is required")
		return
	}
	ds, err := c.svc.PullWorkOrders(r.Context(), req.Consumer, req.Count)
	if err != nil {
		writeServiceError(w, c.logger, "dequeue work orders", err)
		return
	}
	if ds == nil {
		ds = []workorder.Delivery{}
	}
	writeJSON(w, map[string]any{"deliveries": ds})
}

func (c *WorkOrdersController) handleComplete(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req completeReq
	if err := decodeBody(r, &req); err != nil || len(req.Seqs) == 0 {
		writeError(w, http.StatusBadRequest, "seqs are required")
		return
	}
	if err := c.svc.CompleteWorkOrders(r.Context(), req.Seqs); err != nil {
		writeServiceError(w, c.logger, "complete work orders", err)
		return
	}
	writeNoContent(w)
}

func (c *WorkOrdersController) handleFail(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req failReq
	if err := decodeBody(r, &req); err != nil || req.Seq == 0 {
		writeError(w, http.StatusBadRequest, "seq is required")
		return
	}
	dl, err := c.svc.FailWorkOrder(r.Context(), req.Seq)
	if err != nil {
		writeServiceError(w, c.logger, "fail work order", err)
		return
	}
	writeJSON(w, failResp{DeadLettered: dl})
}

func (c *WorkOrdersController) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	st, err := c.svc.WorkOrderStats()
	if err != nil {
		writeServiceError(w, c.logger, "work order stats", err)
		return
	}
	writeJSON(w, st)
}
