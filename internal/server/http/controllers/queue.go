package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/events"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
	queuesvc "github.com/nduplat/motorcycle-service-app-sub002/internal/services/queue"
	logpkg "github.com/nduplat/motorcycle-service-app-sub002/pkg/log"
)

const ssePingInterval = 15 * time.Second

// QueueController serves the customer and staff queue endpoints.
type QueueController struct {
	svc    *queuesvc.Service
	auth   *Authenticator
	logger logpkg.Logger
}

// NewQueueController creates a new queue controller.
func NewQueueController(svc *queuesvc.Service, auth *Authenticator, logger logpkg.Logger) *QueueController {
	return &QueueController{svc: svc, auth: auth, logger: logger.WithComponent("http.queue")}
}

// RegisterRoutes registers queue routes with the given mux.
func (c *QueueController) RegisterRoutes(mux *http.ServeMux) {
	// Customer facing
	mux.HandleFunc("/v1/queue/sessions", c.handleSessions)
	mux.HandleFunc("/v1/queue/entries", c.handleEntries)
	mux.HandleFunc("/v1/queue/ticket.png", c.handleTicket)
	mux.HandleFunc("/v1/queue/ticket.pdf", c.handleTicketPDF)
	mux.HandleFunc("/v1/queue/active", c.handleActive)
	mux.HandleFunc("/v1/queue/active/watch", c.handleWatch)

	// Staff
	mux.HandleFunc("/v1/queue/call-next", c.auth.Require(c.handleCallNext))
	mux.HandleFunc("/v1/queue/status", c.auth.Require(c.handleStatus))
	mux.HandleFunc("/v1/queue/requeue", c.auth.Require(c.handleRequeue))
	mux.HandleFunc("/v1/queue/events", c.auth.Require(c.handleEvents))
}

// handleSessions creates (POST) or reads (GET ?id=) a session.
func (c *QueueController) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req createSessionReq
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		sess, err := c.svc.CreateSession(r.Context(), req.UserID)
		if err != nil {
			writeServiceError(w, c.logger, "create session", err)
			return
		}
		writeCreatedJSON(w, sess)
	case http.MethodGet:
		sess, err := c.svc.GetSession(r.Context(), r.URL.Query().Get("id"))
		if err != nil {
			writeServiceError(w, c.logger, "get session", err)
			return
		}
		writeJSON(w, sess)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleEntries adds an entry (POST) or reads one (GET ?id=).
func (c *QueueController) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req queue.JoinData
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		e, err := c.svc.Join(r.Context(), req)
		if err != nil {
			writeServiceError(w, c.logger, "add entry", err)
			return
		}
		writeCreatedJSON(w, addEntryResp{ID: e.ID, Position: e.Position, VerificationCode: e.VerificationCode, Entry: e})
	case http.MethodGet:
		id := r.URL.Query().Get("id")
		e, err := c.svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, c.logger, "get entry", err)
			return
		}
		if e == nil {
			writeError(w, http.StatusNotFound, "queue entry not found")
			return
		}
		writeJSON(w, e)
	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleTicket renders the ticket QR code as PNG.
func (c *QueueController) handleTicket(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	png, err := c.svc.TicketPNG(r.Context(), q.Get("id"), parseLimit(q.Get("size")))
	if err != nil {
		writeServiceError(w, c.logger, "render ticket", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	_, _ = w.Write(png)
}

// handleTicketPDF renders the printable ticket.
func (c *QueueController) handleTicketPDF(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id := r.URL.Query().Get("id")
	pdf, err := c.svc.TicketPDF(r.Context(), id)
	if err != nil {
		writeServiceError(w, c.logger, "render ticket pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="ticket-`+id+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// handleActive returns the active list, optionally filtered by ?filter=<CEL>.
func (c *QueueController) handleActive(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	entries, err := c.svc.Active(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeServiceError(w, c.logger, "active entries", err)
		return
	}
	if entries == nil {
		entries = []queue.Entry{}
	}
	writeJSON(w, map[string]any{"entries": entries})
}

// handleWatch streams active-list snapshots over SSE until the client goes
// away.
func (c *QueueController) handleWatch(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	ch, err := c.svc.Watch(r.Context(), r.URL.Query().Get("filter"))
	if err != nil {
		writeServiceError(w, c.logger, "watch", err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	out := sseWriter{w: w}
	_ = out.Flush()

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := out.Send(snap); err != nil {
				c.logger.Debug("watch client gone", logpkg.Err(err))
				return
			}
		case <-ping.C:
			if err := out.Ping(); err != nil {
				return
			}
		}
	}
}

// handleCallNext assigns the next waiting entry; 204 when the queue is empty.
func (c *QueueController) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req callNextReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tech, ok := technicianFrom(r.Context(), req.TechnicianID)
	if !ok {
		writeTechnicianMismatch(w)
		return
	}
	e, err := c.svc.CallNext(r.Context(), tech)
	if err != nil {
		writeServiceError(w, c.logger, "call next", err)
		return
	}
	if e == nil {
		writeNoContent(w)
		return
	}
	writeJSON(w, e)
}

// handleStatus applies a staff status change.
func (c *QueueController) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req updateStatusReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	tech := req.TechnicianID
	if req.Status == queue.StatusCalled {
		t, ok := technicianFrom(r.Context(), tech)
		if !ok {
			writeTechnicianMismatch(w)
			return
		}
		tech = t
	}
	if err := c.svc.UpdateStatus(r.Context(), req.ID, req.Status, tech); err != nil {
		writeServiceError(w, c.logger, "update status", err)
		return
	}
	writeNoContent(w)
}

// handleRequeue re-admits an expired or cancelled entry.
func (c *QueueController) handleRequeue(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req requeueReq
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := c.svc.Requeue(r.Context(), req.ID)
	if err != nil {
		writeServiceError(w, c.logger, "requeue", err)
		return
	}
	writeCreatedJSON(w, requeueResp{ID: id})
}

// handleEvents pages through the event journal. Query: after, limit, waitMs.
func (c *QueueController) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "after must be a sequence number")
			return
		}
		after = n
	}
	wait := time.Duration(parseLimit(q.Get("waitMs"))) * time.Millisecond
	items, err := c.svc.Events(r.Context(), after, parseLimit(q.Get("limit")), wait)
	if err != nil {
		writeServiceError(w, c.logger, "read events", err)
		return
	}
	resp := eventsResp{Events: items, Next: after}
	if len(items) > 0 {
		resp.Next = items[len(items)-1].Seq
	} else {
		resp.Events = []events.JournalEntry{}
	}
	writeJSON(w, resp)
}
