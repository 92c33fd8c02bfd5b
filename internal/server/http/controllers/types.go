package controllers

import (
	"github.com/nduplat/motorcycle-service-app-sub002/internal/events"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// createSessionReq starts a single-ticket session.
type createSessionReq struct {
	UserID string `json:"userId"`
}

// addEntryResp is returned by POST /v1/queue/entries.
type addEntryResp struct {
	ID               string      `json:"id"`
	Position         int64       `json:"position"`
	VerificationCode string      `json:"verificationCode"`
	Entry            queue.Entry `json:"entry"`
}

type callNextReq struct {
	TechnicianID string `json:"technicianId"`
}

type updateStatusReq struct {
	ID           string       `json:"id"`
	Status       queue.Status `json:"status"`
	TechnicianID string       `json:"technicianId"`
}

type requeueReq struct {
	ID string `json:"id"`
}

type requeueResp struct {
	ID string `json:"id"`
}

type pullReq struct {
	Consumer string `json:"consumer"`
	Count    int    `json:"count"`
}

type completeReq struct {
	Seqs []uint64 `json:"seqs"`
}

type failReq struct {
	Seq uint64 `json:"seq"`
}

type failResp struct {
	DeadLettered bool `json:"deadLettered"`
}

// eventsResp is a page of journaled events. Next is the cursor for the
// following request.
type eventsResp struct {
	Events []events.JournalEntry `json:"events"`
	Next   uint64                `json:"next"`
}
