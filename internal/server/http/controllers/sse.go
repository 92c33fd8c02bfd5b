package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// sseWriter formats active-list snapshots as Server-Sent Events.
type sseWriter struct {
	w http.ResponseWriter
}

// Send writes one "snapshot" event with a JSON array body.
func (s sseWriter) Send(entries []queue.Entry) error {
	if entries == nil {
		entries = []queue.Entry{}
	}
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("event: snapshot\ndata: ")); err != nil {
		return err
	}
	if _, err := s.w.Write(b); err != nil {
		return err
	}
	if _, err := s.w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return s.Flush()
}

// Ping writes an SSE comment to keep idle connections open.
func (s sseWriter) Ping() error {
	if _, err := s.w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	return s.Flush()
}

// Flush flushes the response writer if it supports flushing.
func (s sseWriter) Flush() error {
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
