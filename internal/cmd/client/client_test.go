package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

func stubServer(t *testing.T, h http.HandlerFunc) BaseURLFunc {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return func() string { return srv.URL }
}

func TestJoinPrintsTicket(t *testing.T) {
	var got queue.JoinData
	base := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/queue/entries" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"e-1","position":3,"verificationCode":"0420"}`))
	})
	cmd := NewRoot(base)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"queue", "join", "--customer", "c-1", "--service", "direct_work_order", "--mileage", "1200"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got.CustomerID != "c-1" || got.ServiceType != queue.ServiceDirectWorkOrder || got.MileageKm == nil || *got.MileageKm != 1200 {
		t.Fatalf("request body: %+v", got)
	}
	if !strings.Contains(buf.String(), `"verificationCode": "0420"`) {
		t.Fatalf("output: %s", buf.String())
	}
}

func TestCallNextEmptyQueue(t *testing.T) {
	t.Setenv("WALKIN_TOKEN", "tok")
	base := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.WriteHeader(http.StatusNoContent)
	})
	cmd := NewRoot(base)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"queue", "call-next", "--technician", "t1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "queue is empty") {
		t.Fatalf("output: %s", buf.String())
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	base := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"entry e-1: illegal transition waiting -> served"}`))
	})
	cmd := NewRoot(base)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"queue", "status", "--id", "e-1", "--status", "served"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "409") || !strings.Contains(err.Error(), "illegal transition") {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestWatchStopsAfterLimit(t *testing.T) {
	base := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 3; i++ {
			_, _ = w.Write([]byte("event: snapshot\ndata: [{\"id\":\"e-1\",\"status\":\"waiting\"}]\n\n"))
		}
	})
	cmd := NewRoot(base)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"queue", "watch", "--limit", "2"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", n, buf.String())
	}
}

func TestWorkOrdersCompleteRequiresSeq(t *testing.T) {
	cmd := NewRoot(func() string { return "http://127.0.0.1:1" })
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"workorders", "complete"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error")
	}
}

func TestEventsPrintsPage(t *testing.T) {
	base := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/queue/events" || r.URL.Query().Get("after") != "4" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		if r.URL.Query().Get("waitMs") != "" {
			t.Errorf("waitMs set without --follow")
		}
		_, _ = w.Write([]byte(`{"events":[{"seq":5,"event":{"id":"ev","type":"queue.called","occurredAt":"2024-05-01T09:30:00Z","entry":{"id":"e-9","status":"called"}}}],"next":5}`))
	})
	cmd := NewRoot(base)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"queue", "events", "--after", "4"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"5", "09:30:00", "queue.called", "e-9", "called"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %s", want, out)
		}
	}
}

func TestTicketDownload(t *testing.T) {
	base := stubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/queue/ticket.pdf" || r.URL.Query().Get("id") != "e-1" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte("%PDF-1.3 stub"))
	})
	out := filepath.Join(t.TempDir(), "t.pdf")
	cmd := NewRoot(base)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"queue", "ticket", "--id", "e-1", "--out", out})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil || string(b) != "%PDF-1.3 stub" {
		t.Fatalf("file: %q %v", b, err)
	}

	cmd = NewRoot(base)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"queue", "ticket", "--id", "e-1", "--format", "svg"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected format error")
	}
}
