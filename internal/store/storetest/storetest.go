// Package storetest holds behaviour checks shared by every queue.Store
// backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) queue.Store) {
	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open(t)) })
	t.Run("QueryOrder", func(t *testing.T) { testQueryOrder(t, open(t)) })
	t.Run("ConditionalUpdate", func(t *testing.T) { testConditionalUpdate(t, open(t)) })
	t.Run("CounterCAS", func(t *testing.T) { testCounterCAS(t, open(t)) })
	t.Run("ConcurrentCAS", func(t *testing.T) { testConcurrentCAS(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
}

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// Entry builds a waiting entry at position pos.
func Entry(id string, pos int64) queue.Entry {
	return queue.Entry{
		ID:               id,
		CustomerID:       "cust-" + id,
		ServiceType:      queue.ServiceAppointment,
		Status:           queue.StatusWaiting,
		Position:         pos,
		VerificationCode: "0420",
		JoinedAt:         base,
		CreatedAt:        base,
		UpdatedAt:        base,
		ExpiresAt:        base.Add(time.Hour),
	}
}

func testCreateGet(t *testing.T, s queue.Store) {
	ctx := context.Background()
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("get missing: want ErrNotFound, got %v", err)
	}
	in := Entry("a", 1)
	in.Plate = "ABC123"
	km := 1200.5
	in.MileageKm = &km
	in.Details.Inquiry = &queue.InquiryDetails{Topic: "pricing"}
	id, err := s.Create(ctx, in)
	if err != nil || id != "a" {
		t.Fatalf("create: id=%q err=%v", id, err)
	}
	if _, err := s.Create(ctx, in); !errors.Is(err, queue.ErrAlreadyExists) {
		t.Fatalf("duplicate create: want ErrAlreadyExists, got %v", err)
	}
	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CustomerID != in.CustomerID || got.Plate != "ABC123" || got.Position != 1 || got.VerificationCode != "0420" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.MileageKm == nil || *got.MileageKm != km {
		t.Fatalf("mileage lost: %+v", got.MileageKm)
	}
	if got.Details.Inquiry == nil || got.Details.Inquiry.Topic != "pricing" {
		t.Fatalf("details lost: %+v", got.Details)
	}
	if !got.ExpiresAt.Equal(in.ExpiresAt) {
		t.Fatalf("expiresAt: want %v, got %v", in.ExpiresAt, got.ExpiresAt)
	}
}

func testQueryOrder(t *testing.T, s queue.Store) {
	ctx := context.Background()
	for i, pos := range []int64{3, 1, 4, 2} {
		e := Entry(fmt.Sprintf("e%d", i), pos)
		if pos == 4 {
			e.Status = queue.StatusServed
		}
		if _, err := s.Create(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := s.Query(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusWaiting}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 waiting, got %d", len(got))
	}
	for i, e := range got {
		if e.Position != int64(i+1) {
			t.Fatalf("order: index %d has position %d", i, e.Position)
		}
	}
	limited, err := s.Query(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusWaiting}, Limit: 2})
	if err != nil || len(limited) != 2 || limited[0].Position != 1 {
		t.Fatalf("limit: %+v %v", limited, err)
	}
	all, err := s.Query(ctx, queue.Filter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("unfiltered: len=%d err=%v", len(all), err)
	}
}

func testConditionalUpdate(t *testing.T, s queue.Store) {
	ctx := context.Background()
	if _, err := s.Create(ctx, Entry("a", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	tech := "tech1"
	at := base.Add(time.Minute)
	u, err := s.ConditionalUpdate(ctx, "a", queue.StatusWaiting, queue.Patch{
		Status: queue.StatusCalled, AssignedTo: &tech, CalledAt: &at, UpdatedAt: at,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if u.Status != queue.StatusCalled || u.AssignedTo != "tech1" || u.CalledAt == nil || !u.CalledAt.Equal(at) {
		t.Fatalf("patched entry: %+v", u)
	}
	if _, err := s.ConditionalUpdate(ctx, "a", queue.StatusWaiting, queue.Patch{Status: queue.StatusCalled}); !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("stale precondition: want ErrConflict, got %v", err)
	}
	if _, err := s.ConditionalUpdate(ctx, "nope", queue.StatusWaiting, queue.Patch{Status: queue.StatusCalled}); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("missing id: want ErrNotFound, got %v", err)
	}
	got, _ := s.Get(ctx, "a")
	if got.Status != queue.StatusCalled || got.VerificationCode != "0420" {
		t.Fatalf("stored entry: %+v", got)
	}
}

func testCounterCAS(t *testing.T, s queue.Store) {
	ctx := context.Background()
	v, err := s.ReadCounter(ctx, "c")
	if err != nil || v != 0 {
		t.Fatalf("fresh counter: v=%d err=%v", v, err)
	}
	ok, err := s.CompareAndSwapCounter(ctx, "c", 0, 1)
	if err != nil || !ok {
		t.Fatalf("first swap: ok=%v err=%v", ok, err)
	}
	ok, err = s.CompareAndSwapCounter(ctx, "c", 0, 1)
	if err != nil || ok {
		t.Fatalf("stale swap must fail: ok=%v err=%v", ok, err)
	}
	if v, _ := s.ReadCounter(ctx, "c"); v != 1 {
		t.Fatalf("counter: want 1, got %d", v)
	}
}

func testConcurrentCAS(t *testing.T, s queue.Store) {
	ctx := context.Background()
	if _, err := s.Create(ctx, Entry("a", 1)); err != nil {
		t.Fatalf("create: %v", err)
	}
	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tech := fmt.Sprintf("tech%d", i)
			_, err := s.ConditionalUpdate(ctx, "a", queue.StatusWaiting, queue.Patch{Status: queue.StatusCalled, AssignedTo: &tech})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("exactly one conditional update must win, got %d", wins)
	}
}

func testSessions(t *testing.T, s queue.Store) {
	ctx := context.Background()
	live := queue.Session{ID: "s1", CreatedAt: base, ExpiresAt: base.Add(15 * time.Minute), IsActive: true}
	old := queue.Session{ID: "s2", CreatedAt: base, ExpiresAt: base.Add(-time.Minute), IsActive: true}
	for _, sess := range []queue.Session{live, old} {
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	if _, err := s.GetSession(ctx, "zz"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("missing session: %v", err)
	}
	got, err := s.SetSessionTicket(ctx, "s1", false, true)
	if err != nil || !got.HasGeneratedTicket {
		t.Fatalf("claim: %+v %v", got, err)
	}
	if _, err := s.SetSessionTicket(ctx, "s1", false, true); !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("second claim: want ErrConflict, got %v", err)
	}
	n, err := s.PurgeExpiredSessions(ctx, base)
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if _, err := s.GetSession(ctx, "s2"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("purged session still present: %v", err)
	}
	if _, err := s.GetSession(ctx, "s1"); err != nil {
		t.Fatalf("live session purged: %v", err)
	}
}
