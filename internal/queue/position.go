package queue

import (
	"context"
	"fmt"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/retry"
)

// PositionCounter names the shared counter backing queue positions.
const PositionCounter = "queue_position"

// PositionAllocator hands out unique, strictly increasing positions using an
// optimistic increment of a shared counter. A lost compare-and-swap is an
// ErrConflict which the executor retries after re-reading.
type PositionAllocator struct {
	counters CounterStore
	exec     *retry.Executor
}

// NewPositionAllocator wires an allocator over counters. The executor's
// Retryable classifier must accept ErrConflict.
func NewPositionAllocator(counters CounterStore, exec *retry.Executor) *PositionAllocator {
	return &PositionAllocator{counters: counters, exec: exec}
}

// Next allocates the next position.
func (a *PositionAllocator) Next(ctx context.Context) (int64, error) {
	return retry.Value(ctx, a.exec, func(ctx context.Context) (int64, error) {
		cur, err := a.counters.ReadCounter(ctx, PositionCounter)
		if err != nil {
			return 0, fmt.Errorf("read position counter: %w", err)
		}
		ok, err := a.counters.CompareAndSwapCounter(ctx, PositionCounter, cur, cur+1)
		if err != nil {
			return 0, fmt.Errorf("advance position counter: %w", err)
		}
		if !ok {
			return 0, ErrConflict
		}
		return cur + 1, nil
	})
}
