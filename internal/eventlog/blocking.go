package eventlog

import (
	"context"
	"time"
)

// AppendSignal returns a channel closed by the next Append. Take it before
// reading so an append racing the read still wakes the waiter.
func (l *Log) AppendSignal() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notifyCh
}

// WaitForAppend blocks until an append happens, timeout elapses or ctx
// ends. It reports whether it was woken by an append.
func (l *Log) WaitForAppend(ctx context.Context, timeout time.Duration) bool {
	return WaitSignal(ctx, l.AppendSignal(), timeout)
}

// WaitSignal waits on a channel from AppendSignal. A timeout <= 0 waits
// until ctx ends.
func WaitSignal(ctx context.Context, sig <-chan struct{}, timeout time.Duration) bool {
	var expire <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expire = t.C
	}
	select {
	case <-sig:
		return true
	case <-expire:
		return false
	case <-ctx.Done():
		return false
	}
}
