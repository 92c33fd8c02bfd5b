package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/eventlog"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

var journalEnc = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Journal appends every event to a durable event log so history can be
// replayed after a restart.
type Journal struct {
	log *eventlog.Log
}

// JournalEntry is a replayed event and its journal sequence.
type JournalEntry struct {
	Seq   uint64      `json:"seq"`
	Event queue.Event `json:"event"`
}

func NewJournal(l *eventlog.Log) *Journal { return &Journal{log: l} }

func (j *Journal) Emit(ctx context.Context, ev queue.Event) error {
	body, err := journalEnc.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = j.log.Append(ctx, []eventlog.Record{{
		Type:    string(ev.Type),
		TimeMs:  ev.OccurredAt.UnixMilli(),
		Payload: body,
	}})
	return err
}

// Read returns up to limit events recorded after seq.
func (j *Journal) Read(after uint64, limit int) ([]JournalEntry, error) {
	items, err := j.log.Read(after, limit)
	if err != nil {
		return nil, err
	}
	out := make([]JournalEntry, 0, len(items))
	for _, it := range items {
		var ev queue.Event
		if err := cbor.Unmarshal(it.Payload, &ev); err != nil {
			continue
		}
		out = append(out, JournalEntry{Seq: it.Seq, Event: ev})
	}
	return out, nil
}

// Wait blocks until something is appended or timeout elapses.
func (j *Journal) Wait(ctx context.Context, timeout time.Duration) bool {
	return j.log.WaitForAppend(ctx, timeout)
}

// Signal returns a channel closed by the next Emit.
func (j *Journal) Signal() <-chan struct{} { return j.log.AppendSignal() }

// WaitSignal blocks until sig closes or timeout elapses.
func (j *Journal) WaitSignal(ctx context.Context, sig <-chan struct{}, timeout time.Duration) bool {
	return eventlog.WaitSignal(ctx, sig, timeout)
}

// LastSeq is the newest journal sequence.
func (j *Journal) LastSeq() uint64 { return j.log.LastSeq() }
