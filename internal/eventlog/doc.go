// Package eventlog is an append-only journal of queue events persisted in
// Pebble. It backs the event history endpoint and lets readers resume from
// a durable cursor.
//
// # Keyspace
//
//   - walkin/evlog/{name}/m            last assigned sequence
//   - walkin/evlog/{name}/e/{seq_be8}  records
//   - walkin/evlog/{name}/c/{reader}   reader cursors
//
// Records are stored as: occurredMs(8B BE) | varint typeLen | type |
// payload | crc32c(everything before).
//
// Usage
//
//	l, _ := eventlog.Open(db, "queue")
//	seqs, _ := l.Append(ctx, []eventlog.Record{{Type: "queue.called", TimeMs: now, Payload: p}})
//	items, _ := l.Read(0, 100)            // everything after seq 0
//	_ = l.CommitCursor(ctx, "billing", items[len(items)-1].Seq)
//	woke := l.WaitForAppend(ctx, time.Second)
//	n, _ := l.TrimOlderThan(ctx, cutoffMs, 1024)
package eventlog
