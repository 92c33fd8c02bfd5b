// Package workqueue implements a one-of-N task queue with lease-based
// delivery on top of pebblestore.
//
// Each message is delivered to one consumer at a time. A dequeued message
// is leased for a duration; Complete deletes it, Fail either makes it
// available again or dead-letters it after too many deliveries, and an
// expired lease is reclaimed by ReclaimExpired (or the sweeper) so another
// consumer can take it.
//
// # Keyspace
//
// All keys are prefixed with wq/{name}/:
//
//	meta                           - last sequence (8B BE)
//	msg/{seq}                      - message record
//	ready/{seq}                    - availability index, FIFO by sequence
//	lease/{seq}                    - lease (expires_ms, deliveries, consumer)
//	lease_idx/{expires_ms}/{seq}   - lease expiry index for reclaim scans
//	dlq/{seq}                      - dead-lettered message record
//
// # At-Least-Once Semantics
//
// A consumer that crashes after processing but before Complete will see the
// message redelivered once the lease expires. Consumers must be idempotent.
package workqueue
