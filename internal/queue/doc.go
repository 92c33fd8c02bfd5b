// Package queue implements the walk-in queue ticketing engine.
//
// Customers join with AddEntry and receive a strictly increasing position and
// a 4-digit verification code. Technicians call the next customer with
// CallNext; several technicians (in several processes) may call at once and
// each waiting entry is handed to exactly one of them.
//
// # Lifecycle
//
//	waiting ──CallNext──▶ called ──UpdateEntryStatus──▶ served
//	   │
//	   ├──(now > expiresAt, evaluated lazily)──▶ expired
//	   └──UpdateEntryStatus──▶ cancelled
//
// served, expired and cancelled are terminal. A staff Requeue re-creates an
// expired or cancelled entry as a new waiting entry; it never moves an entry
// back to waiting in place.
//
// # Concurrency
//
// The engine holds no locks around mutations. Every write goes through the
// Store's conditional primitives: ConditionalUpdate for status changes,
// CompareAndSwapCounter for positions and SetSessionTicket for the
// one-ticket-per-session gate. Lost races surface as ErrConflict and are
// retried (positions, status updates) or skipped (call-next candidates).
// Transient store failures are retried with bounded exponential backoff.
//
// # Read path
//
// GetEntryByID and ActiveEntries read through a TTL cache keyed by
// "entry:<id>" and "entries:active". Mutations invalidate the affected keys.
// SubscribeActive pushes fresh active-list snapshots after local mutations and
// on a poll interval so writes from other processes become visible.
package queue
