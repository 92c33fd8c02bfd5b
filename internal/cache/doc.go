// Package cache provides the TTL read-through cache used by the queue read
// path.
//
// A Backend stores opaque bytes with a TTL (Memory for a single process,
// Redis when several processes share the queue). Layer sits on top, encodes
// values as JSON and swallows backend failures: a cache that is down behaves
// like a cache that always misses, and a failed invalidation is logged, never
// returned.
package cache
