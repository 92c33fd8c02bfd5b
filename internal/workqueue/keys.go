package workqueue

import "encoding/binary"

const (
	prefixMsg      = "msg/"
	prefixReady    = "ready/"
	prefixLease    = "lease/"
	prefixLeaseIdx = "lease_idx/"
	prefixDLQ      = "dlq/"
)

// queuePrefix returns the base prefix for a queue: wq/{name}/.
func queuePrefix(name string) string { return "wq/" + name + "/" }

func seqKey(prefix string, seq uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], seq)
	return key
}

// MetaKey holds the last assigned sequence.
func MetaKey(name string) []byte { return []byte(queuePrefix(name) + "meta") }

// MsgKey returns wq/{name}/msg/{seq}.
func MsgKey(name string, seq uint64) []byte { return seqKey(queuePrefix(name)+prefixMsg, seq) }

// ReadyPrefix covers the availability index.
func ReadyPrefix(name string) []byte { return []byte(queuePrefix(name) + prefixReady) }

// ReadyKey returns wq/{name}/ready/{seq}.
func ReadyKey(name string, seq uint64) []byte { return seqKey(queuePrefix(name)+prefixReady, seq) }

// LeaseKey returns wq/{name}/lease/{seq}.
func LeaseKey(name string, seq uint64) []byte { return seqKey(queuePrefix(name)+prefixLease, seq) }

// LeaseIdxPrefix covers the lease expiry index.
func LeaseIdxPrefix(name string) []byte { return []byte(queuePrefix(name) + prefixLeaseIdx) }

// LeaseIdxKey returns wq/{name}/lease_idx/{expires_ms}/{seq}; keys sort by
// expiry.
func LeaseIdxKey(name string, expiresMs int64, seq uint64) []byte {
	p := LeaseIdxPrefix(name)
	key := make([]byte, len(p)+16)
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], uint64(expiresMs))
	binary.BigEndian.PutUint64(key[len(p)+8:], seq)
	return key
}

// parseLeaseIdxKey returns expiry and sequence of a lease index key.
func parseLeaseIdxKey(prefix, key []byte) (int64, uint64, bool) {
	if len(key) != len(prefix)+16 {
		return 0, 0, false
	}
	exp := int64(binary.BigEndian.Uint64(key[len(prefix):]))
	seq := binary.BigEndian.Uint64(key[len(prefix)+8:])
	return exp, seq, true
}

// DLQPrefix covers dead-lettered messages.
func DLQPrefix(name string) []byte { return []byte(queuePrefix(name) + prefixDLQ) }

// DLQKey returns wq/{name}/dlq/{seq}.
func DLQKey(name string, seq uint64) []byte { return seqKey(queuePrefix(name)+prefixDLQ, seq) }

// seqFromKey reads the trailing big-endian sequence of a key.
func seqFromKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
