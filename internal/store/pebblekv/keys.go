package pebblekv

import (
	"encoding/binary"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// Key layout:
//
//	walkin/entry/{id}                          -> CBOR entry
//	walkin/idx/{status}/{position:be64}/{id}   -> empty (position order index)
//	walkin/ctr/{name}                          -> be64 counter
//	walkin/sess/{id}                           -> CBOR session
const (
	prefixRoot    = "walkin/"
	prefixEntry   = prefixRoot + "entry/"
	prefixIndex   = prefixRoot + "idx/"
	prefixCounter = prefixRoot + "ctr/"
	prefixSession = prefixRoot + "sess/"
)

func entryKey(id string) []byte { return []byte(prefixEntry + id) }

func statusPrefix(s queue.Status) []byte { return []byte(prefixIndex + string(s) + "/") }

// indexKey sorts entries of one status by position.
func indexKey(s queue.Status, position int64, id string) []byte {
	p := statusPrefix(s)
	key := make([]byte, len(p)+8+1+len(id))
	copy(key, p)
	binary.BigEndian.PutUint64(key[len(p):], uint64(position))
	key[len(p)+8] = '/'
	copy(key[len(p)+9:], id)
	return key
}

// idFromIndexKey extracts the entry id from an index key under prefix p.
func idFromIndexKey(p, key []byte) string {
	if len(key) < len(p)+9 {
		return ""
	}
	return string(key[len(p)+9:])
}

func counterKey(name string) []byte { return []byte(prefixCounter + name) }

func sessionKey(id string) []byte { return []byte(prefixSession + id) }

func encodeCounter(v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func decodeCounter(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}
