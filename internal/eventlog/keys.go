package eventlog

import "encoding/binary"

const rootPrefix = "walkin/evlog/"

func logPrefix(name string) []byte { return []byte(rootPrefix + name + "/") }

// KeyMeta holds the last assigned sequence.
func KeyMeta(name string) []byte { return append(logPrefix(name), 'm') }

// EntryPrefix is the range prefix for all records of a log.
func EntryPrefix(name string) []byte { return append(logPrefix(name), 'e', '/') }

// KeyEntry builds the record key with a big-endian sequence so that key
// order matches append order.
func KeyEntry(name string, seq uint64) []byte {
	k := EntryPrefix(name)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return append(k, b[:]...)
}

// KeyCursor is the durable position of a named reader.
func KeyCursor(name, reader string) []byte {
	return append(append(logPrefix(name), 'c', '/'), reader...)
}

func seqFromKey(name string, key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(EntryPrefix(name)):])
}
