package workqueue

import (
	"encoding/binary"
	"hash/crc32"
)

// Message record: enqueuedMs(8B BE) | headerLen(4B BE) | header | payload |
// crc32c(everything before)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const recordOverhead = 8 + 4 + 4

func encodeMessage(enqueuedMs int64, header, payload []byte) []byte {
	out := make([]byte, 12, recordOverhead+len(header)+len(payload))
	binary.BigEndian.PutUint64(out[0:8], uint64(enqueuedMs))
	binary.BigEndian.PutUint32(out[8:12], uint32(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc32.Checksum(out, castagnoli))
	return append(out, cb[:]...)
}

type decoded struct {
	EnqueuedMs int64
	Header     []byte
	Payload    []byte
}

// decodeMessage rejects truncated or corrupted records.
func decodeMessage(b []byte) (decoded, bool) {
	if len(b) < recordOverhead {
		return decoded{}, false
	}
	body := b[:len(b)-4]
	if crc32.Checksum(body, castagnoli) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return decoded{}, false
	}
	hlen := int(binary.BigEndian.Uint32(body[8:12]))
	if 12+hlen > len(body) {
		return decoded{}, false
	}
	return decoded{
		EnqueuedMs: int64(binary.BigEndian.Uint64(body[0:8])),
		Header:     append([]byte(nil), body[12:12+hlen]...),
		Payload:    append([]byte(nil), body[12+hlen:]...),
	}, true
}

// Lease record: expiresMs(8B BE) | deliveries(4B BE) | consumer

type lease struct {
	ExpiresMs  int64
	Deliveries uint32
	Consumer   string
}

func encodeLease(l lease) []byte {
	out := make([]byte, 12+len(l.Consumer))
	binary.BigEndian.PutUint64(out[0:8], uint64(l.ExpiresMs))
	binary.BigEndian.PutUint32(out[8:12], l.Deliveries)
	copy(out[12:], l.Consumer)
	return out
}

func decodeLease(b []byte) (lease, bool) {
	if len(b) < 12 {
		return lease{}, false
	}
	return lease{
		ExpiresMs:  int64(binary.BigEndian.Uint64(b[0:8])),
		Deliveries: binary.BigEndian.Uint32(b[8:12]),
		Consumer:   string(b[12:]),
	}, true
}
