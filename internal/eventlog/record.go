package eventlog

import (
	"encoding/binary"
	"hash/crc32"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Record is one appended event.
type Record struct {
	Type    string
	TimeMs  int64
	Payload []byte
}

func encodeRecord(r Record) []byte {
	out := make([]byte, 8, 8+binary.MaxVarintLen64+len(r.Type)+len(r.Payload)+4)
	binary.BigEndian.PutUint64(out, uint64(r.TimeMs))
	out = binary.AppendUvarint(out, uint64(len(r.Type)))
	out = append(out, r.Type...)
	out = append(out, r.Payload...)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

func decodeRecord(b []byte) (Record, bool) {
	if len(b) < 8+1+4 {
		return Record{}, false
	}
	body, sum := b[:len(b)-4], binary.BigEndian.Uint32(b[len(b)-4:])
	if crc32.Checksum(body, castagnoli) != sum {
		return Record{}, false
	}
	tlen, n := binary.Uvarint(body[8:])
	if n <= 0 || 8+n+int(tlen) > len(body) {
		return Record{}, false
	}
	start := 8 + n
	return Record{
		TimeMs:  int64(binary.BigEndian.Uint64(body[:8])),
		Type:    string(body[start : start+int(tlen)]),
		Payload: append([]byte(nil), body[start+int(tlen):]...),
	}, true
}

// timeMsOf reads the timestamp without verifying the checksum.
func timeMsOf(b []byte) (int64, bool) {
	if len(b) < 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b[:8])), true
}
