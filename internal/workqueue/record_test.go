package workqueue

import "testing"

func TestRecordRoundTrip(t *testing.T) {
	b := encodeMessage(1234, []byte("h"), []byte("payload"))
	d, ok := decodeMessage(b)
	if !ok {
		t.Fatalf("decode failed")
	}
	if d.EnqueuedMs != 1234 || string(d.Header) != "h" || string(d.Payload) != "payload" {
		t.Fatalf("decoded %+v", d)
	}
	b[len(b)-6] ^= 0xff
	if _, ok := decodeMessage(b); ok {
		t.Fatalf("corrupted record accepted")
	}
	if _, ok := decodeMessage([]byte{1, 2}); ok {
		t.Fatalf("short record accepted")
	}
}

func TestLeaseRoundTrip(t *testing.T) {
	l, ok := decodeLease(encodeLease(lease{ExpiresMs: 99, Deliveries: 3, Consumer: "tech-bay-2"}))
	if !ok || l.ExpiresMs != 99 || l.Deliveries != 3 || l.Consumer != "tech-bay-2" {
		t.Fatalf("lease %+v ok=%v", l, ok)
	}
}
