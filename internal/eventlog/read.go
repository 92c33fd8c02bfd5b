package eventlog

import (
	pebblestore "github.com/nduplat/motorcycle-service-app-sub002/internal/storage/pebble"
)

// Item is a record with its sequence.
type Item struct {
	Seq uint64
	Record
}

// Read returns up to limit records with a sequence greater than after, in
// order. A limit of 0 reads to the end. Corrupt records are skipped.
func (l *Log) Read(after uint64, limit int) ([]Item, error) {
	var items []Item
	err := l.db.ScanFrom(EntryPrefix(l.name), KeyEntry(l.name, after+1), func(k, v []byte) error {
		rec, ok := decodeRecord(v)
		if !ok {
			return nil
		}
		items = append(items, Item{Seq: seqFromKey(l.name, k), Record: rec})
		if limit > 0 && len(items) >= limit {
			return pebblestore.ErrStopScan
		}
		return nil
	})
	return items, err
}
