// Package pebblestore wraps Pebble with an fsync policy, prefix scans and a
// serialized read-modify-write transaction used for compare-and-swap.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./data",
//	    Fsync:   pebblestore.FsyncModeInterval,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	err = db.Update(ctx, func(tx *pebblestore.Txn) error {
//	    cur, err := tx.Get(key)
//	    if err != nil { return err }
//	    return tx.Set(key, next(cur))
//	})
package pebblestore
