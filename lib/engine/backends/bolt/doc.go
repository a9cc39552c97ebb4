// Package bolt implements a persistent kv.Backend on a single bbolt file.
//
// Bucket paths map directly to nested bbolt buckets, e.g. the records of store
// "items" in database "shop" live in the bucket shop/data/items. bbolt
// already provides the transaction model the engine needs: many readers on
// MVCC snapshots and one writer at a time.
package bolt
