// Package leveldb implements a persistent kv.Backend using goleveldb.
//
// leveldb has no buckets, so every key is prefixed with its encoded bucket
// path. Write transactions use leveldb.Transaction (at most one is open at a
// time), read transactions use snapshots.
package leveldb
