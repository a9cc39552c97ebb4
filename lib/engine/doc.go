// Package engine defines the storage engine consumed by the ibs package: a
// versioned, transactional key-value engine with named object stores and
// secondary indexes.
//
// The package focuses on:
//   - A small set of interfaces (Engine, Conn, Schema, Tx, ObjectStore, Cursor)
//     that hide the storage backend
//   - A key model shared by all implementations
//   - Sentinel errors that let callers classify failures with errors.Is
//
// Key Components:
//
//   - Engine: Opens connections to named databases. Every database carries a
//     version. Opening with a greater version runs an upgrade callback in which
//     stores and indexes may be created. Opening with a lower version fails.
//
//   - Tx and ObjectStore: Short-lived transactions in read-only or read-write
//     mode. A failed request (e.g. a duplicate key) does not abort the
//     transaction; all successful requests are persisted on Commit.
//
//   - Keys: Numbers, strings, binary values and arrays. EncodeKey produces a
//     byte encoding whose bytewise order equals the key order, so ranges and
//     cursors can be implemented on any ordered byte store.
//
//   - KeyPath and KeyRange: Locate keys inside records and bound cursors.
//
// Related Packages:
//
// The kv package (github.com/ValentinKolb/ibs/lib/engine/kv) implements Engine
// on top of any ordered byte store (kv.Backend). Backends live in
// lib/engine/backends (memory, bolt, leveldb, sqlite).
//
// The testing package (github.com/ValentinKolb/ibs/lib/engine/testing)
// provides a conformance suite for Engine implementations.
package engine
