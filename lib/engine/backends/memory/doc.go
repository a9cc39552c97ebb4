// Package memory implements a volatile kv.Backend on top of google/btree.
//
// Every bucket is a copy-on-write B-tree. A transaction starts by cloning the
// committed trees (cheap, nodes are shared until written) and a write
// transaction commits by swapping its clones in. This gives read transactions
// a stable snapshot while a single writer is active.
//
// The backend is meant for tests, the session storage and short-lived
// processes. Nothing is written to disk.
//
// Example:
//
//	eng := memory.New(nil)
//	defer eng.Close()
//	conn, err := eng.Open(ctx, "shop", 1, upgrade)
package memory
