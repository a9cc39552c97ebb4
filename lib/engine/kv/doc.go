// Package kv implements engine.Engine on top of any ordered byte store.
//
// A storage technology only has to implement the small Backend interface
// (buckets of sorted byte keys, read and write transactions). Everything
// else is handled here:
//   - Database versions and the upgrade window (schema changes)
//   - Store and index metadata
//   - Key generators for autoIncrement stores
//   - Secondary index maintenance and unique constraints
//   - Cursors over stores and indexes, bounded by key ranges
//
// Implementation Details:
//
//   - Bucket Layout: A registry bucket maps database names to versions. Every
//     database has a meta bucket (store definitions, key generators), one data
//     bucket per store and one bucket per index. Index entries are keyed by
//     the encoded index key followed by the encoded primary key; both
//     encodings are self-delimiting, so a bytewise scan yields index order.
//
//   - Per-request Atomicity: Every write validates everything (key, unique
//     constraints) before it modifies a bucket. A failed request therefore
//     leaves no trace and the transaction can still be committed.
//
//   - Connections and Upgrades: The engine counts open connections per
//     database. An upgrade is refused with engine.ErrBlocked while other
//     connections are open.
//
//   - Cursors: Cursors keep no backend iterator alive. Each step seeks to the
//     successor of the previous key, which costs a tree lookup but keeps the
//     cursor valid while the transaction writes to the store.
//
// Usage Example:
//
//	eng := kv.New(memory.NewBackend())
//	conn, err := eng.Open(ctx, "shop", 1, func(s engine.Schema, _, _ uint64) error {
//		_, err := s.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("id"), AutoIncrement: true})
//		return err
//	})
package kv
