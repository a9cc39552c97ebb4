// Package ibs implements schema-versioned, indexed object stores on top of an
// engine.Engine.
//
// A database is declared with a Descriptor: its name, the version it is
// created with and the stores (primary key path, key generator, secondary
// indexes) it must contain. DB.Open makes the installed database match the
// declaration:
//
//   - Version Resolver: reads the installed version from the engine without
//     opening the database (a database that does not exist yet reports the
//     configured version).
//   - Schema Auditor: opens the database at exactly that version and checks
//     that every declared store exists. Nothing is changed.
//   - Version decision: if a store is missing the database is opened at the
//     observed version + 1, otherwise at the observed version. The version
//     passed to the engine never decreases and is only bumped when needed.
//   - Schema Migrator: runs inside the engine's upgrade callback and creates
//     missing stores and their missing indexes. Schema evolution is
//     additive: stores that are no longer declared are kept.
//
// After Open every declared store is reachable through DB.API() or DB.Store.
// A Store offers single and batched writes (Add/Adds, Update/Updates,
// Delete/Deletes, Clear), reads (Get, GetAll, Count), predicate scans
// (Filter), index range queries (Query) and change listeners (OnChange).
//
// Batched writes run in one transaction. Every item is applied independently;
// failed items are collected and the successful ones commit anyway. The
// failures come back as a *BatchError that also lists the committed items.
// Key collisions are classified as ErrDuplicateKey, other item failures as
// ErrItemOperation:
//
//	keys, err := items.Adds(ctx, recs)
//	var batchErr *ibs.BatchError
//	if errors.As(err, &batchErr) {
//		for _, f := range batchErr.Failed {
//			if errors.Is(f.Err, ibs.ErrDuplicateKey) { ... }
//		}
//	}
//
// Listeners run after the commit, once per committed item, in registration
// order. A panicking listener is recovered and logged.
//
// Example:
//
//	db, err := ibs.New(memory.New(nil), ibs.Descriptor{
//		Name: "shop",
//		Stores: map[string]ibs.StoreConfig{
//			"items": {KeyPath: "id", Indexes: []ibs.IndexConfig{
//				{Name: "by_name", KeyPath: engine.Path("name")},
//			}},
//		},
//	})
//	if err != nil { ... }
//	if err := db.Open(ctx); err != nil { ... }
//
//	items, _ := db.Store("items")
//	id, err := items.Add(ctx, engine.Record{"name": "pen"}) // id == 1.0
package ibs
