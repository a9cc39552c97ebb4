package testing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// EngineFactory creates a new engine that keeps its files in dir.
// Volatile engines may ignore dir.
type EngineFactory func(dir string) (engine.Engine, error)

// RunEngineTests runs a comprehensive test suite for an engine.Engine implementation.
func RunEngineTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("OpenCreatesDatabase", func(t *testing.T) {
			testOpenCreatesDatabase(t, newEngine(t, factory))
		})

		t.Run("UpgradeVersions", func(t *testing.T) {
			testUpgradeVersions(t, newEngine(t, factory))
		})

		t.Run("VersionError", func(t *testing.T) {
			testVersionError(t, newEngine(t, factory))
		})

		t.Run("UpgradeAbort", func(t *testing.T) {
			testUpgradeAbort(t, newEngine(t, factory))
		})

		t.Run("UpgradeBlocked", func(t *testing.T) {
			testUpgradeBlocked(t, newEngine(t, factory))
		})

		t.Run("SchemaConstraints", func(t *testing.T) {
			testSchemaConstraints(t, newEngine(t, factory))
		})

		t.Run("CRUD", func(t *testing.T) {
			testCRUD(t, newEngine(t, factory))
		})

		t.Run("AutoIncrement", func(t *testing.T) {
			testAutoIncrement(t, newEngine(t, factory))
		})

		t.Run("PartialFailure", func(t *testing.T) {
			testPartialFailure(t, newEngine(t, factory))
		})

		t.Run("Abort", func(t *testing.T) {
			testAbort(t, newEngine(t, factory))
		})

		t.Run("ReadOnly", func(t *testing.T) {
			testReadOnly(t, newEngine(t, factory))
		})

		t.Run("UniqueIndex", func(t *testing.T) {
			testUniqueIndex(t, newEngine(t, factory))
		})

		t.Run("MultiEntryIndex", func(t *testing.T) {
			testMultiEntryIndex(t, newEngine(t, factory))
		})

		t.Run("CursorOrderAndRanges", func(t *testing.T) {
			testCursorOrderAndRanges(t, newEngine(t, factory))
		})

		t.Run("CursorWhileWriting", func(t *testing.T) {
			testCursorWhileWriting(t, newEngine(t, factory))
		})

		t.Run("IndexBackfill", func(t *testing.T) {
			testIndexBackfill(t, newEngine(t, factory))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, newEngine(t, factory))
		})

		t.Run("ClosedConnection", func(t *testing.T) {
			testClosedConnection(t, newEngine(t, factory))
		})

		t.Run("UnknownStore", func(t *testing.T) {
			testUnknownStore(t, newEngine(t, factory))
		})
	})
}

// RunPersistenceTests checks that data survives closing and reopening an
// engine on the same directory.
func RunPersistenceTests(t *testing.T, name string, factory EngineFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Reopen", func(t *testing.T) {
			testReopen(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

var ctx = context.Background()

func newEngine(t *testing.T, factory EngineFactory) engine.Engine {
	t.Helper()
	eng, err := factory(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error creating engine: %v", err)
	}
	t.Cleanup(func() {
		_ = eng.Close()
	})
	return eng
}

func mustOpen(t *testing.T, eng engine.Engine, name string, version uint64, upgrade engine.UpgradeFunc) engine.Conn {
	t.Helper()
	conn, err := eng.Open(ctx, name, version, upgrade)
	if err != nil {
		t.Fatalf("Unexpected error opening %s@%d: %v", name, version, err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// itemsSchema creates the store "items" (keyPath "id", autoIncrement)
// with a non-unique index on "name".
func itemsSchema(schema engine.Schema, _, _ uint64) error {
	store, err := schema.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("id"), AutoIncrement: true})
	if err != nil {
		return err
	}
	return store.CreateIndex("name", engine.Path("name"), engine.IndexOptions{})
}

// update runs fn in a read-write transaction on the given store and commits.
func update(t *testing.T, conn engine.Conn, storeName string, fn func(store engine.ObjectStore)) {
	t.Helper()
	tx, err := conn.Begin(ctx, engine.ReadWrite, storeName)
	if err != nil {
		t.Fatalf("Unexpected error beginning transaction: %v", err)
	}
	store, err := tx.Store(storeName)
	if err != nil {
		_ = tx.Abort()
		t.Fatalf("Unexpected error opening store %s: %v", storeName, err)
	}
	fn(store)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Unexpected error committing: %v", err)
	}
}

// view runs fn in a read-only transaction on the given store.
func view(t *testing.T, conn engine.Conn, storeName string, fn func(store engine.ObjectStore)) {
	t.Helper()
	tx, err := conn.Begin(ctx, engine.ReadOnly, storeName)
	if err != nil {
		t.Fatalf("Unexpected error beginning transaction: %v", err)
	}
	defer tx.Commit()
	store, err := tx.Store(storeName)
	if err != nil {
		t.Fatalf("Unexpected error opening store %s: %v", storeName, err)
	}
	fn(store)
}

// collect drains a cursor into its primary keys.
func collect(t *testing.T, store engine.ObjectStore, index string, r *engine.KeyRange) []any {
	t.Helper()
	c, err := store.OpenCursor(index, r)
	if err != nil {
		t.Fatalf("Unexpected error opening cursor: %v", err)
	}
	defer c.Close()
	var keys []any
	for c.Next() {
		keys = append(keys, c.PrimaryKey())
	}
	if err := c.Err(); err != nil {
		t.Fatalf("Unexpected cursor error: %v", err)
	}
	return keys
}

func sameKeys(a, b []any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testOpenCreatesDatabase(t *testing.T, eng engine.Engine) {
	var calls [][2]uint64
	conn := mustOpen(t, eng, "shop", 0, func(schema engine.Schema, oldVersion, newVersion uint64) error {
		calls = append(calls, [2]uint64{oldVersion, newVersion})
		return itemsSchema(schema, oldVersion, newVersion)
	})

	if conn.Version() != 1 {
		t.Errorf("Expected version 1 for a new database opened with version 0, got %d", conn.Version())
	}
	if conn.Name() != "shop" {
		t.Errorf("Expected name shop, got %s", conn.Name())
	}
	if len(calls) != 1 || calls[0] != [2]uint64{0, 1} {
		t.Errorf("Expected one upgrade call 0->1, got %v", calls)
	}

	names, err := conn.StoreNames()
	if err != nil || len(names) != 1 || names[0] != "items" {
		t.Errorf("Expected store names [items], got %v (err=%v)", names, err)
	}

	dbs, err := eng.Databases(ctx)
	if err != nil {
		t.Fatalf("Unexpected error listing databases: %v", err)
	}
	if len(dbs) != 1 || dbs[0].Name != "shop" || dbs[0].Version != 1 {
		t.Errorf("Expected [shop@1], got %v", dbs)
	}
}

func testUpgradeVersions(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)
	_ = conn.Close()

	// same version: no upgrade
	called := false
	conn = mustOpen(t, eng, "shop", 1, func(engine.Schema, uint64, uint64) error {
		called = true
		return nil
	})
	if called {
		t.Errorf("Expected no upgrade when opening the installed version")
	}
	_ = conn.Close()

	// version 0 opens the installed version
	conn = mustOpen(t, eng, "shop", 0, nil)
	if conn.Version() != 1 {
		t.Errorf("Expected installed version 1, got %d", conn.Version())
	}
	_ = conn.Close()

	var oldV, newV uint64
	conn = mustOpen(t, eng, "shop", 3, func(schema engine.Schema, oldVersion, newVersion uint64) error {
		oldV, newV = oldVersion, newVersion
		ok, err := schema.HasStore("items")
		if err != nil || !ok {
			return fmt.Errorf("expected existing store items (err=%v)", err)
		}
		store, err := schema.Store("items")
		if err != nil {
			return err
		}
		if !store.HasIndex("name") {
			return errors.New("expected existing index name")
		}
		_, err = schema.CreateStore("orders", engine.StoreOptions{KeyPath: engine.Path("orderId")})
		return err
	})
	if oldV != 1 || newV != 3 {
		t.Errorf("Expected upgrade 1->3, got %d->%d", oldV, newV)
	}
	if conn.Version() != 3 {
		t.Errorf("Expected version 3, got %d", conn.Version())
	}
	names, _ := conn.StoreNames()
	if fmt.Sprint(names) != "[items orders]" {
		t.Errorf("Expected stores [items orders], got %v", names)
	}
}

func testVersionError(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 2, itemsSchema)
	_ = conn.Close()

	_, err := eng.Open(ctx, "shop", 1, itemsSchema)
	if !errors.Is(err, engine.ErrVersion) {
		t.Errorf("Expected ErrVersion when opening a lower version, got %v", err)
	}
}

func testUpgradeAbort(t *testing.T, eng engine.Engine) {
	boom := errors.New("boom")
	_, err := eng.Open(ctx, "shop", 1, func(schema engine.Schema, oldVersion, newVersion uint64) error {
		if err := itemsSchema(schema, oldVersion, newVersion); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the upgrade error, got %v", err)
	}

	dbs, err := eng.Databases(ctx)
	if err != nil {
		t.Fatalf("Unexpected error listing databases: %v", err)
	}
	if len(dbs) != 0 {
		t.Errorf("Expected no installed databases after a failed upgrade, got %v", dbs)
	}

	conn := mustOpen(t, eng, "shop", 1, nil)
	names, err := conn.StoreNames()
	if err != nil || len(names) != 0 {
		t.Errorf("Expected no stores after a failed upgrade, got %v (err=%v)", names, err)
	}
}

func testUpgradeBlocked(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	_, err := eng.Open(ctx, "shop", 2, nil)
	if !errors.Is(err, engine.ErrBlocked) {
		t.Errorf("Expected ErrBlocked while a connection is open, got %v", err)
	}

	// opening the installed version is fine
	other := mustOpen(t, eng, "shop", 1, nil)
	_ = other.Close()
	_ = conn.Close()

	conn = mustOpen(t, eng, "shop", 2, nil)
	if conn.Version() != 2 {
		t.Errorf("Expected version 2 after closing blockers, got %d", conn.Version())
	}
}

func testSchemaConstraints(t *testing.T, eng engine.Engine) {
	_, err := eng.Open(ctx, "shop", 1, func(schema engine.Schema, _, _ uint64) error {
		if _, err := schema.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("id")}); err != nil {
			return err
		}
		_, err := schema.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("id")})
		return err
	})
	if !errors.Is(err, engine.ErrConstraint) {
		t.Errorf("Expected ErrConstraint for a duplicate store, got %v", err)
	}

	_, err = eng.Open(ctx, "shop", 1, func(schema engine.Schema, _, _ uint64) error {
		store, err := schema.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("id")})
		if err != nil {
			return err
		}
		if err := store.CreateIndex("name", engine.Path("name"), engine.IndexOptions{}); err != nil {
			return err
		}
		return store.CreateIndex("name", engine.Path("other"), engine.IndexOptions{})
	})
	if !errors.Is(err, engine.ErrConstraint) {
		t.Errorf("Expected ErrConstraint for a duplicate index, got %v", err)
	}

	_, err = eng.Open(ctx, "shop", 1, func(schema engine.Schema, _, _ uint64) error {
		_, err := schema.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("a", "b"), AutoIncrement: true})
		return err
	})
	if !errors.Is(err, engine.ErrData) {
		t.Errorf("Expected ErrData for autoIncrement with a compound key path, got %v", err)
	}
}

func testCRUD(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	update(t, conn, "items", func(store engine.ObjectStore) {
		key, err := store.Add(engine.Record{"id": 1, "name": "apple"})
		if err != nil {
			t.Fatalf("Unexpected error on Add: %v", err)
		}
		if key != float64(1) {
			t.Errorf("Expected key 1, got %v (%T)", key, key)
		}
		if _, err := store.Add(engine.Record{"id": 1, "name": "pear"}); !errors.Is(err, engine.ErrConstraint) {
			t.Errorf("Expected ErrConstraint adding an existing key, got %v", err)
		}
		if _, err := store.Put(engine.Record{"id": 2, "name": "banana"}); err != nil {
			t.Errorf("Unexpected error on Put: %v", err)
		}
		if _, err := store.Put(engine.Record{"id": 2, "name": "cherry"}); err != nil {
			t.Errorf("Unexpected error overwriting with Put: %v", err)
		}
	})

	view(t, conn, "items", func(store engine.ObjectStore) {
		rec, found, err := store.Get(2)
		if err != nil || !found {
			t.Fatalf("Expected record 2 to exist (err=%v)", err)
		}
		if rec["name"] != "cherry" {
			t.Errorf("Expected name cherry, got %v", rec["name"])
		}
		if _, found, _ := store.Get(3); found {
			t.Errorf("Expected record 3 to be missing")
		}

		n, err := store.Count()
		if err != nil || n != 2 {
			t.Errorf("Expected 2 records, got %d (err=%v)", n, err)
		}

		all, err := store.GetAll()
		if err != nil || len(all) != 2 || all[0]["name"] != "apple" || all[1]["name"] != "cherry" {
			t.Errorf("Expected [apple cherry] in key order, got %v (err=%v)", all, err)
		}

		// the old index entry of record 2 must be gone
		if keys := collect(t, store, "name", engine.Only("banana")); len(keys) != 0 {
			t.Errorf("Expected no index entries for banana, got %v", keys)
		}
		if keys := collect(t, store, "name", engine.Only("cherry")); !sameKeys(keys, []any{float64(2)}) {
			t.Errorf("Expected [2] for cherry, got %v", keys)
		}
	})

	update(t, conn, "items", func(store engine.ObjectStore) {
		if err := store.Delete(1); err != nil {
			t.Errorf("Unexpected error on Delete: %v", err)
		}
		if err := store.Delete(42); err != nil {
			t.Errorf("Expected deleting a missing key to succeed, got %v", err)
		}
	})

	view(t, conn, "items", func(store engine.ObjectStore) {
		if _, found, _ := store.Get(1); found {
			t.Errorf("Expected record 1 to be deleted")
		}
		if keys := collect(t, store, "name", engine.Only("apple")); len(keys) != 0 {
			t.Errorf("Expected index entry of deleted record to be gone, got %v", keys)
		}
	})
}

func testAutoIncrement(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, func(schema engine.Schema, oldVersion, newVersion uint64) error {
		if err := itemsSchema(schema, oldVersion, newVersion); err != nil {
			return err
		}
		_, err := schema.CreateStore("plain", engine.StoreOptions{KeyPath: engine.Path("id")})
		return err
	})

	update(t, conn, "items", func(store engine.ObjectStore) {
		k1, err := store.Add(engine.Record{"name": "a"})
		if err != nil || k1 != float64(1) {
			t.Errorf("Expected generated key 1, got %v (err=%v)", k1, err)
		}
		k2, _ := store.Add(engine.Record{"name": "b"})
		if k2 != float64(2) {
			t.Errorf("Expected generated key 2, got %v", k2)
		}
		if _, err := store.Add(engine.Record{"id": 10, "name": "c"}); err != nil {
			t.Errorf("Unexpected error adding explicit key: %v", err)
		}
		k3, _ := store.Add(engine.Record{"name": "d"})
		if k3 != float64(11) {
			t.Errorf("Expected generated key 11 after explicit key 10, got %v", k3)
		}

		rec, _, _ := store.Get(1)
		if rec["id"] != float64(1) {
			t.Errorf("Expected generated key to be injected into the record, got %v", rec)
		}
	})

	tx, err := conn.Begin(ctx, engine.ReadWrite, "plain")
	if err != nil {
		t.Fatalf("Unexpected error beginning transaction: %v", err)
	}
	defer tx.Abort()
	store, _ := tx.Store("plain")
	if _, err := store.Add(engine.Record{"name": "no key"}); !errors.Is(err, engine.ErrData) {
		t.Errorf("Expected ErrData for a record without key, got %v", err)
	}
	if _, err := store.Add(engine.Record{"id": true}); !errors.Is(err, engine.ErrData) {
		t.Errorf("Expected ErrData for an invalid key, got %v", err)
	}
}

func testPartialFailure(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	update(t, conn, "items", func(store engine.ObjectStore) {
		if _, err := store.Add(engine.Record{"id": 1, "name": "a"}); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		if _, err := store.Add(engine.Record{"id": 1, "name": "dup"}); err == nil {
			t.Errorf("Expected duplicate add to fail")
		}
		if _, err := store.Add(engine.Record{"id": 2, "name": "b"}); err != nil {
			t.Errorf("Unexpected error after a failed request: %v", err)
		}
	})

	view(t, conn, "items", func(store engine.ObjectStore) {
		n, _ := store.Count()
		if n != 2 {
			t.Errorf("Expected 2 records after a partially failed transaction, got %d", n)
		}
		rec, _, _ := store.Get(1)
		if rec["name"] != "a" {
			t.Errorf("Expected the failed request to leave record 1 untouched, got %v", rec)
		}
		if keys := collect(t, store, "name", engine.Only("dup")); len(keys) != 0 {
			t.Errorf("Expected no index entries from the failed request, got %v", keys)
		}
	})
}

func testAbort(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	tx, err := conn.Begin(ctx, engine.ReadWrite, "items")
	if err != nil {
		t.Fatalf("Unexpected error beginning transaction: %v", err)
	}
	store, _ := tx.Store("items")
	if _, err := store.Add(engine.Record{"name": "gone"}); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
	if err := tx.Abort(); err != nil {
		t.Errorf("Unexpected error on Abort: %v", err)
	}
	if err := tx.Commit(); !errors.Is(err, engine.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState committing an aborted transaction, got %v", err)
	}
	if _, err := store.Add(engine.Record{"name": "late"}); !errors.Is(err, engine.ErrInvalidState) {
		t.Errorf("Expected ErrInvalidState using a finished transaction, got %v", err)
	}

	view(t, conn, "items", func(store engine.ObjectStore) {
		n, _ := store.Count()
		if n != 0 {
			t.Errorf("Expected aborted changes to be discarded, got %d records", n)
		}
	})

	// the generator is rolled back too
	update(t, conn, "items", func(store engine.ObjectStore) {
		k, _ := store.Add(engine.Record{"name": "kept"})
		if k != float64(1) {
			t.Errorf("Expected key 1 after an aborted add, got %v", k)
		}
	})
}

func testReadOnly(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	view(t, conn, "items", func(store engine.ObjectStore) {
		if _, err := store.Add(engine.Record{"name": "x"}); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ErrReadOnly for Add, got %v", err)
		}
		if _, err := store.Put(engine.Record{"id": 1}); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ErrReadOnly for Put, got %v", err)
		}
		if err := store.Delete(1); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ErrReadOnly for Delete, got %v", err)
		}
		if err := store.Clear(); !errors.Is(err, engine.ErrReadOnly) {
			t.Errorf("Expected ErrReadOnly for Clear, got %v", err)
		}
	})
}

func testUniqueIndex(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "users", 1, func(schema engine.Schema, _, _ uint64) error {
		store, err := schema.CreateStore("users", engine.StoreOptions{KeyPath: engine.Path("id")})
		if err != nil {
			return err
		}
		return store.CreateIndex("email", engine.Path("contact.email"), engine.IndexOptions{Unique: true})
	})

	update(t, conn, "users", func(store engine.ObjectStore) {
		if _, err := store.Add(engine.Record{"id": "u1", "contact": map[string]any{"email": "a@x"}}); err != nil {
			t.Errorf("Unexpected error: %v", err)
		}
		if _, err := store.Add(engine.Record{"id": "u2", "contact": map[string]any{"email": "a@x"}}); !errors.Is(err, engine.ErrConstraint) {
			t.Errorf("Expected ErrConstraint for a duplicate unique key, got %v", err)
		}
		// rewriting the owner with the same value is allowed
		if _, err := store.Put(engine.Record{"id": "u1", "contact": map[string]any{"email": "a@x"}, "n": 2}); err != nil {
			t.Errorf("Unexpected error rewriting the owner of a unique key: %v", err)
		}
		// records without the indexed field are not indexed
		if _, err := store.Add(engine.Record{"id": "u3"}); err != nil {
			t.Errorf("Unexpected error adding a record without the indexed field: %v", err)
		}
		if _, err := store.Add(engine.Record{"id": "u4"}); err != nil {
			t.Errorf("Unexpected error adding a second record without the indexed field: %v", err)
		}
	})

	view(t, conn, "users", func(store engine.ObjectStore) {
		if keys := collect(t, store, "email", nil); !sameKeys(keys, []any{"u1"}) {
			t.Errorf("Expected index entries [u1], got %v", keys)
		}
	})
}

func testMultiEntryIndex(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "blog", 1, func(schema engine.Schema, _, _ uint64) error {
		store, err := schema.CreateStore("posts", engine.StoreOptions{KeyPath: engine.Path("id")})
		if err != nil {
			return err
		}
		if err := store.CreateIndex("tags", engine.Path("tags"), engine.IndexOptions{MultiEntry: true}); err != nil {
			return err
		}
		return store.CreateIndex("tagset", engine.Path("tags"), engine.IndexOptions{})
	})

	update(t, conn, "posts", func(store engine.ObjectStore) {
		_, _ = store.Add(engine.Record{"id": 1, "tags": []any{"go", "db", "go"}})
		_, _ = store.Add(engine.Record{"id": 2, "tags": []any{"db"}})
		_, _ = store.Add(engine.Record{"id": 3, "tags": []any{"web", true}})
	})

	view(t, conn, "posts", func(store engine.ObjectStore) {
		if keys := collect(t, store, "tags", engine.Only("db")); !sameKeys(keys, []any{float64(1), float64(2)}) {
			t.Errorf("Expected [1 2] for tag db, got %v", keys)
		}
		if keys := collect(t, store, "tags", engine.Only("go")); !sameKeys(keys, []any{float64(1)}) {
			t.Errorf("Expected [1] for tag go (duplicates folded), got %v", keys)
		}
		if keys := collect(t, store, "tags", engine.Only("web")); !sameKeys(keys, []any{float64(3)}) {
			t.Errorf("Expected [3] for tag web (invalid elements skipped), got %v", keys)
		}
		// without multiEntry the whole array is the key
		if keys := collect(t, store, "tagset", engine.Only([]any{"db"})); !sameKeys(keys, []any{float64(2)}) {
			t.Errorf("Expected [2] for array key [db], got %v", keys)
		}
	})
}

func testCursorOrderAndRanges(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "mixed", 1, func(schema engine.Schema, _, _ uint64) error {
		_, err := schema.CreateStore("keys", engine.StoreOptions{KeyPath: engine.Path("k")})
		return err
	})

	update(t, conn, "keys", func(store engine.ObjectStore) {
		for _, k := range []any{"b", 10, -1.5, "a", []any{1, "x"}, 2, "ab"} {
			if _, err := store.Add(engine.Record{"k": k}); err != nil {
				t.Errorf("Unexpected error adding key %v: %v", k, err)
			}
		}
	})

	view(t, conn, "keys", func(store engine.ObjectStore) {
		all := collect(t, store, "", nil)
		expected := []any{-1.5, float64(2), float64(10), "a", "ab", "b", []any{float64(1), "x"}}
		if !sameKeys(all, expected) {
			t.Errorf("Expected key order %v, got %v", expected, all)
		}

		r, err := engine.Bound(2, "ab", false, true)
		if err != nil {
			t.Fatalf("Unexpected error building range: %v", err)
		}
		if keys := collect(t, store, "", r); !sameKeys(keys, []any{float64(2), float64(10), "a"}) {
			t.Errorf("Expected [2 10 a] in [2, ab), got %v", keys)
		}
		if keys := collect(t, store, "", engine.LowerBound("a", true)); !sameKeys(keys, []any{"ab", "b", []any{float64(1), "x"}}) {
			t.Errorf("Expected keys above a, got %v", keys)
		}
		if keys := collect(t, store, "", engine.UpperBound(2, false)); !sameKeys(keys, []any{-1.5, float64(2)}) {
			t.Errorf("Expected keys up to 2, got %v", keys)
		}
	})
}

func testCursorWhileWriting(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	update(t, conn, "items", func(store engine.ObjectStore) {
		for i := 0; i < 20; i++ {
			_, _ = store.Add(engine.Record{"name": fmt.Sprintf("item-%02d", i)})
		}
	})

	update(t, conn, "items", func(store engine.ObjectStore) {
		c, err := store.OpenCursor("", nil)
		if err != nil {
			t.Fatalf("Unexpected error opening cursor: %v", err)
		}
		seen := 0
		for c.Next() {
			seen++
			pk := c.PrimaryKey().(float64)
			if int(pk)%2 == 0 {
				if err := store.Delete(pk); err != nil {
					t.Errorf("Unexpected error deleting during iteration: %v", err)
				}
			}
		}
		if err := c.Err(); err != nil {
			t.Errorf("Unexpected cursor error: %v", err)
		}
		if seen != 20 {
			t.Errorf("Expected to visit 20 records, visited %d", seen)
		}
	})

	view(t, conn, "items", func(store engine.ObjectStore) {
		n, _ := store.Count()
		if n != 10 {
			t.Errorf("Expected 10 records left, got %d", n)
		}
	})
}

func testIndexBackfill(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, func(schema engine.Schema, _, _ uint64) error {
		_, err := schema.CreateStore("items", engine.StoreOptions{KeyPath: engine.Path("id")})
		return err
	})
	update(t, conn, "items", func(store engine.ObjectStore) {
		_, _ = store.Add(engine.Record{"id": 1, "color": "red"})
		_, _ = store.Add(engine.Record{"id": 2, "color": "blue"})
		_, _ = store.Add(engine.Record{"id": 3, "color": "red"})
	})
	_ = conn.Close()

	// a unique index over duplicate values fails the whole upgrade
	_, err := eng.Open(ctx, "shop", 2, func(schema engine.Schema, _, _ uint64) error {
		store, err := schema.Store("items")
		if err != nil {
			return err
		}
		return store.CreateIndex("color", engine.Path("color"), engine.IndexOptions{Unique: true})
	})
	if !errors.Is(err, engine.ErrConstraint) {
		t.Errorf("Expected ErrConstraint backfilling a unique index over duplicates, got %v", err)
	}

	conn = mustOpen(t, eng, "shop", 2, func(schema engine.Schema, _, _ uint64) error {
		store, err := schema.Store("items")
		if err != nil {
			return err
		}
		return store.CreateIndex("color", engine.Path("color"), engine.IndexOptions{})
	})

	view(t, conn, "items", func(store engine.ObjectStore) {
		if keys := collect(t, store, "color", engine.Only("red")); !sameKeys(keys, []any{float64(1), float64(3)}) {
			t.Errorf("Expected backfilled entries [1 3] for red, got %v", keys)
		}
		if _, err := store.OpenCursor("missing", nil); !errors.Is(err, engine.ErrNotFound) {
			t.Errorf("Expected ErrNotFound for a missing index, got %v", err)
		}
	})
}

func testClear(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	update(t, conn, "items", func(store engine.ObjectStore) {
		_, _ = store.Add(engine.Record{"name": "a"})
		_, _ = store.Add(engine.Record{"name": "b"})
	})
	update(t, conn, "items", func(store engine.ObjectStore) {
		if err := store.Clear(); err != nil {
			t.Errorf("Unexpected error on Clear: %v", err)
		}
		n, _ := store.Count()
		if n != 0 {
			t.Errorf("Expected an empty store after Clear, got %d", n)
		}
		if _, err := store.Add(engine.Record{"name": "c"}); err != nil {
			t.Errorf("Unexpected error adding after Clear: %v", err)
		}
	})

	view(t, conn, "items", func(store engine.ObjectStore) {
		if keys := collect(t, store, "name", nil); len(keys) != 1 {
			t.Errorf("Expected one index entry after Clear and Add, got %v", keys)
		}
	})
}

func testClosedConnection(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)
	if err := conn.Close(); err != nil {
		t.Errorf("Unexpected error on Close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Expected a second Close to be a no-op, got %v", err)
	}
	if _, err := conn.Begin(ctx, engine.ReadOnly); !errors.Is(err, engine.ErrClosed) {
		t.Errorf("Expected ErrClosed on a closed connection, got %v", err)
	}
}

func testUnknownStore(t *testing.T, eng engine.Engine) {
	conn := mustOpen(t, eng, "shop", 1, itemsSchema)

	if _, err := conn.Begin(ctx, engine.ReadOnly, "nope"); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for an unknown store in the scope, got %v", err)
	}

	tx, err := conn.Begin(ctx, engine.ReadOnly, "items")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer tx.Commit()
	if _, err := tx.Store("nope"); !errors.Is(err, engine.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for a store outside the scope, got %v", err)
	}
}

func testReopen(t *testing.T, factory EngineFactory) {
	dir := t.TempDir()

	eng, err := factory(dir)
	if err != nil {
		t.Fatalf("Unexpected error creating engine: %v", err)
	}
	conn, err := eng.Open(ctx, "shop", 1, itemsSchema)
	if err != nil {
		t.Fatalf("Unexpected error opening: %v", err)
	}
	tx, _ := conn.Begin(ctx, engine.ReadWrite, "items")
	store, _ := tx.Store("items")
	for i := 0; i < 100; i++ {
		if _, err := store.Add(engine.Record{"name": fmt.Sprintf("item-%03d", i)}); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Unexpected error committing: %v", err)
	}
	_ = conn.Close()
	if err := eng.Close(); err != nil {
		t.Fatalf("Unexpected error closing engine: %v", err)
	}

	eng, err = factory(dir)
	if err != nil {
		t.Fatalf("Unexpected error reopening engine: %v", err)
	}
	defer eng.Close()

	dbs, err := eng.Databases(ctx)
	if err != nil || len(dbs) != 1 || dbs[0].Version != 1 {
		t.Fatalf("Expected [shop@1] after reopen, got %v (err=%v)", dbs, err)
	}

	conn, err = eng.Open(ctx, "shop", 0, nil)
	if err != nil {
		t.Fatalf("Unexpected error opening after reopen: %v", err)
	}
	defer conn.Close()

	view(t, conn, "items", func(store engine.ObjectStore) {
		n, _ := store.Count()
		if n != 100 {
			t.Errorf("Expected 100 records after reopen, got %d", n)
		}
		if keys := collect(t, store, "name", engine.Only("item-042")); !sameKeys(keys, []any{float64(43)}) {
			t.Errorf("Expected index to survive reopen, got %v", keys)
		}
	})
	update(t, conn, "items", func(store engine.ObjectStore) {
		k, _ := store.Add(engine.Record{"name": "next"})
		if k != float64(101) {
			t.Errorf("Expected key generator to survive reopen (101), got %v", k)
		}
	})
}
