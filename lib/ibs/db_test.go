package ibs

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/backends/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

// dbCounter keeps database names unique, metrics counters are process wide
var dbCounter atomic.Int64

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, dbCounter.Add(1))
}

func shopDescriptor(name string) Descriptor {
	return Descriptor{
		Name: name,
		Stores: map[string]StoreConfig{
			"products": {
				KeyPath: "id",
				Indexes: []IndexConfig{
					{Name: "by_name", KeyPath: engine.Path("name")},
				},
			},
		},
	}
}

func openDB(t *testing.T, eng engine.Engine, desc Descriptor) *DB {
	t.Helper()
	db, err := New(eng, desc)
	require.NoError(t, err, "New should accept the descriptor")
	require.NoError(t, db.Open(ctx), "Open should succeed")
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func mustStore(t *testing.T, db *DB, name string) *Store {
	t.Helper()
	s, err := db.Store(name)
	require.NoError(t, err, "store %q should be available", name)
	return s
}

// installedStores lists the stores of a database directly on the engine
func installedStores(t *testing.T, eng engine.Engine, name string) []string {
	t.Helper()
	conn, err := eng.Open(ctx, name, 0, nil)
	require.NoError(t, err)
	defer conn.Close()
	names, err := conn.StoreNames()
	require.NoError(t, err)
	return names
}

// --------------------------------------------------------------------------
// Open and version negotiation
// --------------------------------------------------------------------------

func TestOpenNewDatabase(t *testing.T) {
	spy := newSpy(memory.New(nil))
	db := openDB(t, spy, shopDescriptor(uniqueName("shop")))

	assert.Equal(t, uint64(1), db.Version(), "a new database is created at the configured version")
	assert.Equal(t, []uint64{1}, spy.openVersions, "a new database is opened exactly once")
	assert.Equal(t, [][2]uint64{{0, 1}}, spy.upgrades)
	assert.Equal(t, []string{"products"}, spy.createStores)
	assert.Equal(t, []string{"products.by_name"}, spy.createIndexes)

	api := db.API()
	require.Len(t, api, 1)
	assert.Equal(t, "products", api["products"].Name())
}

func TestOpenConfiguredVersion(t *testing.T) {
	desc := shopDescriptor(uniqueName("shop"))
	desc.Version = 5
	db := openDB(t, memory.New(nil), desc)
	assert.Equal(t, uint64(5), db.Version())
}

func TestOpenIsIdempotent(t *testing.T) {
	spy := newSpy(memory.New(nil))
	db := openDB(t, spy, shopDescriptor(uniqueName("shop")))
	require.NoError(t, db.Open(ctx), "a second Open should be a no-op")
	assert.Len(t, spy.openVersions, 1)
}

func TestVersionMonotonicity(t *testing.T) {
	spy := newSpy(memory.New(nil))
	name := uniqueName("evolve")

	one := Descriptor{Name: name, Stores: map[string]StoreConfig{"a": {KeyPath: "id"}}}
	two := Descriptor{Name: name, Stores: map[string]StoreConfig{"a": {KeyPath: "id"}, "b": {KeyPath: "id"}}}

	tests := []struct {
		name    string
		desc    Descriptor
		version uint64
	}{
		{"create", one, 1},
		{"reopen unchanged", one, 1},
		{"add store", two, 2},
		{"reopen after upgrade", two, 2},
		{"drop store from descriptor", one, 2},
	}

	var last uint64
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(spy, tt.desc)
			require.NoError(t, err)
			require.NoError(t, db.Open(ctx))
			defer db.Close()

			assert.Equal(t, tt.version, db.Version())
			assert.GreaterOrEqual(t, db.Version(), last, "version must never decrease")
			assert.LessOrEqual(t, db.Version(), last+1, "version must grow by at most one")
			last = db.Version()
		})
	}

	// stores are never removed
	assert.Equal(t, []string{"a", "b"}, installedStores(t, spy, name))
}

func TestMigrationIdempotence(t *testing.T) {
	spy := newSpy(memory.New(nil))
	desc := shopDescriptor(uniqueName("shop"))

	db, err := New(spy, desc)
	require.NoError(t, err)
	require.NoError(t, db.Open(ctx))
	require.NoError(t, db.Close())
	assert.Equal(t, 2, spy.creations(), "first open creates the store and its index")

	spy.reset()
	db = openDB(t, spy, desc)
	assert.Equal(t, 0, spy.creations(), "reopening a complete database creates nothing")
	assert.Empty(t, spy.upgrades, "reopening a complete database does not upgrade")
	assert.Equal(t, []uint64{1, 1}, spy.openVersions, "audit and final open use the installed version")
	assert.Equal(t, uint64(1), db.Version())
}

func TestMissingIndexWaitsForUpgrade(t *testing.T) {
	spy := newSpy(memory.New(nil))
	name := uniqueName("idx")

	plain := Descriptor{Name: name, Stores: map[string]StoreConfig{"items": {KeyPath: "id"}}}
	db, err := New(spy, plain)
	require.NoError(t, err)
	require.NoError(t, db.Open(ctx))
	_, err = mustStore(t, db, "items").Add(ctx, engine.Record{"color": "red"})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// declaring an index on an existing store alone does not upgrade
	indexed := Descriptor{Name: name, Stores: map[string]StoreConfig{
		"items": {KeyPath: "id", Indexes: []IndexConfig{{Name: "by_color", KeyPath: engine.Path("color")}}},
	}}
	db, err = New(spy, indexed)
	require.NoError(t, err)
	require.NoError(t, db.Open(ctx))
	assert.Equal(t, uint64(1), db.Version())
	_, err = mustStore(t, db, "items").Query(ctx, "by_color", nil)
	assert.ErrorIs(t, err, engine.ErrNotFound, "the index is not installed yet")
	require.NoError(t, db.Close())

	// the next upgrade creates it and fills it from existing records
	spy.reset()
	indexed.Stores["other"] = StoreConfig{KeyPath: "id"}
	db = openDB(t, spy, indexed)
	assert.Equal(t, uint64(2), db.Version())
	assert.Equal(t, []string{"items.by_color"}, spy.createIndexes)

	recs, err := mustStore(t, db, "items").Query(ctx, "by_color", engine.Only("red"))
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestUndeclaredIndexIsKept(t *testing.T) {
	eng := memory.New(nil)
	name := uniqueName("keep")

	indexed := Descriptor{Name: name, Stores: map[string]StoreConfig{
		"items": {KeyPath: "id", Indexes: []IndexConfig{{Name: "by_color", KeyPath: engine.Path("color")}}},
	}}
	db := openDB(t, eng, indexed)
	require.NoError(t, db.Close())

	// the index is dropped from the descriptor while a new store forces an upgrade
	plain := Descriptor{Name: name, Stores: map[string]StoreConfig{"items": {KeyPath: "id"}, "other": {KeyPath: "id"}}}
	db = openDB(t, eng, plain)
	assert.Equal(t, uint64(2), db.Version())

	conn, err := eng.Open(ctx, name, 0, nil)
	require.NoError(t, err)
	defer conn.Close()
	tx, err := conn.Begin(ctx, engine.ReadOnly, "items")
	require.NoError(t, err)
	defer tx.Abort()
	items, err := tx.Store("items")
	require.NoError(t, err)
	_, ok := items.Info().Index("by_color")
	assert.True(t, ok, "evolution is additive, undeclared indexes stay")
}

func TestOpenBlocked(t *testing.T) {
	eng := memory.New(nil)
	name := uniqueName("blocked")

	// hold a connection at version 1
	conn, err := eng.Open(ctx, name, 1, func(s engine.Schema, _, _ uint64) error {
		_, err := s.CreateStore("a", engine.StoreOptions{KeyPath: engine.Path("id")})
		return err
	})
	require.NoError(t, err)
	defer conn.Close()

	db, err := New(eng, Descriptor{Name: name, Stores: map[string]StoreConfig{"a": {KeyPath: "id"}, "b": {KeyPath: "id"}}})
	require.NoError(t, err)

	err = db.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, engine.ErrBlocked)
	assert.Equal(t, uint64(0), db.Version(), "a failed open leaves the DB closed")

	_, err = db.Store("a")
	assert.ErrorIs(t, err, ErrNotOpen)
}

func TestResolveVersionFallback(t *testing.T) {
	t.Run("absent database is created at the configured version", func(t *testing.T) {
		eng := memory.New(nil)
		spy := newSpy(eng)
		spy.failDatabases = errDatabases

		desc := shopDescriptor(uniqueName("fallback"))
		desc.Version = 2
		db := openDB(t, spy, desc)

		assert.Equal(t, []uint64{2}, spy.openVersions, "the configured version is passed to the engine")
		assert.Equal(t, [][2]uint64{{0, 2}}, spy.upgrades)
		assert.Equal(t, uint64(2), db.Version())
		assert.Equal(t, []string{"products"}, installedStores(t, eng, desc.Name))
	})

	t.Run("higher installed version fails the open", func(t *testing.T) {
		eng := memory.New(nil)
		name := uniqueName("fallback")

		installed := shopDescriptor(name)
		installed.Version = 3
		db := openDB(t, eng, installed)
		require.NoError(t, db.Close())

		spy := newSpy(eng)
		spy.failDatabases = errDatabases
		db, err := New(spy, shopDescriptor(name))
		require.NoError(t, err)

		err = db.Open(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOpen)
		assert.ErrorIs(t, err, engine.ErrVersion)
		assert.Equal(t, []uint64{1}, spy.openVersions, "the configured version is used when the engine cannot list databases")
	})
}

func TestMigrationFailure(t *testing.T) {
	eng := memory.New(nil)
	name := uniqueName("migfail")

	plain := Descriptor{Name: name, Stores: map[string]StoreConfig{"items": {KeyPath: "id"}}}
	db := openDB(t, eng, plain)
	_, err := mustStore(t, db, "items").Adds(ctx, []engine.Record{{"color": "red"}, {"color": "red"}})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// a unique index over duplicate values cannot be built
	broken := Descriptor{Name: name, Stores: map[string]StoreConfig{
		"items": {KeyPath: "id", Indexes: []IndexConfig{{Name: "by_color", KeyPath: engine.Path("color"), Unique: true}}},
		"other": {KeyPath: "id"},
	}}
	db, err = New(eng, broken)
	require.NoError(t, err)
	err = db.Open(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, ErrMigration)
	assert.ErrorIs(t, err, engine.ErrConstraint)

	// nothing of the aborted upgrade is persisted
	assert.Equal(t, []string{"items"}, installedStores(t, eng, name))
}

func TestCloseAndReopen(t *testing.T) {
	eng := memory.New(nil)
	db := openDB(t, eng, shopDescriptor(uniqueName("shop")))
	products := mustStore(t, db, "products")

	_, err := products.Add(ctx, engine.Record{"name": "pen"})
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close(), "closing twice is fine")

	_, err = products.Count(ctx)
	assert.ErrorIs(t, err, ErrNotOpen, "accessors stop working after Close")
	assert.Empty(t, db.API())

	require.NoError(t, db.Open(ctx))
	n, err := mustStore(t, db, "products").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// --------------------------------------------------------------------------
// Descriptor
// --------------------------------------------------------------------------

func TestDescriptorValidate(t *testing.T) {
	tests := []struct {
		name string
		desc Descriptor
		ok   bool
	}{
		{"valid", shopDescriptor("shop"), true},
		{"no stores", Descriptor{Name: "empty"}, true},
		{"empty name", Descriptor{}, false},
		{"empty store name", Descriptor{Name: "x", Stores: map[string]StoreConfig{"": {KeyPath: "id"}}}, false},
		{"empty key path", Descriptor{Name: "x", Stores: map[string]StoreConfig{"a": {}}}, false},
		{"empty index name", Descriptor{Name: "x", Stores: map[string]StoreConfig{
			"a": {KeyPath: "id", Indexes: []IndexConfig{{KeyPath: engine.Path("n")}}},
		}}, false},
		{"duplicate index", Descriptor{Name: "x", Stores: map[string]StoreConfig{
			"a": {KeyPath: "id", Indexes: []IndexConfig{
				{Name: "n", KeyPath: engine.Path("n")},
				{Name: "n", KeyPath: engine.Path("m")},
			}},
		}}, false},
		{"compound multiEntry", Descriptor{Name: "x", Stores: map[string]StoreConfig{
			"a": {KeyPath: "id", Indexes: []IndexConfig{{Name: "n", KeyPath: engine.Path("a", "b"), MultiEntry: true}}},
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.desc.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidDescriptor)

			_, err = New(memory.New(nil), tt.desc)
			assert.ErrorIs(t, err, ErrInvalidDescriptor, "New validates the descriptor")
		})
	}
}

func TestDescriptorDefaults(t *testing.T) {
	cfg := StoreConfig{KeyPath: "id"}
	assert.True(t, cfg.storeOptions().AutoIncrement, "autoIncrement defaults to true")

	cfg.AutoIncrement = Bool(false)
	assert.False(t, cfg.storeOptions().AutoIncrement)

	cfg.Indexes = []IndexConfig{{Name: "by_name", KeyPath: engine.Path("name")}}
	assert.True(t, cfg.declaresIndex("by_name"))
	assert.False(t, cfg.declaresIndex("by_color"))

	assert.Equal(t, DefaultVersion, Descriptor{Name: "x"}.version())
	assert.Equal(t, "x@1 (0 stores)", Descriptor{Name: "x"}.String())
}

// --------------------------------------------------------------------------
// Stats
// --------------------------------------------------------------------------

func TestStats(t *testing.T) {
	name := uniqueName("stats")
	db := openDB(t, memory.New(nil), shopDescriptor(name))
	products := mustStore(t, db, "products")

	_, err := products.Adds(ctx, []engine.Record{{"id": 1}, {"id": 1}})
	require.Error(t, err)
	_, err = products.GetAll(ctx)
	require.NoError(t, err)

	stats := db.Stats()
	assert.Equal(t, name, stats.Name)
	assert.Equal(t, uint64(1), stats.Version)
	assert.Equal(t, uint64(1), stats.Upgrades)

	s := stats.Stores["products"]
	assert.Equal(t, uint64(1), s.ReadTransactions)
	assert.Equal(t, uint64(1), s.WriteTransactions)
	assert.Equal(t, uint64(1), s.ItemsOK)
	assert.Equal(t, uint64(1), s.ItemsFailed)

	require.Contains(t, stats.Distributions, "batch_size")
	assert.Equal(t, int64(1), stats.Distributions["batch_size"].Count)
	assert.Equal(t, int64(2), stats.Distributions["batch_size"].Max)
}
