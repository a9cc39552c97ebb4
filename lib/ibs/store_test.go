package ibs

import (
	"context"
	"sync"
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/backends/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openShop(t *testing.T) (*DB, *Store) {
	t.Helper()
	db := openDB(t, memory.New(nil), shopDescriptor(uniqueName("shop")))
	return db, mustStore(t, db, "products")
}

// recorder collects listener calls
type recorder struct {
	mu    sync.Mutex
	calls []string
	recs  []any
}

func (r *recorder) listener(tag string) Listener {
	return func(action Action, record any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, tag+":"+string(action))
		r.recs = append(r.recs, record)
	}
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func TestShopScenario(t *testing.T) {
	_, products := openShop(t)

	key, err := products.Add(ctx, engine.Record{"name": "pen"})
	require.NoError(t, err)
	assert.Equal(t, float64(1), key, "the first generated key is 1")

	all, err := products.GetAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []engine.Record{{"id": float64(1), "name": "pen"}}, all)

	dup := engine.Record{"id": 1, "name": "dup"}
	_, err = products.Add(ctx, dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateKey)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failed, 1)
	assert.Empty(t, batchErr.Succeeded)
	assert.Equal(t, 0, batchErr.Failed[0].Index)
	assert.Equal(t, dup, batchErr.Failed[0].Item, "the failure names the offending record")

	rec, err := products.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "pen", rec["name"], "the stored record is unchanged")
}

func TestUpdateReplaces(t *testing.T) {
	_, products := openShop(t)

	_, err := products.Add(ctx, engine.Record{"id": 7, "name": "pen"})
	require.NoError(t, err)

	key, err := products.Update(ctx, engine.Record{"id": 7, "name": "pencil"})
	require.NoError(t, err)
	assert.Equal(t, float64(7), key)

	rec, err := products.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "pencil", rec["name"])

	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// update also inserts
	_, err = products.Update(ctx, engine.Record{"id": 8, "name": "ink"})
	require.NoError(t, err)
	n, err = products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestBatchIndependence(t *testing.T) {
	_, products := openShop(t)

	_, err := products.Add(ctx, engine.Record{"id": 3, "name": "taken"})
	require.NoError(t, err)

	batch := []engine.Record{
		{"id": 1, "name": "a"},
		{"id": 2, "name": "b"},
		{"id": 3, "name": "collides"},
		{"id": 4, "name": "d"},
		{"id": 5, "name": "e"},
	}
	keys, err := products.Adds(ctx, batch)
	assert.Nil(t, keys)

	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, "products", batchErr.Store)
	assert.Equal(t, ActionAdd, batchErr.Action)
	require.Len(t, batchErr.Failed, 1, "exactly the colliding item fails")
	assert.Equal(t, 2, batchErr.Failed[0].Index)
	assert.ErrorIs(t, batchErr.Failed[0].Err, ErrDuplicateKey)
	require.Len(t, batchErr.Succeeded, 4)
	for i, r := range batchErr.Succeeded {
		assert.Equal(t, batch[r.Index]["id"], int(r.Key.(float64)), "succeeded item %d", i)
	}

	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n, "the other items committed")

	rec, err := products.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "taken", rec["name"])
}

func TestBatchInvalidItem(t *testing.T) {
	_, products := openShop(t)

	_, err := products.Adds(ctx, []engine.Record{{"id": true}, {"name": "ok"}})
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failed, 1)
	assert.ErrorIs(t, batchErr.Failed[0].Err, ErrItemOperation, "an invalid key is not a duplicate")
	assert.ErrorIs(t, batchErr.Failed[0].Err, engine.ErrData)
	assert.NotErrorIs(t, err, ErrDuplicateKey)
}

func TestUniqueIndexCollision(t *testing.T) {
	db := openDB(t, memory.New(nil), Descriptor{Name: uniqueName("users"), Stores: map[string]StoreConfig{
		"users": {KeyPath: "id", Indexes: []IndexConfig{{Name: "by_mail", KeyPath: engine.Path("mail"), Unique: true}}},
	}})
	users := mustStore(t, db, "users")

	_, err := users.Adds(ctx, []engine.Record{{"mail": "a@x"}, {"mail": "a@x"}})
	var batchErr *BatchError
	require.ErrorAs(t, err, &batchErr)
	require.Len(t, batchErr.Failed, 1)
	assert.Equal(t, 1, batchErr.Failed[0].Index)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestDeletes(t *testing.T) {
	_, products := openShop(t)

	keys, err := products.Adds(ctx, []engine.Record{{"name": "a"}, {"name": "b"}, {"name": "c"}})
	require.NoError(t, err)
	require.Len(t, keys, 3)

	require.NoError(t, products.Delete(ctx, keys[0]))
	require.NoError(t, products.Delete(ctx, 99), "deleting a missing key is not an error")
	require.NoError(t, products.Deletes(ctx, keys[1:]))

	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	rec, err := products.Get(ctx, keys[0])
	require.NoError(t, err)
	assert.Nil(t, rec, "Get of a missing key returns nil")
}

func TestClear(t *testing.T) {
	_, products := openShop(t)
	rec := &recorder{}
	products.OnChange(rec.listener("l"))

	_, err := products.Adds(ctx, []engine.Record{{"name": "a"}, {"name": "b"}})
	require.NoError(t, err)
	require.NoError(t, products.Clear(ctx))

	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, []string{"l:add", "l:add", "l:clear"}, rec.calls)
	assert.Nil(t, rec.recs[2])
}

func TestTransactionFailure(t *testing.T) {
	spy := newSpy(memory.New(nil))
	db := openDB(t, spy, shopDescriptor(uniqueName("shop")))
	products := mustStore(t, db, "products")
	rec := &recorder{}
	products.OnChange(rec.listener("l"))

	spy.failCommit = errCommit
	_, err := products.Adds(ctx, []engine.Record{{"name": "a"}, {"name": "b"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransaction)
	assert.ErrorIs(t, err, errCommit)
	assert.Empty(t, rec.calls, "nothing is notified if the commit fails")

	spy.failCommit = nil
	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing was committed")
}

func TestCanceledContext(t *testing.T) {
	_, products := openShop(t)

	canceled, cancel := context.WithCancel(ctx)
	cancel()

	_, err := products.Add(canceled, engine.Record{"name": "a"})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = products.GetAll(canceled)
	assert.ErrorIs(t, err, context.Canceled)

	n, err := products.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

func TestOrderPreservation(t *testing.T) {
	_, products := openShop(t)

	// insert out of order
	_, err := products.Adds(ctx, []engine.Record{
		{"id": 4, "name": "d"},
		{"id": 1, "name": "a"},
		{"id": 3, "name": "c"},
		{"id": 2, "name": "b"},
	})
	require.NoError(t, err)

	all, err := products.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, rec := range all {
		assert.Equal(t, float64(i+1), rec["id"], "GetAll is in primary key order")
	}

	even, err := products.Filter(ctx, func(rec engine.Record) bool {
		return int(rec["id"].(float64))%2 == 0
	})
	require.NoError(t, err)
	require.Len(t, even, 2)
	assert.Equal(t, float64(2), even[0]["id"])
	assert.Equal(t, float64(4), even[1]["id"])

	none, err := products.Filter(ctx, func(engine.Record) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.NotNil(t, none, "an empty result is an empty slice")
}

func TestQueryIndex(t *testing.T) {
	_, products := openShop(t)

	_, err := products.Adds(ctx, []engine.Record{
		{"id": 1, "name": "pen"},
		{"id": 2, "name": "ink"},
		{"id": 3, "name": "paper"},
		{"id": 4, "name": "ink"},
	})
	require.NoError(t, err)

	recs, err := products.Query(ctx, "by_name", engine.Only("ink"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, float64(2), recs[0]["id"], "equal index keys are ordered by primary key")
	assert.Equal(t, float64(4), recs[1]["id"])

	r, err := engine.Bound("p", "q", false, true)
	require.NoError(t, err)
	keys, err := products.QueryKeys(ctx, "by_name", r)
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3), float64(1)}, keys, "paper sorts before pen")

	keys, err = products.QueryKeys(ctx, "", engine.LowerBound(3, false))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(3), float64(4)}, keys)

	_, err = products.Query(ctx, "nope", nil)
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

func TestUnknownStore(t *testing.T) {
	db, _ := openShop(t)
	_, err := db.Store("orders")
	assert.ErrorIs(t, err, ErrUnknownStore)
	assert.NotErrorIs(t, err, ErrNotOpen)
}

func TestNotOpen(t *testing.T) {
	db, err := New(memory.New(nil), shopDescriptor(uniqueName("shop")))
	require.NoError(t, err)

	_, err = db.Store("products")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Empty(t, db.API())
	assert.Equal(t, uint64(0), db.Version())
}

// --------------------------------------------------------------------------
// Change notification
// --------------------------------------------------------------------------

func TestListenerFanOut(t *testing.T) {
	_, products := openShop(t)
	rec := &recorder{}
	products.OnChange(rec.listener("first"))
	products.OnChange(rec.listener("second"))

	_, err := products.Add(ctx, engine.Record{"name": "pen"})
	require.NoError(t, err)

	assert.Equal(t, []string{"first:add", "second:add"}, rec.calls, "listeners run once each in registration order")
	added, ok := rec.recs[0].(engine.Record)
	require.True(t, ok)
	assert.Equal(t, float64(1), added["id"], "the generated key is part of the notified record")
	assert.Equal(t, "pen", added["name"])

	require.NoError(t, products.Delete(ctx, 1))
	assert.Equal(t, []string{"first:add", "second:add", "first:delete", "second:delete"}, rec.calls)
	assert.Equal(t, 1, rec.recs[3], "delete notifies the key")
}

func TestListenerPanicIsolation(t *testing.T) {
	db, products := openShop(t)
	rec := &recorder{}
	products.OnChange(func(Action, any) {
		panic("boom")
	})
	products.OnChange(rec.listener("after"))

	_, err := products.Add(ctx, engine.Record{"name": "pen"})
	require.NoError(t, err, "a panicking listener does not fail the write")
	assert.Equal(t, []string{"after:add"}, rec.calls, "later listeners still run")
	assert.Equal(t, uint64(1), db.Stats().ListenerPanics)
}

func TestListenersOnlySeeCommittedItems(t *testing.T) {
	_, products := openShop(t)
	rec := &recorder{}
	products.OnChange(rec.listener("l"))

	_, err := products.Adds(ctx, []engine.Record{{"id": 1}, {"id": 1}, {"id": 2}})
	require.Error(t, err)
	assert.Equal(t, []string{"l:add", "l:add"}, rec.calls)
	assert.Equal(t, 1, toRecord(t, rec.recs[0])["id"])
	assert.Equal(t, 2, toRecord(t, rec.recs[1])["id"])
}

func TestListenersArePerStore(t *testing.T) {
	db := openDB(t, memory.New(nil), Descriptor{Name: uniqueName("two"), Stores: map[string]StoreConfig{
		"a": {KeyPath: "id"},
		"b": {KeyPath: "id"},
	}})
	rec := &recorder{}
	mustStore(t, db, "a").OnChange(rec.listener("a"))

	_, err := mustStore(t, db, "b").Add(ctx, engine.Record{"x": 1})
	require.NoError(t, err)
	assert.Empty(t, rec.calls)
}

func toRecord(t *testing.T, v any) engine.Record {
	t.Helper()
	rec, ok := v.(engine.Record)
	require.True(t, ok, "expected a record, got %T", v)
	return rec
}
