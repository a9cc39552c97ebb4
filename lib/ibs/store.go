package ibs

import (
	"context"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// Store is the accessor of one declared object store. It is created by
// DB.Open and shares the connection of its DB.
//
// Write operations take one item (Add, Update, Delete) or a batch (Adds,
// Updates, Deletes). A batch runs in one transaction; items that fail do
// not prevent the others from committing, the failures are reported as a
// *BatchError. Single item calls report their failure the same way.
type Store struct {
	db     *DB
	name   string
	config StoreConfig
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Config returns the declared configuration of the store.
func (s *Store) Config() StoreConfig {
	return s.config
}

// --------------------------------------------------------------------------
// Writes
// --------------------------------------------------------------------------

func addOp(store engine.ObjectStore, item any) (any, error) {
	return store.Add(item.(engine.Record))
}

func putOp(store engine.ObjectStore, item any) (any, error) {
	return store.Put(item.(engine.Record))
}

func deleteOp(store engine.ObjectStore, item any) (any, error) {
	return item, store.Delete(item)
}

func records(recs []engine.Record) []any {
	items := make([]any, len(recs))
	for i, r := range recs {
		items[i] = r
	}
	return items
}

// Add inserts a record and returns its primary key. A record whose key
// already exists fails with ErrDuplicateKey.
func (s *Store) Add(ctx context.Context, rec engine.Record) (any, error) {
	keys, err := s.db.write(ctx, s.name, ActionAdd, []any{rec}, addOp)
	if err != nil {
		return nil, err
	}
	return keys[0], nil
}

// Adds inserts records and returns their primary keys in order.
func (s *Store) Adds(ctx context.Context, recs []engine.Record) ([]any, error) {
	return s.db.write(ctx, s.name, ActionAdd, records(recs), addOp)
}

// Update inserts or replaces a record and returns its primary key.
func (s *Store) Update(ctx context.Context, rec engine.Record) (any, error) {
	keys, err := s.db.write(ctx, s.name, ActionUpdate, []any{rec}, putOp)
	if err != nil {
		return nil, err
	}
	return keys[0], nil
}

// Updates inserts or replaces records and returns their primary keys in order.
func (s *Store) Updates(ctx context.Context, recs []engine.Record) ([]any, error) {
	return s.db.write(ctx, s.name, ActionUpdate, records(recs), putOp)
}

// Delete removes the record with the given primary key. Deleting a missing
// key is not an error.
func (s *Store) Delete(ctx context.Context, key any) error {
	_, err := s.db.write(ctx, s.name, ActionDelete, []any{key}, deleteOp)
	return err
}

// Deletes removes the records with the given primary keys.
func (s *Store) Deletes(ctx context.Context, keys []any) error {
	_, err := s.db.write(ctx, s.name, ActionDelete, keys, deleteOp)
	return err
}

// Clear removes all records. Listeners are notified once with ActionClear.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.write(ctx, s.name, ActionClear, []any{nil}, func(store engine.ObjectStore, _ any) (any, error) {
		return nil, store.Clear()
	})
	return err
}

// --------------------------------------------------------------------------
// Reads
// --------------------------------------------------------------------------

// Get returns the record with the given primary key, or nil if there is none.
func (s *Store) Get(ctx context.Context, key any) (engine.Record, error) {
	var rec engine.Record
	err := s.db.read(ctx, s.name, func(store engine.ObjectStore) error {
		r, found, err := store.Get(key)
		if found {
			rec = r
		}
		return err
	})
	return rec, err
}

// GetAll returns all records in primary key order.
func (s *Store) GetAll(ctx context.Context) ([]engine.Record, error) {
	var recs []engine.Record
	err := s.db.read(ctx, s.name, func(store engine.ObjectStore) (err error) {
		recs, err = store.GetAll()
		return err
	})
	return recs, err
}

// Count returns the number of records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.read(ctx, s.name, func(store engine.ObjectStore) (err error) {
		n, err = store.Count()
		return err
	})
	return n, err
}

// Filter scans the store in primary key order and returns the records for
// which keep returns true.
func (s *Store) Filter(ctx context.Context, keep func(rec engine.Record) bool) ([]engine.Record, error) {
	out := []engine.Record{}
	err := s.scan(ctx, "", nil, func(c engine.Cursor) bool {
		if keep(c.Value()) {
			out = append(out, c.Value())
		}
		return true
	})
	return out, err
}

// Query returns the records of an index (or of the store if index is
// empty) within r, in index order. A nil range selects everything.
func (s *Store) Query(ctx context.Context, index string, r *engine.KeyRange) ([]engine.Record, error) {
	out := []engine.Record{}
	err := s.scan(ctx, index, r, func(c engine.Cursor) bool {
		out = append(out, c.Value())
		return true
	})
	return out, err
}

// QueryKeys is like Query but returns the primary keys only.
func (s *Store) QueryKeys(ctx context.Context, index string, r *engine.KeyRange) ([]any, error) {
	out := []any{}
	err := s.scan(ctx, index, r, func(c engine.Cursor) bool {
		out = append(out, c.PrimaryKey())
		return true
	})
	return out, err
}

// scan walks a cursor until fn returns false.
func (s *Store) scan(ctx context.Context, index string, r *engine.KeyRange, fn func(c engine.Cursor) bool) error {
	return s.db.read(ctx, s.name, func(store engine.ObjectStore) error {
		c, err := store.OpenCursor(index, r)
		if err != nil {
			return err
		}
		defer c.Close()
		for c.Next() {
			if !fn(c) {
				break
			}
		}
		return c.Err()
	})
}

// --------------------------------------------------------------------------
// Change notification
// --------------------------------------------------------------------------

// OnChange registers fn to be called after every committed write to the
// store. Listeners are called in registration order.
func (s *Store) OnChange(fn Listener) {
	s.db.subscribe(s.name, fn)
}
