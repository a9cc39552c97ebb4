package ibs

import (
	"context"
	"errors"
	"time"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// Action is the kind of a write, passed to listeners
type Action string

const (
	ActionAdd    Action = "add"    // insert only
	ActionUpdate Action = "update" // insert or replace
	ActionDelete Action = "delete" // remove by primary key
	ActionClear  Action = "clear"  // remove all records
)

// itemOp applies one item of a batch and returns its primary key
type itemOp func(store engine.ObjectStore, item any) (key any, err error)

// --------------------------------------------------------------------------
// Read
// --------------------------------------------------------------------------

// read runs fn in a read-only transaction on one store. The transaction is
// always closed; the first error is returned unchanged.
func (db *DB) read(ctx context.Context, storeName string, fn func(store engine.ObjectStore) error) error {
	conn, err := db.connection()
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	defer db.metrics.readTimer.UpdateSince(start)
	db.metrics.transactions(storeName, engine.ReadOnly).Inc()

	tx, err := conn.Begin(ctx, engine.ReadOnly, storeName)
	if err != nil {
		return err
	}
	defer tx.Commit()

	store, err := tx.Store(storeName)
	if err != nil {
		return err
	}
	return fn(store)
}

// --------------------------------------------------------------------------
// Write
// --------------------------------------------------------------------------

// write applies op to every item in one read-write transaction. Items are
// independent: a failed item is collected and the others still commit.
//
// On success the primary keys are returned in submission order. If any item
// failed, a *BatchError listing the failed and the committed items is
// returned. Listeners are notified after the commit for committed items only.
func (db *DB) write(ctx context.Context, storeName string, action Action, items []any, op itemOp) ([]any, error) {
	conn, err := db.connection()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer db.metrics.writeTimer.UpdateSince(start)
	db.metrics.transactions(storeName, engine.ReadWrite).Inc()
	db.metrics.batchSize.Update(int64(len(items)))

	tx, err := conn.Begin(ctx, engine.ReadWrite, storeName)
	if err != nil {
		return nil, newError(CodeTransactionFailure, err, "begin %s on %q", action, storeName)
	}
	store, err := tx.Store(storeName)
	if err != nil {
		_ = tx.Abort()
		return nil, newError(CodeTransactionFailure, err, "begin %s on %q", action, storeName)
	}

	var (
		keys      = make([]any, len(items))
		succeeded []ItemResult
		failed    []ItemError
	)
	for i, item := range items {
		key, err := op(store, item)
		if err != nil {
			failed = append(failed, ItemError{Index: i, Item: item, Err: classify(storeName, err)})
			continue
		}
		keys[i] = key
		succeeded = append(succeeded, ItemResult{Index: i, Item: item, Key: key})
	}

	if err := tx.Commit(); err != nil {
		db.metrics.items(storeName, action, false).Add(len(items))
		cause := err
		if len(failed) > 0 {
			errs := make([]error, len(failed))
			for i, f := range failed {
				errs[i] = f
			}
			cause = errors.Join(errs...)
		}
		plog.Errorf("%s on %q failed to commit: %v", action, storeName, err)
		return nil, newError(CodeTransactionFailure, cause, "%s on %q", action, storeName)
	}

	db.metrics.items(storeName, action, true).Add(len(succeeded))
	db.metrics.items(storeName, action, false).Add(len(failed))

	for _, r := range succeeded {
		db.notify(storeName, action, db.notification(storeName, action, r))
	}

	if len(failed) > 0 {
		plog.Debugf("%s on %q: %d of %d items failed", action, storeName, len(failed), len(items))
		return nil, &BatchError{Store: storeName, Action: action, Failed: failed, Succeeded: succeeded}
	}
	return keys, nil
}

// notification returns the value listeners receive for a committed item:
// the record (with a generated key filled in) or the deleted key.
func (db *DB) notification(storeName string, action Action, r ItemResult) any {
	rec, ok := r.Item.(engine.Record)
	if !ok || action == ActionDelete {
		return r.Item
	}
	cfg := db.desc.Stores[storeName]
	if _, found := engine.Path(cfg.KeyPath).Evaluate(rec); found {
		return rec
	}
	out, err := engine.CloneRecord(rec)
	if err != nil {
		return rec
	}
	if err := engine.Path(cfg.KeyPath).Inject(out, r.Key); err != nil {
		return rec
	}
	return out
}
