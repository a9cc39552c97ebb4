package ibs

import (
	"runtime/debug"
)

// Listener is called after a write to a store committed, once per
// committed item. record is the written record for ActionAdd and
// ActionUpdate, the primary key for ActionDelete and nil for ActionClear.
//
// Listeners run synchronously on the goroutine that issued the write.
type Listener func(action Action, record any)

// subscribe appends fn to the listeners of a store. Listeners cannot be removed.
func (db *DB) subscribe(storeName string, fn Listener) {
	db.listeners.Compute(storeName, func(old []Listener, _ bool) ([]Listener, bool) {
		// copy on write, notify may be iterating the old slice
		next := make([]Listener, len(old), len(old)+1)
		copy(next, old)
		return append(next, fn), false
	})
}

// notify calls the listeners of a store in registration order. A panicking
// listener is logged and does not stop the others.
func (db *DB) notify(storeName string, action Action, record any) {
	listeners, ok := db.listeners.Load(storeName)
	if !ok {
		return
	}
	for i, fn := range listeners {
		db.call(storeName, i, fn, action, record)
	}
}

func (db *DB) call(storeName string, i int, fn Listener, action Action, record any) {
	defer func() {
		if r := recover(); r != nil {
			db.metrics.listenerPanics.Inc()
			plog.Errorf("listener %d of %q panicked on %s: %v\n%s", i, storeName, action, r, debug.Stack())
		}
	}()
	fn(action, record)
}
