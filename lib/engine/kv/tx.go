package kv

import (
	"fmt"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// txImpl implements engine.Tx
type txImpl struct {
	btx    BackendTx
	meta   metaView
	mode   engine.Mode
	scope  map[string]bool // nil = all stores
	stores map[string]*objectStore
	done   bool
}

func (t *txImpl) Mode() engine.Mode {
	return t.mode
}

func (t *txImpl) Store(name string) (engine.ObjectStore, error) {
	if t.done {
		return nil, fmt.Errorf("%w: transaction already finished", engine.ErrInvalidState)
	}
	if s, ok := t.stores[name]; ok {
		return s, nil
	}
	if t.scope != nil && !t.scope[name] {
		return nil, fmt.Errorf("%w: store %q is not in the transaction scope", engine.ErrNotFound, name)
	}

	info, ok, err := t.meta.storeInfo(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: store %q in database %q", engine.ErrNotFound, name, t.meta.db)
	}

	s := &objectStore{tx: t, info: info}
	t.stores[name] = s
	return s, nil
}

func (t *txImpl) Commit() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", engine.ErrInvalidState)
	}
	t.done = true
	if t.mode == engine.ReadOnly {
		return t.btx.Rollback()
	}
	return t.btx.Commit()
}

func (t *txImpl) Abort() error {
	if t.done {
		return fmt.Errorf("%w: transaction already finished", engine.ErrInvalidState)
	}
	t.done = true
	return t.btx.Rollback()
}
