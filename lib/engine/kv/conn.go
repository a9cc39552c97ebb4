package kv

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// connImpl implements engine.Conn
type connImpl struct {
	engine  *engineImpl
	name    string
	version uint64
	closed  atomic.Bool
}

func (c *connImpl) Name() string {
	return c.name
}

func (c *connImpl) Version() uint64 {
	return c.version
}

func (c *connImpl) StoreNames() ([]string, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	tx, err := c.engine.backend.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return metaView{tx: tx, db: c.name}.storeNames()
}

func (c *connImpl) Begin(ctx context.Context, mode engine.Mode, stores ...string) (engine.Tx, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	btx, err := c.engine.backend.Begin(mode == engine.ReadWrite)
	if err != nil {
		return nil, err
	}

	tx := &txImpl{
		btx:    btx,
		meta:   metaView{tx: btx, db: c.name},
		mode:   mode,
		stores: make(map[string]*objectStore),
	}

	// validate the scope up front
	if len(stores) > 0 {
		tx.scope = make(map[string]bool, len(stores))
		for _, name := range stores {
			if _, ok, err := tx.meta.storeInfo(name); err != nil || !ok {
				_ = btx.Rollback()
				if err == nil {
					err = fmt.Errorf("%w: store %q in database %q", engine.ErrNotFound, name, c.name)
				}
				return nil, err
			}
			tx.scope[name] = true
		}
	}
	return tx, nil
}

func (c *connImpl) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.engine.release(c.name)
	}
	return nil
}

func (c *connImpl) usable() error {
	if c.closed.Load() || c.engine.closed.Load() {
		return engine.ErrClosed
	}
	return nil
}
