package kv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger(common.LoggerEngine)

// engineImpl implements engine.Engine on top of a Backend
type engineImpl struct {
	backend Backend
	conns   *xsync.MapOf[string, int] // open connections per database
	openMu  sync.Mutex                // serializes Open (version checks + upgrades)
	closed  atomic.Bool
}

// New creates an engine.Engine that stores its data in the given backend.
// The engine takes ownership of the backend and closes it on Close.
func New(backend Backend) engine.Engine {
	return &engineImpl{
		backend: backend,
		conns:   xsync.NewMapOf[string, int](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see engine/interface.go)
// --------------------------------------------------------------------------

func (e *engineImpl) Open(ctx context.Context, name string, version uint64, upgrade engine.UpgradeFunc) (engine.Conn, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("%w: empty database name", engine.ErrData)
	}

	e.openMu.Lock()
	defer e.openMu.Unlock()

	installed, exists, err := e.installedVersion(name)
	if err != nil {
		return nil, err
	}

	target := version
	if target == 0 {
		target = installed
		if !exists {
			target = 1
		}
	}

	if target < installed {
		return nil, fmt.Errorf("%w: database %q is at version %d, requested %d", engine.ErrVersion, name, installed, target)
	}

	if !exists || target > installed {
		if n, _ := e.conns.Load(name); n > 0 {
			return nil, fmt.Errorf("%w: %d connection(s) to %q prevent upgrade to version %d", engine.ErrBlocked, n, name, target)
		}
		if err := e.upgrade(name, installed, target, upgrade); err != nil {
			return nil, err
		}
		plog.Infof("upgraded database %q from version %d to %d", name, installed, target)
	}

	e.conns.Compute(name, func(n int, _ bool) (int, bool) {
		return n + 1, false
	})
	return &connImpl{engine: e, name: name, version: target}, nil
}

func (e *engineImpl) Databases(ctx context.Context) ([]engine.DatabaseInfo, error) {
	if e.closed.Load() {
		return nil, engine.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx, err := e.backend.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	return listDatabases(tx)
}

func (e *engineImpl) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return e.backend.Close()
}

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func (e *engineImpl) installedVersion(name string) (uint64, bool, error) {
	tx, err := e.backend.Begin(false)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()
	return readVersion(tx, name)
}

// upgrade runs fn in a single write transaction and records the new version.
// Nothing is persisted if fn fails.
func (e *engineImpl) upgrade(name string, oldVersion, newVersion uint64, fn engine.UpgradeFunc) error {
	tx, err := e.backend.Begin(true)
	if err != nil {
		return err
	}

	if fn != nil {
		if err := fn(&schemaImpl{meta: metaView{tx: tx, db: name}}, oldVersion, newVersion); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := writeVersion(tx, name, newVersion); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// release is called when a connection is closed.
func (e *engineImpl) release(name string) {
	e.conns.Compute(name, func(n int, _ bool) (int, bool) {
		return n - 1, n <= 1
	})
}
