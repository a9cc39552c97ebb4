package ibs

import (
	"context"
	"sync"

	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var plog = logger.GetLogger(common.LoggerIBS)

// DB is a schema-versioned database on top of an engine.Engine.
//
// Thread-safety: all methods are safe for concurrent use. The engine
// connection is shared by all stores of the database.
type DB struct {
	eng  engine.Engine
	desc Descriptor

	mu     sync.RWMutex
	conn   engine.Conn
	stores map[string]*Store

	listeners *xsync.MapOf[string, []Listener]
	metrics   *dbMetrics
}

// New creates a DB for the descriptor. Nothing happens on the engine until
// Open is called.
func New(eng engine.Engine, desc Descriptor) (*DB, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &DB{
		eng:       eng,
		desc:      desc,
		listeners: xsync.NewMapOf[string, []Listener](),
		metrics:   newDBMetrics(desc.Name),
	}, nil
}

// --------------------------------------------------------------------------
// Open
// --------------------------------------------------------------------------

// Open negotiates the database version, creates missing stores and indexes
// and builds the store accessors. Calling Open on an open DB is a no-op.
func (db *DB) Open(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn != nil {
		return nil
	}

	observed, installed := db.resolveVersion(ctx)

	needed, err := db.auditSchema(ctx, observed, installed)
	if err != nil {
		return newError(CodeOpenFailure, err, "audit schema of %q at version %d", db.desc.Name, observed)
	}

	version := db.decideVersion(observed, installed, needed)
	plog.Debugf("opening %q: observed=%d installed=%t upgrade=%t -> version %d", db.desc.Name, observed, installed, needed, version)

	conn, err := db.eng.Open(ctx, db.desc.Name, version, db.migrate)
	if err != nil {
		db.metrics.openFailed.Inc()
		return newError(CodeOpenFailure, err, "open %q at version %d", db.desc.Name, version)
	}
	if needed {
		db.metrics.upgrades.Inc()
	}

	db.conn = conn
	db.stores = make(map[string]*Store, len(db.desc.Stores))
	for name, cfg := range db.desc.Stores {
		db.stores[name] = &Store{db: db, name: name, config: cfg}
	}
	plog.Infof("opened %q at version %d with %d stores", db.desc.Name, conn.Version(), len(db.stores))
	return nil
}

// resolveVersion returns the installed version of the database without
// opening it. An uninstalled database (or an engine failure) reports the
// configured version.
func (db *DB) resolveVersion(ctx context.Context) (version uint64, installed bool) {
	dbs, err := db.eng.Databases(ctx)
	if err != nil {
		plog.Warningf("could not resolve version of %q, assuming %d: %v", db.desc.Name, db.desc.version(), err)
		return db.desc.version(), false
	}
	for _, info := range dbs {
		if info.Name == db.desc.Name {
			return info.Version, true
		}
	}
	return db.desc.version(), false
}

// auditSchema reports whether a declared store is missing. It opens the
// database at exactly the observed version, so no upgrade can happen.
// Declared indexes missing on existing stores are only logged.
func (db *DB) auditSchema(ctx context.Context, observed uint64, installed bool) (bool, error) {
	if !installed {
		return true, nil
	}

	conn, err := db.eng.Open(ctx, db.desc.Name, observed, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	existing, err := conn.StoreNames()
	if err != nil {
		return false, err
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}

	var missing, kept []string
	for _, name := range db.desc.storeNames() {
		if present[name] {
			kept = append(kept, name)
		} else {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		plog.Infof("database %q at version %d is missing stores %v", db.desc.Name, observed, missing)
	}
	if len(kept) > 0 {
		db.auditIndexes(ctx, conn, kept)
	}
	return len(missing) > 0, nil
}

func (db *DB) auditIndexes(ctx context.Context, conn engine.Conn, stores []string) {
	tx, err := conn.Begin(ctx, engine.ReadOnly, stores...)
	if err != nil {
		plog.Warningf("could not audit indexes of %q: %v", db.desc.Name, err)
		return
	}
	defer tx.Commit()

	for _, name := range stores {
		s, err := tx.Store(name)
		if err != nil {
			plog.Warningf("could not audit indexes of %q.%q: %v", db.desc.Name, name, err)
			continue
		}
		info := s.Info()
		for _, idx := range db.desc.Stores[name].Indexes {
			if _, ok := info.Index(idx.Name); !ok {
				plog.Warningf("index %q is declared on %q.%q but missing; it is created by the next upgrade", idx.Name, db.desc.Name, name)
			}
		}
	}
}

// decideVersion picks the version to open. An installed database is bumped
// by one if a store is missing, otherwise kept. A new database is created
// at the configured version.
func (db *DB) decideVersion(observed uint64, installed, needed bool) uint64 {
	if !installed {
		return db.desc.version()
	}
	if needed {
		return observed + 1
	}
	return observed
}

// migrate is the upgrade callback: it creates every declared store that is
// missing and every declared index missing on it. Existing stores and
// indexes are never touched again.
func (db *DB) migrate(schema engine.Schema, oldVersion, newVersion uint64) error {
	plog.Infof("upgrading %q from version %d to %d", db.desc.Name, oldVersion, newVersion)

	for _, name := range db.desc.storeNames() {
		cfg := db.desc.Stores[name]

		exists, err := schema.HasStore(name)
		if err != nil {
			return newError(CodeMigrationFailure, err, "check store %q", name)
		}

		var store engine.SchemaStore
		if exists {
			if store, err = schema.Store(name); err != nil {
				return newError(CodeMigrationFailure, err, "load store %q", name)
			}
			for _, idx := range store.IndexNames() {
				if !cfg.declaresIndex(idx) {
					plog.Warningf("index %q on %q.%q is no longer declared and is kept", idx, db.desc.Name, name)
				}
			}
		} else {
			if store, err = schema.CreateStore(name, cfg.storeOptions()); err != nil {
				return newError(CodeMigrationFailure, err, "create store %q", name)
			}
			plog.Infof("created store %q.%q", db.desc.Name, name)
		}

		for _, idx := range cfg.Indexes {
			if store.HasIndex(idx.Name) {
				continue
			}
			if err := store.CreateIndex(idx.Name, idx.KeyPath, idx.indexOptions()); err != nil {
				return newError(CodeMigrationFailure, err, "create index %q on store %q", idx.Name, name)
			}
			plog.Infof("created index %q on %q.%q", idx.Name, db.desc.Name, name)
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// API returns the store accessors by store name. It is empty until Open
// succeeded. The returned map is a copy.
func (db *DB) API() map[string]*Store {
	db.mu.RLock()
	defer db.mu.RUnlock()
	api := make(map[string]*Store, len(db.stores))
	for name, s := range db.stores {
		api[name] = s
	}
	return api
}

// Store returns the accessor of a declared store.
func (db *DB) Store(name string) (*Store, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.conn == nil {
		return nil, newError(CodeNotOpen, nil, "database %q is not open", db.desc.Name)
	}
	s, ok := db.stores[name]
	if !ok {
		return nil, newError(CodeUnknownStore, nil, "store %q is not declared in database %q", name, db.desc.Name)
	}
	return s, nil
}

// Name returns the database name.
func (db *DB) Name() string {
	return db.desc.Name
}

// Version returns the version the database was opened at (0 if not open).
func (db *DB) Version() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.conn == nil {
		return 0
	}
	return db.conn.Version()
}

// Close releases the engine connection. The store accessors stop working;
// the DB can be opened again.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	db.stores = nil
	return err
}

// connection returns the open connection.
func (db *DB) connection() (engine.Conn, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.conn == nil {
		return nil, newError(CodeNotOpen, nil, "database %q is not open", db.desc.Name)
	}
	return db.conn, nil
}
