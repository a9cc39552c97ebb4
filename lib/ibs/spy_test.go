package ibs

import (
	"context"
	"errors"
	"sync"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// spyEngine wraps an engine and records what the DB asks of it
type spyEngine struct {
	engine.Engine

	mu            sync.Mutex
	openVersions  []uint64 // versions passed to Open, in order
	upgrades      [][2]uint64
	createStores  []string
	createIndexes []string
	failCommit    error // returned by every read-write Commit if set
	failDatabases error // returned by Databases if set
}

func newSpy(eng engine.Engine) *spyEngine {
	return &spyEngine{Engine: eng}
}

func (s *spyEngine) Open(ctx context.Context, name string, version uint64, upgrade engine.UpgradeFunc) (engine.Conn, error) {
	s.mu.Lock()
	s.openVersions = append(s.openVersions, version)
	s.mu.Unlock()

	var wrapped engine.UpgradeFunc
	if upgrade != nil {
		wrapped = func(schema engine.Schema, oldVersion, newVersion uint64) error {
			s.mu.Lock()
			s.upgrades = append(s.upgrades, [2]uint64{oldVersion, newVersion})
			s.mu.Unlock()
			return upgrade(&spySchema{Schema: schema, spy: s}, oldVersion, newVersion)
		}
	}
	conn, err := s.Engine.Open(ctx, name, version, wrapped)
	if err != nil {
		return nil, err
	}
	return &spyConn{Conn: conn, spy: s}, nil
}

func (s *spyEngine) Databases(ctx context.Context) ([]engine.DatabaseInfo, error) {
	s.mu.Lock()
	failure := s.failDatabases
	s.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	return s.Engine.Databases(ctx)
}

func (s *spyEngine) creations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.createStores) + len(s.createIndexes)
}

func (s *spyEngine) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openVersions = nil
	s.upgrades = nil
	s.createStores = nil
	s.createIndexes = nil
}

type spySchema struct {
	engine.Schema
	spy *spyEngine
}

func (s *spySchema) CreateStore(name string, opts engine.StoreOptions) (engine.SchemaStore, error) {
	s.spy.mu.Lock()
	s.spy.createStores = append(s.spy.createStores, name)
	s.spy.mu.Unlock()
	store, err := s.Schema.CreateStore(name, opts)
	if err != nil {
		return nil, err
	}
	return &spySchemaStore{SchemaStore: store, spy: s.spy}, nil
}

func (s *spySchema) Store(name string) (engine.SchemaStore, error) {
	store, err := s.Schema.Store(name)
	if err != nil {
		return nil, err
	}
	return &spySchemaStore{SchemaStore: store, spy: s.spy}, nil
}

type spySchemaStore struct {
	engine.SchemaStore
	spy *spyEngine
}

func (s *spySchemaStore) CreateIndex(name string, keyPath engine.KeyPath, opts engine.IndexOptions) error {
	s.spy.mu.Lock()
	s.spy.createIndexes = append(s.spy.createIndexes, s.Info().Name+"."+name)
	s.spy.mu.Unlock()
	return s.SchemaStore.CreateIndex(name, keyPath, opts)
}

type spyConn struct {
	engine.Conn
	spy *spyEngine
}

func (c *spyConn) Begin(ctx context.Context, mode engine.Mode, stores ...string) (engine.Tx, error) {
	tx, err := c.Conn.Begin(ctx, mode, stores...)
	if err != nil {
		return nil, err
	}
	return &spyTx{Tx: tx, spy: c.spy}, nil
}

type spyTx struct {
	engine.Tx
	spy *spyEngine
}

func (t *spyTx) Commit() error {
	t.spy.mu.Lock()
	failure := t.spy.failCommit
	t.spy.mu.Unlock()
	if failure != nil && t.Mode() == engine.ReadWrite {
		_ = t.Tx.Abort()
		return failure
	}
	return t.Tx.Commit()
}

var (
	errCommit    = errors.New("disk on fire")
	errDatabases = errors.New("catalog unreadable")
)
