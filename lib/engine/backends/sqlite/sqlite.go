package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/kv"
	_ "modernc.org/sqlite"
)

const (
	bucketSeparator = "\x1f"

	createTable = `CREATE TABLE IF NOT EXISTS kv (
	bucket TEXT NOT NULL,
	k      BLOB NOT NULL,
	v      BLOB NOT NULL,
	PRIMARY KEY (bucket, k)
) WITHOUT ROWID`
)

// Options configures the sqlite backend
type Options struct {
	BusyTimeoutMs int    // sqlite busy_timeout
	Synchronous   string // sqlite synchronous pragma (OFF, NORMAL, FULL)
}

// DefaultOptions returns the default sqlite backend options
func DefaultOptions() *Options {
	return &Options{
		BusyTimeoutMs: 5000,
		Synchronous:   "NORMAL",
	}
}

// backendImpl keeps all buckets in one table ordered by (bucket, key).
// Readers run concurrently on WAL snapshots, writers are serialized by writeMu.
type backendImpl struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// NewBackend opens (or creates) the sqlite file at path.
func NewBackend(path string, opts *Options) (kv.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own in-memory database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		fmt.Sprintf("PRAGMA synchronous=%s", opts.Synchronous),
		fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeoutMs),
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &backendImpl{db: db}, nil
}

// New opens the sqlite file at path as an engine.
func New(path string, opts *Options) (engine.Engine, error) {
	b, err := NewBackend(path, opts)
	if err != nil {
		return nil, err
	}
	return kv.New(b), nil
}

func (b *backendImpl) Begin(writable bool) (kv.BackendTx, error) {
	if writable {
		b.writeMu.Lock()
	}
	tx, err := b.db.Begin()
	if err != nil {
		if writable {
			b.writeMu.Unlock()
		}
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &txImpl{backend: b, tx: tx, writable: writable}, nil
}

func (b *backendImpl) Close() error {
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	backend  *backendImpl
	tx       *sql.Tx
	writable bool
	done     bool
}

func (t *txImpl) Bucket(path ...string) (kv.Bucket, error) {
	return &bucketImpl{tx: t, name: strings.Join(path, bucketSeparator)}, nil
}

func (t *txImpl) DeleteBucket(path ...string) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	_, err := t.tx.Exec(`DELETE FROM kv WHERE bucket = ?`, strings.Join(path, bucketSeparator))
	return err
}

func (t *txImpl) Commit() error {
	if t.done {
		return engine.ErrInvalidState
	}
	t.done = true
	if !t.writable {
		return t.tx.Rollback()
	}
	defer t.backend.writeMu.Unlock()
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *txImpl) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		defer t.backend.writeMu.Unlock()
	}
	return t.tx.Rollback()
}

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

type bucketImpl struct {
	tx   *txImpl
	name string
}

func (b *bucketImpl) Get(key []byte) ([]byte, error) {
	var v []byte
	err := b.tx.tx.QueryRow(`SELECT v FROM kv WHERE bucket = ? AND k = ?`, b.name, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if v == nil && err == nil {
		v = []byte{}
	}
	return v, err
}

func (b *bucketImpl) Put(key, value []byte) error {
	if !b.tx.writable {
		return engine.ErrReadOnly
	}
	if value == nil {
		value = []byte{}
	}
	_, err := b.tx.tx.Exec(`INSERT OR REPLACE INTO kv (bucket, k, v) VALUES (?, ?, ?)`, b.name, key, value)
	return err
}

func (b *bucketImpl) Delete(key []byte) error {
	if !b.tx.writable {
		return engine.ErrReadOnly
	}
	_, err := b.tx.tx.Exec(`DELETE FROM kv WHERE bucket = ? AND k = ?`, b.name, key)
	return err
}

func (b *bucketImpl) Seek(key []byte) ([]byte, []byte, error) {
	var (
		row  *sql.Row
		k, v []byte
	)
	if len(key) == 0 {
		row = b.tx.tx.QueryRow(`SELECT k, v FROM kv WHERE bucket = ? ORDER BY k LIMIT 1`, b.name)
	} else {
		row = b.tx.tx.QueryRow(`SELECT k, v FROM kv WHERE bucket = ? AND k >= ? ORDER BY k LIMIT 1`, b.name, key)
	}
	if err := row.Scan(&k, &v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if v == nil {
		v = []byte{}
	}
	return k, v, nil
}
