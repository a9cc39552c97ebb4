package bolt

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/kv"
	"go.etcd.io/bbolt"
)

// Options configures the bbolt backend
type Options struct {
	Timeout time.Duration // time to wait for the file lock
	NoSync  bool          // skip fsync after commit (tests only)
}

// DefaultOptions returns the default bbolt backend options
func DefaultOptions() *Options {
	return &Options{
		Timeout: time.Second,
	}
}

// backendImpl maps kv buckets onto nested bbolt buckets
type backendImpl struct {
	db *bbolt.DB
}

// NewBackend opens (or creates) the bbolt file at path.
func NewBackend(path string, opts *Options) (kv.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: opts.Timeout,
		NoSync:  opts.NoSync,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt file %q: %w", path, err)
	}
	return &backendImpl{db: db}, nil
}

// New opens the bbolt file at path as an engine.
func New(path string, opts *Options) (engine.Engine, error) {
	b, err := NewBackend(path, opts)
	if err != nil {
		return nil, err
	}
	return kv.New(b), nil
}

func (b *backendImpl) Begin(writable bool) (kv.BackendTx, error) {
	tx, err := b.db.Begin(writable)
	if err != nil {
		return nil, err
	}
	return &txImpl{tx: tx}, nil
}

func (b *backendImpl) Close() error {
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	tx *bbolt.Tx
}

func (t *txImpl) Bucket(path ...string) (kv.Bucket, error) {
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty bucket path", engine.ErrData)
	}

	if !t.tx.Writable() {
		b := t.tx.Bucket([]byte(path[0]))
		for _, name := range path[1:] {
			if b == nil {
				break
			}
			b = b.Bucket([]byte(name))
		}
		return &bucketImpl{b: b}, nil
	}

	b, err := t.tx.CreateBucketIfNotExists([]byte(path[0]))
	if err != nil {
		return nil, err
	}
	for _, name := range path[1:] {
		if b, err = b.CreateBucketIfNotExists([]byte(name)); err != nil {
			return nil, err
		}
	}
	return &bucketImpl{b: b}, nil
}

func (t *txImpl) DeleteBucket(path ...string) error {
	if len(path) == 0 {
		return nil
	}
	var err error
	if len(path) == 1 {
		err = t.tx.DeleteBucket([]byte(path[0]))
	} else {
		parent := t.tx.Bucket([]byte(path[0]))
		for _, name := range path[1 : len(path)-1] {
			if parent == nil {
				return nil
			}
			parent = parent.Bucket([]byte(name))
		}
		if parent == nil {
			return nil
		}
		err = parent.DeleteBucket([]byte(path[len(path)-1]))
	}
	if errors.Is(err, bbolt.ErrBucketNotFound) {
		return nil
	}
	return err
}

func (t *txImpl) Commit() error {
	if !t.tx.Writable() {
		return t.tx.Rollback()
	}
	return t.tx.Commit()
}

func (t *txImpl) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, bbolt.ErrTxClosed) {
		return nil
	}
	return err
}

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

// bucketImpl wraps a bbolt bucket. A nil b is a missing bucket in a
// read-only transaction and behaves like an empty one.
type bucketImpl struct {
	b *bbolt.Bucket
}

// bbolt memory is only valid during the transaction, so everything handed
// out is copied.
func (b *bucketImpl) Get(key []byte) ([]byte, error) {
	if b.b == nil {
		return nil, nil
	}
	v := b.b.Get(key)
	if v == nil {
		return nil, nil
	}
	return bytes.Clone(v), nil
}

func (b *bucketImpl) Put(key, value []byte) error {
	if b.b == nil {
		return engine.ErrReadOnly
	}
	return b.b.Put(key, value)
}

func (b *bucketImpl) Delete(key []byte) error {
	if b.b == nil {
		return engine.ErrReadOnly
	}
	return b.b.Delete(key)
}

func (b *bucketImpl) Seek(key []byte) ([]byte, []byte, error) {
	if b.b == nil {
		return nil, nil, nil
	}
	c := b.b.Cursor()
	var k, v []byte
	if len(key) == 0 {
		k, v = c.First()
	} else {
		k, v = c.Seek(key)
	}
	// skip nested buckets
	for k != nil && v == nil {
		k, v = c.Next()
	}
	if k == nil {
		return nil, nil, nil
	}
	return bytes.Clone(k), bytes.Clone(v), nil
}
