package leveldb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/kv"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Options configures the leveldb backend
type Options struct {
	BlockCacheCapacity     int // leveldb block cache in bytes (0 = leveldb default)
	OpenFilesCacheCapacity int // max open table files (0 = leveldb default)
	WriteBuffer            int // memtable size in bytes (0 = leveldb default)
}

// DefaultOptions returns the default leveldb backend options
func DefaultOptions() *Options {
	return &Options{
		OpenFilesCacheCapacity: 128,
	}
}

// backendImpl stores all buckets in a single flat leveldb keyspace.
// Every key is prefixed with the encoded bucket path (see bucketPrefix).
type backendImpl struct {
	db *leveldb.DB
}

// NewBackend opens (or creates) the leveldb directory at path.
func NewBackend(path string, opts *Options) (kv.Backend, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity:     opts.BlockCacheCapacity,
		OpenFilesCacheCapacity: opts.OpenFilesCacheCapacity,
		WriteBuffer:            opts.WriteBuffer,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb %q: %w", path, err)
	}
	return &backendImpl{db: db}, nil
}

// New opens the leveldb directory at path as an engine.
func New(path string, opts *Options) (engine.Engine, error) {
	b, err := NewBackend(path, opts)
	if err != nil {
		return nil, err
	}
	return kv.New(b), nil
}

func (b *backendImpl) Begin(writable bool) (kv.BackendTx, error) {
	if writable {
		// leveldb allows a single open transaction, further calls block
		tr, err := b.db.OpenTransaction()
		if err != nil {
			return nil, err
		}
		return &txImpl{reader: tr, tr: tr}, nil
	}
	snap, err := b.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	return &txImpl{reader: snap, snap: snap}, nil
}

func (b *backendImpl) Close() error {
	return b.db.Close()
}

// --------------------------------------------------------------------------
// Key layout
// --------------------------------------------------------------------------

// bucketPrefix encodes a bucket path as 'b' followed by every name as
// uvarint(len) + bytes, terminated by 0x00. Names are never empty, so
// no bucket prefix is a prefix of another bucket's prefix.
func bucketPrefix(path []string) []byte {
	out := []byte{'b'}
	for _, name := range path {
		out = binary.AppendUvarint(out, uint64(len(name)))
		out = append(out, name...)
	}
	return append(out, 0x00)
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

// reader is implemented by *leveldb.Snapshot and *leveldb.Transaction
type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type txImpl struct {
	reader reader
	tr     *leveldb.Transaction // nil for read-only transactions
	snap   *leveldb.Snapshot    // nil for write transactions
	done   bool
}

func (t *txImpl) Bucket(path ...string) (kv.Bucket, error) {
	for _, name := range path {
		if name == "" {
			return nil, fmt.Errorf("%w: empty bucket name in %q", engine.ErrData, path)
		}
	}
	return &bucketImpl{tx: t, prefix: bucketPrefix(path)}, nil
}

func (t *txImpl) DeleteBucket(path ...string) error {
	if t.tr == nil {
		return engine.ErrReadOnly
	}
	it := t.tr.NewIterator(util.BytesPrefix(bucketPrefix(path)), nil)
	var keys [][]byte
	for it.Next() {
		keys = append(keys, bytes.Clone(it.Key()))
	}
	it.Release()
	if err := it.Error(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := t.tr.Delete(k, nil); err != nil {
			return err
		}
	}
	return nil
}

func (t *txImpl) Commit() error {
	if t.done {
		return engine.ErrInvalidState
	}
	t.done = true
	if t.tr == nil {
		t.snap.Release()
		return nil
	}
	return t.tr.Commit()
}

func (t *txImpl) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.tr == nil {
		t.snap.Release()
		return nil
	}
	t.tr.Discard()
	return nil
}

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

type bucketImpl struct {
	tx     *txImpl
	prefix []byte
}

func (b *bucketImpl) key(k []byte) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	out = append(out, b.prefix...)
	return append(out, k...)
}

func (b *bucketImpl) Get(key []byte) ([]byte, error) {
	v, err := b.tx.reader.Get(b.key(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

func (b *bucketImpl) Put(key, value []byte) error {
	if b.tx.tr == nil {
		return engine.ErrReadOnly
	}
	return b.tx.tr.Put(b.key(key), value, nil)
}

func (b *bucketImpl) Delete(key []byte) error {
	if b.tx.tr == nil {
		return engine.ErrReadOnly
	}
	return b.tx.tr.Delete(b.key(key), nil)
}

func (b *bucketImpl) Seek(key []byte) ([]byte, []byte, error) {
	it := b.tx.reader.NewIterator(util.BytesPrefix(b.prefix), nil)
	defer it.Release()

	if !it.Seek(b.key(key)) {
		return nil, nil, it.Error()
	}
	k := bytes.Clone(it.Key()[len(b.prefix):])
	v := bytes.Clone(it.Value())
	return k, v, nil
}
