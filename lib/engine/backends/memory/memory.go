package memory

import (
	"bytes"
	"strings"
	"sync"

	"github.com/ValentinKolb/ibs/lib/engine"
	"github.com/ValentinKolb/ibs/lib/engine/kv"
	"github.com/google/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultDegree = 32   // B-tree degree of every bucket
	pathSeparator = "\x00" // joins bucket paths into map keys
)

// Options configures the memory backend
type Options struct {
	Degree int // B-tree degree (0 = use default)
}

// DefaultOptions returns the default memory backend options
func DefaultOptions() *Options {
	return &Options{
		Degree: defaultDegree,
	}
}

// --------------------------------------------------------------------------
// Backend
// --------------------------------------------------------------------------

type entry struct {
	k, v []byte
}

func lessEntry(a, b entry) bool {
	return bytes.Compare(a.k, b.k) < 0
}

type tree = btree.BTreeG[entry]

// backendImpl keeps every bucket in a copy-on-write B-tree. Transactions
// work on lazy clones; a commit swaps the committed bucket set.
type backendImpl struct {
	degree  int
	mu      sync.Mutex // guards buckets (clone and swap)
	writeMu sync.Mutex // held by the active write transaction
	buckets map[string]*tree
}

// NewBackend creates an empty in-memory kv.Backend.
func NewBackend(opts *Options) kv.Backend {
	if opts == nil {
		opts = DefaultOptions()
	}
	degree := opts.Degree
	if degree < 2 {
		degree = defaultDegree
	}
	return &backendImpl{
		degree:  degree,
		buckets: make(map[string]*tree),
	}
}

// New creates an in-memory engine. Nothing is persisted.
func New(opts *Options) engine.Engine {
	return kv.New(NewBackend(opts))
}

func (b *backendImpl) Begin(writable bool) (kv.BackendTx, error) {
	if writable {
		b.writeMu.Lock()
	}

	// btree.Clone modifies the source tree, so snapshots are taken exclusively
	b.mu.Lock()
	snapshot := make(map[string]*tree, len(b.buckets))
	for name, t := range b.buckets {
		snapshot[name] = t.Clone()
	}
	b.mu.Unlock()

	return &txImpl{backend: b, writable: writable, buckets: snapshot}, nil
}

func (b *backendImpl) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buckets = make(map[string]*tree)
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	backend  *backendImpl
	writable bool
	buckets  map[string]*tree
	done     bool
}

func (t *txImpl) Bucket(path ...string) (kv.Bucket, error) {
	name := strings.Join(path, pathSeparator)
	tr, ok := t.buckets[name]
	if !ok {
		tr = btree.NewG[entry](t.backend.degree, lessEntry)
		if t.writable {
			t.buckets[name] = tr
		}
	}
	return &bucketImpl{tree: tr, writable: t.writable}, nil
}

func (t *txImpl) DeleteBucket(path ...string) error {
	if !t.writable {
		return engine.ErrReadOnly
	}
	delete(t.buckets, strings.Join(path, pathSeparator))
	return nil
}

func (t *txImpl) Commit() error {
	if t.done {
		return engine.ErrInvalidState
	}
	t.done = true
	if !t.writable {
		return nil
	}
	t.backend.mu.Lock()
	t.backend.buckets = t.buckets
	t.backend.mu.Unlock()
	t.backend.writeMu.Unlock()
	return nil
}

func (t *txImpl) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.writable {
		t.backend.writeMu.Unlock()
	}
	return nil
}

// --------------------------------------------------------------------------
// Bucket
// --------------------------------------------------------------------------

type bucketImpl struct {
	tree     *tree
	writable bool
}

func (b *bucketImpl) Get(key []byte) ([]byte, error) {
	e, ok := b.tree.Get(entry{k: key})
	if !ok {
		return nil, nil
	}
	return e.v, nil
}

func (b *bucketImpl) Put(key, value []byte) error {
	if !b.writable {
		return engine.ErrReadOnly
	}
	// entries are never modified in place, so stored slices can be shared
	b.tree.ReplaceOrInsert(entry{
		k: bytes.Clone(key),
		v: bytes.Clone(value),
	})
	return nil
}

func (b *bucketImpl) Delete(key []byte) error {
	if !b.writable {
		return engine.ErrReadOnly
	}
	b.tree.Delete(entry{k: key})
	return nil
}

func (b *bucketImpl) Seek(key []byte) ([]byte, []byte, error) {
	var (
		found entry
		ok    bool
	)
	b.tree.AscendGreaterOrEqual(entry{k: key}, func(e entry) bool {
		found, ok = e, true
		return false
	})
	if !ok {
		return nil, nil, nil
	}
	return found.k, found.v, nil
}
