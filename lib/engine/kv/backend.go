package kv

// --------------------------------------------------------------------------
// Backend Interfaces
// --------------------------------------------------------------------------

// Backend is an ordered byte store with named buckets and transactions.
// It is the only thing a storage technology has to provide to be used as an
// engine.Engine (see New).
//
// Implementations must allow concurrent read transactions and serialize
// write transactions. A read transaction sees a consistent snapshot.
type Backend interface {
	// Begin starts a transaction. Only one writable transaction may be
	// active at a time; Begin(true) blocks until the previous one finished.
	Begin(writable bool) (tx BackendTx, err error)

	// Close releases the backend.
	Close() (err error)
}

// BackendTx is a backend transaction. It is used by one goroutine only.
type BackendTx interface {
	// Bucket returns the bucket at path. In a writable transaction the bucket
	// is created if it does not exist. In a read-only transaction a missing
	// bucket behaves like an empty one.
	Bucket(path ...string) (bucket Bucket, err error)

	// DeleteBucket removes the bucket at path with all its entries.
	// Deleting a missing bucket is not an error.
	DeleteBucket(path ...string) (err error)

	// Commit persists the transaction (for read-only transactions it only
	// releases resources).
	Commit() (err error)

	// Rollback discards the transaction.
	Rollback() (err error)
}

// Bucket is an ordered set of key-value pairs.
// Byte slices returned by a bucket may be retained by the caller.
type Bucket interface {
	// Get returns the value for key, or nil if it does not exist.
	Get(key []byte) (value []byte, err error)

	// Put sets the value for key.
	Put(key, value []byte) (err error)

	// Delete removes key. A missing key is not an error.
	Delete(key []byte) (err error)

	// Seek returns the first entry with a key >= key (the first entry if key
	// is empty). A nil k means no such entry exists.
	Seek(key []byte) (k, v []byte, err error)
}

// successor returns the smallest key strictly greater than k.
func successor(k []byte) []byte {
	next := make([]byte, len(k)+1)
	copy(next, k)
	return next
}
