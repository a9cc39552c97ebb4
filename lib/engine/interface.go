package engine

import "context"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly  Mode = iota // Reads only, may overlap with other transactions
	ReadWrite             // Reads and writes, serialized by the engine
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// StoreOptions configures a new object store.
type StoreOptions struct {
	KeyPath       KeyPath `json:"key_path"`
	AutoIncrement bool    `json:"auto_increment"`
}

// IndexOptions configures a new index.
type IndexOptions struct {
	Unique     bool `json:"unique"`
	MultiEntry bool `json:"multi_entry"`
}

// IndexInfo describes an installed index.
type IndexInfo struct {
	Name    string  `json:"name"`
	KeyPath KeyPath `json:"key_path"`
	IndexOptions
}

// StoreInfo describes an installed object store.
type StoreInfo struct {
	Name string `json:"name"`
	StoreOptions
	Indexes []IndexInfo `json:"indexes"`
}

// Index returns the named index, if any.
func (s StoreInfo) Index(name string) (IndexInfo, bool) {
	for _, idx := range s.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexInfo{}, false
}

// DatabaseInfo names an installed database and its version.
type DatabaseInfo struct {
	Name    string `json:"name"`
	Version uint64 `json:"version"`
}

// UpgradeFunc runs inside the upgrade transaction when a database is opened
// with a version greater than the installed one (oldVersion is 0 for a new
// database). Returning an error aborts the upgrade; nothing is persisted.
type UpgradeFunc func(schema Schema, oldVersion, newVersion uint64) error

// --------------------------------------------------------------------------
// Engine Interfaces
// --------------------------------------------------------------------------

// Engine is a versioned, transactional key-value engine with object stores
// and secondary indexes.
type Engine interface {
	// Open connects to the named database.
	// A version of 0 opens the installed version (creating the database at
	// version 1 if it does not exist). A version lower than the installed one
	// fails with ErrVersion. A greater version runs upgrade and fails with
	// ErrBlocked while other connections to the database are open.
	Open(ctx context.Context, name string, version uint64, upgrade UpgradeFunc) (conn Conn, err error)

	// Databases lists the installed databases without opening them.
	Databases(ctx context.Context) (dbs []DatabaseInfo, err error)

	// Close releases the engine. Open connections become unusable.
	Close() (err error)
}

// Conn is an open connection to one database.
// It is safe for concurrent use.
type Conn interface {
	// Name returns the database name.
	Name() string

	// Version returns the version the connection was opened at.
	Version() uint64

	// StoreNames returns the installed store names in ascending order.
	StoreNames() (names []string, err error)

	// Begin starts a transaction scoped to the given stores
	// (all stores if none are given).
	Begin(ctx context.Context, mode Mode, stores ...string) (tx Tx, err error)

	// Close closes the connection. It does not wait for running transactions.
	Close() (err error)
}

// Schema is the schema view available during an upgrade.
type Schema interface {
	// StoreNames returns the installed store names in ascending order.
	StoreNames() (names []string, err error)

	// HasStore reports whether the store exists.
	HasStore(name string) (ok bool, err error)

	// CreateStore creates a store. It fails with ErrConstraint if it exists.
	CreateStore(name string, opts StoreOptions) (store SchemaStore, err error)

	// Store returns an existing store or ErrNotFound.
	Store(name string) (store SchemaStore, err error)
}

// SchemaStore manages the indexes of one store during an upgrade.
type SchemaStore interface {
	// Info describes the store.
	Info() StoreInfo

	// IndexNames returns the index names in creation order.
	IndexNames() []string

	// HasIndex reports whether the index exists.
	HasIndex(name string) bool

	// CreateIndex creates an index and fills it from existing records.
	// It fails with ErrConstraint if the index exists or if existing records
	// violate a unique index.
	CreateIndex(name string, keyPath KeyPath, opts IndexOptions) (err error)
}

// Tx is a transaction. Individual failed requests do not abort it: Commit
// persists every request that succeeded. A Tx must not be used from more
// than one goroutine at a time.
type Tx interface {
	// Mode returns the transaction mode.
	Mode() Mode

	// Store returns an object store in the transaction's scope.
	Store(name string) (store ObjectStore, err error)

	// Commit persists all successful requests.
	Commit() (err error)

	// Abort discards all requests.
	Abort() (err error)
}

// ObjectStore is a store as seen from inside a transaction.
type ObjectStore interface {
	// Info describes the store.
	Info() StoreInfo

	// Get returns the record stored under key.
	Get(key any) (rec Record, found bool, err error)

	// GetAll returns all records in primary key order.
	GetAll() (recs []Record, err error)

	// Count returns the number of records.
	Count() (n int, err error)

	// Add inserts a record and returns its primary key.
	// It fails with ErrConstraint if the key exists.
	Add(rec Record) (key any, err error)

	// Put inserts or replaces a record and returns its primary key.
	Put(rec Record) (key any, err error)

	// Delete removes the record stored under key. A missing key is not an error.
	Delete(key any) (err error)

	// Clear removes all records.
	Clear() (err error)

	// OpenCursor iterates over the store (index == "") or over the named
	// index, restricted to r (nil means unbounded).
	OpenCursor(index string, r *KeyRange) (cursor Cursor, err error)
}

// Cursor iterates over records in key order. Each Next advances by one record.
type Cursor interface {
	// Next advances the cursor and reports whether a record is available.
	Next() bool

	// Key returns the current key (the index key for index cursors).
	Key() any

	// PrimaryKey returns the primary key of the current record.
	PrimaryKey() any

	// Value returns the current record.
	Value() Record

	// Err returns the error that stopped the iteration, if any.
	Err() error

	// Close releases the cursor.
	Close()
}
