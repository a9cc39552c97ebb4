package engine

import "errors"

// --------------------------------------------------------------------------
// Engine error kinds
// --------------------------------------------------------------------------

// The engine reports failures by wrapping one of these sentinels, so callers
// classify errors with errors.Is and still get a descriptive message.
var (
	// ErrConstraint is returned when a write would violate a uniqueness
	// constraint (duplicate primary key, duplicate unique index key) or when
	// an upgrade tries to create a store or index that already exists.
	ErrConstraint = errors.New("constraint violation")

	// ErrData is returned for invalid keys, key paths or values.
	ErrData = errors.New("invalid data")

	// ErrVersion is returned when a database is opened with a version lower
	// than the installed one.
	ErrVersion = errors.New("version error")

	// ErrBlocked is returned when an upgrade is requested while other
	// connections to the same database are still open.
	ErrBlocked = errors.New("blocked by open connection")

	// ErrNotFound is returned when a store, index or database does not exist.
	ErrNotFound = errors.New("not found")

	// ErrReadOnly is returned when a write is attempted in a read-only transaction.
	ErrReadOnly = errors.New("read-only transaction")

	// ErrClosed is returned when the engine or connection has been closed.
	ErrClosed = errors.New("closed")

	// ErrInvalidState is returned when a finished transaction is used again.
	ErrInvalidState = errors.New("invalid state")
)
