package ibs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is the error type returned by this package. It wraps an error code
// (of type Code), a message and optionally the engine error that caused it.
//
// Errors match the exported sentinels by code:
//
//	errors.Is(err, ibs.ErrDuplicateKey)
type Error struct {
	Code Code   // The error code
	Msg  string // The error message
	Err  error  // The cause (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ibs error (code %s)", e.Code)
	if e.Msg != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Msg)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// newError creates a new Error with the given code, cause and message.
func newError(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
		Err:  cause,
	}
}

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type Code uint64

const (
	CodeOpenFailure        Code = iota + 1 // 1: The engine refused to open the database.
	CodeMigrationFailure                   // 2: Creating a store or index during the upgrade failed.
	CodeDuplicateKey                       // 3: An item collided with an existing key.
	CodeItemOperation                      // 4: Any other per-item engine failure.
	CodeTransactionFailure                 // 5: The transaction failed before it committed.
	CodeUnknownStore                       // 6: The store is not declared in the descriptor.
	CodeNotOpen                            // 7: The database has not been opened (or is closed).
	CodeInvalidDescriptor                  // 8: The database descriptor is invalid.
)

func (c Code) String() string {
	switch c {
	case CodeOpenFailure:
		return "OpenFailure"
	case CodeMigrationFailure:
		return "MigrationFailure"
	case CodeDuplicateKey:
		return "DuplicateKey"
	case CodeItemOperation:
		return "ItemOperationFailure"
	case CodeTransactionFailure:
		return "TransactionFailure"
	case CodeUnknownStore:
		return "UnknownStore"
	case CodeNotOpen:
		return "NotOpen"
	case CodeInvalidDescriptor:
		return "InvalidDescriptor"
	default:
		return "Unknown"
	}
}

// Sentinels for errors.Is
var (
	ErrOpen              = &Error{Code: CodeOpenFailure}
	ErrMigration         = &Error{Code: CodeMigrationFailure}
	ErrDuplicateKey      = &Error{Code: CodeDuplicateKey}
	ErrItemOperation     = &Error{Code: CodeItemOperation}
	ErrTransaction       = &Error{Code: CodeTransactionFailure}
	ErrUnknownStore      = &Error{Code: CodeUnknownStore}
	ErrNotOpen           = &Error{Code: CodeNotOpen}
	ErrInvalidDescriptor = &Error{Code: CodeInvalidDescriptor}
)

// classify maps a per-item engine error to DuplicateKey or ItemOperationFailure.
func classify(store string, err error) error {
	if errors.Is(err, engine.ErrConstraint) {
		return newError(CodeDuplicateKey, err, "store %q", store)
	}
	return newError(CodeItemOperation, err, "store %q", store)
}

// --------------------------------------------------------------------------
// Batch results
// --------------------------------------------------------------------------

// ItemResult is the outcome of a committed item of a batch
type ItemResult struct {
	Index int // position in the submitted batch
	Item  any // the submitted record or key
	Key   any // the primary key of the record (nil for deletes of absent keys)
}

// ItemError is a failed item of a batch
type ItemError struct {
	Index int   // position in the submitted batch
	Item  any   // the submitted record or key
	Err   error // *Error with CodeDuplicateKey or CodeItemOperation
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// BatchError is returned by write operations when at least one item failed.
// The items in Succeeded were committed regardless.
type BatchError struct {
	Store     string
	Action    Action
	Failed    []ItemError
	Succeeded []ItemResult
}

func (e *BatchError) Error() string {
	total := len(e.Failed) + len(e.Succeeded)
	if len(e.Failed) == 1 {
		return fmt.Sprintf("%s on %q: %d of %d items failed: %v", e.Action, e.Store, len(e.Failed), total, e.Failed[0].Err)
	}
	return fmt.Sprintf("%s on %q: %d of %d items failed", e.Action, e.Store, len(e.Failed), total)
}

// Unwrap exposes the item errors to errors.Is / errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}
