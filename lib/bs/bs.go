package bs

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/ibs/lib/common"
	"github.com/lni/dragonboat/v4/logger"
)

var plog = logger.GetLogger(common.LoggerStorage)

// Storage is a flat string key-value storage.
//
// Thread-safety: all implementations are safe for concurrent use.
type Storage interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (value string, ok bool, err error)

	// Set stores value under key, replacing any previous value. An empty
	// key is rejected with ErrEmptyKey.
	Set(key, value string) (err error)

	// Remove deletes key. A missing key is not an error.
	Remove(key string) (err error)

	// Clear deletes all keys.
	Clear() (err error)

	// Key returns the i-th key in ascending byte order.
	Key(i int) (key string, ok bool, err error)

	// Len returns the number of keys.
	Len() (n int, err error)

	// Close releases the storage. Session data survives until the process exits.
	Close() (err error)
}

// Kind selects a storage implementation
type Kind string

const (
	KindSession Kind = "session" // process memory, shared by namespace
	KindLocal   Kind = "local"   // bbolt file, one bucket per namespace
)

// DefaultNamespace is used if Config.Namespace is empty
const DefaultNamespace = "default"

var (
	// ErrConfig is returned by New for an invalid Config
	ErrConfig = errors.New("invalid storage config")
	// ErrEmptyKey is returned by Set for an empty key
	ErrEmptyKey = errors.New("empty storage key")
)

// Config configures a storage
type Config struct {
	Kind      Kind   `json:"kind" yaml:"kind"`
	Path      string `json:"path" yaml:"path"` // bbolt file (local only)
	Namespace string `json:"namespace" yaml:"namespace"`
}

// New creates the storage described by cfg.
func New(cfg Config) (Storage, error) {
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	switch cfg.Kind {
	case KindSession:
		return newSession(ns), nil
	case KindLocal:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: local storage needs a path", ErrConfig)
		}
		return newLocal(cfg.Path, ns)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrConfig, cfg.Kind)
	}
}

// --------------------------------------------------------------------------
// JSON helpers
// --------------------------------------------------------------------------

// SetJSON stores v as JSON under key.
func SetJSON(s Storage, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Set(key, string(data))
}

// GetJSON decodes the JSON value stored under key into v. It reports false
// (and leaves v untouched) if the key does not exist.
func GetJSON(s Storage, key string, v any) (bool, error) {
	value, ok, err := s.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}
