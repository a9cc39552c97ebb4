// Package sqlite implements a persistent kv.Backend in a single sqlite table
// using the pure Go driver modernc.org/sqlite.
package sqlite
