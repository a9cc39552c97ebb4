// Package cmd implements the command-line interface of iBS. It provides a
// hierarchical command structure to work with schema-versioned databases and
// browser-style storages from the shell.
//
// The package is organized into several subpackages:
//
//   - db: Commands for database operations (open, add, get, query, etc.)
//   - storage: Commands for local and session storages (get, set, keys, etc.)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable IBS_<FLAG>
// (e.g. IBS_BACKEND=bolt), including from .env and .env.local files.
//
// See ibs -help for a list of all commands.
package cmd
