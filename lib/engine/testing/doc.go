// Package testing provides standardised tests and benchmarks for
// implementations of the engine.Engine interface.
//
// The package contains:
//   - RunEngineTests: a conformance suite for the engine contract (versioning,
//     upgrades, transactions, key generators, indexes, cursors)
//   - RunPersistenceTests: checks that data survives reopening an engine
//   - RunEngineBenchmarks: throughput of common operations
//
// Example usage:
//
//	factory := func(dir string) (engine.Engine, error) {
//		return bolt.New(filepath.Join(dir, "test.db"), nil)
//	}
//
//	enginetesting.RunEngineTests(t, "Bolt", factory)
//	enginetesting.RunPersistenceTests(t, "Bolt", factory)
package testing
