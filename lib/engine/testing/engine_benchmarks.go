package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// RunEngineBenchmarks runs all benchmarks for an engine.Engine implementation
func RunEngineBenchmarks(b *testing.B, name string, factory EngineFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Add", func(b *testing.B) {
			benchmarkAdd(b, benchEngine(b, factory))
		})

		b.Run("AddBatch", func(b *testing.B) {
			benchmarkAddBatch(b, benchEngine(b, factory))
		})

		b.Run("Get", func(b *testing.B) {
			benchmarkGet(b, benchEngine(b, factory))
		})

		b.Run("IndexScan", func(b *testing.B) {
			benchmarkIndexScan(b, benchEngine(b, factory))
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func benchEngine(b *testing.B, factory EngineFactory) engine.Conn {
	eng, err := factory(b.TempDir())
	if err != nil {
		b.Fatalf("Unexpected error creating engine: %v", err)
	}
	conn, err := eng.Open(ctx, "bench", 1, itemsSchema)
	if err != nil {
		b.Fatalf("Unexpected error opening: %v", err)
	}
	b.Cleanup(func() {
		_ = conn.Close()
		_ = eng.Close()
	})
	return conn
}

func benchWrite(b *testing.B, conn engine.Conn, fn func(store engine.ObjectStore) error) {
	tx, err := conn.Begin(ctx, engine.ReadWrite, "items")
	if err != nil {
		b.Fatal(err)
	}
	store, err := tx.Store("items")
	if err != nil {
		b.Fatal(err)
	}
	if err := fn(store); err != nil {
		_ = tx.Abort()
		b.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		b.Fatal(err)
	}
}

func fill(b *testing.B, conn engine.Conn, n int) {
	benchWrite(b, conn, func(store engine.ObjectStore) error {
		for i := 0; i < n; i++ {
			if _, err := store.Add(engine.Record{"name": fmt.Sprintf("item-%d", i%100), "n": i}); err != nil {
				return err
			}
		}
		return nil
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// one transaction per record
func benchmarkAdd(b *testing.B, conn engine.Conn) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchWrite(b, conn, func(store engine.ObjectStore) error {
			_, err := store.Add(engine.Record{"name": "bench", "n": i})
			return err
		})
	}
}

// 100 records per transaction
func benchmarkAddBatch(b *testing.B, conn engine.Conn) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		benchWrite(b, conn, func(store engine.ObjectStore) error {
			for j := 0; j < 100; j++ {
				if _, err := store.Add(engine.Record{"name": "bench", "n": j}); err != nil {
					return err
				}
			}
			return nil
		})
	}
}

func benchmarkGet(b *testing.B, conn engine.Conn) {
	fill(b, conn, 1000)

	tx, err := conn.Begin(ctx, engine.ReadOnly, "items")
	if err != nil {
		b.Fatal(err)
	}
	defer tx.Commit()
	store, _ := tx.Store("items")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, found, err := store.Get(i%1000 + 1); err != nil || !found {
			b.Fatalf("Expected record %d (err=%v)", i%1000+1, err)
		}
	}
}

func benchmarkIndexScan(b *testing.B, conn engine.Conn) {
	fill(b, conn, 1000)

	tx, err := conn.Begin(ctx, engine.ReadOnly, "items")
	if err != nil {
		b.Fatal(err)
	}
	defer tx.Commit()
	store, _ := tx.Store("items")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, err := store.OpenCursor("name", engine.Only(fmt.Sprintf("item-%d", i%100)))
		if err != nil {
			b.Fatal(err)
		}
		n := 0
		for c.Next() {
			n++
		}
		c.Close()
		if n != 10 {
			b.Fatalf("Expected 10 records per name, got %d", n)
		}
	}
}
