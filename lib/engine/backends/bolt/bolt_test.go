package bolt

import (
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
	enginetesting "github.com/ValentinKolb/ibs/lib/engine/testing"
)

func factory(dir string) (engine.Engine, error) {
	return New(filepath.Join(dir, "ibs.db"), nil)
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "Bolt", factory)
	enginetesting.RunPersistenceTests(t, "Bolt", factory)
}

func Benchmark(b *testing.B) {
	enginetesting.RunEngineBenchmarks(b, "Bolt", func(dir string) (engine.Engine, error) {
		return New(filepath.Join(dir, "ibs.db"), &Options{NoSync: true})
	})
}

func TestDeleteMissingBucket(t *testing.T) {
	backend, err := NewBackend(filepath.Join(t.TempDir(), "ibs.db"), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer backend.Close()

	tx, _ := backend.Begin(true)
	defer tx.Rollback()
	if err := tx.DeleteBucket("a", "b", "c"); err != nil {
		t.Errorf("Expected deleting a missing bucket to succeed, got %v", err)
	}
	if err := tx.DeleteBucket("missing"); err != nil {
		t.Errorf("Expected deleting a missing top-level bucket to succeed, got %v", err)
	}
}
