package leveldb

import (
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
	enginetesting "github.com/ValentinKolb/ibs/lib/engine/testing"
)

func factory(dir string) (engine.Engine, error) {
	return New(dir, nil)
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "LevelDB", factory)
	enginetesting.RunPersistenceTests(t, "LevelDB", factory)
}

func Benchmark(b *testing.B) {
	enginetesting.RunEngineBenchmarks(b, "LevelDB", factory)
}

func TestBucketPrefixIsolation(t *testing.T) {
	backend, err := NewBackend(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer backend.Close()

	tx, _ := backend.Begin(true)
	parent, _ := tx.Bucket("a")
	child, _ := tx.Bucket("a", "b")
	_ = parent.Put([]byte("x"), []byte("parent"))
	_ = child.Put([]byte("x"), []byte("child"))
	if err := tx.DeleteBucket("a", "b"); err != nil {
		t.Fatalf("Unexpected error deleting bucket: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Unexpected error on commit: %v", err)
	}

	r, _ := backend.Begin(false)
	defer r.Rollback()
	parent, _ = r.Bucket("a")
	child, _ = r.Bucket("a", "b")
	if v, _ := parent.Get([]byte("x")); string(v) != "parent" {
		t.Errorf("Expected parent bucket to be untouched, got %q", v)
	}
	if k, _, _ := child.Seek(nil); k != nil {
		t.Errorf("Expected deleted bucket to be empty, found %q", k)
	}
}
