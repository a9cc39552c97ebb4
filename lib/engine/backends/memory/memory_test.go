package memory

import (
	"testing"

	"github.com/ValentinKolb/ibs/lib/engine"
	enginetesting "github.com/ValentinKolb/ibs/lib/engine/testing"
)

func factory(string) (engine.Engine, error) {
	return New(nil), nil
}

func Test(t *testing.T) {
	enginetesting.RunEngineTests(t, "Memory", factory)
}

func Benchmark(b *testing.B) {
	enginetesting.RunEngineBenchmarks(b, "Memory", factory)
}

func TestSnapshotIsolation(t *testing.T) {
	backend := NewBackend(nil)
	defer backend.Close()

	w, _ := backend.Begin(true)
	bucket, _ := w.Bucket("a")
	_ = bucket.Put([]byte("k"), []byte("v1"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Unexpected error on commit: %v", err)
	}

	r, _ := backend.Begin(false)
	defer r.Rollback()

	w, _ = backend.Begin(true)
	bucket, _ = w.Bucket("a")
	_ = bucket.Put([]byte("k"), []byte("v2"))
	_ = bucket.Put([]byte("k2"), []byte("new"))
	if err := w.Commit(); err != nil {
		t.Fatalf("Unexpected error on commit: %v", err)
	}

	rb, _ := r.Bucket("a")
	v, _ := rb.Get([]byte("k"))
	if string(v) != "v1" {
		t.Errorf("Expected snapshot value v1, got %s", v)
	}
	if v, _ := rb.Get([]byte("k2")); v != nil {
		t.Errorf("Expected key committed after the snapshot to be invisible, got %s", v)
	}
}

func TestRollbackDiscards(t *testing.T) {
	backend := NewBackend(&Options{Degree: 4})
	defer backend.Close()

	w, _ := backend.Begin(true)
	bucket, _ := w.Bucket("a", "b")
	for i := 0; i < 100; i++ {
		_ = bucket.Put([]byte{byte(i)}, []byte{byte(i)})
	}
	_ = w.Rollback()

	r, _ := backend.Begin(false)
	defer r.Rollback()
	rb, _ := r.Bucket("a", "b")
	if k, _, _ := rb.Seek(nil); k != nil {
		t.Errorf("Expected rolled back bucket to be empty, found key %v", k)
	}
}
