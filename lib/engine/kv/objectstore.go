package kv

import (
	"bytes"
	"fmt"
	"math"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// maxGenerator is the largest generated key (2^53, the largest integer a
// float64 key represents exactly).
const maxGenerator = 1 << 53

// objectStore implements engine.ObjectStore inside a transaction
type objectStore struct {
	tx   *txImpl
	info engine.StoreInfo
}

func (s *objectStore) Info() engine.StoreInfo {
	return s.info
}

func (s *objectStore) data() (Bucket, error) {
	return s.tx.btx.Bucket(s.tx.meta.db, dataBucket, s.info.Name)
}

func (s *objectStore) index(name string) (Bucket, error) {
	return s.tx.btx.Bucket(s.tx.meta.db, indexBucket, s.info.Name, name)
}

func (s *objectStore) usable(write bool) error {
	if s.tx.done {
		return fmt.Errorf("%w: transaction already finished", engine.ErrInvalidState)
	}
	if write && s.tx.mode != engine.ReadWrite {
		return fmt.Errorf("%w: cannot write to store %q", engine.ErrReadOnly, s.info.Name)
	}
	return nil
}

// --------------------------------------------------------------------------
// Read Operations
// --------------------------------------------------------------------------

func (s *objectStore) Get(key any) (engine.Record, bool, error) {
	if err := s.usable(false); err != nil {
		return nil, false, err
	}
	pk, err := engine.EncodeKey(key)
	if err != nil {
		return nil, false, err
	}
	data, err := s.data()
	if err != nil {
		return nil, false, err
	}
	raw, err := data.Get(pk)
	if err != nil || raw == nil {
		return nil, false, err
	}
	rec, err := engine.DecodeRecord(raw)
	return rec, err == nil, err
}

func (s *objectStore) GetAll() ([]engine.Record, error) {
	c, err := s.OpenCursor("", nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	recs := []engine.Record{}
	for c.Next() {
		recs = append(recs, c.Value())
	}
	return recs, c.Err()
}

func (s *objectStore) Count() (int, error) {
	if err := s.usable(false); err != nil {
		return 0, err
	}
	data, err := s.data()
	if err != nil {
		return 0, err
	}
	n := 0
	err = scan(data, nil, func(_, _ []byte) (bool, error) {
		n++
		return true, nil
	})
	return n, err
}

func (s *objectStore) OpenCursor(index string, r *engine.KeyRange) (engine.Cursor, error) {
	if err := s.usable(false); err != nil {
		return nil, err
	}
	rng, err := r.Encode()
	if err != nil {
		return nil, err
	}

	c := &cursor{store: s, rng: rng, pos: rng.Lower}
	if c.data, err = s.data(); err != nil {
		return nil, err
	}
	if index == "" {
		c.bucket = c.data
		return c, nil
	}

	if _, ok := s.info.Index(index); !ok {
		return nil, fmt.Errorf("%w: index %q on store %q", engine.ErrNotFound, index, s.info.Name)
	}
	if c.bucket, err = s.index(index); err != nil {
		return nil, err
	}
	c.isIndex = true
	return c, nil
}

// --------------------------------------------------------------------------
// Write Operations
// --------------------------------------------------------------------------

func (s *objectStore) Add(rec engine.Record) (any, error) {
	return s.write(rec, false)
}

func (s *objectStore) Put(rec engine.Record) (any, error) {
	return s.write(rec, true)
}

// write stores a record. All checks happen before the first modification,
// so a failed request leaves the transaction untouched.
func (s *objectStore) write(in engine.Record, overwrite bool) (any, error) {
	if err := s.usable(true); err != nil {
		return nil, err
	}
	rec, err := engine.CloneRecord(in)
	if err != nil {
		return nil, err
	}

	// resolve the primary key
	gen, err := s.tx.meta.generator(s.info.Name)
	if err != nil {
		return nil, err
	}
	newGen := gen

	raw, found := s.info.KeyPath.Evaluate(rec)
	var key any
	switch {
	case found:
		if key, err = engine.NormalizeKey(raw); err != nil {
			return nil, fmt.Errorf("primary key of store %q: %w", s.info.Name, err)
		}
		if f, isNum := key.(float64); isNum && s.info.AutoIncrement && f >= float64(gen) {
			newGen = uint64(math.Min(math.Floor(f), maxGenerator))
		}
	case s.info.AutoIncrement:
		if gen >= maxGenerator {
			return nil, fmt.Errorf("%w: key generator of store %q is exhausted", engine.ErrConstraint, s.info.Name)
		}
		newGen = gen + 1
		key = float64(newGen)
		if err := s.info.KeyPath.Inject(rec, key); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: record has no primary key at %q", engine.ErrData, s.info.KeyPath)
	}

	pk, err := engine.EncodeKey(key)
	if err != nil {
		return nil, err
	}
	value, err := engine.EncodeRecord(rec)
	if err != nil {
		return nil, err
	}

	data, err := s.data()
	if err != nil {
		return nil, err
	}
	oldRaw, err := data.Get(pk)
	if err != nil {
		return nil, err
	}
	if oldRaw != nil && !overwrite {
		return nil, fmt.Errorf("%w: key %v already exists in store %q", engine.ErrConstraint, key, s.info.Name)
	}

	// unique index constraints
	newKeys := make(map[string][][]byte, len(s.info.Indexes))
	for _, idx := range s.info.Indexes {
		keys := indexKeys(idx, rec)
		newKeys[idx.Name] = keys
		if !idx.Unique {
			continue
		}
		ib, err := s.index(idx.Name)
		if err != nil {
			return nil, err
		}
		for _, ik := range keys {
			owner, err := uniqueOwner(ib, ik)
			if err != nil {
				return nil, err
			}
			if owner != nil && !bytes.Equal(owner, pk) {
				return nil, fmt.Errorf("%w: unique index %q of store %q already contains the key", engine.ErrConstraint, idx.Name, s.info.Name)
			}
		}
	}

	// apply
	if oldRaw != nil {
		if err := s.unindex(pk, oldRaw); err != nil {
			return nil, err
		}
	}
	if err := data.Put(pk, value); err != nil {
		return nil, err
	}
	for _, idx := range s.info.Indexes {
		ib, err := s.index(idx.Name)
		if err != nil {
			return nil, err
		}
		for _, ik := range newKeys[idx.Name] {
			if err := ib.Put(indexEntry(ik, pk), pk); err != nil {
				return nil, err
			}
		}
	}
	if newGen != gen {
		if err := s.tx.meta.putGenerator(s.info.Name, newGen); err != nil {
			return nil, err
		}
	}
	return key, nil
}

func (s *objectStore) Delete(key any) error {
	if err := s.usable(true); err != nil {
		return err
	}
	pk, err := engine.EncodeKey(key)
	if err != nil {
		return err
	}
	data, err := s.data()
	if err != nil {
		return err
	}
	oldRaw, err := data.Get(pk)
	if err != nil || oldRaw == nil {
		return err
	}
	if err := s.unindex(pk, oldRaw); err != nil {
		return err
	}
	return data.Delete(pk)
}

func (s *objectStore) Clear() error {
	if err := s.usable(true); err != nil {
		return err
	}
	db := s.tx.meta.db
	if err := s.tx.btx.DeleteBucket(db, dataBucket, s.info.Name); err != nil {
		return err
	}
	for _, idx := range s.info.Indexes {
		if err := s.tx.btx.DeleteBucket(db, indexBucket, s.info.Name, idx.Name); err != nil {
			return err
		}
	}
	return nil
}

// unindex removes the index entries of a stored record.
func (s *objectStore) unindex(pk, raw []byte) error {
	if len(s.info.Indexes) == 0 {
		return nil
	}
	old, err := engine.DecodeRecord(raw)
	if err != nil {
		return err
	}
	for _, idx := range s.info.Indexes {
		ib, err := s.index(idx.Name)
		if err != nil {
			return err
		}
		for _, ik := range indexKeys(idx, old) {
			if err := ib.Delete(indexEntry(ik, pk)); err != nil {
				return err
			}
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Index helpers
// --------------------------------------------------------------------------

// indexKeys returns the encoded index keys a record contributes to idx.
// Records without a valid key at the key path are not indexed.
func indexKeys(idx engine.IndexInfo, rec engine.Record) [][]byte {
	raw, ok := idx.KeyPath.Evaluate(rec)
	if !ok {
		return nil
	}

	if arr, isArr := raw.([]any); isArr && idx.MultiEntry {
		var out [][]byte
		seen := make(map[string]bool, len(arr))
		for _, e := range arr {
			ik, err := engine.EncodeKey(e)
			if err != nil || seen[string(ik)] {
				continue
			}
			seen[string(ik)] = true
			out = append(out, ik)
		}
		return out
	}

	ik, err := engine.EncodeKey(raw)
	if err != nil {
		return nil
	}
	return [][]byte{ik}
}

// indexEntry builds the index bucket key. Encoded keys are self-delimiting,
// so entries sort by index key first and primary key second.
func indexEntry(ik, pk []byte) []byte {
	out := make([]byte, 0, len(ik)+len(pk))
	out = append(out, ik...)
	return append(out, pk...)
}

// uniqueOwner returns the primary key holding ik in an index, or nil.
func uniqueOwner(ib Bucket, ik []byte) ([]byte, error) {
	k, v, err := ib.Seek(ik)
	if err != nil || k == nil {
		return nil, err
	}
	if len(k) == len(ik)+len(v) && bytes.HasPrefix(k, ik) {
		return v, nil
	}
	return nil, nil
}
