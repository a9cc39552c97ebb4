package kv

import (
	"fmt"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// schemaImpl implements engine.Schema inside an upgrade transaction
type schemaImpl struct {
	meta metaView
}

func (s *schemaImpl) StoreNames() ([]string, error) {
	return s.meta.storeNames()
}

func (s *schemaImpl) HasStore(name string) (bool, error) {
	_, ok, err := s.meta.storeInfo(name)
	return ok, err
}

func (s *schemaImpl) CreateStore(name string, opts engine.StoreOptions) (engine.SchemaStore, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty store name", engine.ErrData)
	}
	if err := opts.KeyPath.Validate(); err != nil {
		return nil, fmt.Errorf("store %q: %w", name, err)
	}
	if opts.AutoIncrement && opts.KeyPath.Compound() {
		return nil, fmt.Errorf("%w: store %q: autoIncrement requires a single key path", engine.ErrData, name)
	}

	_, exists, err := s.meta.storeInfo(name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: store %q already exists", engine.ErrConstraint, name)
	}

	info := engine.StoreInfo{Name: name, StoreOptions: opts, Indexes: []engine.IndexInfo{}}
	if err := s.meta.putStoreInfo(info); err != nil {
		return nil, err
	}
	plog.Debugf("created store %q in %q (keyPath=%s, autoIncrement=%t)", name, s.meta.db, opts.KeyPath, opts.AutoIncrement)
	return &schemaStore{meta: s.meta, info: info}, nil
}

func (s *schemaImpl) Store(name string) (engine.SchemaStore, error) {
	info, ok, err := s.meta.storeInfo(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: store %q", engine.ErrNotFound, name)
	}
	return &schemaStore{meta: s.meta, info: info}, nil
}

// schemaStore implements engine.SchemaStore
type schemaStore struct {
	meta metaView
	info engine.StoreInfo
}

func (s *schemaStore) Info() engine.StoreInfo {
	return s.info
}

func (s *schemaStore) IndexNames() []string {
	names := make([]string, len(s.info.Indexes))
	for i, idx := range s.info.Indexes {
		names[i] = idx.Name
	}
	return names
}

func (s *schemaStore) HasIndex(name string) bool {
	_, ok := s.info.Index(name)
	return ok
}

func (s *schemaStore) CreateIndex(name string, keyPath engine.KeyPath, opts engine.IndexOptions) error {
	if name == "" {
		return fmt.Errorf("%w: empty index name", engine.ErrData)
	}
	if err := keyPath.Validate(); err != nil {
		return fmt.Errorf("index %q: %w", name, err)
	}
	if opts.MultiEntry && keyPath.Compound() {
		return fmt.Errorf("%w: index %q: multiEntry requires a single key path", engine.ErrData, name)
	}

	// other handles to the same store may have added indexes meanwhile
	info, ok, err := s.meta.storeInfo(s.info.Name)
	if err != nil {
		return err
	}
	if ok {
		s.info = info
	}
	if s.HasIndex(name) {
		return fmt.Errorf("%w: index %q already exists on store %q", engine.ErrConstraint, name, s.info.Name)
	}

	idx := engine.IndexInfo{Name: name, KeyPath: keyPath, IndexOptions: opts}

	// fill the index from the records already in the store
	data, err := s.meta.tx.Bucket(s.meta.db, dataBucket, s.info.Name)
	if err != nil {
		return err
	}
	ib, err := s.meta.tx.Bucket(s.meta.db, indexBucket, s.info.Name, name)
	if err != nil {
		return err
	}
	err = scan(data, nil, func(pk, raw []byte) (bool, error) {
		rec, err := engine.DecodeRecord(raw)
		if err != nil {
			return false, err
		}
		for _, ik := range indexKeys(idx, rec) {
			if idx.Unique {
				if owner, err := uniqueOwner(ib, ik); err != nil {
					return false, err
				} else if owner != nil {
					return false, fmt.Errorf("%w: existing records violate unique index %q", engine.ErrConstraint, name)
				}
			}
			if err := ib.Put(indexEntry(ik, pk), pk); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	s.info.Indexes = append(s.info.Indexes, idx)
	if err := s.meta.putStoreInfo(s.info); err != nil {
		return err
	}
	plog.Debugf("created index %q on %q.%q (keyPath=%s, unique=%t, multiEntry=%t)", name, s.meta.db, s.info.Name, keyPath, opts.Unique, opts.MultiEntry)
	return nil
}
