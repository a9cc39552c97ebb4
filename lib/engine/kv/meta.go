package kv

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// --------------------------------------------------------------------------
// Bucket layout
// --------------------------------------------------------------------------

//	[registryBucket]                 database name -> version
//	[db, metaBucket]                 "store:<name>" -> StoreInfo (json)
//	                                 "gen:<name>"   -> key generator (uint64)
//	[db, dataBucket, store]          encoded primary key -> record (json)
//	[db, indexBucket, store, index]  encoded index key ++ encoded primary key -> encoded primary key
const (
	registryBucket = "__ibs_databases__"
	metaBucket     = "meta"
	dataBucket     = "data"
	indexBucket    = "index"

	storePrefix = "store:"
	genPrefix   = "gen:"
)

func encodeUint(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeUint(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("corrupt integer of length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// readVersion returns the installed version of a database (0 if missing).
func readVersion(tx BackendTx, name string) (uint64, bool, error) {
	reg, err := tx.Bucket(registryBucket)
	if err != nil {
		return 0, false, err
	}
	v, err := reg.Get([]byte(name))
	if err != nil || v == nil {
		return 0, false, err
	}
	version, err := decodeUint(v)
	return version, err == nil, err
}

func writeVersion(tx BackendTx, name string, version uint64) error {
	reg, err := tx.Bucket(registryBucket)
	if err != nil {
		return err
	}
	return reg.Put([]byte(name), encodeUint(version))
}

// listDatabases scans the registry.
func listDatabases(tx BackendTx) ([]engine.DatabaseInfo, error) {
	reg, err := tx.Bucket(registryBucket)
	if err != nil {
		return nil, err
	}
	var out []engine.DatabaseInfo
	err = scan(reg, nil, func(k, v []byte) (bool, error) {
		version, err := decodeUint(v)
		if err != nil {
			return false, err
		}
		out = append(out, engine.DatabaseInfo{Name: string(k), Version: version})
		return true, nil
	})
	return out, err
}

// scan calls fn for every entry whose key starts with prefix, in key order.
func scan(b Bucket, prefix []byte, fn func(k, v []byte) (bool, error)) error {
	pos := prefix
	for {
		k, v, err := b.Seek(pos)
		if err != nil {
			return err
		}
		if k == nil || !bytes.HasPrefix(k, prefix) {
			return nil
		}
		cont, err := fn(k, v)
		if err != nil || !cont {
			return err
		}
		pos = successor(k)
	}
}

// --------------------------------------------------------------------------
// Store metadata
// --------------------------------------------------------------------------

// metaView reads and writes the schema metadata of one database.
type metaView struct {
	tx BackendTx
	db string
}

func (m metaView) bucket() (Bucket, error) {
	return m.tx.Bucket(m.db, metaBucket)
}

func (m metaView) storeNames() ([]string, error) {
	b, err := m.bucket()
	if err != nil {
		return nil, err
	}
	var names []string
	err = scan(b, []byte(storePrefix), func(k, _ []byte) (bool, error) {
		names = append(names, string(k[len(storePrefix):]))
		return true, nil
	})
	sort.Strings(names)
	return names, err
}

func (m metaView) storeInfo(name string) (engine.StoreInfo, bool, error) {
	var info engine.StoreInfo
	b, err := m.bucket()
	if err != nil {
		return info, false, err
	}
	raw, err := b.Get([]byte(storePrefix + name))
	if err != nil || raw == nil {
		return info, false, err
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return info, false, fmt.Errorf("corrupt metadata of store %q: %w", name, err)
	}
	return info, true, nil
}

func (m metaView) putStoreInfo(info engine.StoreInfo) error {
	b, err := m.bucket()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return b.Put([]byte(storePrefix+info.Name), raw)
}

func (m metaView) generator(store string) (uint64, error) {
	b, err := m.bucket()
	if err != nil {
		return 0, err
	}
	raw, err := b.Get([]byte(genPrefix + store))
	if err != nil || raw == nil {
		return 0, err
	}
	return decodeUint(raw)
}

func (m metaView) putGenerator(store string, v uint64) error {
	b, err := m.bucket()
	if err != nil {
		return err
	}
	return b.Put([]byte(genPrefix+store), encodeUint(v))
}
