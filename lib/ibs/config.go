package ibs

import (
	"fmt"
	"sort"

	"github.com/ValentinKolb/ibs/lib/engine"
)

// DefaultVersion is the version a database is created with if the
// descriptor does not name one.
const DefaultVersion uint64 = 1

// Descriptor declares a database: its name, the version it is created with
// and the stores it must contain. A descriptor is immutable once passed to New.
type Descriptor struct {
	Name    string                 `json:"name" yaml:"name"`
	Version uint64                 `json:"version" yaml:"version"`
	Stores  map[string]StoreConfig `json:"stores" yaml:"stores"`
}

// StoreConfig declares an object store
type StoreConfig struct {
	// KeyPath is the dotted path of the primary key inside a record.
	KeyPath string `json:"keyPath" yaml:"keyPath"`
	// AutoIncrement generates missing primary keys. nil means true.
	AutoIncrement *bool `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	// Indexes are created in declaration order.
	Indexes []IndexConfig `json:"indexes,omitempty" yaml:"indexes,omitempty"`
}

// IndexConfig declares a secondary index
type IndexConfig struct {
	Name       string         `json:"name" yaml:"name"`
	KeyPath    engine.KeyPath `json:"keyPath" yaml:"keyPath"`
	Unique     bool           `json:"unique,omitempty" yaml:"unique,omitempty"`
	MultiEntry bool           `json:"multiEntry,omitempty" yaml:"multiEntry,omitempty"`
}

// Bool returns a pointer to b (for StoreConfig.AutoIncrement)
func Bool(b bool) *bool {
	return &b
}

func (c StoreConfig) autoIncrement() bool {
	return c.AutoIncrement == nil || *c.AutoIncrement
}

func (c StoreConfig) declaresIndex(name string) bool {
	for _, idx := range c.Indexes {
		if idx.Name == name {
			return true
		}
	}
	return false
}

func (c StoreConfig) storeOptions() engine.StoreOptions {
	return engine.StoreOptions{
		KeyPath:       engine.Path(c.KeyPath),
		AutoIncrement: c.autoIncrement(),
	}
}

func (c IndexConfig) indexOptions() engine.IndexOptions {
	return engine.IndexOptions{Unique: c.Unique, MultiEntry: c.MultiEntry}
}

// version returns the configured version (DefaultVersion if unset)
func (d Descriptor) version() uint64 {
	if d.Version == 0 {
		return DefaultVersion
	}
	return d.Version
}

// storeNames returns the declared store names in sorted order
func (d Descriptor) storeNames() []string {
	names := make([]string, 0, len(d.Stores))
	for name := range d.Stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks the descriptor for errors the engine would only report
// during the upgrade.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return newError(CodeInvalidDescriptor, nil, "database name is empty")
	}
	for _, name := range d.storeNames() {
		cfg := d.Stores[name]
		if name == "" {
			return newError(CodeInvalidDescriptor, nil, "store name is empty")
		}
		if err := engine.Path(cfg.KeyPath).Validate(); err != nil {
			return newError(CodeInvalidDescriptor, err, "store %q", name)
		}
		seen := make(map[string]bool, len(cfg.Indexes))
		for _, idx := range cfg.Indexes {
			if idx.Name == "" {
				return newError(CodeInvalidDescriptor, nil, "store %q: index name is empty", name)
			}
			if seen[idx.Name] {
				return newError(CodeInvalidDescriptor, nil, "store %q: index %q declared twice", name, idx.Name)
			}
			seen[idx.Name] = true
			if err := idx.KeyPath.Validate(); err != nil {
				return newError(CodeInvalidDescriptor, err, "store %q, index %q", name, idx.Name)
			}
			if idx.MultiEntry && idx.KeyPath.Compound() {
				return newError(CodeInvalidDescriptor, nil, "store %q, index %q: multiEntry requires a single key path", name, idx.Name)
			}
		}
	}
	return nil
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s@%d (%d stores)", d.Name, d.version(), len(d.Stores))
}
