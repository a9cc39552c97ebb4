package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// KeyPath locates a key inside a record. A single element is a dotted path
// ("id", "address.city"); several elements form a compound key whose value
// is the array of the individual values.
type KeyPath []string

// Path builds a KeyPath from one or more dotted paths.
func Path(paths ...string) KeyPath {
	return KeyPath(paths)
}

// Compound reports whether the key path yields an array key.
func (p KeyPath) Compound() bool {
	return len(p) > 1
}

// Validate checks that the key path is usable.
func (p KeyPath) Validate() error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty key path", ErrData)
	}
	for _, s := range p {
		if s == "" {
			return fmt.Errorf("%w: empty key path segment in %q", ErrData, p.String())
		}
		for _, part := range strings.Split(s, ".") {
			if part == "" {
				return fmt.Errorf("%w: malformed key path %q", ErrData, s)
			}
		}
	}
	return nil
}

// String returns the key path in its comma-separated form.
func (p KeyPath) String() string {
	return strings.Join(p, ",")
}

// Evaluate extracts the raw value addressed by the key path. The boolean is
// false if any addressed field is missing.
func (p KeyPath) Evaluate(rec Record) (any, bool) {
	if len(p) == 1 {
		return lookup(rec, p[0])
	}
	out := make([]any, len(p))
	for i, s := range p {
		v, ok := lookup(rec, s)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// Inject writes key at the (single) key path, creating intermediate objects.
func (p KeyPath) Inject(rec Record, key any) error {
	if len(p) != 1 {
		return fmt.Errorf("%w: cannot inject a key into compound key path %q", ErrData, p.String())
	}
	parts := strings.Split(p[0], ".")
	cur := map[string]any(rec)
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part]
		if !ok {
			m := map[string]any{}
			cur[part] = m
			cur = m
			continue
		}
		m, ok := asMap(next)
		if !ok {
			return fmt.Errorf("%w: %q is not an object", ErrData, part)
		}
		cur = m
	}
	cur[parts[len(parts)-1]] = key
	return nil
}

// UnmarshalJSON accepts a single path ("id") or a list of paths (["a", "b"]).
func (p *KeyPath) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*p = KeyPath{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("key path must be a string or a list of strings: %w", err)
	}
	*p = list
	return nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (p *KeyPath) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*p = KeyPath{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return fmt.Errorf("key path must be a string or a list of strings: %w", err)
	}
	*p = list
	return nil
}

func lookup(rec Record, path string) (any, bool) {
	var cur any = map[string]any(rec)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Record:
		return m, true
	default:
		return nil, false
	}
}
