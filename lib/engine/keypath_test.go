package engine

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestKeyPathEvaluate(t *testing.T) {
	rec := Record{
		"id":   float64(7),
		"name": "pen",
		"address": map[string]any{
			"city": "Ulm",
		},
	}

	tests := []struct {
		name   string
		path   KeyPath
		want   any
		wantOK bool
	}{
		{"simple", Path("id"), float64(7), true},
		{"nested", Path("address.city"), "Ulm", true},
		{"missing", Path("price"), nil, false},
		{"missing nested", Path("address.zip"), nil, false},
		{"through scalar", Path("name.first"), nil, false},
		{"compound", Path("name", "id"), []any{"pen", float64(7)}, true},
		{"compound missing", Path("name", "price"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.path.Evaluate(rec)
			if ok != tt.wantOK {
				t.Fatalf("got ok=%v, want %v", ok, tt.wantOK)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestKeyPathInject(t *testing.T) {
	rec := Record{"name": "pen"}

	if err := Path("meta.id").Inject(rec, float64(3)); err != nil {
		t.Fatalf("Inject failed: %v", err)
	}
	got, ok := Path("meta.id").Evaluate(rec)
	if !ok || got != float64(3) {
		t.Errorf("Expected injected key 3, got %v (ok=%v)", got, ok)
	}

	if err := Path("name.id").Inject(rec, 1); !errors.Is(err, ErrData) {
		t.Errorf("Expected ErrData when injecting through a scalar, got %v", err)
	}
	if err := Path("a", "b").Inject(rec, 1); !errors.Is(err, ErrData) {
		t.Errorf("Expected ErrData for compound key path, got %v", err)
	}
}

func TestKeyPathValidate(t *testing.T) {
	for _, p := range []KeyPath{nil, Path(""), Path("a..b"), Path("a", "")} {
		if err := p.Validate(); !errors.Is(err, ErrData) {
			t.Errorf("Expected ErrData for %q, got %v", p.String(), err)
		}
	}
	if err := Path("a.b", "c").Validate(); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestKeyPathUnmarshal(t *testing.T) {
	var fromJSON struct {
		A KeyPath `json:"a"`
		B KeyPath `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"user.id","b":["x","y"]}`), &fromJSON); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fromJSON.A.String() != "user.id" || fromJSON.B.String() != "x,y" {
		t.Errorf("Unexpected key paths from json: %v %v", fromJSON.A, fromJSON.B)
	}

	var fromYAML struct {
		A KeyPath `yaml:"a"`
		B KeyPath `yaml:"b"`
	}
	if err := yaml.Unmarshal([]byte("a: id\nb: [x, y]\n"), &fromYAML); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if fromYAML.A.String() != "id" || fromYAML.B.String() != "x,y" {
		t.Errorf("Unexpected key paths from yaml: %v %v", fromYAML.A, fromYAML.B)
	}

	if err := json.Unmarshal([]byte(`{"a":1}`), &fromJSON); err == nil {
		t.Errorf("Expected error for a numeric key path")
	}
}
