package engine

import (
	"bytes"
	"errors"
	"math"
	"reflect"
	"testing"
)

// TestKeyOrder checks that the encoding order equals the key order
func TestKeyOrder(t *testing.T) {
	ordered := []any{
		math.Inf(-1),
		-100.5,
		-1,
		0,
		0.5,
		1,
		2,
		1e10,
		math.Inf(1),
		"",
		"\x00",
		"\x01",
		"a",
		"a\x00b",
		"ab",
		"b",
		[]byte{},
		[]byte{0x00},
		[]byte{0xff},
		[]any{},
		[]any{1},
		[]any{1, "a"},
		[]any{2},
		[]any{"a"},
		[]any{[]any{}},
	}

	for i := 0; i < len(ordered)-1; i++ {
		a, err := EncodeKey(ordered[i])
		if err != nil {
			t.Fatalf("EncodeKey(%v) failed: %v", ordered[i], err)
		}
		b, err := EncodeKey(ordered[i+1])
		if err != nil {
			t.Fatalf("EncodeKey(%v) failed: %v", ordered[i+1], err)
		}
		if bytes.Compare(a, b) >= 0 {
			t.Errorf("Expected %#v < %#v in encoded order", ordered[i], ordered[i+1])
		}
	}
}

// TestKeyRoundTrip tests that decoding yields the normalized key
func TestKeyRoundTrip(t *testing.T) {
	keys := []any{
		42,
		-3.25,
		"hello\x00world",
		[]byte{0x00, 0x01, 0x02},
		[]any{1, "x", []any{2.5, []byte("y")}},
	}

	for _, key := range keys {
		enc, err := EncodeKey(key)
		if err != nil {
			t.Fatalf("EncodeKey(%v) failed: %v", key, err)
		}
		got, err := DecodeKey(enc)
		if err != nil {
			t.Fatalf("DecodeKey(%v) failed: %v", key, err)
		}
		want, _ := NormalizeKey(key)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Expected %#v, got %#v", want, got)
		}
	}
}

// TestInvalidKeys tests that unsupported values are rejected with ErrData
func TestInvalidKeys(t *testing.T) {
	invalid := []any{nil, true, math.NaN(), map[string]any{}, []any{1, nil}}

	for _, key := range invalid {
		if _, err := EncodeKey(key); !errors.Is(err, ErrData) {
			t.Errorf("Expected ErrData for %#v, got %v", key, err)
		}
	}
}

// TestNegativeZero tests that -0 and 0 are the same key
func TestNegativeZero(t *testing.T) {
	c, err := CompareKeys(math.Copysign(0, -1), 0)
	if err != nil {
		t.Fatal(err)
	}
	if c != 0 {
		t.Errorf("Expected -0 == 0, got compare=%d", c)
	}
}
