package engine

import (
	"bytes"
	"fmt"
)

// KeyRange bounds a cursor. A nil Lower or Upper means unbounded on that side.
type KeyRange struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool
}

// Only matches exactly one key.
func Only(key any) *KeyRange {
	return &KeyRange{Lower: key, Upper: key}
}

// LowerBound matches all keys >= key (> key if open).
func LowerBound(key any, open bool) *KeyRange {
	return &KeyRange{Lower: key, LowerOpen: open}
}

// UpperBound matches all keys <= key (< key if open).
func UpperBound(key any, open bool) *KeyRange {
	return &KeyRange{Upper: key, UpperOpen: open}
}

// Bound matches keys between lower and upper.
func Bound(lower, upper any, lowerOpen, upperOpen bool) (*KeyRange, error) {
	r := &KeyRange{Lower: lower, Upper: upper, LowerOpen: lowerOpen, UpperOpen: upperOpen}
	if _, err := r.Encode(); err != nil {
		return nil, err
	}
	return r, nil
}

// Encode converts the range bounds to encoded keys.
func (r *KeyRange) Encode() (EncodedRange, error) {
	var out EncodedRange
	if r == nil {
		return out, nil
	}
	var err error
	if r.Lower != nil {
		if out.Lower, err = EncodeKey(r.Lower); err != nil {
			return out, err
		}
		out.LowerOpen = r.LowerOpen
	}
	if r.Upper != nil {
		if out.Upper, err = EncodeKey(r.Upper); err != nil {
			return out, err
		}
		out.UpperOpen = r.UpperOpen
	}
	if out.Lower != nil && out.Upper != nil {
		c := bytes.Compare(out.Lower, out.Upper)
		if c > 0 || (c == 0 && (out.LowerOpen || out.UpperOpen)) {
			return out, fmt.Errorf("%w: empty key range", ErrData)
		}
	}
	return out, nil
}

// EncodedRange is a KeyRange over encoded keys. Nil bounds are unbounded.
type EncodedRange struct {
	Lower     []byte
	Upper     []byte
	LowerOpen bool
	UpperOpen bool
}

// AboveLower reports whether k satisfies the lower bound.
func (r EncodedRange) AboveLower(k []byte) bool {
	if r.Lower == nil {
		return true
	}
	c := bytes.Compare(k, r.Lower)
	return c > 0 || (c == 0 && !r.LowerOpen)
}

// BeyondUpper reports whether k lies past the upper bound.
func (r EncodedRange) BeyondUpper(k []byte) bool {
	if r.Upper == nil {
		return false
	}
	c := bytes.Compare(k, r.Upper)
	return c > 0 || (c == 0 && r.UpperOpen)
}
