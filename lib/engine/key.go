package engine

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// --------------------------------------------------------------------------
// Key model
// --------------------------------------------------------------------------

// Valid keys are numbers, strings, binary values ([]byte) and arrays of
// valid keys. Keys of different types order as
//
//	number < string < binary < array
//
// and arrays compare element by element (a shorter prefix sorts first).
//
// Keys are stored in an order-preserving byte encoding, so every backend
// only has to compare raw bytes.

// Type tags of the key encoding. tagEnd terminates arrays and must be the
// smallest tag.
const (
	tagEnd    byte = 0x00
	tagNumber byte = 0x10
	tagString byte = 0x20
	tagBinary byte = 0x30
	tagArray  byte = 0x40
)

// NormalizeKey converts a Go value to its canonical key form:
// all numbers become float64, []byte is copied, and slices become []any.
// It returns an ErrData error if v is not a valid key.
func NormalizeKey(v any) (any, error) {
	switch k := v.(type) {
	case float64:
		if math.IsNaN(k) {
			return nil, fmt.Errorf("%w: NaN is not a valid key", ErrData)
		}
		if k == 0 {
			return float64(0), nil // fold -0
		}
		return k, nil
	case float32:
		return NormalizeKey(float64(k))
	case int:
		return float64(k), nil
	case int8:
		return float64(k), nil
	case int16:
		return float64(k), nil
	case int32:
		return float64(k), nil
	case int64:
		return float64(k), nil
	case uint:
		return float64(k), nil
	case uint8:
		return float64(k), nil
	case uint16:
		return float64(k), nil
	case uint32:
		return float64(k), nil
	case uint64:
		return float64(k), nil
	case json.Number:
		f, err := k.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrData, err)
		}
		return NormalizeKey(f)
	case string:
		return k, nil
	case []byte:
		c := make([]byte, len(k))
		copy(c, k)
		return c, nil
	case []any:
		out := make([]any, len(k))
		for i, e := range k {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []string:
		out := make([]any, len(k))
		for i, e := range k {
			out[i] = e
		}
		return out, nil
	case []int:
		out := make([]any, len(k))
		for i, e := range k {
			out[i] = float64(e)
		}
		return out, nil
	case []float64:
		out := make([]any, len(k))
		for i, e := range k {
			n, err := NormalizeKey(e)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a valid key", ErrData, v)
	}
}

// EncodeKey returns the order-preserving encoding of a key.
func EncodeKey(v any) ([]byte, error) {
	k, err := NormalizeKey(v)
	if err != nil {
		return nil, err
	}
	return appendKey(nil, k), nil
}

// appendKey appends the encoding of an already normalized key.
func appendKey(dst []byte, k any) []byte {
	switch v := k.(type) {
	case float64:
		bits := math.Float64bits(v)
		if v >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		dst = append(dst, tagNumber)
		return binary.BigEndian.AppendUint64(dst, bits)
	case string:
		dst = append(dst, tagString)
		return appendEscaped(dst, []byte(v))
	case []byte:
		dst = append(dst, tagBinary)
		return appendEscaped(dst, v)
	case []any:
		dst = append(dst, tagArray)
		for _, e := range v {
			dst = appendKey(dst, e)
		}
		return append(dst, tagEnd)
	default:
		panic(fmt.Sprintf("appendKey: unnormalized key %T", k))
	}
}

// appendEscaped writes b so that 0x00 only appears as terminator:
// 0x00 -> 0x01 0x01, 0x01 -> 0x01 0x02. Byte order is preserved.
func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c <= 0x01 {
			dst = append(dst, 0x01, c+1)
		} else {
			dst = append(dst, c)
		}
	}
	return append(dst, 0x00)
}

// DecodeKey reverses EncodeKey.
func DecodeKey(b []byte) (any, error) {
	k, rest, err := decodeKey(b)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: trailing bytes after key", ErrData)
	}
	return k, nil
}

func decodeKey(b []byte) (any, []byte, error) {
	if len(b) == 0 {
		return nil, nil, fmt.Errorf("%w: empty key encoding", ErrData)
	}
	switch b[0] {
	case tagNumber:
		if len(b) < 9 {
			return nil, nil, fmt.Errorf("%w: short number key", ErrData)
		}
		bits := binary.BigEndian.Uint64(b[1:9])
		if bits&(1<<63) != 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		return math.Float64frombits(bits), b[9:], nil
	case tagString:
		raw, rest, err := decodeEscaped(b[1:])
		if err != nil {
			return nil, nil, err
		}
		return string(raw), rest, nil
	case tagBinary:
		return decodeEscaped(b[1:])
	case tagArray:
		out := []any{}
		rest := b[1:]
		for {
			if len(rest) == 0 {
				return nil, nil, fmt.Errorf("%w: unterminated array key", ErrData)
			}
			if rest[0] == tagEnd {
				return out, rest[1:], nil
			}
			var (
				e   any
				err error
			)
			e, rest, err = decodeKey(rest)
			if err != nil {
				return nil, nil, err
			}
			out = append(out, e)
		}
	default:
		return nil, nil, fmt.Errorf("%w: unknown key tag 0x%02x", ErrData, b[0])
	}
}

func decodeEscaped(b []byte) ([]byte, []byte, error) {
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		switch c := b[i]; c {
		case 0x00:
			return out, b[i+1:], nil
		case 0x01:
			if i+1 >= len(b) {
				return nil, nil, fmt.Errorf("%w: bad escape in key", ErrData)
			}
			i++
			out = append(out, b[i]-1)
		default:
			out = append(out, c)
		}
	}
	return nil, nil, fmt.Errorf("%w: unterminated key", ErrData)
}

// CompareKeys orders two keys. Invalid keys return an error.
func CompareKeys(a, b any) (int, error) {
	ea, err := EncodeKey(a)
	if err != nil {
		return 0, err
	}
	eb, err := EncodeKey(b)
	if err != nil {
		return 0, err
	}
	return bytes.Compare(ea, eb), nil
}
