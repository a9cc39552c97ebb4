package engine

import (
	"encoding/json"
	"fmt"
)

// Record is a structured value held in an object store. Records are stored
// as JSON, so values read back from the engine use JSON types
// (float64, string, bool, nil, []any, map[string]any).
type Record map[string]any

// EncodeRecord serializes a record for storage.
func EncodeRecord(rec Record) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("%w: record is nil", ErrData)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrData, err)
	}
	return data, nil
}

// DecodeRecord restores a record produced by EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt record: %w", err)
	}
	return rec, nil
}

// CloneRecord returns a deep copy of rec in its stored (JSON) form.
func CloneRecord(rec Record) (Record, error) {
	data, err := EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	return DecodeRecord(data)
}
