package protocol

import (
	"encoding/base64"
	"math"
	"time"
)

// Document is the canonical in-memory value tree passed between generated
// types and codecs. Concrete values are nil, bool, string, integer and
// float kinds, time.Time, []byte, []Document, and map[string]Document.
type Document = any

// Fields interprets a document as a structure's field map.
func Fields(doc Document) (map[string]Document, bool) {
	if doc == nil {
		return nil, false
	}
	m, ok := doc.(map[string]Document)
	return m, ok
}

// AsString coerces a document scalar to a string.
func AsString(v Document) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsBool coerces a document scalar to a bool.
func AsBool(v Document) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// AsInt64 coerces any integer kind, or a whole float, to int64. JSON
// decoding produces float64 for all numbers, so the float path matters.
func AsInt64(v Document) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float32:
		return wholeFloat(float64(n))
	case float64:
		return wholeFloat(n)
	}
	return 0, false
}

func wholeFloat(f float64) (int64, bool) {
	if math.Trunc(f) != f || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(f), true
}

// AsFloat64 coerces any numeric kind to float64.
func AsFloat64(v Document) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := AsInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsBytes coerces a blob value: raw bytes pass through, strings are
// decoded as base64.
func AsBytes(v Document) ([]byte, bool) {
	switch b := v.(type) {
	case []byte:
		return b, true
	case string:
		decoded, err := base64.StdEncoding.DecodeString(b)
		if err != nil {
			return nil, false
		}
		return decoded, true
	}
	return nil, false
}

// AsTime coerces a timestamp value.
func AsTime(v Document) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}
