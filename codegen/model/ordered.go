package model

import (
	"bytes"
	"encoding/json"

	"github.com/boynton/data"
)

// OrderedMap is a string-keyed map that preserves the declaration order of
// its keys across JSON round trips. Service models rely on declaration order
// for structure members and deterministic generation relies on it for
// operations and shapes, so a plain Go map is not enough.
type OrderedMap[V any] struct {
	keys     []string
	bindings map[string]V
}

// NewOrderedMap returns an empty map ready for Set calls. The zero value is
// usable for reads but Set requires initialization.
func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{
		bindings: make(map[string]V),
	}
}

// Get returns the value bound to key, and whether the key is present.
func (m *OrderedMap[V]) Get(key string) (V, bool) {
	if m == nil || m.bindings == nil {
		var zero V
		return zero, false
	}
	v, ok := m.bindings[key]
	return v, ok
}

// Set binds key to value, appending key to the order if it is new.
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.bindings == nil {
		m.bindings = make(map[string]V)
	}
	if _, exists := m.bindings[key]; !exists {
		m.keys = append(m.keys, key)
	}
	m.bindings[key] = value
}

// Delete removes key and its value, preserving the order of remaining keys.
func (m *OrderedMap[V]) Delete(key string) {
	if m == nil || m.bindings == nil {
		return
	}
	if _, exists := m.bindings[key]; !exists {
		return
	}
	delete(m.bindings, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in declaration order. The returned slice is shared;
// callers must not mutate it.
func (m *OrderedMap[V]) Keys() []string {
	if m == nil {
		return nil
	}
	return m.keys
}

// Len returns the number of entries.
func (m *OrderedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *OrderedMap[V]) UnmarshalJSON(raw []byte) error {
	keys, err := data.JsonKeysInOrder(raw)
	if err != nil {
		return err
	}
	out := NewOrderedMap[V]()
	out.keys = keys
	if err := json.Unmarshal(raw, &out.bindings); err != nil {
		return err
	}
	*m = *out
	return nil
}

func (m OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(m.bindings[key])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
