// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"

	"cuelang.org/go/cue"
)

// Field is one regular field of a struct value, in declaration order.
type Field struct {
	Label string
	Value cue.Value
}

// Fields returns the regular fields of a struct value in declaration order.
func Fields(v cue.Value) ([]Field, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, err
	}
	var fields []Field
	for iter.Next() {
		fields = append(fields, Field{Label: iter.Selector().Unquoted(), Value: iter.Value()})
	}
	return fields, nil
}

// Elements returns the elements of a list value.
func Elements(v cue.Value) ([]cue.Value, error) {
	iter, err := v.List()
	if err != nil {
		return nil, err
	}
	var elems []cue.Value
	for iter.Next() {
		elems = append(elems, iter.Value())
	}
	return elems, nil
}

// ToGo converts a concrete JSON-shaped value into Go values: nil, bool, float64,
// string, []any and *OrderedMap for objects.
func ToGo(v cue.Value) (any, error) {
	switch v.IncompleteKind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		elems, err := Elements(v)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(elems))
		for _, e := range elems {
			g, err := ToGo(e)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	case cue.StructKind:
		fields, err := Fields(v)
		if err != nil {
			return nil, err
		}
		m := &OrderedMap{}
		for _, f := range fields {
			g, err := ToGo(f.Value)
			if err != nil {
				return nil, err
			}
			m.Set(f.Label, g)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%s: unsupported value kind %s", v.Path(), v.IncompleteKind())
	}
}

// OrderedMap is a JSON object that remembers key order.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// Set adds or replaces a key, keeping the original position of existing keys.
func (m *OrderedMap) Set(key string, value any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// Get returns the value for key.
func (m *OrderedMap) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *OrderedMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of keys.
func (m *OrderedMap) Len() int { return len(m.keys) }
