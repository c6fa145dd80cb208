// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"slices"
	"sync"
)

// Exports is the exports cell of a dynamic-format module. It is allocated empty when
// the record is created and filled in place while the body runs, so a cyclic lookup
// observes exactly the properties assigned so far.
type Exports struct {
	mu       sync.Mutex
	keys     []string
	props    map[string]any
	replaced bool
	value    any
}

// NewExports returns an empty cell.
func NewExports() *Exports {
	return &Exports{props: make(map[string]any)}
}

// Set assigns a property. Existing keys keep their position.
func (e *Exports) Set(name string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.props[name]; !ok {
		e.keys = append(e.keys, name)
	}
	e.props[name] = value
}

// Get returns a property.
func (e *Exports) Get(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.props[name]
	return v, ok
}

// Keys returns the property names in assignment order.
func (e *Exports) Keys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.keys)
}

// Len returns the number of properties.
func (e *Exports) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.keys)
}

// Replace swaps the whole exports value, like assigning module.exports.
func (e *Exports) Replace(value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.replaced = true
	e.value = value
}

// Replaced returns the value passed to Replace, if any.
func (e *Exports) Replaced() (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, e.replaced
}

// Value returns what a requiring module observes: the replaced value when Replace was
// called, otherwise the cell itself.
func (e *Exports) Value() any {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.replaced {
		return e.value
	}
	return e
}

// Snapshot copies the current properties.
func (e *Exports) Snapshot() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.props))
	for k, v := range e.props {
		out[k] = v
	}
	return out
}
