// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"slices"
	"sync"

	"github.com/invowk/modload/pkg/moderr"
)

// DefaultExport is the binding name of a module's default export.
const DefaultExport = "default"

type (
	// Namespace is the ordered set of named bindings a module exposes to static importers.
	Namespace struct {
		owner *Record
		mu    sync.Mutex
		names []string
		slots map[string]*Binding
	}

	// Binding is a live export slot. Importers hold the slot itself, so later writes by
	// the owner are visible to them.
	Binding struct {
		name  string
		owner *Record

		mu          sync.Mutex
		value       any
		initialized bool
	}
)

func newNamespace(owner *Record) *Namespace {
	return &Namespace{owner: owner, slots: make(map[string]*Binding)}
}

// Owner returns the record the namespace belongs to.
func (n *Namespace) Owner() *Record { return n.owner }

// Define returns the slot for name, creating it when absent.
func (n *Namespace) Define(name string) *Binding {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.slots[name]; ok {
		return b
	}
	b := &Binding{name: name, owner: n.owner}
	n.slots[name] = b
	n.names = append(n.names, name)
	return b
}

// Binding returns the slot for name.
func (n *Namespace) Binding(name string) (*Binding, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	b, ok := n.slots[name]
	return b, ok
}

// Has reports whether name is exported.
func (n *Namespace) Has(name string) bool {
	_, ok := n.Binding(name)
	return ok
}

// Names returns the exported names in definition order.
func (n *Namespace) Names() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.names)
}

// Export defines name and assigns value. The binding stays unreadable until the owner
// is evaluated.
func (n *Namespace) Export(name string, value any) {
	n.Define(name).Set(value)
}

// Hoist defines name and initializes it immediately, like a hoisted declaration.
func (n *Namespace) Hoist(name string, value any) {
	n.Define(name).Hoist(value)
}

// Snapshot reads every binding into a plain map. Uninitialized bindings fail the
// snapshot.
func (n *Namespace) Snapshot() (map[string]any, error) {
	out := make(map[string]any)
	for _, name := range n.Names() {
		b, _ := n.Binding(name)
		v, err := b.Get()
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

// Name returns the exported name.
func (b *Binding) Name() string { return b.name }

// Owner returns the record exporting the binding.
func (b *Binding) Owner() *Record { return b.owner }

// Get reads the binding. It fails with *moderr.BindingNotInitializedError when read
// before the owner is evaluated, unless the binding was hoisted.
func (b *Binding) Get() (any, error) {
	b.mu.Lock()
	value, initialized := b.value, b.initialized
	b.mu.Unlock()

	if initialized || b.owner.State() == StateEvaluated {
		return value, nil
	}
	return nil, &moderr.BindingNotInitializedError{Name: b.name, Module: b.owner.URL()}
}

// Set assigns the binding without initializing it.
func (b *Binding) Set(value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = value
}

// Hoist assigns the binding and makes it readable immediately.
func (b *Binding) Hoist(value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = value
	b.initialized = true
}
