// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"slices"

	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/cueutil"
	"github.com/invowk/modload/pkg/types"
)

// moduleView is the hooks.Module given to evaluate hooks.
type moduleView struct {
	rec      *registry.Record
	value    any
	replaced bool
}

func (m *moduleView) URL() string          { return m.rec.URL() }
func (m *moduleView) Format() types.Format { return m.rec.Format() }

func (m *moduleView) Exports() any {
	if m.replaced {
		return m.value
	}
	if m.rec.Format().Kind() == types.KindDynamic {
		return m.rec.Exports().Value()
	}
	return m.rec.Namespace()
}

func (m *moduleView) SetExports(v any) {
	m.value = v
	m.replaced = true
}

// apply installs exports a hook set in place of what the body produced.
func (m *moduleView) apply() {
	if !m.replaced {
		return
	}
	if m.rec.Format().Kind() == types.KindDynamic {
		m.rec.Exports().Replace(m.value)
		return
	}
	publishValue(m.rec.Namespace(), m.value)
}

// publishDynamic snapshots a finished dynamic module into its namespace: the
// exports value as the default binding and its own keys as named bindings.
func publishDynamic(rec *registry.Record) {
	publishValue(rec.Namespace(), rec.Exports().Value())
}

// publishValue hoists value as the default export and each of its keys as a named
// export.
func publishValue(ns *registry.Namespace, value any) {
	ns.Hoist(registry.DefaultExport, value)
	for _, kv := range entries(value) {
		if kv.key != registry.DefaultExport {
			ns.Hoist(kv.key, kv.value)
		}
	}
}

type entry struct {
	key   string
	value any
}

// entries lists the enumerable keys of an object-shaped value in a stable order.
func entries(value any) []entry {
	var out []entry
	switch v := value.(type) {
	case *registry.Exports:
		for _, k := range v.Keys() {
			x, _ := v.Get(k)
			out = append(out, entry{k, x})
		}
	case *cueutil.OrderedMap:
		for _, k := range v.Keys() {
			x, _ := v.Get(k)
			out = append(out, entry{k, x})
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			out = append(out, entry{k, v[k]})
		}
	}
	return out
}
