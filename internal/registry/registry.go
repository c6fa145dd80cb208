// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"sync"

	"github.com/invowk/modload/pkg/types"
)

// Registry is an identity-keyed cache of module records. It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	tables [2]map[string]*Record
	order  []*Record
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tables: [2]map[string]*Record{
		types.KindDynamic: {},
		types.KindStatic:  {},
	}}
}

// GetOrCreate returns the record for url in format's sub-registry, creating it when
// absent. created reports whether this call created it. Concurrent first calls for
// the same URL and kind observe the same record.
func (r *Registry) GetOrCreate(url string, format types.Format) (rec *Record, created bool) {
	kind := format.Kind()

	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tables[kind][url]; ok {
		return rec, false
	}
	rec = newRecord(url, format)
	if other, ok := r.tables[otherKind(kind)][url]; ok {
		rec.setSibling(other)
		other.setSibling(rec)
	}
	r.tables[kind][url] = rec
	r.order = append(r.order, rec)
	return rec, true
}

// Lookup returns the record for url, preferring the static sub-registry when the
// URL lives in both.
func (r *Registry) Lookup(url string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.tables[types.KindStatic][url]; ok {
		return rec, true
	}
	rec, ok := r.tables[types.KindDynamic][url]
	return rec, ok
}

// LookupKind returns the record for url in one sub-registry.
func (r *Registry) LookupKind(url string, kind types.FormatKind) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tables[kind][url]
	return rec, ok
}

// Records returns every record in creation order.
func (r *Registry) Records() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of records across both sub-registries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

func otherKind(k types.FormatKind) types.FormatKind {
	if k == types.KindDynamic {
		return types.KindStatic
	}
	return types.KindDynamic
}
