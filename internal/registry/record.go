// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"slices"
	"sync"

	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/types"
)

const (
	StateResolved State = iota
	StateLoading
	StateLoaded
	StateEvaluating
	StateEvaluated
	StateErrored
)

type (
	// State is a record's lifecycle state. It only moves forward.
	State int

	// Edge is a dependency edge discovered while linking or evaluating a record.
	Edge struct {
		Specifier string
		URL       string
		// Format selects the child's sub-registry.
		Format types.Format
		// Names are the bindings a static importer requested over this edge.
		Names []string
	}

	// Record is the registry entry for one resolved URL.
	Record struct {
		mu        sync.Mutex
		url       string
		format    types.Format
		state     State
		err       error
		exports   *Exports
		namespace *Namespace
		edges     []Edge
		referrers []string
		promise   *taskqueue.Promise
		suspended bool
		linked    bool
		source    []byte
		unit      any
		synthetic any
		sibling   *Record
	}
)

var stateNames = [...]string{"resolved", "loading", "loaded", "evaluating", "evaluated", "errored"}

// String returns the lower-case state name.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateEvaluated || s == StateErrored }

func newRecord(url string, format types.Format) *Record {
	rec := &Record{url: url, format: format, exports: NewExports()}
	rec.namespace = newNamespace(rec)
	return rec
}

// URL returns the record identity.
func (r *Record) URL() string { return r.url }

// Format returns the record format.
func (r *Record) Format() types.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}

// SetFormat changes the format once loading determined it. Records never change
// sub-registry, so only formats of the same kind are accepted.
func (r *Record) SetFormat(f types.Format) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Kind() != r.format.Kind() {
		return false
	}
	r.format = f
	return true
}

// State returns the current lifecycle state.
func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Advance moves the record to s. Backward moves and moves out of a terminal state
// are refused.
func (r *Record) Advance(s State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s <= r.state || r.state.Terminal() || s == StateErrored {
		return false
	}
	r.state = s
	return true
}

// Fail moves the record to Errored with err and returns the error future accesses
// must observe. A record that already failed keeps its first error.
func (r *Record) Fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateErrored {
		return r.err
	}
	if r.state == StateEvaluated {
		return err
	}
	r.state = StateErrored
	r.err = err
	return r.err
}

// Err returns the sticky error of an Errored record.
func (r *Record) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Exports returns the dynamic exports cell. It exists from creation on so cyclic
// lookups observe a partially filled cell.
func (r *Record) Exports() *Exports { return r.exports }

// Namespace returns the binding namespace.
func (r *Record) Namespace() *Namespace { return r.namespace }

// AddEdge records a dependency edge. Edges keep discovery order; a repeated
// specifier only merges requested names.
func (r *Record) AddEdge(e Edge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.edges {
		if r.edges[i].Specifier == e.Specifier {
			for _, n := range e.Names {
				if !slices.Contains(r.edges[i].Names, n) {
					r.edges[i].Names = append(r.edges[i].Names, n)
				}
			}
			return
		}
	}
	e.Names = slices.Clone(e.Names)
	r.edges = append(r.edges, e)
}

// Edges returns the dependency edges in discovery order.
func (r *Record) Edges() []Edge {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.edges)
}

// SetReferrers records the chain of URLs through which the record was first reached.
func (r *Record) SetReferrers(chain []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.referrers == nil {
		r.referrers = slices.Clone(chain)
	}
}

// Referrers returns the referrer chain, outermost first.
func (r *Record) Referrers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.referrers)
}

// Promise returns the evaluation promise, if evaluation started.
func (r *Record) Promise() *taskqueue.Promise {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.promise
}

// SetPromise stores the evaluation promise unless one is already set, and returns
// the stored promise.
func (r *Record) SetPromise(p *taskqueue.Promise) *taskqueue.Promise {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.promise == nil {
		r.promise = p
	}
	return r.promise
}

// MarkSuspended records that the body (or one of its static dependencies)
// suspended during evaluation.
func (r *Record) MarkSuspended() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suspended = true
}

// Suspended reports whether evaluation suspended at some point.
func (r *Record) Suspended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended
}

// MarkLinked records that the static dependency graph below the record is linked.
// It returns false when it already was.
func (r *Record) MarkLinked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.linked {
		return false
	}
	r.linked = true
	return true
}

// Linked reports whether MarkLinked was called.
func (r *Record) Linked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.linked
}

// SetLoaded stores the loaded source and advances to Loaded.
func (r *Record) SetLoaded(source []byte, synthetic any) {
	r.mu.Lock()
	r.source = source
	r.synthetic = synthetic
	r.mu.Unlock()
	r.Advance(StateLoaded)
}

// Source returns the loaded source bytes.
func (r *Record) Source() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.source
}

// Synthetic returns the exports supplied by a load hook, if any.
func (r *Record) Synthetic() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synthetic
}

// SetUnit stores the compiled unit.
func (r *Record) SetUnit(u any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unit = u
}

// Unit returns the compiled unit.
func (r *Record) Unit() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unit
}

// Sibling returns the record for the same URL in the other sub-registry.
func (r *Record) Sibling() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sibling
}

func (r *Record) setSibling(s *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sibling = s
}
