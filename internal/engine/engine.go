// SPDX-License-Identifier: MPL-2.0

// Package engine defines the compile/execute collaborator the evaluator drives.
//
// A [Compiler] turns loaded source into a [Unit]. The evaluator links a unit's static
// [Request]s before running it, then calls [Unit.Execute] with an [Env] that connects
// the body to the module registry: require and an exports cell for dynamic-format
// bodies, live imports, exports and suspension for static-format bodies.
package engine

import (
	"context"

	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/types"
)

type (
	// Request is one static import of a unit, in declaration order.
	Request struct {
		Specifier string
		// Names are the bindings imported from the specifier. Empty for imports kept
		// only for their side effects.
		Names []string
	}

	// Unit is a compiled module body.
	Unit interface {
		// Requests returns the static imports. Dynamic-format units return nil.
		Requests() []Request
		// ExportNames returns the names a static-format unit declares, or nil when
		// they cannot be known before execution.
		ExportNames() []string
		// HasSuspension reports whether the body may suspend at top level.
		HasSuspension() bool
		// Execute runs the body once.
		Execute(env Env) error
	}

	// Compiler compiles source of a compiled format into a unit.
	Compiler interface {
		Compile(ctx context.Context, url string, format types.Format, source []byte) (Unit, error)
	}

	// CompilerFunc adapts a function to Compiler.
	CompilerFunc func(ctx context.Context, url string, format types.Format, source []byte) (Unit, error)

	// Env is the environment a running body sees.
	Env interface {
		Context() context.Context
		URL() string
		Format() types.Format

		// Require synchronously loads and evaluates a module and returns its exports.
		Require(specifier string) (any, error)
		// Exports returns the dynamic exports cell of the running module.
		Exports() *registry.Exports

		// Import returns the live binding name of a statically requested module.
		Import(specifier, name string) (*registry.Binding, error)
		// Export assigns an exported binding, readable once the module is evaluated.
		Export(name string, value any)
		// Hoist assigns an exported binding and makes it readable immediately.
		Hoist(name string, value any)
		// Await suspends a static-format body until p settles.
		Await(p *taskqueue.Promise) (any, error)
		// NextTick returns a promise fulfilled on a later turn of the loop.
		NextTick() *taskqueue.Promise

		// ImportDynamic starts an asynchronous import whose promise settles with the
		// target's namespace.
		ImportDynamic(specifier string) *taskqueue.Promise
	}
)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, url string, format types.Format, source []byte) (Unit, error) {
	return f(ctx, url, format, source)
}
