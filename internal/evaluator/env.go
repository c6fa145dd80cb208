// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"context"
	"errors"
	"fmt"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

// errAwaitInDynamic is returned when a dynamic-format body tries to suspend.
var errAwaitInDynamic = errors.New("await is only valid in static-format module bodies")

// env connects a running body to the realm. y is nil for dynamic-format bodies.
type env struct {
	e   *Evaluator
	ctx context.Context
	rec *registry.Record
	y   *taskqueue.Yielder
}

var _ engine.Env = (*env)(nil)

func (e *Evaluator) newEnv(ctx context.Context, rec *registry.Record, y *taskqueue.Yielder) *env {
	return &env{e: e, ctx: e.loop.Driving(ctx), rec: rec, y: y}
}

func (v *env) Context() context.Context { return v.ctx }
func (v *env) URL() string              { return v.rec.URL() }
func (v *env) Format() types.Format     { return v.rec.Format() }

func (v *env) Require(specifier string) (any, error) {
	return v.e.require(v.ctx, specifier, v.rec.URL(), v.rec)
}

func (v *env) Exports() *registry.Exports { return v.rec.Exports() }

// Import returns the live binding name of a module the body statically requested.
func (v *env) Import(specifier, name string) (*registry.Binding, error) {
	for _, edge := range v.rec.Edges() {
		if edge.Specifier != specifier {
			continue
		}
		child, ok := v.e.edgeRecord(edge)
		if !ok {
			break
		}
		if b, ok := child.Namespace().Binding(name); ok {
			return b, nil
		}
		if isStaticBody(child) && !declaresExports(child) {
			return child.Namespace().Define(name), nil
		}
		return nil, &moderr.MissingExportError{Name: name, Module: child.URL(), Importer: v.rec.URL()}
	}
	return nil, fmt.Errorf("%s: import of %q was not declared before the body ran", v.rec.URL(), specifier)
}

func (v *env) Export(name string, value any) { v.rec.Namespace().Export(name, value) }
func (v *env) Hoist(name string, value any)  { v.rec.Namespace().Hoist(name, value) }

// Await suspends the body until p settles.
func (v *env) Await(p *taskqueue.Promise) (any, error) {
	if v.y == nil {
		if p.Settled() {
			return p.Result()
		}
		return nil, errAwaitInDynamic
	}
	return v.y.Await(p)
}

func (v *env) NextTick() *taskqueue.Promise {
	p := taskqueue.NewPromise(v.e.loop)
	v.e.loop.Post(func() { p.Resolve(nil) })
	return p
}

func (v *env) ImportDynamic(specifier string) *taskqueue.Promise {
	return v.e.importModule(v.ctx, specifier, v.rec.URL(), v.rec)
}

// declaresExports reports whether a static unit's export names are known up front.
func declaresExports(rec *registry.Record) bool {
	unit, ok := rec.Unit().(engine.Unit)
	return ok && unit.ExportNames() != nil
}
