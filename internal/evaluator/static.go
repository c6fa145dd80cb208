// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"context"
	"fmt"
	"slices"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

// link resolves and loads the static requests of rec and everything below it,
// depth-first in declaration order, and checks that imported names exist.
func (e *Evaluator) link(ctx context.Context, rec *registry.Record) error {
	return e.linkRecord(ctx, rec, make(map[*registry.Record]bool))
}

func (e *Evaluator) linkRecord(ctx context.Context, rec *registry.Record, visited map[*registry.Record]bool) error {
	if visited[rec] || rec.Linked() {
		return nil
	}
	visited[rec] = true
	if rec.State() == registry.StateErrored {
		return rec.Err()
	}

	unit, ok := rec.Unit().(engine.Unit)
	if !ok || !isStaticBody(rec) {
		return nil
	}

	for _, req := range unit.Requests() {
		child, err := e.acquire(ctx, req.Specifier, rec.URL(), e.importConds, rec, req.Names)
		if err != nil {
			return rec.Fail(err)
		}
		if !isStaticBody(child) {
			continue
		}
		if names := exportNamesOf(child); names != nil {
			for _, name := range req.Names {
				if !slices.Contains(names, name) {
					return rec.Fail(&moderr.MissingExportError{Name: name, Module: child.URL(), Importer: rec.URL()})
				}
			}
		}
		if err := e.linkRecord(ctx, child, visited); err != nil {
			return rec.Fail(err)
		}
	}

	rec.MarkLinked()
	e.logger.Debug("linked", "url", rec.URL(), "edges", len(rec.Edges()))
	return nil
}

// evaluateStatic starts the evaluation of a linked static record and returns its
// promise. Dependencies start first, in post-order; dependencies on the current DFS
// path are cycle back-edges and are not waited for. A body waits only for its own
// dependencies, so a suspended module never blocks unrelated ones.
func (e *Evaluator) evaluateStatic(ctx context.Context, rec *registry.Record, parentURL string, stack map[*registry.Record]bool) *taskqueue.Promise {
	if p := rec.Promise(); p != nil {
		return p
	}
	switch rec.State() {
	case registry.StateErrored:
		return taskqueue.RejectedPromise(e.loop, rec.Err())
	case registry.StateEvaluated:
		return taskqueue.FulfilledPromise(e.loop, rec.Namespace())
	}

	p := rec.SetPromise(taskqueue.NewPromise(e.loop))
	rec.Advance(registry.StateEvaluating)
	e.transition(rec)

	stack[rec] = true
	var deps []*taskqueue.Promise
	var depErr error
	for _, edge := range rec.Edges() {
		child, ok := e.edgeRecord(edge)
		if !ok {
			continue
		}
		if !isStaticBody(child) {
			if err := e.evaluateDynamic(ctx, child, rec.URL()); err != nil {
				depErr = err
				break
			}
			continue
		}
		if stack[child] {
			continue
		}
		deps = append(deps, e.evaluateStatic(ctx, child, rec.URL(), stack))
	}
	delete(stack, rec)

	unit, _ := rec.Unit().(engine.Unit)
	taskqueue.StartWith(p, func(y *taskqueue.Yielder) (_ any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = e.fail(rec, &taskqueue.PanicError{Value: r})
			}
		}()

		err = depErr
		for _, dp := range deps {
			if err != nil {
				break
			}
			_, err = y.Await(dp)
		}
		if err == nil {
			err = e.runBody(ctx, rec, parentURL, e.importConds, unit, e.newEnv(ctx, rec, y))
		}
		if y.Suspended() {
			rec.MarkSuspended()
		}
		if err != nil {
			return nil, e.fail(rec, err)
		}
		rec.Advance(registry.StateEvaluated)
		e.transition(rec)
		return rec.Namespace(), nil
	})
	return p
}

// runBody runs the evaluate chain around the body of rec.
func (e *Evaluator) runBody(ctx context.Context, rec *registry.Record, parentURL string, conds types.Conditions, unit engine.Unit, env engine.Env) error {
	if unit == nil {
		return fmt.Errorf("%s has no compiled unit", rec.URL())
	}
	view := &moduleView{rec: rec}
	ec := hooks.EvaluateContext{ParentURL: parentURL, Conditions: conds, Module: view}
	_, err := e.chain.RunEvaluate(ctx, ec, func(context.Context, hooks.EvaluateContext) (hooks.EvaluateResult, error) {
		return hooks.EvaluateResult{}, unit.Execute(env)
	})
	if err != nil {
		return err
	}
	view.apply()
	return nil
}

// graphSuspends reports whether evaluating rec would suspend: some unevaluated
// static body below it declares a suspension point, or a dependency is already
// evaluating.
func (e *Evaluator) graphSuspends(rec *registry.Record, seen map[*registry.Record]bool) bool {
	if seen[rec] {
		return false
	}
	seen[rec] = true

	if !isStaticBody(rec) {
		return false
	}
	switch rec.State() {
	case registry.StateEvaluated, registry.StateErrored:
		return false
	case registry.StateEvaluating:
		return true
	}
	if unit, ok := rec.Unit().(engine.Unit); ok && unit.HasSuspension() {
		return true
	}
	for _, edge := range rec.Edges() {
		if child, ok := e.edgeRecord(edge); ok && e.graphSuspends(child, seen) {
			return true
		}
	}
	return false
}

func exportNamesOf(rec *registry.Record) []string {
	unit, ok := rec.Unit().(engine.Unit)
	if !ok {
		return nil
	}
	return unit.ExportNames()
}
