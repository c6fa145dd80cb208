// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"context"

	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/moderr"
)

// require loads and evaluates specifier synchronously. Dynamic modules return their
// exports value; static modules return a snapshot of their namespace.
func (e *Evaluator) require(ctx context.Context, specifier, parentURL string, from *registry.Record) (any, error) {
	rec, err := e.acquire(ctx, specifier, parentURL, e.requireConds, from, nil)
	if err != nil {
		return nil, err
	}
	if isStaticBody(rec) {
		return e.requireStatic(ctx, rec, parentURL)
	}
	if err := e.evaluateDynamic(ctx, rec, parentURL); err != nil {
		return nil, err
	}
	return rec.Exports().Value(), nil
}

// requireStatic evaluates a static module for a synchronous caller. It never waits:
// a graph that suspends, or is suspended, fails with AsyncModuleRequiresAwait.
func (e *Evaluator) requireStatic(ctx context.Context, rec *registry.Record, parentURL string) (any, error) {
	switch rec.State() {
	case registry.StateErrored:
		return nil, rec.Err()
	case registry.StateEvaluating:
		return nil, &moderr.AsyncModuleRequiresAwaitError{URL: rec.URL(), Parent: parentURL, Pending: true}
	case registry.StateEvaluated:
		if rec.Suspended() {
			return nil, &moderr.AsyncModuleRequiresAwaitError{URL: rec.URL(), Parent: parentURL}
		}
		return rec.Namespace().Snapshot()
	}

	if e.policy == InteropDeny {
		return nil, &moderr.SyncFormatMismatchError{URL: rec.URL(), Parent: parentURL}
	}

	if err := e.link(ctx, rec); err != nil {
		return nil, err
	}
	if e.graphSuspends(rec, make(map[*registry.Record]bool)) {
		return nil, &moderr.AsyncModuleRequiresAwaitError{URL: rec.URL(), Parent: parentURL}
	}

	p := e.evaluateStatic(ctx, rec, parentURL, make(map[*registry.Record]bool))
	if !p.Settled() {
		return nil, &moderr.AsyncModuleRequiresAwaitError{URL: rec.URL(), Parent: parentURL, Pending: true}
	}
	if _, err := p.Result(); err != nil {
		return nil, err
	}
	return rec.Namespace().Snapshot()
}

// importModule loads specifier and returns a promise of its namespace.
func (e *Evaluator) importModule(ctx context.Context, specifier, parentURL string, from *registry.Record) *taskqueue.Promise {
	rec, err := e.acquire(ctx, specifier, parentURL, e.importConds, from, nil)
	if err != nil {
		return taskqueue.RejectedPromise(e.loop, err)
	}

	if isStaticBody(rec) {
		if err := e.link(ctx, rec); err != nil {
			return taskqueue.RejectedPromise(e.loop, err)
		}
		return e.evaluateStatic(ctx, rec, parentURL, make(map[*registry.Record]bool))
	}

	if err := e.evaluateDynamic(ctx, rec, parentURL); err != nil {
		return taskqueue.RejectedPromise(e.loop, err)
	}
	return taskqueue.FulfilledPromise(e.loop, rec.Namespace())
}
