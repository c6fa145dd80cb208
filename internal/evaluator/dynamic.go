// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"context"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/cueutil"
	"github.com/invowk/modload/pkg/types"
)

// evaluateDynamic runs a dynamic-format body on the caller's stack. Re-entering a
// record that is still evaluating returns at once; the caller then reads the
// partially filled exports cell.
func (e *Evaluator) evaluateDynamic(ctx context.Context, rec *registry.Record, parentURL string) error {
	switch rec.State() {
	case registry.StateEvaluated:
		return nil
	case registry.StateErrored:
		return rec.Err()
	case registry.StateEvaluating:
		e.logger.Debug("cyclic require returns partial exports", "url", rec.URL(), "parent", parentURL)
		return nil
	}

	if rec.Synthetic() != nil || !rec.Format().Compiled() {
		return e.evaluateSynthetic(rec)
	}

	rec.Advance(registry.StateEvaluating)
	e.transition(rec)

	unit, _ := rec.Unit().(engine.Unit)
	env := e.newEnv(ctx, rec, nil)
	if err := e.runBody(ctx, rec, parentURL, e.requireConds, unit, env); err != nil {
		return e.fail(rec, err)
	}

	publishDynamic(rec)
	rec.Advance(registry.StateEvaluated)
	e.transition(rec)
	return nil
}

// evaluateSynthetic finishes a module whose exports exist without running a body:
// builtins, JSON documents and load hook results.
func (e *Evaluator) evaluateSynthetic(rec *registry.Record) error {
	switch rec.State() {
	case registry.StateEvaluated:
		return nil
	case registry.StateErrored:
		return rec.Err()
	}
	rec.Advance(registry.StateEvaluating)

	value := rec.Synthetic()
	if value == nil && rec.Format() == types.FormatJSON {
		doc, err := cueutil.CompileJSON(rec.Source(), cueutil.WithFilename(rec.URL()))
		if err != nil {
			return e.fail(rec, err)
		}
		if value, err = cueutil.ToGo(doc); err != nil {
			return e.fail(rec, err)
		}
	}

	rec.Exports().Replace(value)
	publishValue(rec.Namespace(), value)
	rec.Advance(registry.StateEvaluated)
	e.transition(rec)
	return nil
}
