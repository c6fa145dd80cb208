// SPDX-License-Identifier: MPL-2.0

// Package evaluator drives module records from Resolved to Evaluated or Errored.
//
// Dynamic-format modules run synchronously on the caller's stack; a cyclic require
// observes the partially filled exports cell. Static-format modules are linked
// depth-first before any body runs and are then evaluated in post-order, each body on
// a coroutine that may suspend. All work for one realm runs on its task loop, one
// body at a time.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/charmbracelet/log"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/internal/loader"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/resolve"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

const (
	// InteropForce lets the synchronous entry point evaluate static graphs that do
	// not suspend.
	InteropForce InteropPolicy = iota
	// InteropDeny only lets the synchronous entry point read static modules that
	// already finished without suspending.
	InteropDeny
)

type (
	// InteropPolicy decides how the synchronous entry point treats static modules.
	InteropPolicy int

	// Resolver is the default end of the resolve chain.
	Resolver interface {
		Resolve(ctx context.Context, specifier, parentURL string, conditions types.Conditions) (resolve.Resolution, error)
		FormatOfURL(rawURL string) (types.Format, error)
	}

	// Options configures an Evaluator.
	Options struct {
		Registry *registry.Registry
		Chain    *hooks.Chain
		Resolver Resolver
		Loader   *loader.Loader
		Compiler engine.Compiler
		Loop     *taskqueue.Loop

		ImportConditions  types.Conditions
		RequireConditions types.Conditions
		Policy            InteropPolicy
		Logger            *log.Logger
	}

	// Evaluator owns the module state machine of one realm.
	Evaluator struct {
		registry     *registry.Registry
		chain        *hooks.Chain
		resolver     Resolver
		loader       *loader.Loader
		compiler     engine.Compiler
		loop         *taskqueue.Loop
		importConds  types.Conditions
		requireConds types.Conditions
		policy       InteropPolicy
		logger       *log.Logger
	}
)

// ParseInteropPolicy parses "force" or "deny".
func ParseInteropPolicy(s string) (InteropPolicy, error) {
	switch s {
	case "", "force":
		return InteropForce, nil
	case "deny":
		return InteropDeny, nil
	default:
		return 0, fmt.Errorf("invalid interop policy %q (must be \"force\" or \"deny\")", s)
	}
}

// String returns "force" or "deny".
func (p InteropPolicy) String() string {
	if p == InteropDeny {
		return "deny"
	}
	return "force"
}

// New creates an evaluator.
func New(opts Options) (*Evaluator, error) {
	var errs []error
	if opts.Registry == nil {
		errs = append(errs, errors.New("registry is required"))
	}
	if opts.Chain == nil {
		errs = append(errs, errors.New("hook chain is required"))
	}
	if opts.Resolver == nil {
		errs = append(errs, errors.New("resolver is required"))
	}
	if opts.Loader == nil {
		errs = append(errs, errors.New("loader is required"))
	}
	if opts.Compiler == nil {
		errs = append(errs, errors.New("compiler is required"))
	}
	if opts.Loop == nil {
		errs = append(errs, errors.New("loop is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("evaluator: %w", errors.Join(errs...))
	}

	e := &Evaluator{
		registry:     opts.Registry,
		chain:        opts.Chain,
		resolver:     opts.Resolver,
		loader:       opts.Loader,
		compiler:     opts.Compiler,
		loop:         opts.Loop,
		importConds:  opts.ImportConditions,
		requireConds: opts.RequireConditions,
		policy:       opts.Policy,
		logger:       opts.Logger,
	}
	if e.importConds == nil {
		e.importConds = types.NewConditions("import")
	}
	if e.requireConds == nil {
		e.requireConds = types.NewConditions("require")
	}
	if e.logger == nil {
		e.logger = log.New(io.Discard)
	}
	return e, nil
}

// Registry returns the registry the evaluator fills.
func (e *Evaluator) Registry() *registry.Registry { return e.registry }

// Resolve runs the resolve chain ending in the resolver.
func (e *Evaluator) Resolve(ctx context.Context, specifier, parentURL string, conditions types.Conditions) (hooks.ResolveResult, error) {
	rc := hooks.ResolveContext{ParentURL: parentURL, Conditions: conditions}
	res, err := e.chain.RunResolve(ctx, specifier, rc, func(ctx context.Context, specifier string, rc hooks.ResolveContext) (hooks.ResolveResult, error) {
		r, err := e.resolver.Resolve(ctx, specifier, rc.ParentURL, rc.Conditions)
		if err != nil {
			return hooks.ResolveResult{}, err
		}
		return hooks.ResolveResult{URL: r.URL, Format: r.Format}, nil
	})
	if err != nil {
		return hooks.ResolveResult{}, err
	}
	if res.Format == "" {
		if res.Format, err = e.resolver.FormatOfURL(res.URL); err != nil {
			return hooks.ResolveResult{}, err
		}
	}
	e.logger.Debug("resolved", "specifier", specifier, "parent", parentURL, "url", res.URL, "format", res.Format)
	return res, nil
}

// Require is the synchronous entry point. It returns the exports of the module
// specifier names.
func (e *Evaluator) Require(ctx context.Context, specifier, parentURL string) (any, error) {
	if e.loop.IsDriving(ctx) {
		return e.require(ctx, specifier, parentURL, nil)
	}
	out := taskqueue.NewPromise(e.loop)
	e.loop.Post(func() {
		v, err := e.require(e.loop.Driving(ctx), specifier, parentURL, nil)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	})
	return e.loop.RunUntil(ctx, out)
}

// Import is the asynchronous entry point. The returned promise settles with the
// module's *registry.Namespace once it and its static dependencies are evaluated.
// The promise only settles while the loop is driven.
func (e *Evaluator) Import(ctx context.Context, specifier, parentURL string) *taskqueue.Promise {
	out := taskqueue.NewPromise(e.loop)
	start := func(ctx context.Context) {
		e.importModule(ctx, specifier, parentURL, nil).Then(func(v any, err error) {
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(v)
		})
	}
	if e.loop.IsDriving(ctx) {
		start(ctx)
	} else {
		e.loop.Post(func() { start(e.loop.Driving(ctx)) })
	}
	return out
}

// Link resolves, loads and links specifier and its static dependencies without
// evaluating anything. It is used by tooling to inspect the graph.
func (e *Evaluator) Link(ctx context.Context, specifier, parentURL string) (*registry.Record, error) {
	if !e.loop.IsDriving(ctx) {
		out := taskqueue.NewPromise(e.loop)
		e.loop.Post(func() {
			rec, err := e.Link(e.loop.Driving(ctx), specifier, parentURL)
			if err != nil {
				out.Reject(err)
				return
			}
			out.Resolve(rec)
		})
		v, err := e.loop.RunUntil(ctx, out)
		if err != nil {
			return nil, err
		}
		return v.(*registry.Record), nil
	}

	rec, err := e.acquire(ctx, specifier, parentURL, e.importConds, nil, nil)
	if err != nil {
		return rec, err
	}
	if isStaticBody(rec) {
		if err := e.link(ctx, rec); err != nil {
			return rec, err
		}
	}
	return rec, nil
}

// acquire resolves specifier, gets or creates its record, records the edge from the
// importer and loads the record. A record that already failed returns its error.
func (e *Evaluator) acquire(ctx context.Context, specifier, parentURL string, conds types.Conditions, from *registry.Record, names []string) (*registry.Record, error) {
	res, err := e.Resolve(ctx, specifier, parentURL, conds)
	if err != nil {
		return nil, err
	}

	rec, created := e.registry.GetOrCreate(res.URL, res.Format)
	if created {
		if from != nil {
			rec.SetReferrers(childChain(from))
		}
		e.logger.Debug("record created", "url", rec.URL(), "format", rec.Format())
	}
	if from != nil {
		from.AddEdge(registry.Edge{Specifier: specifier, URL: rec.URL(), Format: rec.Format(), Names: names})
	}

	if rec.State() == registry.StateErrored {
		return rec, rec.Err()
	}
	if err := e.ensureLoaded(ctx, rec, conds); err != nil {
		return rec, err
	}
	return rec, nil
}

// ensureLoaded loads and compiles rec once.
func (e *Evaluator) ensureLoaded(ctx context.Context, rec *registry.Record, conds types.Conditions) error {
	if rec.State() >= registry.StateLoaded {
		return nil
	}
	if err := e.loader.LoadRecord(ctx, rec, hooks.LoadContext{Format: rec.Format(), Conditions: conds}); err != nil {
		return e.fail(rec, err)
	}
	e.transition(rec)

	if rec.Synthetic() != nil || !rec.Format().Compiled() {
		return nil
	}
	unit, err := e.compiler.Compile(ctx, rec.URL(), rec.Format(), rec.Source())
	if err != nil {
		return e.fail(rec, err)
	}
	rec.SetUnit(unit)
	if rec.Format() == types.FormatStatic {
		for _, name := range unit.ExportNames() {
			rec.Namespace().Define(name)
		}
	}
	return nil
}

// fail moves rec to Errored. Errors that already carry an evaluation trace are
// stored as they are so every dependent of a failed module reports the same value.
func (e *Evaluator) fail(rec *registry.Record, err error) error {
	var evalErr *moderr.EvaluationError
	if !errors.As(err, &evalErr) && rec.State() >= registry.StateEvaluating {
		err = &moderr.EvaluationError{URL: rec.URL(), Referrers: rec.Referrers(), Err: err}
	}
	stored := rec.Fail(err)
	e.logger.Debug("record errored", "url", rec.URL(), "err", stored)
	return stored
}

func (e *Evaluator) transition(rec *registry.Record) {
	e.logger.Debug("record state", "url", rec.URL(), "state", rec.State())
}

// edgeRecord returns the child record of an edge.
func (e *Evaluator) edgeRecord(edge registry.Edge) (*registry.Record, bool) {
	return e.registry.LookupKind(edge.URL, edge.Format.Kind())
}

// childChain returns the referrer chain of modules reached from rec.
func childChain(rec *registry.Record) []string {
	return append(slices.Clone(rec.Referrers()), rec.URL())
}

// isStaticBody reports whether rec has a static-format body to link and run.
func isStaticBody(rec *registry.Record) bool {
	return rec.Format() == types.FormatStatic && rec.Synthetic() == nil
}
