// SPDX-License-Identifier: MPL-2.0

package hooks

import (
	"context"
	"net/url"

	"github.com/invowk/modload/pkg/types"
)

type (
	// ResolveContext is the context of a resolve run.
	ResolveContext struct {
		ParentURL        string
		Conditions       types.Conditions
		ImportAttributes map[string]string
	}

	// ResolveResult is the outcome of a resolve hook.
	ResolveResult struct {
		URL          string
		Format       types.Format
		ShortCircuit bool
	}

	// NextResolve continues a resolve run with the rest of the chain.
	NextResolve func(ctx context.Context, specifier string, rc ResolveContext) (ResolveResult, error)

	// ResolveHook intercepts resolution.
	ResolveHook func(ctx context.Context, specifier string, rc ResolveContext, next NextResolve) (ResolveResult, error)

	// LoadContext is the context of a load run.
	LoadContext struct {
		Format           types.Format
		Conditions       types.Conditions
		ImportAttributes map[string]string
	}

	// LoadResult is the outcome of a load hook. When Exports is non-nil the module
	// is synthetic: compilation is skipped and Exports become its finished exports.
	LoadResult struct {
		Format       types.Format
		Source       []byte
		Exports      any
		ShortCircuit bool
	}

	// NextLoad continues a load run with the rest of the chain.
	NextLoad func(ctx context.Context, url string, lc LoadContext) (LoadResult, error)

	// LoadHook intercepts loading.
	LoadHook func(ctx context.Context, url string, lc LoadContext, next NextLoad) (LoadResult, error)

	// Module is the view of a module record given to evaluate hooks.
	Module interface {
		URL() string
		Format() types.Format
		// Exports returns the current exports value.
		Exports() any
		// SetExports replaces the module's exports.
		SetExports(v any)
	}

	// EvaluateContext is the context of an evaluate run.
	EvaluateContext struct {
		ParentURL  string
		Conditions types.Conditions
		Module     Module
	}

	// EvaluateResult is the outcome of an evaluate hook. A short-circuit skips the
	// module body; the module finishes with whatever exports the hook set.
	EvaluateResult struct {
		ShortCircuit bool
	}

	// NextEvaluate continues an evaluate run with the rest of the chain.
	NextEvaluate func(ctx context.Context, ec EvaluateContext) (EvaluateResult, error)

	// EvaluateHook intercepts body execution.
	EvaluateHook func(ctx context.Context, ec EvaluateContext, next NextEvaluate) (EvaluateResult, error)

	resolveArgs struct {
		specifier string
		rc        ResolveContext
	}

	loadArgs struct {
		url string
		lc  LoadContext
	}
)

// RunResolve runs the resolve chain ending in def.
func (c *Chain) RunResolve(ctx context.Context, specifier string, rc ResolveContext, def NextResolve) (ResolveResult, error) {
	var links []link[resolveArgs, ResolveResult]
	for _, reg := range c.snapshot() {
		if h := reg.hooks.Resolve; h != nil {
			links = append(links, link[resolveArgs, ResolveResult]{
				id:   reg.id,
				name: reg.hooks.Name,
				fn: func(ctx context.Context, a resolveArgs, next func(context.Context, resolveArgs) (ResolveResult, error)) (ResolveResult, error) {
					return h(ctx, a.specifier, a.rc, func(ctx context.Context, specifier string, rc ResolveContext) (ResolveResult, error) {
						return next(ctx, resolveArgs{specifier: specifier, rc: rc})
					})
				},
			})
		}
	}
	return run(ctx, c, StageResolve, links,
		resolveArgs{specifier: specifier, rc: rc},
		func(ctx context.Context, a resolveArgs) (ResolveResult, error) { return def(ctx, a.specifier, a.rc) },
		func(r ResolveResult) bool { return r.ShortCircuit },
		validateResolve,
	)
}

// RunLoad runs the load chain ending in def.
func (c *Chain) RunLoad(ctx context.Context, rawURL string, lc LoadContext, def NextLoad) (LoadResult, error) {
	var links []link[loadArgs, LoadResult]
	for _, reg := range c.snapshot() {
		if h := reg.hooks.Load; h != nil {
			links = append(links, link[loadArgs, LoadResult]{
				id:   reg.id,
				name: reg.hooks.Name,
				fn: func(ctx context.Context, a loadArgs, next func(context.Context, loadArgs) (LoadResult, error)) (LoadResult, error) {
					return h(ctx, a.url, a.lc, func(ctx context.Context, u string, lc LoadContext) (LoadResult, error) {
						return next(ctx, loadArgs{url: u, lc: lc})
					})
				},
			})
		}
	}
	return run(ctx, c, StageLoad, links,
		loadArgs{url: rawURL, lc: lc},
		func(ctx context.Context, a loadArgs) (LoadResult, error) { return def(ctx, a.url, a.lc) },
		func(r LoadResult) bool { return r.ShortCircuit },
		validateLoad,
	)
}

// RunEvaluate runs the evaluate chain ending in def.
func (c *Chain) RunEvaluate(ctx context.Context, ec EvaluateContext, def NextEvaluate) (EvaluateResult, error) {
	var links []link[EvaluateContext, EvaluateResult]
	for _, reg := range c.snapshot() {
		if h := reg.hooks.Evaluate; h != nil {
			links = append(links, link[EvaluateContext, EvaluateResult]{
				id:   reg.id,
				name: reg.hooks.Name,
				fn: func(ctx context.Context, ec EvaluateContext, next func(context.Context, EvaluateContext) (EvaluateResult, error)) (EvaluateResult, error) {
					return h(ctx, ec, NextEvaluate(next))
				},
			})
		}
	}
	return run[EvaluateContext, EvaluateResult](ctx, c, StageEvaluate, links, ec, def,
		func(r EvaluateResult) bool { return r.ShortCircuit },
		func(EvaluateResult) string { return "" },
	)
}

func validateResolve(r ResolveResult) string {
	if r.URL == "" {
		return "resolve result has an empty URL"
	}
	u, err := url.Parse(r.URL)
	if err != nil || u.Scheme == "" {
		return "resolve result URL " + r.URL + " is not an absolute URL"
	}
	if r.Format != "" {
		if ok, _ := r.Format.IsValid(); !ok {
			return "resolve result has unknown format " + string(r.Format)
		}
	}
	return ""
}

func validateLoad(r LoadResult) string {
	if r.Format != "" {
		if ok, _ := r.Format.IsValid(); !ok {
			return "load result has unknown format " + string(r.Format)
		}
	}
	if r.Exports == nil && r.Source == nil && r.Format.Compiled() {
		return "load result has neither source nor exports"
	}
	return ""
}
