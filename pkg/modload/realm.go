// SPDX-License-Identifier: MPL-2.0

// Package modload is the entry point of the module pipeline. A [Realm] owns a
// module registry, a hook chain, a task loop and a manifest cache; realms share
// nothing with each other.
//
// [Realm.Require] is the synchronous entry point and returns a module's exports.
// [Realm.Import] is the asynchronous entry point and returns a promise of the
// module's namespace; [Realm.ImportNamespace] drives the loop until it settles.
package modload

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/modload/internal/config"
	"github.com/invowk/modload/internal/engine/luaengine"
	"github.com/invowk/modload/internal/evaluator"
	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/internal/loader"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/resolve"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/pkg/manifest"
	"github.com/invowk/modload/pkg/types"
)

// Realm is an isolated module universe. It is safe for concurrent use.
type Realm struct {
	cfg       *config.Config
	logger    *log.Logger
	chain     *hooks.Chain
	loop      *taskqueue.Loop
	registry  *registry.Registry
	resolver  *resolve.Resolver
	manifests *manifest.Reader
	fetcher   *fetch.Mux
	eval      *evaluator.Evaluator
	importC   types.Conditions
	requireC  types.Conditions
}

// New creates a Realm.
func New(opts ...Option) (*Realm, error) {
	o := options{
		fetchers: make(map[string]fetch.Fetcher),
		builtins: make(map[string]any),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if valid, errs := o.cfg.IsValid(); !valid {
		return nil, fmt.Errorf("modload: %w", errs[0])
	}
	if o.fs == nil {
		o.fs = afero.NewOsFs()
	}
	if o.logger == nil {
		o.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "modload", Level: log.WarnLevel})
	}
	if o.compiler == nil {
		o.compiler = luaengine.New()
	}
	cfg := o.cfg

	r := &Realm{
		cfg:      cfg,
		logger:   o.logger,
		loop:     taskqueue.NewLoop(),
		registry: registry.New(),
		importC:  o.importConds,
		requireC: o.requireConds,
	}
	if r.importC == nil {
		r.importC = types.NewConditions(config.Strings(cfg.Conditions.Import)...)
	}
	if r.requireC == nil {
		r.requireC = types.NewConditions(config.Strings(cfg.Conditions.Require)...)
	}

	var err error
	r.manifests, err = manifest.NewReader(o.fs,
		manifest.WithFileName(cfg.Resolution.ManifestName),
		manifest.WithModulesDir(cfg.Resolution.ModulesDir),
		manifest.WithCacheSize(cfg.ManifestCacheSize),
	)
	if err != nil {
		return nil, err
	}

	isBuiltin := func(name string) bool {
		_, ok := o.builtins[name]
		return ok
	}
	r.resolver, err = resolve.New(resolve.Options{
		FS:               o.fs,
		Manifests:        r.manifests,
		Extensions:       config.ExtensionStrings(cfg.Resolution.Extensions),
		IndexFiles:       cfg.Resolution.IndexFiles,
		ModulesDir:       cfg.Resolution.ModulesDir,
		PreserveSymlinks: cfg.Resolution.PreserveSymlinks,
		AllowHTTP:        cfg.Fetch.HTTP.Enabled,
		IsBuiltin:        isBuiltin,
		BaseDir:          o.baseDir,
		Logger:           o.logger,
	})
	if err != nil {
		return nil, err
	}

	order, err := hooks.ParseOrder(string(cfg.Hooks.Order))
	if err != nil {
		return nil, err
	}
	if o.hookOrder != nil {
		order = *o.hookOrder
	}
	r.chain = hooks.NewChain(hooks.WithOrder(order), hooks.WithLogger(o.logger))

	r.fetcher = fetch.NewMux()
	r.fetcher.Handle("file", fetch.NewFileFetcher(o.fs))
	r.fetcher.Handle("data", fetch.DataFetcher{})
	if cfg.Fetch.HTTP.Enabled {
		httpFetcher := fetch.NewHTTPFetcher(cfg.Fetch.HTTP.RetryMax, cfg.Fetch.HTTP.Timeout, o.logger)
		r.fetcher.Handle("http", httpFetcher)
		r.fetcher.Handle("https", httpFetcher)
	}
	for scheme, f := range o.fetchers {
		r.fetcher.Handle(scheme, f)
	}

	ld, err := loader.New(loader.Options{
		Chain:   r.chain,
		Fetcher: r.fetcher,
		Builtins: func(name string) (any, bool) {
			v, ok := o.builtins[name]
			return v, ok
		},
		FormatOf: r.resolver.FormatOfURL,
		Logger:   o.logger,
	})
	if err != nil {
		return nil, err
	}

	policy, err := evaluator.ParseInteropPolicy(string(cfg.Interop.RequireStatic))
	if err != nil {
		return nil, err
	}
	r.eval, err = evaluator.New(evaluator.Options{
		Registry:          r.registry,
		Chain:             r.chain,
		Resolver:          r.resolver,
		Loader:            ld,
		Compiler:          o.compiler,
		Loop:              r.loop,
		ImportConditions:  r.importC,
		RequireConditions: r.requireC,
		Policy:            policy,
		Logger:            o.logger,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("realm created",
		"import_conditions", r.importC.String(),
		"require_conditions", r.requireC.String(),
		"hook_order", order.String(),
		"interop", policy.String(),
	)
	return r, nil
}

// Register adds hooks to the realm's chain. The handle removes them; runs already
// in flight keep the chain they started with.
func (r *Realm) Register(h hooks.Hooks) *hooks.Handle {
	return r.chain.Register(h)
}

// Resolve maps specifier, imported from parentURL, to a URL and format using the
// import conditions. It does not load anything.
func (r *Realm) Resolve(ctx context.Context, specifier, parentURL string) (hooks.ResolveResult, error) {
	return r.eval.Resolve(ctx, specifier, parentURL, r.importC)
}

// ResolveRequire is Resolve with the require conditions.
func (r *Realm) ResolveRequire(ctx context.Context, specifier, parentURL string) (hooks.ResolveResult, error) {
	return r.eval.Resolve(ctx, specifier, parentURL, r.requireC)
}

// Require loads and evaluates the module specifier names and returns its exports.
func (r *Realm) Require(ctx context.Context, specifier, parentURL string) (any, error) {
	return r.eval.Require(ctx, specifier, parentURL)
}

// Import starts loading the module specifier names. The promise settles with the
// module's *registry.Namespace while the realm's loop is driven, for example by
// ImportNamespace or Require on another goroutine.
func (r *Realm) Import(ctx context.Context, specifier, parentURL string) *taskqueue.Promise {
	return r.eval.Import(ctx, specifier, parentURL)
}

// ImportNamespace imports specifier and drives the loop until it settles.
func (r *Realm) ImportNamespace(ctx context.Context, specifier, parentURL string) (*registry.Namespace, error) {
	v, err := r.loop.RunUntil(ctx, r.Import(ctx, specifier, parentURL))
	if err != nil {
		return nil, err
	}
	return v.(*registry.Namespace), nil
}

// Registry returns the realm's module registry.
func (r *Realm) Registry() *registry.Registry { return r.registry }

// Config returns the configuration the realm was built from.
func (r *Realm) Config() *config.Config { return r.cfg }

// Conditions returns the condition sets of the import and require entry points.
func (r *Realm) Conditions() (importConds, requireConds types.Conditions) {
	return r.importC, r.requireC
}
