// SPDX-License-Identifier: MPL-2.0

package modload

import (
	"maps"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/modload/internal/config"
	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/pkg/types"
)

type (
	// Option configures a Realm during construction.
	Option func(*options)

	options struct {
		fs           afero.Fs
		fetchers     map[string]fetch.Fetcher
		compiler     engine.Compiler
		cfg          *config.Config
		logger       *log.Logger
		builtins     map[string]any
		hookOrder    *hooks.Order
		importConds  types.Conditions
		requireConds types.Conditions
		baseDir      string
	}
)

// WithFS sets the filesystem modules and manifests are read from. Defaults to the
// OS filesystem.
func WithFS(fsys afero.Fs) Option {
	return func(o *options) { o.fs = fsys }
}

// WithFetcher registers f for URLs of scheme, replacing the default fetcher of that
// scheme.
func WithFetcher(scheme string, f fetch.Fetcher) Option {
	return func(o *options) { o.fetchers[scheme] = f }
}

// WithCompiler sets the compile/execute collaborator. Defaults to the Lua engine.
func WithCompiler(c engine.Compiler) Option {
	return func(o *options) { o.compiler = c }
}

// WithConfig sets the configuration the realm is built from. Defaults to
// config.DefaultConfig.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBuiltins adds host-provided modules. Each value becomes the exports of the
// builtin of that name.
func WithBuiltins(builtins map[string]any) Option {
	return func(o *options) { maps.Copy(o.builtins, builtins) }
}

// WithHookOrder overrides the configured hook ordering policy.
func WithHookOrder(order hooks.Order) Option {
	return func(o *options) { o.hookOrder = &order }
}

// WithConditions overrides the configured condition sets of the import and
// require entry points. A nil set keeps the configured one.
func WithConditions(importConds, requireConds []string) Option {
	return func(o *options) {
		if importConds != nil {
			o.importConds = types.NewConditions(importConds...)
		}
		if requireConds != nil {
			o.requireConds = types.NewConditions(requireConds...)
		}
	}
}

// WithBaseDir anchors specifiers resolved without a referrer.
func WithBaseDir(dir string) Option {
	return func(o *options) { o.baseDir = dir }
}
