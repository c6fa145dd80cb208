// SPDX-License-Identifier: MPL-2.0

// Package loader implements the load stage: it turns a resolved URL into source
// bytes or synthetic exports through the hook chain.
package loader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/resolve"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

type (
	// Options configures a Loader.
	Options struct {
		Chain   *hooks.Chain
		Fetcher fetch.Fetcher
		// Builtins returns the exports of a builtin module by name.
		Builtins func(name string) (any, bool)
		// FormatOf infers the format of a URL when the load context carries none.
		FormatOf func(rawURL string) (types.Format, error)
		Logger   *log.Logger
	}

	// Loader runs the load chain.
	Loader struct {
		chain    *hooks.Chain
		fetcher  fetch.Fetcher
		builtins func(string) (any, bool)
		formatOf func(string) (types.Format, error)
		logger   *log.Logger
	}
)

// New creates a loader. Chain and Fetcher are required.
func New(opts Options) (*Loader, error) {
	if opts.Chain == nil || opts.Fetcher == nil {
		return nil, fmt.Errorf("loader: chain and fetcher are required")
	}
	l := &Loader{
		chain:    opts.Chain,
		fetcher:  opts.Fetcher,
		builtins: opts.Builtins,
		formatOf: opts.FormatOf,
		logger:   opts.Logger,
	}
	if l.builtins == nil {
		l.builtins = func(string) (any, bool) { return nil, false }
	}
	if l.logger == nil {
		l.logger = log.New(io.Discard)
	}
	return l, nil
}

// Load runs the load chain for rawURL.
func (l *Loader) Load(ctx context.Context, rawURL string, lc hooks.LoadContext) (hooks.LoadResult, error) {
	return l.chain.RunLoad(ctx, rawURL, lc, l.fallback(nil))
}

// LoadRecord loads rec unless it was loaded already, and attaches the result. When the
// same URL was loaded under the other format, its source is reused instead of fetched.
func (l *Loader) LoadRecord(ctx context.Context, rec *registry.Record, lc hooks.LoadContext) error {
	if !rec.Advance(registry.StateLoading) {
		return nil
	}

	var reuse *registry.Record
	if sib := rec.Sibling(); sib != nil && sib.Source() != nil {
		reuse = sib
	}

	if lc.Format == "" {
		lc.Format = rec.Format()
	}
	res, err := l.chain.RunLoad(ctx, rec.URL(), lc, l.fallback(reuse))
	if err != nil {
		return err
	}

	if res.Exports != nil {
		rec.SetLoaded(res.Source, res.Exports)
		l.logger.Debug("loaded synthetic module", "url", rec.URL())
		return nil
	}
	if res.Format != "" && res.Format != rec.Format() && !rec.SetFormat(res.Format) {
		return fmt.Errorf("load of %s returned format %s, but it resolved as %s", rec.URL(), res.Format, rec.Format())
	}
	source := res.Source
	if source == nil {
		source = []byte{}
	}
	rec.SetLoaded(source, nil)
	l.logger.Debug("loaded module", "url", rec.URL(), "format", rec.Format(), "bytes", len(source))
	return nil
}

// fallback returns the built-in end of the load chain.
func (l *Loader) fallback(reuse *registry.Record) hooks.NextLoad {
	return func(ctx context.Context, rawURL string, lc hooks.LoadContext) (hooks.LoadResult, error) {
		if strings.HasPrefix(rawURL, resolve.BuiltinScheme+":") {
			name := strings.TrimPrefix(rawURL, resolve.BuiltinScheme+":")
			exports, ok := l.builtins(name)
			if !ok {
				return hooks.LoadResult{}, &moderr.NotFoundError{Specifier: rawURL, Kind: "builtin"}
			}
			return hooks.LoadResult{Format: types.FormatBuiltin, Exports: exports}, nil
		}

		format := lc.Format
		if format == "" && l.formatOf != nil {
			f, err := l.formatOf(rawURL)
			if err != nil {
				return hooks.LoadResult{}, err
			}
			format = f
		}

		if reuse != nil && reuse.URL() == rawURL {
			l.logger.Debug("reusing source of sibling record", "url", rawURL, "sibling", reuse.Format())
			return hooks.LoadResult{Format: format, Source: reuse.Source()}, nil
		}

		source, err := l.fetcher.ReadBytes(ctx, rawURL)
		if err != nil {
			return hooks.LoadResult{}, err
		}
		if source == nil {
			source = []byte{}
		}
		return hooks.LoadResult{Format: format, Source: source}, nil
	}
}
