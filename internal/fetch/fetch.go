// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/invowk/modload/pkg/moderr"
)

type (
	// Fetcher reads the bytes behind a resolved URL.
	Fetcher interface {
		ReadBytes(ctx context.Context, rawURL string) ([]byte, error)
	}

	// FetcherFunc adapts a function to the Fetcher interface.
	FetcherFunc func(ctx context.Context, rawURL string) ([]byte, error)

	// Mux dispatches ReadBytes by URL scheme.
	Mux struct {
		mu       sync.RWMutex
		fetchers map[string]Fetcher
	}
)

// ReadBytes calls f.
func (f FetcherFunc) ReadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	return f(ctx, rawURL)
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{fetchers: make(map[string]Fetcher)}
}

// Handle registers f for scheme, replacing any previous fetcher.
func (m *Mux) Handle(scheme string, f Fetcher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchers[strings.ToLower(scheme)] = f
}

// Schemes returns the registered schemes, sorted.
func (m *Mux) Schemes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.fetchers))
	for s := range m.fetchers {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

// Supports reports whether a fetcher is registered for scheme.
func (m *Mux) Supports(scheme string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.fetchers[strings.ToLower(scheme)]
	return ok
}

// ReadBytes routes rawURL to the fetcher registered for its scheme.
func (m *Mux) ReadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	scheme, err := Scheme(rawURL)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	f, ok := m.fetchers[scheme]
	m.mu.RUnlock()
	if !ok {
		return nil, &moderr.UnsupportedSchemeError{URL: rawURL, Scheme: scheme, Supported: m.Schemes()}
	}
	return f.ReadBytes(ctx, rawURL)
}

// Scheme returns the lower-cased scheme of rawURL.
func Scheme(rawURL string) (string, error) {
	i := strings.IndexByte(rawURL, ':')
	if i <= 0 {
		return "", &moderr.InvalidSpecifierError{Specifier: rawURL, Reason: "not an absolute URL"}
	}
	u, err := url.Parse(rawURL[:i+1])
	if err != nil || u.Scheme == "" {
		return "", &moderr.InvalidSpecifierError{Specifier: rawURL, Reason: fmt.Sprintf("invalid URL scheme %q", rawURL[:i])}
	}
	return strings.ToLower(u.Scheme), nil
}
