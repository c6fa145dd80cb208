// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/pkg/types"
)

type (
	// Script is a module body written in Go for FakeEngine.
	Script struct {
		// Requests are the static imports the unit declares.
		Requests []engine.Request
		// Exports are the declared export names of a static unit. Nil means unknown.
		Exports []string
		// Suspends marks a body with a top-level suspension point.
		Suspends bool
		// Body runs when the module is executed. A nil body does nothing.
		Body func(env engine.Env) error
	}

	// FakeEngine compiles URLs to scripts registered with Define and records every
	// execution.
	FakeEngine struct {
		mu      sync.Mutex
		scripts map[string]Script
		runs    []string
	}

	fakeUnit struct {
		engine *FakeEngine
		url    string
		format types.Format
		script Script
	}
)

// NewFakeEngine creates an engine without scripts.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{scripts: make(map[string]Script)}
}

// Define registers the script run for url.
func (f *FakeEngine) Define(url string, s Script) *FakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[url] = s
	return f
}

// Compile returns the unit of the script defined for url.
func (f *FakeEngine) Compile(_ context.Context, url string, format types.Format, _ []byte) (engine.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.scripts[url]
	if !ok {
		return nil, fmt.Errorf("fake engine: no script defined for %s", url)
	}
	return &fakeUnit{engine: f, url: url, format: format, script: s}, nil
}

// Runs returns how many times the body of url was executed.
func (f *FakeEngine) Runs(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, u := range f.runs {
		if u == url {
			n++
		}
	}
	return n
}

// Order returns the URLs of executed bodies in execution order.
func (f *FakeEngine) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.runs)
}

func (u *fakeUnit) Requests() []engine.Request {
	if u.format != types.FormatStatic {
		return nil
	}
	return slices.Clone(u.script.Requests)
}

func (u *fakeUnit) ExportNames() []string {
	if u.format != types.FormatStatic {
		return nil
	}
	return slices.Clone(u.script.Exports)
}

func (u *fakeUnit) HasSuspension() bool { return u.script.Suspends }

func (u *fakeUnit) Execute(env engine.Env) error {
	u.engine.mu.Lock()
	u.engine.runs = append(u.engine.runs, u.url)
	u.engine.mu.Unlock()

	if u.script.Body == nil {
		return nil
	}
	return u.script.Body(env)
}
