// SPDX-License-Identifier: MPL-2.0

package evaluator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/internal/hooks"
	"github.com/invowk/modload/internal/loader"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/internal/resolve"
	"github.com/invowk/modload/internal/taskqueue"
	"github.com/invowk/modload/internal/testutil"
	"github.com/invowk/modload/pkg/cueutil"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

type harness struct {
	engine *testutil.FakeEngine
	chain  *hooks.Chain
	loop   *taskqueue.Loop
	eval   *Evaluator
}

var builtins = map[string]any{
	"os": map[string]any{"platform": "test"},
}

func newHarness(t *testing.T, files map[string]string, policy InteropPolicy) *harness {
	t.Helper()

	fsys := testutil.MemFS(t, files)
	resolver, err := resolve.New(resolve.Options{
		FS: fsys,
		IsBuiltin: func(name string) bool {
			_, ok := builtins[name]
			return ok
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	chain := hooks.NewChain()
	mux := fetch.NewMux()
	mux.Handle("file", fetch.NewFileFetcher(fsys))
	ld, err := loader.New(loader.Options{
		Chain:   chain,
		Fetcher: mux,
		Builtins: func(name string) (any, bool) {
			v, ok := builtins[name]
			return v, ok
		},
		FormatOf: resolver.FormatOfURL,
	})
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{engine: testutil.NewFakeEngine(), chain: chain, loop: taskqueue.NewLoop()}
	h.eval, err = New(Options{
		Registry: registry.New(),
		Chain:    chain,
		Resolver: resolver,
		Loader:   ld,
		Compiler: h.engine,
		Loop:     h.loop,
		Policy:   policy,
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// importNS drives the loop until the import of specifier settles.
func (h *harness) importNS(t *testing.T, specifier string) (*registry.Namespace, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := h.loop.RunUntil(ctx, h.eval.Import(ctx, specifier, ""))
	if err != nil {
		return nil, err
	}
	return v.(*registry.Namespace), nil
}

func files(paths ...string) map[string]string {
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		out[p] = "-- module body\n"
	}
	return out
}

func TestCircularDynamicSeesPartialExports(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/x.cjs", "/app/y.cjs"), InteropForce)
	var seenByY []string
	h.engine.Define("file:///app/x.cjs", testutil.Script{Body: func(env engine.Env) error {
		env.Exports().Set("a", 1)
		if _, err := env.Require("./y.cjs"); err != nil {
			return err
		}
		env.Exports().Set("b", 2)
		return nil
	}})
	h.engine.Define("file:///app/y.cjs", testutil.Script{Body: func(env engine.Env) error {
		x, err := env.Require("./x.cjs")
		if err != nil {
			return err
		}
		seenByY = x.(*registry.Exports).Keys()
		return nil
	}})

	v, err := h.eval.Require(context.Background(), "/app/x.cjs", "")
	if err != nil {
		t.Fatalf("Require() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a"}, seenByY); diff != "" {
		t.Errorf("Y's view of X mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]any{"a": 1, "b": 2}, v.(*registry.Exports).Snapshot()); diff != "" {
		t.Errorf("X's final exports mismatch (-want +got):\n%s", diff)
	}
	if h.engine.Runs("file:///app/x.cjs") != 1 || h.engine.Runs("file:///app/y.cjs") != 1 {
		t.Errorf("bodies ran %v, want each once", h.engine.Order())
	}
}

func TestCircularStaticBindings(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/x.mjs", "/app/y.mjs"), InteropForce)
	var early error
	var b *registry.Binding
	h.engine.Define("file:///app/x.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./y.mjs", Names: []string{"b"}}},
		Exports:  []string{"a"},
		Body: func(env engine.Env) error {
			var err error
			if b, err = env.Import("./y.mjs", "b"); err != nil {
				return err
			}
			_, early = b.Get()
			env.Export("a", 1)
			return nil
		},
	})
	h.engine.Define("file:///app/y.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./x.mjs", Names: []string{"a"}}},
		Exports:  []string{"b"},
		Body: func(env engine.Env) error {
			env.Export("b", "final")
			return nil
		},
	})

	ns, err := h.importNS(t, "/app/y.mjs")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	var notInit *moderr.BindingNotInitializedError
	if !errors.As(early, &notInit) || notInit.Name != "b" {
		t.Errorf("early read error = %v, want BindingNotInitializedError for b", early)
	}
	if v, err := b.Get(); err != nil || v != "final" {
		t.Errorf("late read = %v, %v, want final", v, err)
	}
	if diff := cmp.Diff([]string{"file:///app/x.mjs", "file:///app/y.mjs"}, h.engine.Order()); diff != "" {
		t.Errorf("evaluation order mismatch (-want +got):\n%s", diff)
	}
	if ns.Owner().URL() != "file:///app/y.mjs" {
		t.Errorf("namespace owner = %s", ns.Owner().URL())
	}
}

func TestStickyErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/z.cjs", "/app/uses-z.mjs"), InteropForce)
	boom := errors.New("boom")
	h.engine.Define("file:///app/z.cjs", testutil.Script{Body: func(engine.Env) error { return boom }})
	h.engine.Define("file:///app/uses-z.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./z.cjs"}},
	})

	_, first := h.importNS(t, "/app/z.cjs")
	if !errors.Is(first, boom) {
		t.Fatalf("first import error = %v, want boom", first)
	}
	var evalErr *moderr.EvaluationError
	if !errors.As(first, &evalErr) || evalErr.URL != "file:///app/z.cjs" {
		t.Errorf("error is not an EvaluationError for z: %v", first)
	}

	for i := range 3 {
		_, err := h.importNS(t, "/app/z.cjs")
		if err != first {
			t.Errorf("attempt %d returned %v, want the identical error", i, err)
		}
	}
	if _, err := h.eval.Require(context.Background(), "/app/z.cjs", ""); err != first {
		t.Errorf("Require() returned %v, want the identical error", err)
	}
	if _, err := h.importNS(t, "/app/uses-z.mjs"); err != first {
		t.Errorf("dependent import returned %v, want the identical error", err)
	}
	if n := h.engine.Runs("file:///app/z.cjs"); n != 1 {
		t.Errorf("z ran %d times, want 1", n)
	}
}

func TestRequireStatic(t *testing.T) {
	t.Parallel()

	paths := files("/app/sync.mjs", "/app/async.mjs", "/app/dep.mjs", "/app/via-dep.mjs")
	define := func(h *harness) {
		h.engine.Define("file:///app/sync.mjs", testutil.Script{
			Exports: []string{"v", "w"},
			Body: func(env engine.Env) error {
				env.Export("v", 1)
				env.Export("w", "two")
				return nil
			},
		})
		h.engine.Define("file:///app/async.mjs", testutil.Script{
			Exports:  []string{"v"},
			Suspends: true,
			Body: func(env engine.Env) error {
				if _, err := env.Await(env.NextTick()); err != nil {
					return err
				}
				env.Export("v", 1)
				return nil
			},
		})
		h.engine.Define("file:///app/dep.mjs", testutil.Script{
			Exports:  []string{"d"},
			Suspends: true,
			Body: func(env engine.Env) error {
				_, err := env.Await(env.NextTick())
				env.Export("d", 1)
				return err
			},
		})
		h.engine.Define("file:///app/via-dep.mjs", testutil.Script{
			Requests: []engine.Request{{Specifier: "./dep.mjs", Names: []string{"d"}}},
		})
	}

	t.Run("force", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, paths, InteropForce)
		define(h)
		ctx := context.Background()

		v, err := h.eval.Require(ctx, "/app/sync.mjs", "")
		if err != nil {
			t.Fatalf("Require(sync) error = %v", err)
		}
		if diff := cmp.Diff(map[string]any{"v": 1, "w": "two"}, v); diff != "" {
			t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
		}

		for _, spec := range []string{"/app/async.mjs", "/app/via-dep.mjs"} {
			_, err = h.eval.Require(ctx, spec, "")
			var asyncErr *moderr.AsyncModuleRequiresAwaitError
			if !errors.As(err, &asyncErr) {
				t.Fatalf("Require(%s) error = %v, want AsyncModuleRequiresAwaitError", spec, err)
			}
		}
		if n := h.engine.Runs("file:///app/async.mjs") + h.engine.Runs("file:///app/dep.mjs"); n != 0 {
			t.Errorf("suspending bodies ran %d times before failing", n)
		}

		// Once evaluated through the asynchronous entry point, a suspended module
		// still cannot be read synchronously.
		if _, err := h.importNS(t, "/app/async.mjs"); err != nil {
			t.Fatal(err)
		}
		if _, err := h.eval.Require(ctx, "/app/async.mjs", ""); !errors.Is(err, moderr.ErrAsyncModuleRequiresAwait) {
			t.Errorf("Require(evaluated async) error = %v", err)
		}
	})

	t.Run("deny", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, paths, InteropDeny)
		define(h)
		ctx := context.Background()

		_, err := h.eval.Require(ctx, "/app/sync.mjs", "")
		if !errors.Is(err, moderr.ErrSyncFormatMismatch) {
			t.Fatalf("Require() error = %v, want SyncFormatMismatch", err)
		}
		if _, err := h.importNS(t, "/app/sync.mjs"); err != nil {
			t.Fatal(err)
		}
		v, err := h.eval.Require(ctx, "/app/sync.mjs", "")
		if err != nil {
			t.Fatalf("Require() after evaluation error = %v", err)
		}
		if diff := cmp.Diff(map[string]any{"v": 1, "w": "two"}, v); diff != "" {
			t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestSuspensionDoesNotBlockUnrelatedModules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/a.mjs", "/app/b.mjs", "/app/c.mjs"), InteropForce)
	h.engine.Define("file:///app/a.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./b.mjs", Names: []string{"b"}}},
		Body: func(env engine.Env) error {
			b, err := env.Import("./b.mjs", "b")
			if err != nil {
				return err
			}
			v, err := b.Get()
			env.Export("a", v)
			return err
		},
	})
	h.engine.Define("file:///app/b.mjs", testutil.Script{
		Exports:  []string{"b"},
		Suspends: true,
		Body: func(env engine.Env) error {
			if _, err := env.Await(env.NextTick()); err != nil {
				return err
			}
			env.Export("b", "ready")
			return nil
		},
	})
	h.engine.Define("file:///app/c.mjs", testutil.Script{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pa := h.eval.Import(ctx, "/app/a.mjs", "")
	pc := h.eval.Import(ctx, "/app/c.mjs", "")
	if _, err := h.loop.RunUntil(ctx, taskqueue.All(h.loop, []*taskqueue.Promise{pa, pc})); err != nil {
		t.Fatalf("imports failed: %v", err)
	}

	want := []string{"file:///app/b.mjs", "file:///app/c.mjs", "file:///app/a.mjs"}
	if diff := cmp.Diff(want, h.engine.Order()); diff != "" {
		t.Errorf("execution order mismatch (-want +got):\n%s", diff)
	}

	v, _ := pa.Result()
	snap, err := v.(*registry.Namespace).Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(map[string]any{"a": "ready"}, snap); diff != "" {
		t.Errorf("a namespace mismatch (-want +got):\n%s", diff)
	}
	for _, url := range []string{"file:///app/a.mjs", "file:///app/b.mjs"} {
		rec, _ := h.eval.Registry().Lookup(url)
		if !rec.Suspended() {
			t.Errorf("%s was not marked suspended", url)
		}
	}
}

func TestStaticImportOfDynamic(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/d.cjs", "/app/s.mjs", "/app/bad.mjs"), InteropForce)
	h.engine.Define("file:///app/d.cjs", testutil.Script{Body: func(env engine.Env) error {
		env.Exports().Set("k", 1)
		return nil
	}})
	h.engine.Define("file:///app/s.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./d.cjs", Names: []string{"k", "default"}}},
		Body: func(env engine.Env) error {
			k, err := env.Import("./d.cjs", "k")
			if err != nil {
				return err
			}
			v, err := k.Get()
			if err != nil {
				return err
			}
			env.Export("k", v)
			return nil
		},
	})
	h.engine.Define("file:///app/bad.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./d.cjs", Names: []string{"nope"}}},
		Body: func(env engine.Env) error {
			_, err := env.Import("./d.cjs", "nope")
			return err
		},
	})

	ns, err := h.importNS(t, "/app/s.mjs")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	snap, _ := ns.Snapshot()
	if diff := cmp.Diff(map[string]any{"k": 1}, snap); diff != "" {
		t.Errorf("namespace mismatch (-want +got):\n%s", diff)
	}

	_, err = h.importNS(t, "/app/bad.mjs")
	var missing *moderr.MissingExportError
	if !errors.As(err, &missing) || missing.Name != "nope" || missing.Module != "file:///app/d.cjs" {
		t.Errorf("Import(bad) error = %v, want MissingExportError for nope", err)
	}
}

func TestLinkTimeMissingExport(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/lib.mjs", "/app/main.mjs"), InteropForce)
	h.engine.Define("file:///app/lib.mjs", testutil.Script{Exports: []string{"v"}})
	h.engine.Define("file:///app/main.mjs", testutil.Script{
		Requests: []engine.Request{{Specifier: "./lib.mjs", Names: []string{"v", "missing"}}},
	})

	_, err := h.importNS(t, "/app/main.mjs")
	if moderr.CodeOf(err) != moderr.CodeMissingExport {
		t.Errorf("Import() error = %v, want %s", err, moderr.CodeMissingExport)
	}
	if len(h.engine.Order()) != 0 {
		t.Errorf("bodies ran before linking succeeded: %v", h.engine.Order())
	}
}

func TestSyntheticModules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, map[string]string{
		"/app/data.json": `{"name": "demo", "tags": ["a", "b"]}`,
		"/app/main.cjs":  "-- body",
	}, InteropForce)
	var gotOS any
	h.engine.Define("file:///app/main.cjs", testutil.Script{Body: func(env engine.Env) error {
		var err error
		gotOS, err = env.Require("os")
		return err
	}})

	v, err := h.eval.Require(context.Background(), "/app/data.json", "")
	if err != nil {
		t.Fatalf("Require(json) error = %v", err)
	}
	doc, ok := v.(*cueutil.OrderedMap)
	if !ok {
		t.Fatalf("json exports type = %T", v)
	}
	if diff := cmp.Diff([]string{"name", "tags"}, doc.Keys()); diff != "" {
		t.Errorf("json keys mismatch (-want +got):\n%s", diff)
	}

	ns, err := h.importNS(t, "/app/data.json")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"default", "name", "tags"}, ns.Names()); diff != "" {
		t.Errorf("json namespace names mismatch (-want +got):\n%s", diff)
	}

	if _, err := h.eval.Require(context.Background(), "/app/main.cjs", ""); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(builtins["os"], gotOS); diff != "" {
		t.Errorf("builtin exports mismatch (-want +got):\n%s", diff)
	}
}

func TestHooksDriveVirtualModules(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/main.cjs"), InteropForce)
	h.chain.Register(hooks.Hooks{
		Name: "virtual",
		Resolve: func(ctx context.Context, spec string, rc hooks.ResolveContext, next hooks.NextResolve) (hooks.ResolveResult, error) {
			if spec == "virtual:config" {
				return hooks.ResolveResult{URL: "file:///virtual/config.mjs", Format: types.FormatStatic, ShortCircuit: true}, nil
			}
			return next(ctx, spec, rc)
		},
		Load: func(ctx context.Context, url string, lc hooks.LoadContext, next hooks.NextLoad) (hooks.LoadResult, error) {
			if url == "file:///virtual/config.mjs" {
				return hooks.LoadResult{Exports: map[string]any{"debug": true}, ShortCircuit: true}, nil
			}
			return next(ctx, url, lc)
		},
	})
	h.chain.Register(hooks.Hooks{
		Name: "override",
		Evaluate: func(ctx context.Context, ec hooks.EvaluateContext, next hooks.NextEvaluate) (hooks.EvaluateResult, error) {
			if ec.Module.URL() == "file:///app/main.cjs" {
				ec.Module.SetExports("replaced")
				return hooks.EvaluateResult{ShortCircuit: true}, nil
			}
			return next(ctx, ec)
		},
	})
	h.engine.Define("file:///app/main.cjs", testutil.Script{Body: func(engine.Env) error {
		return errors.New("body must not run")
	}})

	ns, err := h.importNS(t, "virtual:config")
	if err != nil {
		t.Fatalf("Import(virtual) error = %v", err)
	}
	snap, _ := ns.Snapshot()
	if diff := cmp.Diff(map[string]any{"default": map[string]any{"debug": true}, "debug": true}, snap); diff != "" {
		t.Errorf("virtual namespace mismatch (-want +got):\n%s", diff)
	}

	v, err := h.eval.Require(context.Background(), "/app/main.cjs", "")
	if err != nil || v != "replaced" {
		t.Errorf("Require(main) = %v, %v, want replaced", v, err)
	}
	if h.engine.Runs("file:///app/main.cjs") != 0 {
		t.Error("short-circuited body ran")
	}
}

func TestResolutionErrors(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/main.cjs"), InteropForce)
	ctx := context.Background()

	if _, err := h.eval.Require(ctx, "/app/missing.cjs", ""); !errors.Is(err, moderr.ErrNotFound) {
		t.Errorf("Require(missing) error = %v, want NotFound", err)
	}
	if _, err := h.importNS(t, ""); !errors.Is(err, moderr.ErrInvalidSpecifier) {
		t.Errorf("Import(\"\") error = %v, want InvalidSpecifier", err)
	}
	if h.eval.Registry().Len() != 0 {
		t.Errorf("failed resolutions created %d records", h.eval.Registry().Len())
	}
}

func TestConcurrentRequiresConverge(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/shared.cjs"), InteropForce)
	h.engine.Define("file:///app/shared.cjs", testutil.Script{Body: func(env engine.Env) error {
		env.Exports().Set("n", 1)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const callers = 8
	results := make([]any, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = h.eval.Require(ctx, "/app/shared.cjs", "")
		}()
	}
	wg.Wait()

	for i := range callers {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Errorf("caller %d observed a different exports value", i)
		}
	}
	if n := h.engine.Runs("file:///app/shared.cjs"); n != 1 {
		t.Errorf("shared body ran %d times, want 1", n)
	}
}

func TestIdempotentResolution(t *testing.T) {
	t.Parallel()

	h := newHarness(t, files("/app/lib/index.js", "/app/main.cjs"), InteropForce)
	h.engine.Define("file:///app/lib/index.js", testutil.Script{})
	ctx := context.Background()

	first, err := h.eval.Link(ctx, "./lib", "file:///app/main.cjs")
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.eval.Link(ctx, "./lib/index.js", "file:///app/main.cjs")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("two paths to the same file produced different records")
	}
	if first.State() != registry.StateLoaded {
		t.Errorf("Link() left the record %v, want loaded", first.State())
	}
}

func TestParseInteropPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    InteropPolicy
		wantStr string
		wantErr bool
	}{
		{"", InteropForce, "force", false},
		{"force", InteropForce, "force", false},
		{"deny", InteropDeny, "deny", false},
		{"maybe", 0, "", true},
	}
	for _, tt := range tests {
		got, err := ParseInteropPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseInteropPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if tt.wantErr {
			continue
		}
		if got != tt.want || got.String() != tt.wantStr {
			t.Errorf("ParseInteropPolicy(%q) = %v (%s)", tt.in, got, got)
		}
	}
}
