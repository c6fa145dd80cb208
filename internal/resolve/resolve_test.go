// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"

	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

var (
	importConds  = types.NewConditions("import")
	requireConds = types.NewConditions("require")
)

const mainURL = "file:///app/src/main.js"

var fixtureFiles = map[string]string{
	"/app/package.json": `{
		"name": "app",
		"type": "module",
		"exports": {".": "./src/main.js", "./feature": "./src/feature.js"},
		"imports": {
			"#util": "./src/util.js",
			"#dep": {"import": "dep", "default": "./src/fallback.js"},
			"#int/*": "./src/internal/*.js"
		}
	}`,
	"/app/src/main.js":               ``,
	"/app/src/util.js":               ``,
	"/app/src/feature.js":            ``,
	"/app/src/fallback.js":           ``,
	"/app/src/internal/a.js":         ``,
	"/app/src/lib.cjs":               ``,
	"/app/src/data.json":             `{}`,
	"/app/src/noext":                 ``,
	"/app/src/dir/index.js":          ``,
	"/app/src/withmain/package.json": `{"main": "entry"}`,
	"/app/src/withmain/entry.js":     ``,
	"/app/src/empty/readme.txt":      ``,

	"/app/node_modules/pkg/package.json": `{
		"name": "pkg",
		"exports": {
			"./a": "./a.js",
			"./feat/*": {"import": "./feat/*.mjs", "require": "./feat/*.cjs"},
			"./feat/internal/*": null,
			"./assets/": "./static/"
		}
	}`,
	"/app/node_modules/pkg/a.js":                 ``,
	"/app/node_modules/pkg/b.js":                 ``,
	"/app/node_modules/pkg/feat/x.mjs":           ``,
	"/app/node_modules/pkg/feat/x.cjs":           ``,
	"/app/node_modules/pkg/feat/internal/y.mjs":  ``,
	"/app/node_modules/pkg/static/logo.json":     `{}`,
	"/app/node_modules/legacy/package.json":      `{"main": "lib/start"}`,
	"/app/node_modules/legacy/lib/start.js":      ``,
	"/app/node_modules/legacy/other.js":          ``,
	"/app/node_modules/noman/index.js":           ``,
	"/app/node_modules/dep/index.js":             ``,
	"/app/node_modules/@scope/tool/package.json": `{"exports": {".": {"import": "./esm.mjs", "require": "./cjs.cjs"}}}`,
	"/app/node_modules/@scope/tool/esm.mjs":      ``,
	"/app/node_modules/@scope/tool/cjs.cjs":      ``,
	"/app/node_modules/bad/package.json":         `{"exports": {"./x": "../escape.js", "./y": ["../bad.js", "./ok.js"], "./z": "./node_modules/q.js"}}`,
	"/app/node_modules/bad/ok.js":                ``,
	"/app/node_modules/cond/package.json":        `{"exports": {"import": null, "default": "./d.js"}}`,
	"/app/node_modules/cond/d.js":                ``,
	"/node_modules/global/index.js":              ``,
}

// countingFs records filesystem lookups so tests can assert that validation fails
// before any I/O.
type countingFs struct {
	afero.Fs
	calls atomic.Int32
}

func (c *countingFs) Stat(name string) (os.FileInfo, error) {
	c.calls.Add(1)
	return c.Fs.Stat(name)
}

func (c *countingFs) Open(name string) (afero.File, error) {
	c.calls.Add(1)
	return c.Fs.Open(name)
}

func newFixture(t *testing.T, opts Options) (*Resolver, *countingFs) {
	t.Helper()

	mem := afero.NewMemMapFs()
	for path, content := range fixtureFiles {
		if err := afero.WriteFile(mem, path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	fsys := &countingFs{Fs: mem}
	opts.FS = fsys
	r, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r, fsys
}

func TestResolve(t *testing.T) {
	t.Parallel()

	r, _ := newFixture(t, Options{IsBuiltin: func(name string) bool { return name == "fs" }})

	tests := []struct {
		name       string
		specifier  string
		parent     string
		conditions types.Conditions
		wantURL    string
		wantFormat types.Format
	}{
		{"relative with extension", "./util.js", mainURL, importConds, "file:///app/src/util.js", types.FormatStatic},
		{"extension probing", "./util", mainURL, importConds, "file:///app/src/util.js", types.FormatStatic},
		{"parent directory", "../src/util.js", mainURL, importConds, "file:///app/src/util.js", types.FormatStatic},
		{"cjs extension", "./lib.cjs", mainURL, importConds, "file:///app/src/lib.cjs", types.FormatDynamic},
		{"json extension", "./data.json", mainURL, importConds, "file:///app/src/data.json", types.FormatJSON},
		{"extensionless uses scope type", "./noext", mainURL, importConds, "file:///app/src/noext", types.FormatStatic},
		{"directory index", "./dir", mainURL, importConds, "file:///app/src/dir/index.js", types.FormatStatic},
		{"directory main", "./withmain", mainURL, importConds, "file:///app/src/withmain/entry.js", types.FormatDynamic},
		{"absolute path", "/app/src/util.js", mainURL, importConds, "file:///app/src/util.js", types.FormatStatic},
		{"file URL", "file:///app/src/util.js", mainURL, importConds, "file:///app/src/util.js", types.FormatStatic},
		{"no referrer uses base dir", "./src/util.js", "", importConds, "file:///app/src/util.js", types.FormatStatic},

		{"exports subpath", "pkg/a", mainURL, importConds, "file:///app/node_modules/pkg/a.js", types.FormatDynamic},
		{"exports pattern import", "pkg/feat/x", mainURL, importConds, "file:///app/node_modules/pkg/feat/x.mjs", types.FormatStatic},
		{"exports pattern require", "pkg/feat/x", mainURL, requireConds, "file:///app/node_modules/pkg/feat/x.cjs", types.FormatDynamic},
		{"exports folder mapping", "pkg/assets/logo.json", mainURL, importConds, "file:///app/node_modules/pkg/static/logo.json", types.FormatJSON},
		{"scoped package import", "@scope/tool", mainURL, importConds, "file:///app/node_modules/@scope/tool/esm.mjs", types.FormatStatic},
		{"scoped package require", "@scope/tool", mainURL, requireConds, "file:///app/node_modules/@scope/tool/cjs.cjs", types.FormatDynamic},
		{"array fallback skips invalid target", "bad/y", mainURL, importConds, "file:///app/node_modules/bad/ok.js", types.FormatDynamic},
		{"conditions fall through to default", "cond", mainURL, requireConds, "file:///app/node_modules/cond/d.js", types.FormatDynamic},
		{"legacy main", "legacy", mainURL, importConds, "file:///app/node_modules/legacy/lib/start.js", types.FormatDynamic},
		{"legacy subpath", "legacy/other", mainURL, importConds, "file:///app/node_modules/legacy/other.js", types.FormatDynamic},
		{"package without manifest", "noman", mainURL, importConds, "file:///app/node_modules/noman/index.js", types.FormatDynamic},
		{"walks up to the root", "global", mainURL, importConds, "file:///node_modules/global/index.js", types.FormatDynamic},

		{"self reference root", "app", mainURL, importConds, "file:///app/src/main.js", types.FormatStatic},
		{"self reference subpath", "app/feature", mainURL, importConds, "file:///app/src/feature.js", types.FormatStatic},

		{"imports exact", "#util", mainURL, importConds, "file:///app/src/util.js", types.FormatStatic},
		{"imports bare target", "#dep", mainURL, importConds, "file:///app/node_modules/dep/index.js", types.FormatDynamic},
		{"imports default branch", "#dep", mainURL, requireConds, "file:///app/src/fallback.js", types.FormatStatic},
		{"imports pattern", "#int/a", mainURL, importConds, "file:///app/src/internal/a.js", types.FormatStatic},

		{"builtin bare name", "fs", mainURL, importConds, "builtin:fs", types.FormatBuiltin},
		{"builtin URL", "builtin:fs", mainURL, importConds, "builtin:fs", types.FormatBuiltin},
		{"data URL", "data:text/javascript,export%20x", mainURL, importConds, "data:text/javascript,export%20x", types.FormatStatic},
		{"json data URL", "data:application/json,{}", mainURL, importConds, "data:application/json,{}", types.FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.parent == "" {
				r := mustNew(t, r, "/app")
				got, err := r.Resolve(t.Context(), tt.specifier, tt.parent, tt.conditions)
				checkResolution(t, got, err, tt.wantURL, tt.wantFormat)
				return
			}
			got, err := r.Resolve(t.Context(), tt.specifier, tt.parent, tt.conditions)
			checkResolution(t, got, err, tt.wantURL, tt.wantFormat)
		})
	}
}

func mustNew(t *testing.T, base *Resolver, baseDir string) *Resolver {
	t.Helper()
	r, err := New(Options{FS: base.fs, Manifests: base.manifests, BaseDir: baseDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func checkResolution(t *testing.T, got Resolution, err error, wantURL string, wantFormat types.Format) {
	t.Helper()
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.URL != wantURL || got.Format != wantFormat {
		t.Errorf("Resolve() = {%s %s}, want {%s %s}", got.URL, got.Format, wantURL, wantFormat)
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	r, _ := newFixture(t, Options{IsBuiltin: func(name string) bool { return name == "fs" }})

	tests := []struct {
		name      string
		specifier string
		parent    string
		want      error
		wantCode  string
	}{
		{"missing relative file", "./nope", mainURL, moderr.ErrNotFound, moderr.CodeNotFound},
		{"directory without index", "./empty", mainURL, moderr.ErrNotFound, moderr.CodeNotFound},
		{"missing package", "nopkg", mainURL, moderr.ErrNotFound, moderr.CodeNotFound},
		{"unexported subpath with existing file", "pkg/b", mainURL, moderr.ErrPackagePathNotExported, moderr.CodePackagePathNotExported},
		{"unexported root", "pkg", mainURL, moderr.ErrPackagePathNotExported, moderr.CodePackagePathNotExported},
		{"null pattern target", "pkg/feat/internal/y", mainURL, moderr.ErrPackagePathNotExported, moderr.CodePackagePathNotExported},
		{"null condition branch", "cond", mainURL, moderr.ErrPackagePathNotExported, moderr.CodePackagePathNotExported},
		{"target escapes package", "bad/x", mainURL, moderr.ErrInvalidPackageTarget, moderr.CodeInvalidPackageTarget},
		{"target with node_modules segment", "bad/z", mainURL, moderr.ErrInvalidPackageTarget, moderr.CodeInvalidPackageTarget},
		{"undefined import", "#missing", mainURL, moderr.ErrPackagePathNotExported, moderr.CodePackageImportNotDefined},
		{"unknown builtin", "builtin:nope", mainURL, moderr.ErrNotFound, moderr.CodeNotFound},
		{"unsupported scheme", "ftp://host/x.js", mainURL, moderr.ErrUnsupportedScheme, moderr.CodeUnsupportedScheme},
		{"http disabled", "https://example.com/x.js", mainURL, moderr.ErrUnsupportedScheme, moderr.CodeUnsupportedScheme},
		{"unsupported data media type", "data:text/plain,x", mainURL, moderr.ErrInvalidSpecifier, moderr.CodeInvalidSpecifier},
		{"relative under data referrer", "./x.js", "data:text/javascript,x", moderr.ErrInvalidSpecifier, moderr.CodeInvalidSpecifier},
		{"bare under builtin referrer", "pkg", "builtin:fs", moderr.ErrInvalidSpecifier, moderr.CodeInvalidSpecifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := r.Resolve(t.Context(), tt.specifier, tt.parent, importConds)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.specifier, err, tt.want)
			}
			if got := moderr.CodeOf(err); got != tt.wantCode {
				t.Errorf("CodeOf() = %q, want %q", got, tt.wantCode)
			}
		})
	}
}

func TestResolve_InvalidSpecifierFailsBeforeIO(t *testing.T) {
	t.Parallel()

	specifiers := []string{"", "@scope", "@scope/", "#", "#/x", "#dir/", ".hidden", `a\b`, "pkg%2Fa", "./a%5Cb", "a%b", "x\x00y"}

	for _, spec := range specifiers {
		t.Run(spec, func(t *testing.T) {
			t.Parallel()

			r, fsys := newFixture(t, Options{})
			_, err := r.Resolve(t.Context(), spec, mainURL, importConds)
			if !errors.Is(err, moderr.ErrInvalidSpecifier) {
				t.Fatalf("Resolve(%q) error = %v, want ErrInvalidSpecifier", spec, err)
			}
			if n := fsys.calls.Load(); n != 0 {
				t.Errorf("Resolve(%q) touched the filesystem %d times", spec, n)
			}
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	r, _ := newFixture(t, Options{})

	specs := []string{"./util", "./util.js", "../src/util.js", "/app/src/util.js", "file:///app/src/./util.js", "#util"}
	var first Resolution
	for i, spec := range specs {
		got, err := r.Resolve(t.Context(), spec, mainURL, importConds)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", spec, err)
		}
		if i == 0 {
			first = got
			continue
		}
		if got != first {
			t.Errorf("Resolve(%q) = %+v, want %+v", spec, got, first)
		}
	}
}

func TestResolve_HTTP(t *testing.T) {
	t.Parallel()

	r, _ := newFixture(t, Options{AllowHTTP: true})

	got, err := r.Resolve(t.Context(), "https://example.com/lib/mod.js#frag", mainURL, importConds)
	checkResolution(t, got, err, "https://example.com/lib/mod.js", types.FormatStatic)

	got, err = r.Resolve(t.Context(), "../dep.cjs", "https://example.com/lib/mod.js", importConds)
	checkResolution(t, got, err, "https://example.com/dep.cjs", types.FormatDynamic)

	_, err = r.Resolve(t.Context(), "pkg", "https://example.com/lib/mod.js", importConds)
	if !errors.Is(err, moderr.ErrInvalidSpecifier) {
		t.Errorf("bare specifier under remote referrer error = %v, want ErrInvalidSpecifier", err)
	}
}

func TestResolve_CanceledContext(t *testing.T) {
	t.Parallel()

	r, _ := newFixture(t, Options{})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if _, err := r.Resolve(ctx, "./util", mainURL, importConds); err == nil {
		t.Error("Resolve() with canceled context should fail")
	}
}
