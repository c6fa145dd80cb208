// SPDX-License-Identifier: MPL-2.0

package moderr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
		code     string
	}{
		{"not found", &NotFoundError{Specifier: "./a"}, ErrNotFound, CodeNotFound},
		{"invalid specifier", &InvalidSpecifierError{Specifier: "@scope"}, ErrInvalidSpecifier, CodeInvalidSpecifier},
		{"not exported", &PackagePathNotExportedError{Subpath: "./b"}, ErrPackagePathNotExported, CodePackagePathNotExported},
		{"import not defined", &PackagePathNotExportedError{Subpath: "#x", Imports: true}, ErrPackagePathNotExported, CodePackageImportNotDefined},
		{"invalid target", &InvalidPackageTargetError{Key: ".", Target: "../x"}, ErrInvalidPackageTarget, CodeInvalidPackageTarget},
		{"invalid manifest", &InvalidManifestError{Path: "package.json"}, ErrInvalidManifest, CodeInvalidManifest},
		{"hook contract", &InvalidHookContractError{Stage: "resolve", HookID: 3}, ErrInvalidHookContract, CodeInvalidHookContract},
		{"scheme", &UnsupportedSchemeError{URL: "ftp://x", Scheme: "ftp"}, ErrUnsupportedScheme, CodeUnsupportedScheme},
		{"sync mismatch", &SyncFormatMismatchError{URL: "file:///m.mjs"}, ErrSyncFormatMismatch, CodeSyncFormatMismatch},
		{"async", &AsyncModuleRequiresAwaitError{URL: "file:///m.mjs", Pending: true}, ErrAsyncModuleRequiresAwait, CodeAsyncModuleRequiresAwait},
		{"binding", &BindingNotInitializedError{Name: "x", Module: "file:///a.mjs"}, ErrBindingNotInitialized, CodeBindingNotInitialized},
		{"missing export", &MissingExportError{Name: "x", Module: "file:///a.mjs"}, ErrMissingExport, CodeMissingExport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%T, sentinel) = false", tt.err)
			}
			wrapped := fmt.Errorf("loading: %w", tt.err)
			if got := CodeOf(wrapped); got != tt.code {
				t.Errorf("CodeOf() = %q, want %q", got, tt.code)
			}
			if tt.err.Error() == "" {
				t.Error("Error() returned empty string")
			}
		})
	}
}

func TestInvalidManifestErrorKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("unexpected end of JSON input")
	err := &InvalidManifestError{Path: "/p/package.json", Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("cause should be reachable through errors.Is")
	}
	if !errors.Is(err, ErrInvalidManifest) {
		t.Error("sentinel should be reachable through errors.Is")
	}
	if !strings.Contains(err.Error(), "unexpected end") {
		t.Errorf("Error() = %q, want cause text", err.Error())
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	if got := CodeOf(nil); got != "" {
		t.Errorf("CodeOf(nil) = %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q", got)
	}
	if got := CodeOf(&ThrownError{URL: "file:///a.cjs", Value: "boom"}); got != CodeThrown {
		t.Errorf("CodeOf(thrown) = %q, want %q", got, CodeThrown)
	}

	evalErr := &EvaluationError{URL: "file:///z.cjs", Referrers: []string{"file:///a.cjs"}, Err: errors.New("boom")}
	if got := CodeOf(evalErr); got != CodeThrown {
		t.Errorf("CodeOf(evaluation) = %q, want %q", got, CodeThrown)
	}
	nested := &EvaluationError{URL: "file:///a.cjs", Err: &NotFoundError{Specifier: "./gone"}}
	if got := CodeOf(nested); got != CodeNotFound {
		t.Errorf("CodeOf(nested) = %q, want %q", got, CodeNotFound)
	}

	var as *NotFoundError
	if !errors.As(fmt.Errorf("ctx: %w", &NotFoundError{Specifier: "x"}), &as) || as.Specifier != "x" {
		t.Error("errors.As should recover *NotFoundError")
	}
}

func TestCodesAreUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for _, c := range Codes() {
		if seen[c] {
			t.Errorf("duplicate code %q", c)
		}
		seen[c] = true
	}
	if len(seen) != 13 {
		t.Errorf("len(Codes()) = %d, want 13", len(seen))
	}
}

func TestMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&NotFoundError{Specifier: "./x", Parent: "file:///a.cjs"}, `cannot find module "./x" imported from file:///a.cjs`},
		{&NotFoundError{Specifier: "pkg", Kind: "package"}, `cannot find package "pkg"`},
		{&PackagePathNotExportedError{Subpath: ".", Manifest: "/p/package.json"}, `no "exports" main defined in /p/package.json`},
		{&MissingExportError{Name: "y", Module: "file:///b.mjs"}, `module file:///b.mjs does not provide an export named "y"`},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}
