// SPDX-License-Identifier: MPL-2.0

package moderr

import (
	"errors"
	"fmt"
	"strings"
)

// Stable error codes.
const (
	CodeNotFound                 = "ERR_MODULE_NOT_FOUND"
	CodeInvalidSpecifier         = "ERR_INVALID_MODULE_SPECIFIER"
	CodePackagePathNotExported   = "ERR_PACKAGE_PATH_NOT_EXPORTED"
	CodePackageImportNotDefined  = "ERR_PACKAGE_IMPORT_NOT_DEFINED"
	CodeInvalidPackageTarget     = "ERR_INVALID_PACKAGE_TARGET"
	CodeInvalidManifest          = "ERR_INVALID_PACKAGE_CONFIG"
	CodeInvalidHookContract      = "ERR_INVALID_HOOK_CONTRACT"
	CodeUnsupportedScheme        = "ERR_UNSUPPORTED_URL_SCHEME"
	CodeSyncFormatMismatch       = "ERR_REQUIRE_STATIC"
	CodeAsyncModuleRequiresAwait = "ERR_REQUIRE_ASYNC_MODULE"
	CodeBindingNotInitialized    = "ERR_BINDING_NOT_INITIALIZED"
	CodeMissingExport            = "ERR_MISSING_EXPORT"
	CodeThrown                   = "ERR_MODULE_THREW"
)

var (
	// ErrNotFound is returned when a specifier cannot be mapped to an existing resource.
	ErrNotFound = errors.New("module not found")
	// ErrInvalidSpecifier is returned for malformed specifiers, before any I/O happens.
	ErrInvalidSpecifier = errors.New("invalid module specifier")
	// ErrPackagePathNotExported is returned when a manifest's exports or imports map
	// exists but does not expose the requested subpath.
	ErrPackagePathNotExported = errors.New("package path not exported")
	// ErrInvalidPackageTarget is returned when an exports/imports target is malformed.
	ErrInvalidPackageTarget = errors.New("invalid package target")
	// ErrInvalidManifest is returned when a package manifest cannot be decoded.
	ErrInvalidManifest = errors.New("invalid package manifest")
	// ErrInvalidHookContract is returned when a hook neither continued the chain nor
	// marked its result as short-circuiting, or returned a malformed result.
	ErrInvalidHookContract = errors.New("invalid hook contract")
	// ErrUnsupportedScheme is returned for URLs whose scheme no fetcher handles.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrSyncFormatMismatch is returned when the synchronous entry point is asked to
	// evaluate a static-format module it may not complete.
	ErrSyncFormatMismatch = errors.New("static-format module cannot be required synchronously")
	// ErrAsyncModuleRequiresAwait is returned when the synchronous entry point reaches a
	// static-format module whose evaluation suspends or is still pending.
	ErrAsyncModuleRequiresAwait = errors.New("module evaluation is asynchronous")
	// ErrBindingNotInitialized is returned when a live binding is read before its
	// owning module finished evaluating.
	ErrBindingNotInitialized = errors.New("binding not initialized")
	// ErrMissingExport is returned when an importer names a binding its dependency
	// does not provide.
	ErrMissingExport = errors.New("requested export not provided")
)

type (
	// NotFoundError describes a specifier that resolved to nothing.
	NotFoundError struct {
		// Specifier is the raw specifier (or URL) that was looked up.
		Specifier string
		// Parent is the referrer URL, if any.
		Parent string
		// Kind is "module", "package" or "directory".
		Kind string
	}

	// InvalidSpecifierError describes a malformed specifier.
	InvalidSpecifierError struct {
		Specifier string
		Parent    string
		Reason    string
	}

	// PackagePathNotExportedError is returned when an exports (or imports) map is
	// present but lists no usable target for the requested subpath.
	PackagePathNotExportedError struct {
		// Subpath is the package subpath ("./b") or imports name ("#x").
		Subpath string
		// Manifest is the path of the manifest that denied access.
		Manifest string
		Parent   string
		// Imports is true when the denial came from the "imports" map.
		Imports bool
	}

	// InvalidPackageTargetError is returned when a manifest target is malformed
	// (escapes the package, has forbidden segments, ...).
	InvalidPackageTargetError struct {
		Key      string
		Target   string
		Manifest string
		Reason   string
	}

	// InvalidManifestError is returned when a manifest cannot be parsed or violates
	// structural rules.
	InvalidManifestError struct {
		Path   string
		Reason string
		Cause  error
	}

	// InvalidHookContractError names the registration that broke the chain contract.
	InvalidHookContractError struct {
		Stage    string
		HookID   uint64
		HookName string
		Reason   string
	}

	// UnsupportedSchemeError describes a URL no fetcher can read.
	UnsupportedSchemeError struct {
		URL       string
		Scheme    string
		Supported []string
	}

	// SyncFormatMismatchError is returned by the synchronous entry point for a
	// static-format target it is not allowed to complete.
	SyncFormatMismatchError struct {
		URL    string
		Parent string
	}

	// AsyncModuleRequiresAwaitError is returned by the synchronous entry point when
	// the target's evaluation suspends (Pending=false) or is already suspended and
	// still pending (Pending=true).
	AsyncModuleRequiresAwaitError struct {
		URL     string
		Parent  string
		Pending bool
	}

	// BindingNotInitializedError is returned when a live binding is read too early.
	BindingNotInitializedError struct {
		Name   string
		Module string
	}

	// MissingExportError is returned when an imported name does not exist.
	MissingExportError struct {
		Name     string
		Module   string
		Importer string
	}

	// ThrownError wraps a non-error value thrown by a module body.
	ThrownError struct {
		URL   string
		Value any
	}

	// EvaluationError records that a module body failed, together with the chain of
	// referrers that led to it (outermost first).
	EvaluationError struct {
		URL       string
		Referrers []string
		Err       error
	}
)

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "module"
	}
	if e.Parent != "" {
		return fmt.Sprintf("cannot find %s %q imported from %s", kind, e.Specifier, e.Parent)
	}
	return fmt.Sprintf("cannot find %s %q", kind, e.Specifier)
}

// Unwrap returns ErrNotFound for errors.Is() compatibility.
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func (e *InvalidSpecifierError) Error() string {
	msg := fmt.Sprintf("invalid module specifier %q", e.Specifier)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Parent != "" {
		msg += " (imported from " + e.Parent + ")"
	}
	return msg
}

// Unwrap returns ErrInvalidSpecifier for errors.Is() compatibility.
func (e *InvalidSpecifierError) Unwrap() error { return ErrInvalidSpecifier }

func (e *PackagePathNotExportedError) Error() string {
	if e.Imports {
		return fmt.Sprintf("package import specifier %q is not defined in %s", e.Subpath, e.Manifest)
	}
	if e.Subpath == "." {
		return fmt.Sprintf("no \"exports\" main defined in %s", e.Manifest)
	}
	return fmt.Sprintf("package subpath %q is not defined by \"exports\" in %s", e.Subpath, e.Manifest)
}

// Unwrap returns ErrPackagePathNotExported for errors.Is() compatibility.
func (e *PackagePathNotExportedError) Unwrap() error { return ErrPackagePathNotExported }

func (e *InvalidPackageTargetError) Error() string {
	msg := fmt.Sprintf("invalid target %q for %q in %s", e.Target, e.Key, e.Manifest)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap returns ErrInvalidPackageTarget for errors.Is() compatibility.
func (e *InvalidPackageTargetError) Unwrap() error { return ErrInvalidPackageTarget }

func (e *InvalidManifestError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "invalid package manifest %s", e.Path)
	if e.Reason != "" {
		sb.WriteString(": " + e.Reason)
	}
	if e.Cause != nil {
		sb.WriteString(": " + e.Cause.Error())
	}
	return sb.String()
}

// Unwrap returns ErrInvalidManifest and the underlying cause.
func (e *InvalidManifestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvalidManifest}
	}
	return []error{ErrInvalidManifest, e.Cause}
}

func (e *InvalidHookContractError) Error() string {
	name := e.HookName
	if name == "" {
		name = "<anonymous>"
	}
	return fmt.Sprintf("%s hook #%d (%s) violated the chain contract: %s", e.Stage, e.HookID, name, e.Reason)
}

// Unwrap returns ErrInvalidHookContract for errors.Is() compatibility.
func (e *InvalidHookContractError) Unwrap() error { return ErrInvalidHookContract }

func (e *UnsupportedSchemeError) Error() string {
	msg := fmt.Sprintf("unsupported URL scheme %q in %s", e.Scheme, e.URL)
	if len(e.Supported) > 0 {
		msg += " (supported: " + strings.Join(e.Supported, ", ") + ")"
	}
	return msg
}

// Unwrap returns ErrUnsupportedScheme for errors.Is() compatibility.
func (e *UnsupportedSchemeError) Unwrap() error { return ErrUnsupportedScheme }

func (e *SyncFormatMismatchError) Error() string {
	msg := fmt.Sprintf("cannot require static-format module %s synchronously", e.URL)
	if e.Parent != "" {
		msg += " from " + e.Parent
	}
	return msg + "; use the asynchronous import entry point instead"
}

// Unwrap returns ErrSyncFormatMismatch for errors.Is() compatibility.
func (e *SyncFormatMismatchError) Unwrap() error { return ErrSyncFormatMismatch }

func (e *AsyncModuleRequiresAwaitError) Error() string {
	if e.Pending {
		return fmt.Sprintf("module %s is still evaluating asynchronously; await it through the import entry point", e.URL)
	}
	return fmt.Sprintf("module %s (or one of its dependencies) suspends during evaluation; use the import entry point instead", e.URL)
}

// Unwrap returns ErrAsyncModuleRequiresAwait for errors.Is() compatibility.
func (e *AsyncModuleRequiresAwaitError) Unwrap() error { return ErrAsyncModuleRequiresAwait }

func (e *BindingNotInitializedError) Error() string {
	return fmt.Sprintf("cannot access %q from %s before initialization", e.Name, e.Module)
}

// Unwrap returns ErrBindingNotInitialized for errors.Is() compatibility.
func (e *BindingNotInitializedError) Unwrap() error { return ErrBindingNotInitialized }

func (e *MissingExportError) Error() string {
	msg := fmt.Sprintf("module %s does not provide an export named %q", e.Module, e.Name)
	if e.Importer != "" {
		msg += " (requested by " + e.Importer + ")"
	}
	return msg
}

// Unwrap returns ErrMissingExport for errors.Is() compatibility.
func (e *MissingExportError) Unwrap() error { return ErrMissingExport }

func (e *ThrownError) Error() string {
	return fmt.Sprintf("%s threw: %v", e.URL, e.Value)
}

func (e *EvaluationError) Error() string {
	if len(e.Referrers) == 0 {
		return fmt.Sprintf("evaluating %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("evaluating %s (via %s): %v", e.URL, strings.Join(e.Referrers, " -> "), e.Err)
}

// Unwrap returns the failure raised by the module body.
func (e *EvaluationError) Unwrap() error { return e.Err }

// CodeOf returns the stable code for err, or "" when err is not part of the taxonomy.
func CodeOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidSpecifier):
		return CodeInvalidSpecifier
	case errors.Is(err, ErrPackagePathNotExported):
		var denied *PackagePathNotExportedError
		if errors.As(err, &denied) && denied.Imports {
			return CodePackageImportNotDefined
		}
		return CodePackagePathNotExported
	case errors.Is(err, ErrInvalidPackageTarget):
		return CodeInvalidPackageTarget
	case errors.Is(err, ErrInvalidManifest):
		return CodeInvalidManifest
	case errors.Is(err, ErrInvalidHookContract):
		return CodeInvalidHookContract
	case errors.Is(err, ErrUnsupportedScheme):
		return CodeUnsupportedScheme
	case errors.Is(err, ErrSyncFormatMismatch):
		return CodeSyncFormatMismatch
	case errors.Is(err, ErrAsyncModuleRequiresAwait):
		return CodeAsyncModuleRequiresAwait
	case errors.Is(err, ErrBindingNotInitialized):
		return CodeBindingNotInitialized
	case errors.Is(err, ErrMissingExport):
		return CodeMissingExport
	}
	var thrown *ThrownError
	var evaluation *EvaluationError
	if errors.As(err, &thrown) || errors.As(err, &evaluation) {
		return CodeThrown
	}
	return ""
}

// Codes lists every stable code in catalog order.
func Codes() []string {
	return []string{
		CodeNotFound,
		CodeInvalidSpecifier,
		CodePackagePathNotExported,
		CodePackageImportNotDefined,
		CodeInvalidPackageTarget,
		CodeInvalidManifest,
		CodeInvalidHookContract,
		CodeUnsupportedScheme,
		CodeSyncFormatMismatch,
		CodeAsyncModuleRequiresAwait,
		CodeBindingNotInitialized,
		CodeMissingExport,
		CodeThrown,
	}
}
