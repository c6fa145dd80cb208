// SPDX-License-Identifier: MPL-2.0

// Package types defines cross-cutting value types shared by the loading pipeline
// packages (resolve, hooks, loader, registry, evaluator). These are foundation types
// that carry semantic meaning and validation but have no pipeline dependencies.
//
// This package is a leaf dependency: it imports only the standard library.
package types

import (
	"errors"
	"fmt"
)

const (
	// FormatDynamic is the legacy format: eager synchronous execution with a single
	// mutable exports object.
	FormatDynamic Format = "dynamic"
	// FormatStatic is the declaratively linked format with live bindings and
	// optional suspension.
	FormatStatic Format = "static"
	// FormatJSON is a JSON document exposed as a synthetic module.
	FormatJSON Format = "json"
	// FormatBuiltin is a module provided by the host realm.
	FormatBuiltin Format = "builtin"
	// FormatSynthetic is a module whose exports were supplied by a load hook.
	FormatSynthetic Format = "synthetic"
)

const (
	// KindDynamic groups records living in the dynamic sub-registry.
	KindDynamic FormatKind = iota
	// KindStatic groups every other record (static, json, builtin, synthetic).
	KindStatic
)

// ErrInvalidFormat is the sentinel error wrapped by InvalidFormatError.
var ErrInvalidFormat = errors.New("invalid module format")

type (
	// Format identifies how a module's source is linked and executed.
	// The zero value ("") means "not yet known"; it is valid only before loading.
	Format string

	// FormatKind selects the registry namespace a format lives in.
	FormatKind int

	// InvalidFormatError is returned when a Format is not one of the known values.
	InvalidFormatError struct {
		Value Format
	}
)

// String returns the string representation of the Format.
func (f Format) String() string { return string(f) }

// IsValid returns whether the Format is one of the known formats.
func (f Format) IsValid() (bool, []error) {
	switch f {
	case FormatDynamic, FormatStatic, FormatJSON, FormatBuiltin, FormatSynthetic:
		return true, nil
	default:
		return false, []error{&InvalidFormatError{Value: f}}
	}
}

// Kind returns the registry namespace for f.
func (f Format) Kind() FormatKind {
	if f == FormatDynamic {
		return KindDynamic
	}
	return KindStatic
}

// Compiled reports whether modules of this format have a body to compile and execute.
func (f Format) Compiled() bool {
	return f == FormatDynamic || f == FormatStatic
}

// String returns "dynamic" or "static".
func (k FormatKind) String() string {
	if k == KindDynamic {
		return "dynamic"
	}
	return "static"
}

// Error implements the error interface for InvalidFormatError.
func (e *InvalidFormatError) Error() string {
	return fmt.Sprintf("invalid module format %q (must be one of dynamic, static, json, builtin, synthetic)", e.Value)
}

// Unwrap returns ErrInvalidFormat for errors.Is() compatibility.
func (e *InvalidFormatError) Unwrap() error { return ErrInvalidFormat }
