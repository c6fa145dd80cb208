// SPDX-License-Identifier: MPL-2.0

// Package resolve implements the default resolve stage: it maps a specifier and a
// referrer URL to a normalized resolved URL and a module format.
//
// Path-like specifiers ("./x", "../x", "/x") are resolved against the referrer with
// extension, manifest "main" and index file probing. Bare specifiers ("pkg",
// "@scope/pkg/sub") are looked up in modules directories walking up from the
// referrer, then routed through the package's conditional "exports" map when it has
// one. "#name" specifiers go through the enclosing package's "imports" map. URLs with
// a scheme (file:, data:, builtin:, http(s):) are accepted as-is when the scheme is
// supported.
//
// Malformed specifiers fail with InvalidSpecifier before any filesystem access.
package resolve
