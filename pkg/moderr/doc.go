// SPDX-License-Identifier: MPL-2.0

// Package moderr defines the error taxonomy of the module loading pipeline.
//
// Every failure kind has a sentinel (for errors.Is) and a typed error carrying the
// details (for errors.As). Typed errors unwrap to their sentinel, so callers can
// branch on the kind without caring which component produced it:
//
//	if errors.Is(err, moderr.ErrPackagePathNotExported) { ... }
//
//	var denied *moderr.PackagePathNotExportedError
//	if errors.As(err, &denied) { fmt.Println(denied.Subpath) }
//
// Each typed error also reports a stable code (see [CodeOf]) used by the CLI error
// catalog.
package moderr
