// SPDX-License-Identifier: MPL-2.0

// Package manifest reads package manifests ("package.json" by default) and exposes
// the parts module resolution needs: the package name, its declared module type, the
// legacy "main" entry and the conditional "exports" / "imports" maps.
//
// Manifests are JSON documents decoded through CUE against an embedded schema, so a
// malformed manifest fails with the path of the offending field. Conditional maps are
// kept as ordered [Target] trees because condition branches are matched in the order
// the manifest declares them.
//
// A [Reader] parses each directory's manifest at most once while it stays in its
// bounded cache, and [Reader.Scope] finds the manifest governing a directory by
// walking up to the nearest one.
package manifest
