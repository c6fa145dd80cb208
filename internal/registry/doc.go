// SPDX-License-Identifier: MPL-2.0

// Package registry holds the module records of one realm.
//
// A [Registry] is keyed by normalized resolved URL and split in two sub-registries by
// format kind: dynamic records and everything else (static, json, builtin, synthetic).
// Both share the same URL space, and a record created under one kind while the other
// already holds the URL is cross-linked to it as its Sibling.
//
// A [Record] carries the lifecycle state, a two-phase [Exports] cell for dynamic
// modules, a [Namespace] of live [Binding] slots for everything else, dependency
// edges, referrers and the sticky error of a failed evaluation.
package registry
