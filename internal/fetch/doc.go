// SPDX-License-Identifier: MPL-2.0

// Package fetch implements the byte-fetch collaborator of the loading pipeline:
// given a resolved URL it returns the resource's bytes or a typed NotFound error.
//
// [Mux] dispatches on the URL scheme to a [FileFetcher] (backed by an afero
// filesystem), a [DataFetcher] for RFC 2397 data: URLs and, when enabled, an
// [HTTPFetcher] built on go-retryablehttp. Schemes without a registered fetcher
// fail with an UnsupportedScheme error.
package fetch
