// SPDX-License-Identifier: MPL-2.0

// Package issue turns loader errors into user-facing ones.
//
// ActionableError carries the operation that failed, the stable error code of the
// cause and remediation hints. The catalog documents every code in Markdown, which
// 'modload explain' renders with glamour.
package issue
