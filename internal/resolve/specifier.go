// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"net/url"
	"strings"

	"github.com/invowk/modload/pkg/moderr"
)

// encodedSeparators may not appear in specifiers: they would let a subpath smuggle
// a path separator past exports matching.
var encodedSeparators = []string{"%2f", "%5c"}

func validateSpecifier(req request) error {
	spec := req.specifier
	invalid := func(reason string) error {
		return &moderr.InvalidSpecifierError{Specifier: spec, Parent: req.parentURL, Reason: reason}
	}

	switch {
	case spec == "":
		return invalid("specifier is empty")
	case strings.ContainsRune(spec, 0):
		return invalid("specifier contains a NUL byte")
	}

	if _, ok := urlScheme(spec); ok {
		return nil
	}

	lower := strings.ToLower(spec)
	for _, sep := range encodedSeparators {
		if strings.Contains(lower, sep) {
			return invalid(`must not include encoded "/" or "\" characters`)
		}
	}

	if strings.HasPrefix(spec, "#") {
		if spec == "#" || strings.HasPrefix(spec, "#/") || strings.HasSuffix(spec, "/") {
			return invalid(`imports specifiers must be "#" followed by a name, not "#" or "#/"`)
		}
		return nil
	}

	if !isPathLike(spec) {
		if _, _, err := parsePackageName(spec); err != nil {
			return invalid(err.Error())
		}
	}
	return nil
}

// isPathLike reports whether spec is a relative or absolute path specifier.
func isPathLike(spec string) bool {
	switch {
	case spec == "." || spec == "..":
		return true
	case strings.HasPrefix(spec, "./"), strings.HasPrefix(spec, "../"), strings.HasPrefix(spec, "/"):
		return true
	}
	return false
}

// urlScheme returns the lower-cased scheme of spec when it is an absolute URL.
// Single-letter schemes are rejected so Windows drive paths are not URLs.
func urlScheme(spec string) (string, bool) {
	i := strings.IndexByte(spec, ':')
	if i < 2 {
		return "", false
	}
	u, err := url.Parse(spec[:i+1])
	if err != nil || u.Scheme == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme), true
}

type packageNameError string

func (e packageNameError) Error() string { return string(e) }

// parsePackageName splits a bare specifier into its package name and a "./"-relative
// subpath ("." for the package root).
func parsePackageName(spec string) (name, subpath string, err error) {
	sep := strings.IndexByte(spec, '/')
	if spec[0] == '@' {
		if sep == -1 {
			return "", "", packageNameError("scoped package names must be \"@scope/name\"")
		}
		if next := strings.IndexByte(spec[sep+1:], '/'); next == -1 {
			sep = -1
		} else {
			sep += 1 + next
		}
	}

	name = spec
	if sep != -1 {
		name = spec[:sep]
	}
	switch {
	case name == "" || strings.HasSuffix(name, "/"):
		return "", "", packageNameError("package name is empty")
	case strings.HasPrefix(name, "."):
		return "", "", packageNameError("package names cannot start with '.'")
	case strings.ContainsAny(name, `%\`):
		return "", "", packageNameError(`package names cannot contain '%' or '\'`)
	}
	return name, "." + spec[len(name):], nil
}
