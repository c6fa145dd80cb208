// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/pkg/manifest"
	"github.com/invowk/modload/pkg/moderr"
)

// targetScope describes which map a target came from.
type targetScope struct {
	m       *manifest.Manifest
	key     string
	imports bool
}

// resolveExports resolves subpath through the exports map of m. A present map is
// authoritative: anything it does not list is denied.
func (r *Resolver) resolveExports(ctx context.Context, req request, m *manifest.Manifest, subpath string) (Resolution, error) {
	res, out, err := r.resolveMap(ctx, req, m, m.Exports, subpath, false)
	if err != nil {
		return Resolution{}, err
	}
	if out != resolved {
		return Resolution{}, &moderr.PackagePathNotExportedError{Subpath: subpath, Manifest: m.Path, Parent: req.parentURL}
	}
	return res, nil
}

// resolveImports resolves a "#name" specifier through the imports map of the
// referrer's package scope.
func (r *Resolver) resolveImports(ctx context.Context, req request) (Resolution, error) {
	parentDir, err := r.parentDir(req)
	if err != nil {
		return Resolution{}, err
	}
	scope, err := r.manifests.Scope(parentDir)
	if err != nil {
		return Resolution{}, err
	}
	if scope.Exists && scope.Imports != nil {
		res, out, err := r.resolveMap(ctx, req, scope, scope.Imports, req.specifier, true)
		if err != nil {
			return Resolution{}, err
		}
		if out == resolved {
			return res, nil
		}
	}
	return Resolution{}, &moderr.PackagePathNotExportedError{Subpath: req.specifier, Manifest: scope.Path, Parent: req.parentURL, Imports: true}
}

// resolveMap matches key against entries: an exact key first, then the best
// "*" pattern, then the longest trailing-slash folder mapping.
func (r *Resolver) resolveMap(ctx context.Context, req request, m *manifest.Manifest, entries []manifest.Entry, key string, imports bool) (Resolution, outcome, error) {
	if !strings.Contains(key, "*") && !strings.HasSuffix(key, "/") {
		if target, ok := manifest.Lookup(entries, key); ok {
			return r.resolveTarget(ctx, req, targetScope{m: m, key: key, imports: imports}, target, "", false)
		}
	}

	bestMatch, bestSubpath := "", ""
	for _, e := range entries {
		star := strings.IndexByte(e.Key, '*')
		if star == -1 || strings.LastIndexByte(e.Key, '*') != star {
			continue
		}
		prefix, trailer := e.Key[:star], e.Key[star+1:]
		if !strings.HasPrefix(key, prefix) || len(key) < len(e.Key) || !strings.HasSuffix(key, trailer) {
			continue
		}
		if patternKeyCompare(bestMatch, e.Key) == 1 {
			bestMatch = e.Key
			bestSubpath = key[star : len(key)-len(trailer)]
		}
	}
	if bestMatch != "" {
		target, _ := manifest.Lookup(entries, bestMatch)
		return r.resolveTarget(ctx, req, targetScope{m: m, key: bestMatch, imports: imports}, target, bestSubpath, true)
	}

	folder := ""
	for _, e := range entries {
		if strings.HasSuffix(e.Key, "/") && strings.HasPrefix(key, e.Key) && len(e.Key) > len(folder) {
			folder = e.Key
		}
	}
	if folder != "" {
		target, _ := manifest.Lookup(entries, folder)
		return r.resolveTarget(ctx, req, targetScope{m: m, key: folder, imports: imports}, target, key[len(folder):], false)
	}
	return Resolution{}, unmatched, nil
}

// patternKeyCompare orders pattern keys: a longer prefix before "*" sorts first,
// then the longer key. It returns 1 when b should replace a as the best match.
func patternKeyCompare(a, b string) int {
	aStar := strings.IndexByte(a, '*')
	bStar := strings.IndexByte(b, '*')
	baseA, baseB := len(a), len(b)
	if aStar != -1 {
		baseA = aStar + 1
	}
	if bStar != -1 {
		baseB = bStar + 1
	}
	switch {
	case baseA > baseB:
		return -1
	case baseB > baseA:
		return 1
	case aStar == -1:
		return 1
	case bStar == -1:
		return -1
	case len(a) > len(b):
		return -1
	case len(b) > len(a):
		return 1
	}
	return 0
}

// outcome distinguishes a target that matched nothing (a condition object without a
// matching branch) from an explicit null denial.
type outcome int

const (
	unmatched outcome = iota
	denied
	resolved
)

// resolveTarget walks a target tree.
func (r *Resolver) resolveTarget(ctx context.Context, req request, scope targetScope, target *manifest.Target, subpath string, pattern bool) (Resolution, outcome, error) {
	switch target.Kind {
	case manifest.TargetString:
		return r.resolveStringTarget(ctx, req, scope, target.Value, subpath, pattern)

	case manifest.TargetArray:
		var lastErr error
		last := unmatched
		for _, item := range target.Items {
			res, out, err := r.resolveTarget(ctx, req, scope, item, subpath, pattern)
			switch {
			case err != nil && isInvalidTarget(err):
				lastErr = err
			case err != nil:
				return Resolution{}, unmatched, err
			case out == resolved:
				return res, resolved, nil
			case out == denied:
				lastErr, last = nil, denied
			}
		}
		if lastErr != nil {
			return Resolution{}, unmatched, lastErr
		}
		return Resolution{}, last, nil

	case manifest.TargetConditions:
		for _, c := range target.Conditions {
			if !req.conditions.Matches(c.Key) {
				continue
			}
			res, out, err := r.resolveTarget(ctx, req, scope, c.Target, subpath, pattern)
			if err != nil || out != unmatched {
				return res, out, err
			}
		}
		return Resolution{}, unmatched, nil

	default:
		return Resolution{}, denied, nil
	}
}

func (r *Resolver) resolveStringTarget(ctx context.Context, req request, scope targetScope, target, subpath string, pattern bool) (Resolution, outcome, error) {
	invalid := func(reason string) error {
		return &moderr.InvalidPackageTargetError{Key: scope.key, Target: target, Manifest: scope.m.Path, Reason: reason}
	}

	if !pattern && subpath != "" && !strings.HasSuffix(target, "/") {
		return Resolution{}, unmatched, invalid("folder mappings must target a directory ending in '/'")
	}

	if !strings.HasPrefix(target, "./") {
		if scope.imports && !strings.HasPrefix(target, "../") && !strings.HasPrefix(target, "/") {
			if _, isURL := urlScheme(target); !isURL {
				bare := target + subpath
				if pattern {
					bare = strings.ReplaceAll(target, "*", subpath)
				}
				res, err := r.resolvePackage(ctx, request{specifier: bare, parentURL: fetch.FileURL(scope.m.Path), conditions: req.conditions}, scope.m.Dir)
				return res, resolved, err
			}
		}
		return Resolution{}, unmatched, invalid("targets must start with \"./\"")
	}

	if hasInvalidSegment(target[2:]) {
		return Resolution{}, unmatched, invalid("targets must not contain \".\", \"..\" or \"node_modules\" segments")
	}

	abs := filepath.Join(scope.m.Dir, filepath.FromSlash(target))
	if !within(scope.m.Dir, abs) {
		return Resolution{}, unmatched, invalid("target resolves outside the package")
	}

	if subpath == "" {
		res, err := r.resolveExact(req, abs)
		return res, resolved, err
	}

	if hasInvalidSegment(subpath) {
		return Resolution{}, unmatched, &moderr.InvalidSpecifierError{
			Specifier: req.specifier,
			Parent:    req.parentURL,
			Reason:    "request is not a valid match in pattern \"" + scope.key + "\" of " + scope.m.Path,
		}
	}

	var full string
	if pattern {
		full = strings.ReplaceAll(target, "*", subpath)
	} else {
		full = target + subpath
	}
	abs = filepath.Join(scope.m.Dir, filepath.FromSlash(full))
	if !within(scope.m.Dir, abs) {
		return Resolution{}, unmatched, invalid("target resolves outside the package")
	}
	res, err := r.resolveExact(req, abs)
	return res, resolved, err
}

// hasInvalidSegment reports whether a "/"- or "\"-separated path contains ".", ".."
// or "node_modules" segments, including their percent-encoded spellings.
func hasInvalidSegment(p string) bool {
	for _, seg := range strings.FieldsFunc(p, func(r rune) bool { return r == '/' || r == '\\' }) {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			decoded = seg
		}
		switch strings.ToLower(decoded) {
		case ".", "..", "node_modules":
			return true
		}
	}
	return false
}

func isInvalidTarget(err error) bool {
	return moderr.CodeOf(err) == moderr.CodeInvalidPackageTarget
}
