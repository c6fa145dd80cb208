// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"path/filepath"

	"github.com/invowk/modload/pkg/manifest"
	"github.com/invowk/modload/pkg/moderr"
)

// resolvePackage resolves a bare specifier from parentDir: self-reference first,
// then a walk up through modules directories.
func (r *Resolver) resolvePackage(ctx context.Context, req request, parentDir string) (Resolution, error) {
	name, subpath, err := parsePackageName(req.specifier)
	if err != nil {
		return Resolution{}, &moderr.InvalidSpecifierError{Specifier: req.specifier, Parent: req.parentURL, Reason: err.Error()}
	}

	scope, err := r.manifests.Scope(parentDir)
	if err != nil {
		return Resolution{}, err
	}
	if scope.Exists && scope.HasExports && scope.Name == name {
		return r.resolveExports(ctx, req, scope, subpath)
	}

	for dir := parentDir; ; {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}
		if filepath.Base(dir) != r.modulesDir {
			pkgDir := filepath.Join(dir, r.modulesDir, filepath.FromSlash(name))
			if r.isDir(pkgDir) {
				return r.resolveInPackage(ctx, req, pkgDir, subpath)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return Resolution{}, &moderr.NotFoundError{Specifier: req.specifier, Parent: req.parentURL, Kind: "package"}
}

// resolveInPackage resolves subpath inside a located package directory.
func (r *Resolver) resolveInPackage(ctx context.Context, req request, pkgDir, subpath string) (Resolution, error) {
	m, err := r.manifests.Read(pkgDir)
	if err != nil {
		return Resolution{}, err
	}
	if m.HasExports {
		return r.resolveExports(ctx, req, m, subpath)
	}
	if subpath == "." {
		return r.resolveLegacyMain(req, pkgDir, m)
	}
	return r.resolveFile(ctx, req, filepath.Join(pkgDir, filepath.FromSlash(subpath)))
}

// resolveLegacyMain resolves a package root without exports: main, main with
// extensions, main as a directory, then the index files.
func (r *Resolver) resolveLegacyMain(req request, pkgDir string, m *manifest.Manifest) (Resolution, error) {
	if found, ok := r.probeMain(pkgDir, m); ok {
		return r.finalize(found)
	}
	if found := r.probeIndex(pkgDir); found != "" {
		return r.finalize(found)
	}
	return Resolution{}, &moderr.NotFoundError{Specifier: req.specifier, Parent: req.parentURL, Kind: "package"}
}
