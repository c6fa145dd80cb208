// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/pkg/manifest"
	"github.com/invowk/modload/pkg/moderr"
)

// resolveFile resolves an absolute path: the file itself, the file with each
// extension appended, then the path as a directory.
func (r *Resolver) resolveFile(ctx context.Context, req request, path string) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	trailingSlash := strings.HasSuffix(filepath.ToSlash(path), "/")
	path = filepath.Clean(path)

	if !trailingSlash {
		if found, ok := r.probeFile(path); ok {
			return r.finalize(found)
		}
	}
	if r.isDir(path) {
		found, err := r.probeDirectory(path)
		if err != nil {
			return Resolution{}, err
		}
		if found != "" {
			return r.finalize(found)
		}
		return Resolution{}, &moderr.NotFoundError{Specifier: req.specifier, Parent: req.parentURL, Kind: "directory"}
	}
	return Resolution{}, &moderr.NotFoundError{Specifier: req.specifier, Parent: req.parentURL}
}

// probeFile tries path then path+ext for every configured extension.
func (r *Resolver) probeFile(path string) (string, bool) {
	if r.isFile(path) {
		return path, true
	}
	for _, ext := range r.extensions {
		if candidate := path + ext; r.isFile(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// probeDirectory tries the directory manifest's main entry then the index files.
// It returns "" when nothing matched.
func (r *Resolver) probeDirectory(dir string) (string, error) {
	m, err := r.manifests.Read(dir)
	if err != nil {
		return "", err
	}
	if found, ok := r.probeMain(dir, m); ok {
		return found, nil
	}
	return r.probeIndex(dir), nil
}

// probeMain implements the legacy "main" lookup: main, main+ext, main/index+ext.
func (r *Resolver) probeMain(dir string, m *manifest.Manifest) (string, bool) {
	if !m.Exists || m.Main == "" {
		return "", false
	}
	main := filepath.Join(dir, filepath.FromSlash(m.Main))
	if !within(dir, main) {
		return "", false
	}
	if found, ok := r.probeFile(main); ok {
		return found, true
	}
	if r.isDir(main) {
		if found := r.probeIndex(main); found != "" {
			return found, true
		}
	}
	return "", false
}

func (r *Resolver) probeIndex(dir string) string {
	for _, name := range r.indexFiles {
		for _, ext := range r.extensions {
			if candidate := filepath.Join(dir, name+ext); r.isFile(candidate) {
				return candidate
			}
		}
	}
	return ""
}

// resolveExact accepts only an existing regular file, as produced by exports and
// imports targets.
func (r *Resolver) resolveExact(req request, path string) (Resolution, error) {
	if r.isFile(path) {
		return r.finalize(path)
	}
	kind := "module"
	if r.isDir(path) {
		kind = "directory"
	}
	return Resolution{}, &moderr.NotFoundError{Specifier: fetch.FileURL(path), Parent: req.parentURL, Kind: kind}
}

func (r *Resolver) isFile(path string) bool {
	info, err := r.fs.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func (r *Resolver) isDir(path string) bool {
	info, err := r.fs.Stat(path)
	return err == nil && info.IsDir()
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
