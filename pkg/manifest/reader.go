// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultCacheSize bounds how many directories' manifests are kept parsed.
	DefaultCacheSize = 1024
	// DefaultModulesDir is the directory name that bounds a package scope.
	DefaultModulesDir = "node_modules"
)

type (
	// Reader loads manifests from a filesystem and caches them per directory.
	// It is safe for concurrent use.
	Reader struct {
		fs         afero.Fs
		fileName   string
		modulesDir string
		cache      *lru.Cache[string, *Manifest]
		group      singleflight.Group
	}

	// ReaderOption configures a Reader.
	ReaderOption func(*readerOptions)

	readerOptions struct {
		fileName   string
		modulesDir string
		cacheSize  int
	}
)

// WithFileName overrides the manifest file name.
func WithFileName(name string) ReaderOption {
	return func(o *readerOptions) { o.fileName = name }
}

// WithModulesDir overrides the directory name that stops scope lookups.
func WithModulesDir(name string) ReaderOption {
	return func(o *readerOptions) { o.modulesDir = name }
}

// WithCacheSize overrides the number of cached directories.
func WithCacheSize(size int) ReaderOption {
	return func(o *readerOptions) { o.cacheSize = size }
}

// NewReader creates a Reader over fsys.
func NewReader(fsys afero.Fs, opts ...ReaderOption) (*Reader, error) {
	o := readerOptions{fileName: DefaultFileName, modulesDir: DefaultModulesDir, cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[string, *Manifest](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("manifest cache: %w", err)
	}
	return &Reader{fs: fsys, fileName: o.fileName, modulesDir: o.modulesDir, cache: cache}, nil
}

// FileName returns the manifest file name the reader looks for.
func (r *Reader) FileName() string { return r.fileName }

// Read returns the manifest located directly in dir. A directory without a manifest
// yields a Manifest with Exists == false; that absence is cached as well.
func (r *Reader) Read(dir string) (*Manifest, error) {
	dir = filepath.Clean(dir)
	if m, ok := r.cache.Get(dir); ok {
		return m, nil
	}

	v, err, _ := r.group.Do(dir, func() (any, error) {
		if m, ok := r.cache.Get(dir); ok {
			return m, nil
		}
		m, err := r.load(dir)
		if err != nil {
			return nil, err
		}
		r.cache.Add(dir, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Manifest), nil
}

// Scope returns the manifest governing dir: the nearest one found walking up from
// dir. The walk does not cross a modules directory boundary. When none is found the
// returned Manifest has Exists == false and Dir set to the directory where the walk
// stopped.
func (r *Reader) Scope(dir string) (*Manifest, error) {
	dir = filepath.Clean(dir)
	for {
		if filepath.Base(dir) == r.modulesDir {
			return r.absent(dir), nil
		}
		m, err := r.Read(dir)
		if err != nil {
			return nil, err
		}
		if m.Exists {
			return m, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return m, nil
		}
		dir = parent
	}
}

// Purge drops every cached manifest.
func (r *Reader) Purge() { r.cache.Purge() }

func (r *Reader) load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, r.fileName)
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return r.absent(dir), nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	return Parse(path, data)
}

func (r *Reader) absent(dir string) *Manifest {
	return &Manifest{Path: filepath.Join(dir, r.fileName), Dir: dir, Type: TypeNone}
}

