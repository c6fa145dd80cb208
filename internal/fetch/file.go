// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/invowk/modload/pkg/moderr"
)

// FileFetcher reads file: URLs from an afero filesystem.
type FileFetcher struct {
	fs afero.Fs
}

// NewFileFetcher creates a FileFetcher over fsys.
func NewFileFetcher(fsys afero.Fs) *FileFetcher {
	return &FileFetcher{fs: fsys}
}

// ReadBytes returns the contents of the file named by rawURL. Missing files and
// directories are reported as NotFound.
func (f *FileFetcher) ReadBytes(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := FilePath(rawURL)
	if err != nil {
		return nil, err
	}
	info, err := f.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return nil, &moderr.NotFoundError{Specifier: rawURL}
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, &moderr.NotFoundError{Specifier: rawURL, Kind: "directory"}
	}
	return afero.ReadFile(f.fs, path)
}

// FileURL converts an absolute filesystem path to its file: URL.
func FileURL(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// FilePath converts a file: URL back to a filesystem path.
func FilePath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", &moderr.InvalidSpecifierError{Specifier: rawURL, Reason: err.Error()}
	}
	if u.Scheme != "file" {
		return "", &moderr.InvalidSpecifierError{Specifier: rawURL, Reason: "not a file: URL"}
	}
	if u.Host != "" && u.Host != "localhost" {
		return "", &moderr.InvalidSpecifierError{Specifier: rawURL, Reason: "file: URL host must be empty or localhost"}
	}
	p := u.Path
	if filepath.Separator == '\\' && len(p) >= 3 && p[0] == '/' && p[2] == ':' {
		p = p[1:]
	}
	return filepath.FromSlash(p), nil
}
