// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"

	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/pkg/manifest"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

// BuiltinScheme is the URL scheme of host-provided modules.
const BuiltinScheme = "builtin"

var (
	// DefaultExtensions are probed, in order, for extensionless path specifiers.
	DefaultExtensions = []string{".js", ".mjs", ".cjs", ".json", ".lua"}
	// DefaultIndexFiles are probed, in order, inside directories.
	DefaultIndexFiles = []string{"index"}
)

type (
	// Resolution is the outcome of a successful resolve.
	Resolution struct {
		URL    string
		Format types.Format
	}

	// Options configures a Resolver.
	Options struct {
		// FS is the filesystem packages live on. Defaults to the OS filesystem.
		FS afero.Fs
		// Manifests reads package manifests. Defaults to a reader over FS.
		Manifests *manifest.Reader
		// Extensions are probed for extensionless path specifiers.
		Extensions []string
		// IndexFiles are probed (with Extensions) inside directories.
		IndexFiles []string
		// ModulesDir is the directory name searched for bare specifiers.
		ModulesDir string
		// PreserveSymlinks keeps symlinked paths instead of their real paths.
		PreserveSymlinks bool
		// AllowHTTP accepts http: and https: URLs.
		AllowHTTP bool
		// IsBuiltin reports whether a bare name is provided by the host.
		IsBuiltin func(name string) bool
		// BaseDir anchors specifiers resolved without a referrer.
		BaseDir string
		Logger  *log.Logger
	}

	// Resolver is the default resolve stage. It is safe for concurrent use.
	Resolver struct {
		fs               afero.Fs
		manifests        *manifest.Reader
		extensions       []string
		indexFiles       []string
		modulesDir       string
		preserveSymlinks bool
		allowHTTP        bool
		isBuiltin        func(string) bool
		baseDir          string
		logger           *log.Logger
	}

	// request carries one resolution through the helpers.
	request struct {
		specifier  string
		parentURL  string
		conditions types.Conditions
	}
)

// New creates a Resolver from opts, filling defaults for zero fields.
func New(opts Options) (*Resolver, error) {
	r := &Resolver{
		fs:               opts.FS,
		manifests:        opts.Manifests,
		extensions:       opts.Extensions,
		indexFiles:       opts.IndexFiles,
		modulesDir:       opts.ModulesDir,
		preserveSymlinks: opts.PreserveSymlinks,
		allowHTTP:        opts.AllowHTTP,
		isBuiltin:        opts.IsBuiltin,
		baseDir:          opts.BaseDir,
		logger:           opts.Logger,
	}
	if r.fs == nil {
		r.fs = afero.NewOsFs()
	}
	if r.modulesDir == "" {
		r.modulesDir = manifest.DefaultModulesDir
	}
	if r.manifests == nil {
		reader, err := manifest.NewReader(r.fs, manifest.WithModulesDir(r.modulesDir))
		if err != nil {
			return nil, err
		}
		r.manifests = reader
	}
	if r.extensions == nil {
		r.extensions = DefaultExtensions
	}
	if r.indexFiles == nil {
		r.indexFiles = DefaultIndexFiles
	}
	if r.isBuiltin == nil {
		r.isBuiltin = func(string) bool { return false }
	}
	if r.baseDir == "" {
		r.baseDir = string(filepath.Separator)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard)
	}
	return r, nil
}

// Manifests returns the manifest reader used by the resolver.
func (r *Resolver) Manifests() *manifest.Reader { return r.manifests }

// Resolve maps specifier, imported from parentURL, to a resolved URL and format.
// An empty parentURL resolves relative to the configured base directory.
func (r *Resolver) Resolve(ctx context.Context, specifier, parentURL string, conditions types.Conditions) (Resolution, error) {
	if err := ctx.Err(); err != nil {
		return Resolution{}, err
	}
	req := request{specifier: specifier, parentURL: parentURL, conditions: conditions}

	if err := validateSpecifier(req); err != nil {
		return Resolution{}, err
	}

	res, err := r.resolve(ctx, req)
	if err != nil {
		r.logger.Debug("resolve failed", "specifier", specifier, "parent", parentURL, "err", err)
		return Resolution{}, err
	}
	r.logger.Debug("resolved", "specifier", specifier, "parent", parentURL, "url", res.URL, "format", res.Format)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, req request) (Resolution, error) {
	spec := req.specifier

	switch {
	case isPathLike(spec):
		return r.resolvePathLike(ctx, req)
	case strings.HasPrefix(spec, "#"):
		return r.resolveImports(ctx, req)
	}

	if scheme, ok := urlScheme(spec); ok {
		return r.resolveURL(ctx, req, scheme)
	}

	if r.isBuiltin(spec) {
		return Resolution{URL: BuiltinScheme + ":" + spec, Format: types.FormatBuiltin}, nil
	}

	parentDir, err := r.parentDir(req)
	if err != nil {
		return Resolution{}, err
	}
	return r.resolvePackage(ctx, req, parentDir)
}

// resolvePathLike resolves "./x", "../x" and "/x" against the referrer.
func (r *Resolver) resolvePathLike(ctx context.Context, req request) (Resolution, error) {
	base, err := r.parentBase(req)
	if err != nil {
		return Resolution{}, err
	}
	ref, err := url.Parse(escapeSpecifier(req.specifier))
	if err != nil {
		return Resolution{}, &moderr.InvalidSpecifierError{Specifier: req.specifier, Parent: req.parentURL, Reason: err.Error()}
	}
	target := base.ResolveReference(ref)
	target.RawQuery, target.Fragment = "", ""

	switch target.Scheme {
	case "file":
		path, err := fetch.FilePath(target.String())
		if err != nil {
			return Resolution{}, err
		}
		return r.resolveFile(ctx, req, path)
	case "http", "https":
		return r.resolveRemote(req, target.String())
	default:
		return Resolution{}, &moderr.InvalidSpecifierError{
			Specifier: req.specifier,
			Parent:    req.parentURL,
			Reason:    fmt.Sprintf("relative specifier cannot be resolved against a %s: referrer", target.Scheme),
		}
	}
}

// resolveURL accepts absolute URLs with a supported scheme.
func (r *Resolver) resolveURL(ctx context.Context, req request, scheme string) (Resolution, error) {
	switch scheme {
	case "file":
		path, err := fetch.FilePath(req.specifier)
		if err != nil {
			return Resolution{}, err
		}
		return r.resolveFile(ctx, req, path)
	case "data":
		d, err := fetch.ParseDataURL(req.specifier)
		if err != nil {
			return Resolution{}, err
		}
		format, ok := dataURLFormat(d.MediaType)
		if !ok {
			return Resolution{}, &moderr.InvalidSpecifierError{
				Specifier: req.specifier,
				Parent:    req.parentURL,
				Reason:    fmt.Sprintf("unsupported data: URL media type %q", d.MediaType),
			}
		}
		return Resolution{URL: req.specifier, Format: format}, nil
	case BuiltinScheme:
		name := strings.TrimPrefix(req.specifier, BuiltinScheme+":")
		if !r.isBuiltin(name) {
			return Resolution{}, &moderr.NotFoundError{Specifier: req.specifier, Parent: req.parentURL, Kind: "builtin"}
		}
		return Resolution{URL: BuiltinScheme + ":" + name, Format: types.FormatBuiltin}, nil
	case "http", "https":
		return r.resolveRemote(req, req.specifier)
	default:
		return Resolution{}, &moderr.UnsupportedSchemeError{URL: req.specifier, Scheme: scheme, Supported: r.schemes()}
	}
}

func (r *Resolver) resolveRemote(req request, target string) (Resolution, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Resolution{}, &moderr.InvalidSpecifierError{Specifier: req.specifier, Parent: req.parentURL, Reason: err.Error()}
	}
	if !r.allowHTTP {
		return Resolution{}, &moderr.UnsupportedSchemeError{URL: target, Scheme: u.Scheme, Supported: r.schemes()}
	}
	u.Fragment = ""
	return Resolution{URL: u.String(), Format: remoteFormat(u.Path)}, nil
}

func (r *Resolver) schemes() []string {
	s := []string{BuiltinScheme, "data", "file"}
	if r.allowHTTP {
		s = append(s, "http", "https")
	}
	return s
}

// parentBase returns the URL relative specifiers are resolved against.
func (r *Resolver) parentBase(req request) (*url.URL, error) {
	if req.parentURL == "" {
		return url.Parse(fetch.FileURL(r.baseDir) + "/")
	}
	u, err := url.Parse(req.parentURL)
	if err != nil || u.Scheme == "" {
		return nil, &moderr.InvalidSpecifierError{Specifier: req.specifier, Parent: req.parentURL, Reason: "referrer is not an absolute URL"}
	}
	return u, nil
}

// parentDir returns the directory bare and "#" lookups start from.
func (r *Resolver) parentDir(req request) (string, error) {
	if req.parentURL == "" {
		return filepath.Clean(r.baseDir), nil
	}
	scheme, _ := urlScheme(req.parentURL)
	if scheme != "file" {
		return "", &moderr.InvalidSpecifierError{
			Specifier: req.specifier,
			Parent:    req.parentURL,
			Reason:    fmt.Sprintf("bare specifiers cannot be resolved from a %s: referrer", scheme),
		}
	}
	path, err := fetch.FilePath(req.parentURL)
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

// finalize turns a verified file path into a Resolution.
func (r *Resolver) finalize(path string) (Resolution, error) {
	if !r.preserveSymlinks {
		if _, ok := r.fs.(*afero.OsFs); ok {
			if real, err := filepath.EvalSymlinks(path); err == nil {
				path = real
			}
		}
	}
	format, err := r.FormatOf(path)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{URL: fetch.FileURL(path), Format: format}, nil
}

// escapeSpecifier percent-encodes characters that url.Parse would otherwise treat
// as query or fragment delimiters inside file names.
func escapeSpecifier(spec string) string {
	return strings.NewReplacer("%", "%25", "?", "%3F", "#", "%23").Replace(spec)
}
