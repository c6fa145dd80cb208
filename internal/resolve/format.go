// SPDX-License-Identifier: MPL-2.0

package resolve

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/invowk/modload/internal/fetch"
	"github.com/invowk/modload/pkg/manifest"
	"github.com/invowk/modload/pkg/types"
)

// FormatOf infers the format of the file at path. Explicit extensions win; ".js",
// ".lua" and extensionless files take the declared type of their package scope.
func (r *Resolver) FormatOf(path string) (types.Format, error) {
	if f, ok := extensionFormat(filepath.Ext(path)); ok {
		return f, nil
	}
	scope, err := r.manifests.Scope(filepath.Dir(path))
	if err != nil {
		return "", err
	}
	if scope.Type == manifest.TypeModule {
		return types.FormatStatic, nil
	}
	return types.FormatDynamic, nil
}

// FormatOfURL infers the format for any resolved URL.
func (r *Resolver) FormatOfURL(rawURL string) (types.Format, error) {
	scheme, ok := urlScheme(rawURL)
	if !ok {
		return "", nil
	}
	switch scheme {
	case "file":
		p, err := fetch.FilePath(rawURL)
		if err != nil {
			return "", err
		}
		return r.FormatOf(p)
	case "data":
		d, err := fetch.ParseDataURL(rawURL)
		if err != nil {
			return "", err
		}
		f, _ := dataURLFormat(d.MediaType)
		return f, nil
	case BuiltinScheme:
		return types.FormatBuiltin, nil
	default:
		return remoteFormat(rawURLPath(rawURL)), nil
	}
}

func extensionFormat(ext string) (types.Format, bool) {
	switch strings.ToLower(ext) {
	case ".mjs":
		return types.FormatStatic, true
	case ".cjs":
		return types.FormatDynamic, true
	case ".json":
		return types.FormatJSON, true
	}
	return "", false
}

// remoteFormat infers the format of an http(s) resource. Remote ".js" and ".lua"
// files have no package scope and are treated as static.
func remoteFormat(p string) types.Format {
	if f, ok := extensionFormat(path.Ext(p)); ok {
		return f
	}
	return types.FormatStatic
}

func dataURLFormat(mediaType string) (types.Format, bool) {
	switch mediaType {
	case "text/javascript", "application/javascript", "text/x-lua", "application/x-lua":
		return types.FormatStatic, true
	case "application/json":
		return types.FormatJSON, true
	}
	return "", false
}

func rawURLPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return u.Path
	}
	return rawURL
}
