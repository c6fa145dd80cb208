// SPDX-License-Identifier: EPL-2.0

package issue

import (
	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/slices"

	"github.com/invowk/modload/pkg/moderr"
)

type Id int

const (
	ModuleNotFoundId Id = iota + 1
	InvalidSpecifierId
	PackagePathNotExportedId
	PackageImportNotDefinedId
	InvalidPackageTargetId
	InvalidManifestId
	InvalidHookContractId
	UnsupportedSchemeId
	RequireStaticId
	RequireAsyncModuleId
	BindingNotInitializedId
	MissingExportId
	ModuleThrewId
	ConfigLoadFailedId
	DependencyCycleId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id          Id          // ID used to lookup the issue
	code        string      // stable error code, empty for CLI-only issues
	mdMsg       MarkdownMsg // Markdown text that will be rendered
	suggestions []string    // one-line hints attached to actionable errors
	docLinks    []HttpLink
	extLinks    []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

// Code returns the stable error code the issue documents.
func (i *Issue) Code() string {
	return i.code
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// Suggestions returns the short remediation hints for the issue.
func (i *Issue) Suggestions() []string {
	return slices.Clone(i.suggestions)
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	moduleNotFoundIssue = &Issue{
		id:   ModuleNotFoundId,
		code: moderr.CodeNotFound,
		mdMsg: `
# Module not found

The specifier did not map to an existing file, directory or package.

Relative specifiers ("./x", "../x") are resolved against the importing module.
Extensionless paths are probed with every configured extension, and directories
with the manifest "main" entry and then the index files.

Bare specifiers are looked up in the modules directory of every ancestor of the
importing module, nearest first.

## Things you can try
- Check the spelling and the extension of the specifier
- Run the resolution alone to see the referrer that was used:
~~~
$ modload resolve ./lib --from ./src/main.lua
~~~`,
		suggestions: []string{
			"Check the spelling and extension of the specifier",
			"Run 'modload resolve <specifier> --from <file>' to inspect the lookup",
		},
	}

	invalidSpecifierIssue = &Issue{
		id:   InvalidSpecifierId,
		code: moderr.CodeInvalidSpecifier,
		mdMsg: `
# Invalid module specifier

The specifier is malformed and was rejected before any lookup happened. Common
causes are an empty specifier, encoded path separators ("%2F", "%5C"), a package
name starting with "." or "_", or a relative specifier used from a referrer that
is not a file.`,
		suggestions: []string{
			"Use './' for relative paths and plain names for packages",
			"Avoid percent-encoded separators in specifiers",
		},
	}

	packagePathNotExportedIssue = &Issue{
		id:   PackagePathNotExportedId,
		code: moderr.CodePackagePathNotExported,
		mdMsg: `
# Package path not exported

The package declares an "exports" map and the requested subpath is not listed in
it, or no target matched the active conditions. Once a package declares exports,
files outside the map are private even when they exist on disk.

## Things you can try
- Import one of the subpaths the package exports
- Check which conditions are active with:
~~~
$ modload config show
~~~`,
		suggestions: []string{
			"Import a subpath listed in the package's \"exports\" map",
			"Check the active conditions with 'modload config show'",
		},
	}

	packageImportNotDefinedIssue = &Issue{
		id:   PackageImportNotDefinedId,
		code: moderr.CodePackageImportNotDefined,
		mdMsg: `
# Package import not defined

A "#" specifier was used, but the nearest package manifest does not define it in
its "imports" map, or no target matched the active conditions.`,
		suggestions: []string{
			"Add the \"#\" name to the \"imports\" map of the nearest manifest",
		},
	}

	invalidPackageTargetIssue = &Issue{
		id:   InvalidPackageTargetId,
		code: moderr.CodeInvalidPackageTarget,
		mdMsg: `
# Invalid package target

An "exports" or "imports" target is malformed: it does not start with "./", it
escapes the package directory, or it contains "node_modules", "." or ".."
segments.`,
		suggestions: []string{
			"Make every exports target start with './' and stay inside the package",
		},
	}

	invalidManifestIssue = &Issue{
		id:   InvalidManifestId,
		code: moderr.CodeInvalidManifest,
		mdMsg: `
# Invalid package manifest

A package manifest could not be decoded or violates structural rules, such as an
"exports" object mixing "." keys with condition names.`,
		suggestions: []string{
			"Check the manifest for JSON syntax errors",
			"Do not mix subpath keys and condition keys in one \"exports\" object",
		},
	}

	invalidHookContractIssue = &Issue{
		id:   InvalidHookContractId,
		code: moderr.CodeInvalidHookContract,
		mdMsg: `
# Invalid hook contract

A registered hook returned without calling the next hook and without marking its
result as short-circuiting, or returned a malformed result (empty or relative URL,
unknown format, a load result with neither source nor exports).`,
		suggestions: []string{
			"Call next(...) or set ShortCircuit in every hook result",
		},
	}

	unsupportedSchemeIssue = &Issue{
		id:   UnsupportedSchemeId,
		code: moderr.CodeUnsupportedScheme,
		mdMsg: `
# Unsupported URL scheme

No fetcher handles the URL's scheme. "file:", "data:" and "builtin:" are always
available; "http:" and "https:" must be enabled in the configuration:
~~~cue
fetch: http: enabled: true
~~~`,
		suggestions: []string{
			"Enable remote modules with 'fetch: http: enabled: true'",
		},
	}

	requireStaticIssue = &Issue{
		id:   RequireStaticId,
		code: moderr.CodeSyncFormatMismatch,
		mdMsg: `
# Static module required synchronously

The synchronous entry point reached a static-format module, and the interop
policy is "deny". Such modules can only be required after they were evaluated
through the asynchronous entry point.`,
		suggestions: []string{
			"Load the module with import instead of require",
			"Set 'interop: require_static: \"force\"' to allow synchronous completion",
		},
	}

	requireAsyncModuleIssue = &Issue{
		id:   RequireAsyncModuleId,
		code: moderr.CodeAsyncModuleRequiresAwait,
		mdMsg: `
# Module evaluation is asynchronous

The synchronous entry point reached a static-format module whose evaluation
suspends, or one that is still waiting on a suspension. Synchronous callers never
wait, so the module has to be loaded through the asynchronous entry point.`,
		suggestions: []string{
			"Load the module with import instead of require",
		},
	}

	bindingNotInitializedIssue = &Issue{
		id:   BindingNotInitializedId,
		code: moderr.CodeBindingNotInitialized,
		mdMsg: `
# Binding not initialized

A live binding was read before the module exporting it finished evaluating. This
happens in import cycles: the module evaluated first sees the bindings of the
modules still on the cycle as uninitialized.

## Things you can try
- Read the binding later, from a function called after evaluation
- Break the cycle, or hoist the value so it is available early
- Inspect the cycle with:
~~~
$ modload graph ./main.lua
~~~`,
		suggestions: []string{
			"Read the binding after the cycle finished evaluating",
			"Run 'modload graph <entry>' to inspect the cycle",
		},
	}

	missingExportIssue = &Issue{
		id:   MissingExportId,
		code: moderr.CodeMissingExport,
		mdMsg: `
# Requested export not provided

An importer named a binding its dependency does not export. Static dependencies
are checked while linking, before any body runs; dynamic dependencies are checked
against their exports once they finished evaluating.`,
		suggestions: []string{
			"Check the exported names of the dependency",
		},
	}

	moduleThrewIssue = &Issue{
		id:   ModuleThrewId,
		code: moderr.CodeThrown,
		mdMsg: `
# Module evaluation failed

A module body raised an error. The module stays failed: every later load of it,
and every module depending on it, reports the same error without running the
body again.

The error lists the chain of importers that led to the failing module.`,
		suggestions: []string{
			"Fix the error in the failing module and start a new run",
		},
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Configuration could not be loaded

The configuration file is not valid CUE or does not match the schema.

## Things you can try
- Print the effective configuration:
~~~
$ modload config show
~~~
- Write a fresh file with every default:
~~~
$ modload config init
~~~`,
		suggestions: []string{
			"Check that the file contains valid CUE syntax",
			"Run 'modload config init' to write a file with every default",
		},
	}

	dependencyCycleIssue = &Issue{
		id: DependencyCycleId,
		mdMsg: `
# Dependency cycle

The module graph contains a cycle. Cycles are allowed: dynamic-format modules in a
cycle see partially filled exports, and static-format modules see uninitialized
bindings until the cycle finished evaluating.`,
	}

	catalog = []*Issue{
		moduleNotFoundIssue,
		invalidSpecifierIssue,
		packagePathNotExportedIssue,
		packageImportNotDefinedIssue,
		invalidPackageTargetIssue,
		invalidManifestIssue,
		invalidHookContractIssue,
		unsupportedSchemeIssue,
		requireStaticIssue,
		requireAsyncModuleIssue,
		bindingNotInitializedIssue,
		missingExportIssue,
		moduleThrewIssue,
		configLoadFailedIssue,
		dependencyCycleIssue,
	}

	issues = func() map[Id]*Issue {
		m := make(map[Id]*Issue, len(catalog))
		for _, i := range catalog {
			m[i.Id()] = i
		}
		return m
	}()
)

// Values returns every issue in catalog order.
func Values() []*Issue {
	return slices.Clone(catalog)
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForCode returns the issue documenting an error code.
func ForCode(code string) *Issue {
	if code == "" {
		return nil
	}
	idx := slices.IndexFunc(catalog, func(i *Issue) bool { return i.code == code })
	if idx < 0 {
		return nil
	}
	return catalog[idx]
}
