// SPDX-License-Identifier: MPL-2.0

// Package luaengine is a compile/execute collaborator that runs modules written in Lua.
//
// Every module gets its own Lua state; only data crosses module boundaries (nil,
// booleans, numbers, strings, tables copied to []any or map[string]any, and live
// proxies of dynamic exports cells). Dynamic-format bodies see require, exports and
// module. Static-format bodies see import, export, hoist and await_tick; their
// imports and export names are discovered by a lexer pass over the source before
// the body runs. dynamic_import is available to both.
package luaengine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	lua "github.com/Shopify/go-lua"

	"github.com/invowk/modload/internal/engine"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/moderr"
	"github.com/invowk/modload/pkg/types"
)

const replacedExportsKey = "modload.replaced_exports"

// ErrSyntax is returned when a module's source does not compile.
var ErrSyntax = errors.New("lua syntax error")

type (
	// Compiler compiles Lua modules of either compiled format.
	Compiler struct{}

	// SyntaxError reports a compile failure.
	SyntaxError struct {
		URL     string
		Message string
	}

	unit struct {
		url      string
		format   types.Format
		source   string
		requests []engine.Request
		exports  []string
		suspends bool
	}

	// run is the state of one execution.
	run struct {
		env    engine.Env
		raised []error
	}
)

// New returns a Lua compiler.
func New() *Compiler { return &Compiler{} }

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Message)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Compile checks the source for syntax errors and scans static imports and exports.
func (c *Compiler) Compile(_ context.Context, url string, format types.Format, source []byte) (engine.Unit, error) {
	if !format.Compiled() {
		return nil, fmt.Errorf("lua engine cannot compile %s modules", format)
	}
	src := string(source)

	l := lua.NewState()
	if err := lua.LoadBuffer(l, src, chunkName(url), ""); err != nil {
		msg, _ := l.ToString(-1)
		if msg == "" {
			msg = err.Error()
		}
		return nil, &SyntaxError{URL: url, Message: msg}
	}

	u := &unit{url: url, format: format, source: src}
	if format == types.FormatStatic {
		u.requests = requests(src)
		u.exports = exportNames(src)
		u.suspends = hasSuspension(src)
	}
	return u, nil
}

func (u *unit) Requests() []engine.Request { return slices.Clone(u.requests) }

func (u *unit) ExportNames() []string {
	if u.format != types.FormatStatic {
		return nil
	}
	return slices.Clone(u.exports)
}

func (u *unit) HasSuspension() bool { return u.suspends }

// Execute runs the body on a fresh Lua state.
func (u *unit) Execute(env engine.Env) error {
	l := lua.NewState()
	lua.OpenLibraries(l)

	r := &run{env: env}
	r.registerTypes(l)
	r.installCommon(l)
	if u.format == types.FormatStatic {
		r.installStatic(l)
	} else {
		r.installDynamic(l)
	}

	if err := lua.LoadBuffer(l, u.source, chunkName(u.url), ""); err != nil {
		msg, _ := l.ToString(-1)
		return &SyntaxError{URL: u.url, Message: msg}
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return r.thrown(l, err)
	}

	if u.format == types.FormatDynamic {
		l.Field(lua.RegistryIndex, replacedExportsKey)
		if !l.IsNil(-1) {
			env.Exports().Replace(toGo(l, -1))
		}
		l.Pop(1)
	}
	return nil
}

// raise records err and throws its message as a Lua error.
func (r *run) raise(l *lua.State, err error) {
	r.raised = append(r.raised, err)
	l.PushString(err.Error())
	l.Error()
}

// thrown maps a failed call back to the Go error that caused it, when there is one,
// and to a *moderr.ThrownError otherwise.
func (r *run) thrown(l *lua.State, err error) error {
	var value any = err.Error()
	if l.Top() > 0 {
		value = toGo(l, -1)
	}
	if msg, ok := value.(string); ok {
		for i := len(r.raised) - 1; i >= 0; i-- {
			if strings.Contains(msg, r.raised[i].Error()) {
				return r.raised[i]
			}
		}
	}
	return &moderr.ThrownError{URL: r.env.URL(), Value: value}
}

func (r *run) installCommon(l *lua.State) {
	l.Register("dynamic_import", func(l *lua.State) int {
		spec := lua.CheckString(l, 1)
		v, err := r.env.Await(r.env.ImportDynamic(spec))
		if err != nil {
			r.raise(l, err)
		}
		ns, ok := v.(*registry.Namespace)
		if !ok {
			push(l, v)
			return 1
		}
		snap, err := ns.Snapshot()
		if err != nil {
			r.raise(l, err)
		}
		push(l, snap)
		return 1
	})
}

func (r *run) installDynamic(l *lua.State) {
	l.Register("require", func(l *lua.State) int {
		v, err := r.env.Require(lua.CheckString(l, 1))
		if err != nil {
			r.raise(l, err)
		}
		push(l, v)
		return 1
	})

	push(l, r.env.Exports())
	l.SetGlobal("exports")

	lua.NewMetaTable(l, moduleTypeName)
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "__index", Function: r.moduleIndex},
		{Name: "__newindex", Function: r.moduleNewIndex},
	}, 0)
	l.Pop(1)
	l.PushUserData(r)
	lua.SetMetaTableNamed(l, moduleTypeName)
	l.SetGlobal("module")
}

func (r *run) moduleIndex(l *lua.State) int {
	switch lua.CheckString(l, 2) {
	case "exports":
		l.Field(lua.RegistryIndex, replacedExportsKey)
		if l.IsNil(-1) {
			l.Pop(1)
			push(l, r.env.Exports().Value())
		}
	case "url", "id":
		l.PushString(r.env.URL())
	default:
		l.PushNil()
	}
	return 1
}

func (r *run) moduleNewIndex(l *lua.State) int {
	if key := lua.CheckString(l, 2); key != "exports" {
		lua.ArgumentError(l, 2, "only module.exports is assignable")
		return 0
	}
	l.PushValue(3)
	l.SetField(lua.RegistryIndex, replacedExportsKey)
	r.env.Exports().Replace(toGo(l, 3))
	return 0
}

func (r *run) installStatic(l *lua.State) {
	l.Register("import", func(l *lua.State) int {
		spec := lua.CheckString(l, 1)
		if l.IsNoneOrNil(2) {
			return 0
		}
		b, err := r.env.Import(spec, lua.CheckString(l, 2))
		if err != nil {
			r.raise(l, err)
		}
		push(l, b)
		return 1
	})
	l.Register("export", func(l *lua.State) int {
		r.env.Export(lua.CheckString(l, 1), toGo(l, 2))
		return 0
	})
	l.Register("hoist", func(l *lua.State) int {
		r.env.Hoist(lua.CheckString(l, 1), toGo(l, 2))
		return 0
	})
	l.Register("await_tick", func(l *lua.State) int {
		if _, err := r.env.Await(r.env.NextTick()); err != nil {
			r.raise(l, err)
		}
		return 0
	})
}

func chunkName(url string) string { return "@" + url }
