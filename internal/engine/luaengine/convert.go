// SPDX-License-Identifier: MPL-2.0

package luaengine

import (
	"fmt"
	"math"
	"sort"

	lua "github.com/Shopify/go-lua"

	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/cueutil"
)

const (
	exportsTypeName = "modload.exports"
	bindingTypeName = "modload.binding"
	moduleTypeName  = "modload.module"
)

// push converts a Go value crossing into a module. Tables are copied; exports cells
// stay live behind a proxy so cyclic requires observe later assignments.
func push(l *lua.State, v any) {
	switch v := v.(type) {
	case nil:
		l.PushNil()
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushInteger(int(v))
	case float64:
		l.PushNumber(v)
	case string:
		l.PushString(v)
	case []any:
		l.CreateTable(len(v), 0)
		for i, e := range v {
			push(l, e)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		l.CreateTable(0, len(v))
		for _, k := range keys {
			push(l, v[k])
			l.SetField(-2, k)
		}
	case *cueutil.OrderedMap:
		l.CreateTable(0, v.Len())
		for _, k := range v.Keys() {
			e, _ := v.Get(k)
			push(l, e)
			l.SetField(-2, k)
		}
	case *registry.Exports:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, exportsTypeName)
	case *registry.Binding:
		l.PushUserData(v)
		lua.SetMetaTableNamed(l, bindingTypeName)
	default:
		l.PushString(fmt.Sprint(v))
	}
}

// toGo converts the Lua value at index into a data value.
func toGo(l *lua.State, index int) any {
	switch l.TypeOf(index) {
	case lua.TypeString:
		s, _ := l.ToString(index)
		return s
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		return normalizeNumber(n)
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(l, index)
	case lua.TypeUserData:
		return l.ToUserData(index)
	default:
		return nil
	}
}

// tableToGo returns a []any for sequences and a map[string]any otherwise. Keys that
// are neither strings nor sequence indexes are dropped.
func tableToGo(l *lua.State, index int) any {
	index = l.AbsIndex(index)
	isArray := true
	maxIndex, count := 0, 0
	l.PushNil()
	for l.Next(index) {
		if isArray {
			if l.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := l.ToInteger(-2); ok && idx > 0 {
				count++
				maxIndex = max(maxIndex, idx)
			} else {
				isArray = false
			}
		}
		l.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		out := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			l.RawGetInt(index, i)
			out = append(out, toGo(l, -1))
			l.Pop(1)
		}
		return out
	}

	out := map[string]any{}
	l.PushNil()
	for l.Next(index) {
		if l.TypeOf(-2) == lua.TypeString {
			key, _ := l.ToString(-2)
			out[key] = toGo(l, -1)
		}
		l.Pop(1)
	}
	return out
}

func normalizeNumber(v float64) any {
	if math.Mod(v, 1) == 0 && math.Abs(v) < 1<<53 {
		return int(v)
	}
	return v
}

// registerTypes installs the metatables of the proxies push creates.
func (r *run) registerTypes(l *lua.State) {
	lua.NewMetaTable(l, exportsTypeName)
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "__index", Function: exportsIndex},
		{Name: "__newindex", Function: exportsNewIndex},
		{Name: "__len", Function: exportsLen},
	}, 0)
	l.Pop(1)

	lua.NewMetaTable(l, bindingTypeName)
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "__call", Function: r.bindingCall},
	}, 0)
	l.Pop(1)
}

func exportsIndex(l *lua.State) int {
	ex := lua.CheckUserData(l, 1, exportsTypeName).(*registry.Exports)
	key := lua.CheckString(l, 2)
	v, _ := ex.Get(key)
	push(l, v)
	return 1
}

func exportsNewIndex(l *lua.State) int {
	ex := lua.CheckUserData(l, 1, exportsTypeName).(*registry.Exports)
	key := lua.CheckString(l, 2)
	ex.Set(key, toGo(l, 3))
	return 0
}

func exportsLen(l *lua.State) int {
	ex := lua.CheckUserData(l, 1, exportsTypeName).(*registry.Exports)
	l.PushInteger(ex.Len())
	return 1
}

func (r *run) bindingCall(l *lua.State) int {
	b := lua.CheckUserData(l, 1, bindingTypeName).(*registry.Binding)
	v, err := b.Get()
	if err != nil {
		r.raise(l, err)
	}
	push(l, v)
	return 1
}
