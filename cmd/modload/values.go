// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/cueutil"
)

const circularMarker = "[Circular]"

// plainValue converts a module value (exports cell, namespace, binding or JSON
// document) into nested maps and slices of plain data. Cells reached again while
// they are being converted are replaced by a marker.
func plainValue(v any) (any, error) {
	return (&plainer{active: map[any]bool{}}).convert(v)
}

type plainer struct {
	active map[any]bool
}

func (p *plainer) convert(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, int, int64, float64, string:
		return x, nil
	case *registry.Exports:
		if p.active[x] {
			return circularMarker, nil
		}
		p.active[x] = true
		defer delete(p.active, x)
		if replaced, ok := x.Replaced(); ok {
			return p.convert(replaced)
		}
		return p.convert(x.Snapshot())
	case *registry.Namespace:
		if p.active[x] {
			return circularMarker, nil
		}
		p.active[x] = true
		defer delete(p.active, x)
		snap, err := x.Snapshot()
		if err != nil {
			return nil, err
		}
		return p.convert(snap)
	case *registry.Binding:
		bv, err := x.Get()
		if err != nil {
			return nil, err
		}
		return p.convert(bv)
	case *cueutil.OrderedMap:
		out := make(map[string]any, x.Len())
		for _, k := range x.Keys() {
			ev, _ := x.Get(k)
			cv, err := p.convert(ev)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, ev := range x {
			cv, err := p.convert(ev)
			if err != nil {
				return nil, err
			}
			out[k] = cv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, ev := range x {
			cv, err := p.convert(ev)
			if err != nil {
				return nil, err
			}
			out[i] = cv
		}
		return out, nil
	default:
		return fmt.Sprint(x), nil
	}
}

// formatValue renders a module value as indented JSON.
func formatValue(v any) (string, error) {
	pv, err := plainValue(v)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(pv, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode module value: %w", err)
	}
	return string(data), nil
}
