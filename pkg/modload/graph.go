// SPDX-License-Identifier: MPL-2.0

package modload

import (
	"context"

	"github.com/invowk/modload/internal/dag"
	"github.com/invowk/modload/internal/registry"
	"github.com/invowk/modload/pkg/types"
)

type (
	// Graph is the linked static dependency graph of an entry module.
	Graph struct {
		// Root is the URL of the entry module.
		Root    string
		deps    *dag.Graph
		modules map[string]*registry.Record
	}

	// Module describes one node of a Graph.
	Module struct {
		URL    string
		Format types.Format
		State  registry.State
		Err    error
	}
)

// Graph resolves, loads and links entry and its static dependencies without
// evaluating any body. Dependencies of dynamic-format modules are only known once
// they run, so a dynamic module is a leaf unless it was evaluated already.
func (r *Realm) Graph(ctx context.Context, entry string) (*Graph, error) {
	root, err := r.eval.Link(ctx, entry, "")
	if root == nil {
		return nil, err
	}

	g := &Graph{
		Root:    root.URL(),
		deps:    dag.New(),
		modules: make(map[string]*registry.Record),
	}
	g.walk(r.registry, root)
	return g, err
}

func (g *Graph) walk(reg *registry.Registry, rec *registry.Record) {
	g.deps.AddNode(rec.URL())
	g.modules[rec.URL()] = rec
	for _, edge := range rec.Edges() {
		g.deps.AddEdge(rec.URL(), edge.URL)
		if _, seen := g.modules[edge.URL]; seen {
			continue
		}
		child, ok := reg.LookupKind(edge.URL, edge.Format.Kind())
		if !ok {
			g.deps.AddNode(edge.URL)
			continue
		}
		g.walk(reg, child)
	}
}

// URLs returns the module URLs in discovery order.
func (g *Graph) URLs() []string { return g.deps.Nodes() }

// Imports returns the URLs url depends on, in declaration order.
func (g *Graph) Imports(url string) []string { return g.deps.Imports(url) }

// Module describes the module at url.
func (g *Graph) Module(url string) (Module, bool) {
	rec, ok := g.modules[url]
	if !ok {
		return Module{}, false
	}
	return Module{URL: url, Format: rec.Format(), State: rec.State(), Err: rec.Err()}, true
}

// EvaluationOrder returns the order the graph's bodies run in when the root is
// imported.
func (g *Graph) EvaluationOrder() []string { return g.deps.PostOrder(g.Root) }

// Cycles returns the import cycles of the graph.
func (g *Graph) Cycles() [][]string { return g.deps.Cycles() }

// TopologicalOrder returns the modules with their dependencies first, or a
// *dag.CycleError when the graph is cyclic.
func (g *Graph) TopologicalOrder() ([]string, error) { return g.deps.TopologicalSort() }
