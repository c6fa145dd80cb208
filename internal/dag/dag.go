// SPDX-License-Identifier: MPL-2.0

// Package dag orders module dependency graphs. Nodes are module URLs and an edge
// from A to B means A imports B. It reports the order a static graph is evaluated
// in and the cycles it contains; cycles are legal module graphs, so ordering never
// fails on them.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing a strict
	// dependencies-first ordering.
	CycleError struct {
		// Cycle contains the nodes left unordered: every cycle and the importers
		// that depend on one.
		Cycle []string
	}

	// Graph is a directed import graph. Edges keep their insertion order, which is
	// the order the importer declared its imports in.
	Graph struct {
		// adjacency maps each node to the nodes it imports.
		adjacency map[string][]string
		// nodes tracks all nodes in insertion order for deterministic output.
		nodes []string
		// index maps a node to its position in nodes.
		index map[string]int
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		index:     make(map[string]int),
	}
}

// AddNode adds a node to the graph. If the node already exists, this is a no-op.
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge records that from imports to. Both nodes are implicitly added and a
// repeated edge is ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	if !slices.Contains(g.adjacency[from], to) {
		g.adjacency[from] = append(g.adjacency[from], to)
	}
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []string { return slices.Clone(g.nodes) }

// Imports returns the nodes name imports, in declaration order.
func (g *Graph) Imports(name string) []string { return slices.Clone(g.adjacency[name]) }

// TopologicalSort returns every node with its imports before it, using Kahn's
// algorithm. Nodes whose imports are ready at the same time keep insertion order.
// It returns a CycleError when the graph is cyclic.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	// remaining counts the unordered imports of each node; importers is the
	// reverse adjacency.
	remaining := make(map[string]int, len(g.nodes))
	importers := make(map[string][]string, len(g.nodes))
	for _, node := range g.nodes {
		remaining[node] = len(g.adjacency[node])
		for _, dep := range g.adjacency[node] {
			importers[dep] = append(importers[dep], node)
		}
	}

	var queue []string
	for _, node := range g.nodes {
		if remaining[node] == 0 {
			queue = append(queue, node)
		}
	}

	var result []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, importer := range importers[node] {
			remaining[importer]--
			if remaining[importer] == 0 {
				queue = append(queue, importer)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var cycleNodes []string
		for _, node := range g.nodes {
			if remaining[node] > 0 {
				cycleNodes = append(cycleNodes, node)
			}
		}
		return nil, &CycleError{Cycle: cycleNodes}
	}

	return result, nil
}

// PostOrder returns the nodes reachable from root in the order a static graph
// rooted there is evaluated: depth-first, imports in declaration order, each node
// after its imports. An import of a node that is still being visited is skipped,
// so every node appears once even in a cycle.
func (g *Graph) PostOrder(root string) []string {
	if _, ok := g.index[root]; !ok {
		return nil
	}
	visited := make(map[string]bool, len(g.nodes))
	var order []string
	var visit func(string)
	visit = func(node string) {
		visited[node] = true
		for _, dep := range g.adjacency[node] {
			if !visited[dep] {
				visit(dep)
			}
		}
		order = append(order, node)
	}
	visit(root)
	return order
}

// Cycles returns the strongly connected components that form cycles: components
// of two or more nodes and nodes that import themselves. Each cycle lists its
// nodes in insertion order and cycles are ordered by their first node.
func (g *Graph) Cycles() [][]string {
	t := tarjan{
		g:       g,
		index:   make(map[string]int, len(g.nodes)),
		lowlink: make(map[string]int, len(g.nodes)),
		onStack: make(map[string]bool, len(g.nodes)),
	}
	for _, node := range g.nodes {
		if _, seen := t.index[node]; !seen {
			t.strongConnect(node)
		}
	}

	var cycles [][]string
	for _, comp := range t.components {
		if len(comp) == 1 && !slices.Contains(g.adjacency[comp[0]], comp[0]) {
			continue
		}
		slices.SortFunc(comp, func(a, b string) int { return g.index[a] - g.index[b] })
		cycles = append(cycles, comp)
	}
	slices.SortFunc(cycles, func(a, b []string) int { return g.index[a[0]] - g.index[b[0]] })
	return cycles
}

type tarjan struct {
	g          *Graph
	next       int
	index      map[string]int
	lowlink    map[string]int
	onStack    map[string]bool
	stack      []string
	components [][]string
}

func (t *tarjan) strongConnect(node string) {
	t.index[node] = t.next
	t.lowlink[node] = t.next
	t.next++
	t.stack = append(t.stack, node)
	t.onStack[node] = true

	for _, dep := range t.g.adjacency[node] {
		if _, seen := t.index[dep]; !seen {
			t.strongConnect(dep)
			t.lowlink[node] = min(t.lowlink[node], t.lowlink[dep])
		} else if t.onStack[dep] {
			t.lowlink[node] = min(t.lowlink[node], t.index[dep])
		}
	}

	if t.lowlink[node] != t.index[node] {
		return
	}
	var comp []string
	for {
		top := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[top] = false
		comp = append(comp, top)
		if top == node {
			break
		}
	}
	t.components = append(t.components, comp)
}
