// Package graph models the dependency relation between registered components.
//
// Nodes are component names. Edges point from a dependent to its dependency
// and carry the declared version constraint and a non-negative weight used as
// path cost. Every mutation bumps a generation counter so that derived data
// (resolution caches) can tell whether it is still current.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrNodeNotFound   = errors.New("graph: node not found")
	ErrDuplicateNode  = errors.New("graph: duplicate node")
	ErrNegativeWeight = errors.New("graph: negative edge weight")
	ErrNoPathFound    = errors.New("graph: no path found")
)

// Edge is a dependency from From on To.
type Edge struct {
	From       string
	To         string
	Constraint string
	Weight     float64

	// Seq is the global insertion sequence of the edge; lower means older.
	Seq uint64
}

// Graph is a directed, weighted dependency graph. It is safe for concurrent
// use: mutations take the write lock, queries the read lock.
type Graph struct {
	mu sync.RWMutex

	order []string
	nodes map[string]struct{}
	out   map[string][]Edge
	in    map[string][]Edge

	seq        uint64
	generation uint64
}

func New() *Graph {
	return &Graph{
		nodes: make(map[string]struct{}),
		out:   make(map[string][]Edge),
		in:    make(map[string][]Edge),
	}
}

// AddComponent adds a node together with any edges touching it. Each edge
// must have the new node as one endpoint and an existing node (or the new
// node) as the other. Either everything is applied or nothing is.
func (g *Graph) AddComponent(name string, edges ...Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateNode, name)
	}
	exists := func(n string) bool {
		_, ok := g.nodes[n]
		return ok || n == name
	}
	for _, e := range edges {
		if e.From != name && e.To != name {
			return fmt.Errorf("graph: edge %s -> %s does not touch %q", e.From, e.To, name)
		}
		if err := checkEdge(e, exists); err != nil {
			return err
		}
	}

	g.nodes[name] = struct{}{}
	g.order = append(g.order, name)
	for _, e := range edges {
		g.addEdgeLocked(e)
	}
	g.generation++
	return nil
}

// AddDependency adds an edge between two existing nodes. If either endpoint
// is absent the graph is left unchanged and ErrNodeNotFound is returned.
func (g *Graph) AddDependency(from, to, constraint string, weight float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	e := Edge{From: from, To: to, Constraint: constraint, Weight: weight}
	if err := checkEdge(e, g.hasLocked); err != nil {
		return err
	}
	g.addEdgeLocked(e)
	g.generation++
	return nil
}

// SetDependencies replaces the outgoing edges of name with edges. Every edge
// must start at name and end at an existing node; on error the graph is left
// unchanged.
func (g *Graph) SetDependencies(name string, edges ...Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasLocked(name) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	for _, e := range edges {
		if e.From != name {
			return fmt.Errorf("graph: edge %s -> %s does not start at %q", e.From, e.To, name)
		}
		if err := checkEdge(e, g.hasLocked); err != nil {
			return err
		}
	}

	for _, e := range g.out[name] {
		kept := g.in[e.To][:0:0]
		for _, in := range g.in[e.To] {
			if in.From != name {
				kept = append(kept, in)
			}
		}
		g.in[e.To] = kept
	}
	delete(g.out, name)
	for _, e := range edges {
		g.addEdgeLocked(e)
	}
	g.generation++
	return nil
}

// RemoveComponent deletes a node and every edge incident to it.
func (g *Graph) RemoveComponent(name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.hasLocked(name) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	for _, e := range g.out[name] {
		g.in[e.To] = dropEdges(g.in[e.To], name)
	}
	for _, e := range g.in[name] {
		g.out[e.From] = dropEdges(g.out[e.From], name)
	}
	delete(g.out, name)
	delete(g.in, name)
	delete(g.nodes, name)
	for i, n := range g.order {
		if n == name {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
	g.generation++
	return nil
}

func (g *Graph) HasNode(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasLocked(name)
}

// Nodes lists node names in insertion order.
func (g *Graph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Dependencies returns the outgoing edges of name in insertion order.
func (g *Graph) Dependencies(name string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.out[name]...)
}

// Dependents returns the incoming edges of name in insertion order.
func (g *Graph) Dependents(name string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge(nil), g.in[name]...)
}

// Edges returns every edge ordered by insertion.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var all []Edge
	for _, n := range g.order {
		all = append(all, g.out[n]...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all
}

// Generation increases on every successful mutation.
func (g *Graph) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

// Clone returns an independent copy, generation included.
func (g *Graph) Clone() *Graph {
	g.mu.RLock()
	defer g.mu.RUnlock()

	c := New()
	c.order = append([]string(nil), g.order...)
	for n := range g.nodes {
		c.nodes[n] = struct{}{}
	}
	for n, es := range g.out {
		c.out[n] = append([]Edge(nil), es...)
	}
	for n, es := range g.in {
		c.in[n] = append([]Edge(nil), es...)
	}
	c.seq = g.seq
	c.generation = g.generation
	return c
}

// Reachable lists the nodes reachable from name, name first, in depth-first
// preorder following edges in insertion order.
func (g *Graph) Reachable(name string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasLocked(name) {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	seen := make(map[string]bool)
	var out []string
	var visit func(n string)
	visit = func(n string) {
		seen[n] = true
		out = append(out, n)
		for _, e := range g.out[n] {
			if !seen[e.To] {
				visit(e.To)
			}
		}
	}
	visit(name)
	return out, nil
}

func (g *Graph) hasLocked(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

func (g *Graph) addEdgeLocked(e Edge) {
	g.seq++
	e.Seq = g.seq
	g.out[e.From] = append(g.out[e.From], e)
	g.in[e.To] = append(g.in[e.To], e)
}

func checkEdge(e Edge, exists func(string) bool) error {
	if !exists(e.From) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, e.From)
	}
	if !exists(e.To) {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, e.To)
	}
	if e.Weight < 0 {
		return fmt.Errorf("%w: %s -> %s (%g)", ErrNegativeWeight, e.From, e.To, e.Weight)
	}
	return nil
}

// dropEdges removes the edges touching name.
func dropEdges(es []Edge, name string) []Edge {
	out := make([]Edge, 0, len(es))
	for _, e := range es {
		if e.From != name && e.To != name {
			out = append(out, e)
		}
	}
	return out
}

