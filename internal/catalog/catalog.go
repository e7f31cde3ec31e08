// Package catalog keeps a component registry and its dependency graph in
// step. A Catalog is an explicitly owned value: independent catalogs never
// share state.
package catalog

import (
	"errors"
	"fmt"
	"sync"

	"github.com/anvil-platform/semverx/internal/graph"
	"github.com/anvil-platform/semverx/internal/registry"
)

// Catalog is single-writer/multi-reader: every mutation, swaps included,
// holds the write lock and applies to the registry and the graph together;
// Get and View hold the read lock. Readers never observe a component without
// its node, a node without its component, or a half-applied relink.
//
// Mutating the Registry or Graph returned by the accessors directly bypasses
// the lock.
type Catalog struct {
	mu sync.RWMutex

	registry *registry.Registry
	graph    *graph.Graph

	// pending holds declared dependencies whose target is not registered yet,
	// keyed by target name.
	pending map[string][]graph.Edge
}

func New() *Catalog {
	return &Catalog{
		registry: registry.New(),
		graph:    graph.New(),
		pending:  make(map[string][]graph.Edge),
	}
}

func (c *Catalog) Registry() *registry.Registry { return c.registry }
func (c *Catalog) Graph() *graph.Graph          { return c.graph }

// Register stores comp and wires its dependencies. Dependencies on components
// that are not registered yet are kept pending and wired when the target
// registers.
func (c *Catalog) Register(comp registry.Component) (registry.Component, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, err := c.registry.Register(comp)
	if err != nil {
		return registry.Component{}, err
	}
	if err := c.link(stored); err != nil {
		_ = c.registry.Deregister(stored.Name)
		return registry.Component{}, err
	}
	return stored, nil
}

// Restore is Register for records coming back from a persistence
// collaborator: the recorded checksum is kept.
func (c *Catalog) Restore(comp registry.Component) (registry.Component, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored, err := c.registry.Restore(comp)
	if err != nil {
		return registry.Component{}, err
	}
	if err := c.link(stored); err != nil {
		_ = c.registry.Deregister(stored.Name)
		return registry.Component{}, err
	}
	return stored, nil
}

func (c *Catalog) link(comp registry.Component) error {
	var edges []graph.Edge
	for _, d := range comp.Dependencies {
		e := graph.Edge{From: comp.Name, To: d.Target, Constraint: d.Constraint, Weight: d.EdgeWeight()}
		if d.Target != comp.Name && !c.graph.HasNode(d.Target) {
			c.pending[d.Target] = append(c.pending[d.Target], e)
			continue
		}
		edges = append(edges, e)
	}
	edges = append(edges, c.pending[comp.Name]...)

	if err := c.graph.AddComponent(comp.Name, edges...); err != nil {
		c.dropPendingFrom(comp.Name)
		return fmt.Errorf("catalog: register %q: %w", comp.Name, err)
	}
	delete(c.pending, comp.Name)
	return nil
}

// Deregister removes the component, its graph node and every incident edge.
// Dependencies other components declared on it become pending again.
func (c *Catalog) Deregister(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.registry.Has(name) {
		return fmt.Errorf("catalog: deregister: %w: %q", registry.ErrNotFound, name)
	}
	for _, e := range c.graph.Dependents(name) {
		if e.From != name {
			c.pending[name] = append(c.pending[name], e)
		}
	}
	if err := c.graph.RemoveComponent(name); err != nil && !errors.Is(err, graph.ErrNodeNotFound) {
		return err
	}
	c.dropPendingFrom(name)
	return c.registry.Deregister(name)
}

// AddDependency adds an edge between two registered components.
func (c *Catalog) AddDependency(from, to, constraint string, weight float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.graph.AddDependency(from, to, constraint, weight); err != nil {
		return fmt.Errorf("catalog: add dependency: %w", err)
	}
	return nil
}

func (c *Catalog) Get(name string) (registry.Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Get(name)
}

// View calls fn with the registry and graph under the read lock. No mutation
// runs while fn does, so everything fn reads belongs to one catalog state. fn
// must not call back into the catalog's mutating methods.
func (c *Catalog) View(fn func(g *graph.Graph, reg *registry.Registry) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(c.graph, c.registry)
}

// Replace installs next as the component of record for name and returns the
// previous value. When next declares different dependencies the graph edges
// are rewired in the same step.
func (c *Catalog) Replace(name string, next registry.Component) (registry.Component, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replaceLocked(name, next)
}

// Relink replaces the declared dependencies of a registered component,
// keeping its version, payload and checksum.
func (c *Catalog) Relink(name string, deps []registry.Dependency) (registry.Component, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.registry.Get(name)
	if err != nil {
		return registry.Component{}, fmt.Errorf("catalog: relink: %w", err)
	}
	next := current.Clone()
	next.Dependencies = append([]registry.Dependency(nil), deps...)
	if _, err := c.replaceLocked(name, next); err != nil {
		return registry.Component{}, err
	}
	return next, nil
}

func (c *Catalog) replaceLocked(name string, next registry.Component) (registry.Component, error) {
	if next.Name != name {
		return registry.Component{}, fmt.Errorf("%w: replacement named %q for %q", registry.ErrInvalidComponent, next.Name, name)
	}
	current, err := c.registry.Get(name)
	if err != nil {
		return registry.Component{}, err
	}
	if !sameDependencies(current.Dependencies, next.Dependencies) {
		if err := c.rewire(next); err != nil {
			return registry.Component{}, err
		}
	}
	return c.registry.Replace(name, next)
}

// rewire points comp's outgoing edges at its declared dependencies. Targets
// that are not registered become pending.
func (c *Catalog) rewire(comp registry.Component) error {
	var edges, pending []graph.Edge
	for _, d := range comp.Dependencies {
		e := graph.Edge{From: comp.Name, To: d.Target, Constraint: d.Constraint, Weight: d.EdgeWeight()}
		if d.Target != comp.Name && !c.graph.HasNode(d.Target) {
			pending = append(pending, e)
			continue
		}
		edges = append(edges, e)
	}
	if err := c.graph.SetDependencies(comp.Name, edges...); err != nil {
		return fmt.Errorf("catalog: relink %q: %w", comp.Name, err)
	}
	c.dropPendingFrom(comp.Name)
	for _, e := range pending {
		c.pending[e.To] = append(c.pending[e.To], e)
	}
	return nil
}

// Pending returns the names of dependency targets that are declared but not
// registered.
func (c *Catalog) Pending() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.pending))
	for name := range c.pending {
		out = append(out, name)
	}
	return out
}

// Import restores plain-data records in order.
func (c *Catalog) Import(records []registry.Record) error {
	for _, rec := range records {
		comp, err := registry.FromRecord(rec)
		if err != nil {
			return err
		}
		if _, err := c.Restore(comp); err != nil {
			return err
		}
	}
	return nil
}

// Export returns plain-data records for every component.
func (c *Catalog) Export() []registry.Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registry.Export()
}

func sameDependencies(a, b []registry.Dependency) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *Catalog) dropPendingFrom(name string) {
	for target, es := range c.pending {
		kept := es[:0]
		for _, e := range es {
			if e.From != name {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(c.pending, target)
			continue
		}
		c.pending[target] = kept
	}
}
