package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/graph"
	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/semver"
)

// Source is the catalog state a resolver reads. *catalog.Catalog satisfies it.
//
// View must run fn while no writer can change the graph or the registry, so a
// resolution never mixes two catalog states.
type Source interface {
	Graph() *graph.Graph
	Registry() *registry.Registry
	View(fn func(g *graph.Graph, reg *registry.Registry) error) error
}

const DefaultCacheSize = 1024

var now = time.Now

// DefaultResolver resolves against a live Source and caches successful plans.
//
// A cache entry records the graph generation and registry revision it was
// computed from and is only served while both are unchanged. Concurrent
// misses on the same key share one computation, which runs under the
// source's read view.
type DefaultResolver struct {
	src    Source
	sink   events.Sink
	stress *StressMonitor
	cache *lru.Cache[string, cacheEntry]
	group singleflight.Group
}

type cacheEntry struct {
	plan       Plan
	generation uint64
	revision   uint64
}

type Option func(*options)

type options struct {
	cacheSize int
	sink      events.Sink
	stress    *StressMonitor
}

// WithCacheSize bounds the number of cached plans.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithStressMonitor feeds every computed resolution outcome into m.
func WithStressMonitor(m *StressMonitor) Option {
	return func(o *options) { o.stress = m }
}

// WithSink sets where resolution failures are reported.
func WithSink(s events.Sink) Option {
	return func(o *options) { o.sink = s }
}

func NewDefault(src Source, opts ...Option) (*DefaultResolver, error) {
	o := options{cacheSize: DefaultCacheSize, sink: events.Discard}
	for _, opt := range opts {
		opt(&o)
	}
	cache, err := lru.New[string, cacheEntry](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("resolver: %w", err)
	}
	return &DefaultResolver{src: src, sink: o.sink, stress: o.stress, cache: cache}, nil
}

func (r *DefaultResolver) Resolve(ctx context.Context, req Request) (Plan, error) {
	log := logr.FromContextOrDiscard(ctx).WithValues("component", req.Name, "version", req.Version.String())
	if err := ctx.Err(); err != nil {
		return Plan{}, err
	}

	key := req.key()
	if plan, ok := r.cached(key); ok {
		log.V(1).Info("resolution cache hit")
		return plan, nil
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		if plan, ok := r.cached(key); ok {
			return plan, nil
		}
		var plan Plan
		err := r.src.View(func(g *graph.Graph, reg *registry.Registry) error {
			p, err := resolve(g, reg, req)
			r.observe(g, p, err)
			if err != nil {
				return err
			}
			plan = p
			r.cache.Add(key, cacheEntry{plan: p, generation: g.Generation(), revision: reg.Revision()})
			return nil
		})
		if err != nil {
			return nil, err
		}
		return plan, nil
	})
	if err != nil {
		log.Info("resolution failed", "reason", reason(err), "error", err.Error())
		r.sink.Emit(events.Event{
			Time:      now(),
			Kind:      events.KindResolutionError,
			Component: req.Name,
			Reason:    reason(err),
			Error:     err.Error(),
			Detail:    req.key(),
		})
		return Plan{}, err
	}
	log.V(1).Info("resolved", "shared", shared)
	return v.(Plan).clone(), nil
}

// observe records the outcome of one computed resolution on the stress
// monitor, if any.
func (r *DefaultResolver) observe(g *graph.Graph, plan Plan, err error) {
	if r.stress == nil {
		return
	}
	var (
		conflict *VersionConflictError
		cycle    *CyclicDependencyError
	)
	switch {
	case err == nil:
		steps := len(plan.Order)
		for _, p := range plan.Order {
			steps += len(g.Dependencies(p.Name))
		}
		r.stress.RecordResolution(len(plan.Order), steps)
	case errors.As(err, &conflict):
		r.stress.RecordConflict(len(conflict.Requirers))
	case errors.As(err, &cycle):
		r.stress.RecordCycle(len(cycle.Cycle))
	}
}

// Invalidate drops every cached plan.
func (r *DefaultResolver) Invalidate() {
	r.cache.Purge()
}

func (r *DefaultResolver) cached(key string) (Plan, bool) {
	e, ok := r.cache.Get(key)
	if !ok {
		return Plan{}, false
	}
	if e.generation != r.src.Graph().Generation() || e.revision != r.src.Registry().Revision() {
		r.cache.Remove(key)
		return Plan{}, false
	}
	return e.plan.clone(), true
}

type requirement struct {
	from       string
	constraint string
}

func resolve(g *graph.Graph, reg *registry.Registry, req Request) (Plan, error) {
	target, err := reg.Get(req.Name)
	if err != nil {
		return Plan{}, fmt.Errorf("resolver: %w", err)
	}
	if !g.HasNode(req.Name) {
		return Plan{}, fmt.Errorf("resolver: %w: %q", graph.ErrNodeNotFound, req.Name)
	}

	cycles, err := g.CyclesFrom(req.Name)
	if err != nil {
		return Plan{}, fmt.Errorf("resolver: %w", err)
	}
	if len(cycles) > 0 {
		return Plan{}, &CyclicDependencyError{Cycle: cycles[0]}
	}

	order := postOrder(g, req.Name)

	var plan Plan
	requires := make(map[string][]requirement)
	for _, name := range order {
		comp, err := reg.Get(name)
		if err != nil {
			return Plan{}, fmt.Errorf("resolver: %w", err)
		}
		for _, d := range comp.Dependencies {
			if g.HasNode(d.Target) {
				continue
			}
			if !d.Optional {
				return Plan{}, fmt.Errorf("resolver: %q requires %q: %w", name, d.Target, registry.ErrNotFound)
			}
			plan.Diagnostics.UnresolvedOptional = append(plan.Diagnostics.UnresolvedOptional, UnresolvedRequirement{
				Requirer:   name,
				Target:     d.Target,
				Constraint: d.Constraint,
				Reason:     "not registered",
			})
		}
		for _, e := range g.Dependencies(name) {
			requires[e.To] = append(requires[e.To], requirement{from: name, constraint: e.Constraint})
		}
	}

	// Resolving at a version other than the registered one previews a swap:
	// dependents outside the reachable set must accept the new version too.
	// At the registered version they are their own resolution's concern.
	if !req.Version.Equal(target.Version) {
		reachable := make(map[string]bool, len(order))
		for _, name := range order {
			reachable[name] = true
		}
		for _, e := range g.Dependents(req.Name) {
			if !reachable[e.From] {
				requires[req.Name] = append(requires[req.Name], requirement{from: e.From, constraint: e.Constraint})
			}
		}
	}

	for _, name := range order {
		current := req.Version
		if name != req.Name {
			comp, err := reg.Get(name)
			if err != nil {
				return Plan{}, fmt.Errorf("resolver: %w", err)
			}
			current = comp.Version
		}
		selected, err := selectVersion(name, requires[name], []semver.Version{current})
		if err != nil {
			return Plan{}, err
		}
		plan.Order = append(plan.Order, Resolved{Name: name, Version: selected})
	}
	return plan, nil
}

// selectVersion picks the highest candidate that satisfies every requirement
// on name.
func selectVersion(name string, reqs []requirement, candidates []semver.Version) (semver.Version, error) {
	cs := make([]semver.Constraint, 0, len(reqs))
	for _, rq := range reqs {
		c, err := semver.ParseConstraint(rq.constraint)
		if err != nil {
			return semver.Version{}, fmt.Errorf("%w: %s -> %s: %v", ErrInvalidConstraint, rq.from, name, err)
		}
		cs = append(cs, c)
	}
	if v, ok := semver.MaxSatisfying(cs, candidates); ok {
		return v, nil
	}

	conflict := &VersionConflictError{Package: name}
	for _, rq := range reqs {
		conflict.Requirers = append(conflict.Requirers, rq.from)
		conflict.Constraints = append(conflict.Constraints, rq.constraint)
	}
	return semver.Version{}, conflict
}

// postOrder lists everything reachable from root with dependencies before
// dependents, following edges in insertion order. The graph must be acyclic
// from root.
func postOrder(g *graph.Graph, root string) []string {
	seen := make(map[string]bool)
	var out []string
	var visit func(n string)
	visit = func(n string) {
		seen[n] = true
		for _, e := range g.Dependencies(n) {
			if !seen[e.To] {
				visit(e.To)
			}
		}
		out = append(out, n)
	}
	visit(root)
	return out
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrCyclicDependency):
		return "CyclicDependency"
	case errors.Is(err, ErrVersionConflict):
		return "VersionConflict"
	case errors.Is(err, ErrInvalidConstraint):
		return "InvalidConstraint"
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, graph.ErrNodeNotFound):
		return "NotFound"
	default:
		return "Unknown"
	}
}
