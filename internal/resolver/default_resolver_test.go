package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/events"
	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/semver"
)

const v1 = "1.stable.0.stable.0.stable"

func dep(target, constraint string) registry.Dependency {
	return registry.Dependency{Target: target, Constraint: constraint}
}

func register(t *testing.T, c *catalog.Catalog, name, version string, deps ...registry.Dependency) {
	t.Helper()
	_, err := c.Register(registry.Component{
		Name:         name,
		Version:      semver.MustParse(version),
		Payload:      []byte(name + "@" + version),
		Dependencies: deps,
	})
	require.NoError(t, err, "register %s", name)
}

func newResolver(t *testing.T, c *catalog.Catalog, opts ...Option) *DefaultResolver {
	t.Helper()
	r, err := NewDefault(c, opts...)
	require.NoError(t, err)
	return r
}

func req(name, version string) Request {
	return Request{Name: name, Version: semver.MustParse(version)}
}

func TestDefaultResolver_DependencyFirstOrder(t *testing.T) {
	c := catalog.New()
	register(t, c, "db", v1)
	register(t, c, "cache", v1)
	register(t, c, "auth", v1, dep("db", "^1.0.0"), dep("cache", ""))
	register(t, c, "api", v1, dep("auth", "^1.0.0"))

	plan, err := newResolver(t, c).Resolve(context.Background(), req("api", v1))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"db@" + v1,
		"cache@" + v1,
		"auth@" + v1,
		"api@" + v1,
	}, plan.IDs())
}

func TestDefaultResolver_DiamondCompatible(t *testing.T) {
	c := catalog.New()
	register(t, c, "d", "1.stable.3.stable.0.stable")
	register(t, c, "b", v1, dep("d", "^1.0.0"))
	register(t, c, "c", v1, dep("d", ">=1.2.0"))
	register(t, c, "a", v1, dep("b", ""), dep("c", ""))

	plan, err := newResolver(t, c).Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	require.Len(t, plan.Order, 4)
	assert.Equal(t, "d", plan.Order[0].Name)
	assert.Equal(t, "a", plan.Order[3].Name)
	assert.Equal(t, "1.stable.3.stable.0.stable", plan.Order[0].Version.String())
}

func TestDefaultResolver_DiamondConflictNamesPackage(t *testing.T) {
	c := catalog.New()
	register(t, c, "d", "1.stable.3.stable.0.stable")
	register(t, c, "b", v1, dep("d", "^1.0.0"))
	register(t, c, "c", v1, dep("d", "^2.0.0"))
	register(t, c, "a", v1, dep("b", ""), dep("c", ""))

	rec := &events.Recorder{}
	_, err := newResolver(t, c, WithSink(rec)).Resolve(context.Background(), req("a", v1))
	require.ErrorIs(t, err, ErrVersionConflict)
	var conflict *VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "d", conflict.Package)
	assert.Equal(t, []string{"b", "c"}, conflict.Requirers)

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, events.KindResolutionError, got[0].Kind)
	assert.Equal(t, "VersionConflict", got[0].Reason)
	assert.Equal(t, "a", got[0].Component)
}

func TestDefaultResolver_CycleNeverPartiallyResolved(t *testing.T) {
	c := catalog.New()
	register(t, c, "a", v1, dep("b", ""))
	register(t, c, "b", v1, dep("c", ""))
	register(t, c, "c", v1, dep("a", ""))

	plan, err := newResolver(t, c).Resolve(context.Background(), req("a", v1))
	require.ErrorIs(t, err, ErrCyclicDependency)
	assert.Empty(t, plan.Order)
	var cyc *CyclicDependencyError
	require.ErrorAs(t, err, &cyc)
	assert.Equal(t, []string{"a", "b", "c"}, cyc.Cycle)
}

func TestDefaultResolver_CycleWinsOverConflict(t *testing.T) {
	c := catalog.New()
	register(t, c, "a", v1, dep("b", "^9.0.0"))
	register(t, c, "b", v1, dep("a", ""))

	_, err := newResolver(t, c).Resolve(context.Background(), req("a", v1))
	assert.ErrorIs(t, err, ErrCyclicDependency)
}

func TestDefaultResolver_DeterministicAndCached(t *testing.T) {
	c := catalog.New()
	register(t, c, "d", v1)
	register(t, c, "b", v1, dep("d", ""))
	register(t, c, "a", v1, dep("b", ""), dep("d", ""))

	r := newResolver(t, c)
	first, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := r.Resolve(context.Background(), req("a", v1))
		require.NoError(t, err)
		require.Equal(t, first, again, "run %d", i)
	}
	assert.Equal(t, 1, r.cache.Len())

	// Returned plans are copies.
	first.Order[0].Name = "mutated"
	again, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	assert.Equal(t, "d", again.Order[0].Name)
}

func TestDefaultResolver_GraphMutationInvalidatesCache(t *testing.T) {
	c := catalog.New()
	register(t, c, "b", v1)
	register(t, c, "a", v1, dep("b", ""))

	r := newResolver(t, c)
	_, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)

	register(t, c, "x", v1)
	require.NoError(t, c.AddDependency("a", "x", "", 1))
	plan, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	assert.Equal(t, []string{"b@" + v1, "x@" + v1, "a@" + v1}, plan.IDs())
}

func TestDefaultResolver_ReplaceInvalidatesCache(t *testing.T) {
	c := catalog.New()
	register(t, c, "b", v1)
	register(t, c, "a", v1, dep("b", "^1.0.0"))

	r := newResolver(t, c)
	_, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)

	next, err := c.Get("b")
	require.NoError(t, err)
	next.Version = semver.MustParse("1.stable.1.stable.0.stable")
	_, err = c.Replace("b", next)
	require.NoError(t, err)

	plan, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	assert.Equal(t, "1.stable.1.stable.0.stable", plan.Order[0].Version.String())
}

func TestDefaultResolver_OutsideDependentsOnlyConstrainNewVersions(t *testing.T) {
	c := catalog.New()
	register(t, c, "db", v1)
	register(t, c, "a", v1, dep("db", "^1.0.0"))
	// No 1.x a satisfies x; that fails x's resolution, not a's.
	register(t, c, "x", v1, dep("a", "^2.0.0"))
	register(t, c, "b", v1)
	register(t, c, "y", v1, dep("b", "^1.0.0"))

	r := newResolver(t, c)
	plan, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	assert.Equal(t, []string{"db@" + v1, "a@" + v1}, plan.IDs())

	_, err = r.Resolve(context.Background(), req("x", v1))
	var conflict *VersionConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "a", conflict.Package)

	// A version other than the registered one must still satisfy y.
	_, err = r.Resolve(context.Background(), req("b", "1.stable.4.stable.0.stable"))
	require.NoError(t, err, "compatible target version rejected")

	_, err = r.Resolve(context.Background(), req("b", "2.stable.0.stable.0.stable"))
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "b", conflict.Package)
	assert.Equal(t, []string{"y"}, conflict.Requirers)
}

func TestDefaultResolver_PlanNeverMixesCatalogStates(t *testing.T) {
	c := catalog.New()
	register(t, c, "c", v1)
	register(t, c, "b", v1)
	register(t, c, "a", v1, dep("b", ""), dep("c", ""))
	r := newResolver(t, c)

	// The writer moves b ahead before c catches up, so every catalog state
	// has b.minor == c.minor or b.minor == c.minor+1.
	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; !stop.Load(); i++ {
			for _, name := range []string{"b", "c"} {
				next, err := c.Get(name)
				if err != nil {
					t.Errorf("get %s: %v", name, err)
					return
				}
				next.Version = semver.MustParse(fmt.Sprintf("1.stable.%d.stable.0.stable", i))
				if _, err := c.Replace(name, next); err != nil {
					t.Errorf("replace %s: %v", name, err)
					return
				}
			}
		}
	}()
	defer func() {
		stop.Store(true)
		wg.Wait()
	}()

	for i := 0; i < 2000; i++ {
		plan, err := r.Resolve(context.Background(), req("a", v1))
		require.NoError(t, err)
		require.Len(t, plan.Order, 3)
		b, cc := plan.Order[0], plan.Order[1]
		require.Equal(t, "b", b.Name)
		require.Equal(t, "c", cc.Name)
		require.True(t, b.Version.Minor >= cc.Version.Minor && b.Version.Minor <= cc.Version.Minor+1,
			"plan mixed catalog states: %s", plan)
	}
}

func TestDefaultResolver_FeedsStressMonitor(t *testing.T) {
	c := catalog.New()
	register(t, c, "d", v1)
	register(t, c, "b", v1, dep("d", "^2.0.0"))
	register(t, c, "a", v1, dep("d", ""))
	register(t, c, "x", v1, dep("y", ""))
	register(t, c, "y", v1, dep("x", ""))

	m := NewStressMonitor()
	r := newResolver(t, c, WithStressMonitor(m))

	_, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	// Cache hits are not recorded.
	_, err = r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err)
	_, err = r.Resolve(context.Background(), req("b", v1))
	require.ErrorIs(t, err, ErrVersionConflict)
	_, err = r.Resolve(context.Background(), req("x", v1))
	require.ErrorIs(t, err, ErrCyclicDependency)

	assert.Equal(t, map[string]int{"resolution": 1, "conflict": 1, "cycle": 1}, m.Counts())
	assert.Greater(t, m.Current(), 0.0)
}

func TestDefaultResolver_MissingDependencies(t *testing.T) {
	c := catalog.New()
	register(t, c, "a", v1,
		registry.Dependency{Target: "metrics", Constraint: "^1.0.0", Optional: true},
	)
	register(t, c, "b", v1, dep("ghost", ""))

	r := newResolver(t, c)
	plan, err := r.Resolve(context.Background(), req("a", v1))
	require.NoError(t, err, "optional dependency failed resolution")
	require.Len(t, plan.Diagnostics.UnresolvedOptional, 1)
	assert.Equal(t, "metrics", plan.Diagnostics.UnresolvedOptional[0].Target)

	_, err = r.Resolve(context.Background(), req("b", v1))
	assert.ErrorIs(t, err, registry.ErrNotFound)
	_, err = r.Resolve(context.Background(), req("nope", v1))
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestDefaultResolver_InvalidConstraint(t *testing.T) {
	c := catalog.New()
	register(t, c, "b", v1)
	register(t, c, "a", v1, dep("b", "not a range"))

	_, err := newResolver(t, c).Resolve(context.Background(), req("a", v1))
	assert.ErrorIs(t, err, ErrInvalidConstraint)
}

func TestDefaultResolver_CanceledContext(t *testing.T) {
	c := catalog.New()
	register(t, c, "a", v1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newResolver(t, c).Resolve(ctx, req("a", v1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultResolver_ConcurrentCallersAgree(t *testing.T) {
	c := catalog.New()
	register(t, c, "d", v1)
	register(t, c, "b", v1, dep("d", ""))
	register(t, c, "c", v1, dep("d", ""))
	register(t, c, "a", v1, dep("b", ""), dep("c", ""))

	r := newResolver(t, c)
	const workers = 16
	results := make([][]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plan, err := r.Resolve(context.Background(), req("a", v1))
			if !assert.NoError(t, err) {
				return
			}
			results[i] = plan.IDs()
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Equal(t, results[0], results[i], "worker %d", i)
	}
	assert.Equal(t, 1, r.cache.Len())
}
