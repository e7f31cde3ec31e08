package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func build(t *testing.T, nodes []string, edges ...Edge) *Graph {
	t.Helper()
	g := New()
	for _, n := range nodes {
		require.NoError(t, g.AddComponent(n))
	}
	for _, e := range edges {
		w := e.Weight
		if w == 0 {
			w = 1
		}
		require.NoError(t, g.AddDependency(e.From, e.To, e.Constraint, w))
	}
	return g
}

func TestAddComponent_Duplicate(t *testing.T) {
	g := New()
	require.NoError(t, g.AddComponent("a"))
	require.ErrorIs(t, g.AddComponent("a"), ErrDuplicateNode)
}

func TestAddComponent_WithEdgesIsAtomic(t *testing.T) {
	g := build(t, []string{"a", "b"})
	gen := g.Generation()

	err := g.AddComponent("c",
		Edge{From: "c", To: "a", Weight: 1},
		Edge{From: "c", To: "missing", Weight: 1},
	)
	require.ErrorIs(t, err, ErrNodeNotFound)
	assert.False(t, g.HasNode("c"))
	assert.Empty(t, g.Dependents("a"))
	assert.Equal(t, gen, g.Generation())

	require.NoError(t, g.AddComponent("c",
		Edge{From: "c", To: "a", Weight: 1},
		Edge{From: "b", To: "c", Weight: 1},
	))
	assert.Len(t, g.Dependencies("c"), 1)
	assert.Len(t, g.Dependents("c"), 1)
	assert.Equal(t, gen+1, g.Generation())
}

func TestAddDependency_MissingEndpointIsNoop(t *testing.T) {
	g := build(t, []string{"a"})
	gen := g.Generation()

	require.ErrorIs(t, g.AddDependency("a", "b", "", 1), ErrNodeNotFound)
	require.ErrorIs(t, g.AddDependency("b", "a", "", 1), ErrNodeNotFound)
	assert.Empty(t, g.Edges())
	assert.Equal(t, gen, g.Generation())
}

func TestAddDependency_NegativeWeight(t *testing.T) {
	g := build(t, []string{"a", "b"})
	require.ErrorIs(t, g.AddDependency("a", "b", "", -1), ErrNegativeWeight)
}

func TestRemoveComponent_DropsIncidentEdges(t *testing.T) {
	g := build(t, []string{"a", "b", "c"},
		Edge{From: "a", To: "b"},
		Edge{From: "b", To: "c"},
		Edge{From: "a", To: "c"},
	)
	require.NoError(t, g.RemoveComponent("b"))

	assert.Equal(t, []string{"a", "c"}, g.Nodes())
	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].From)
	assert.Equal(t, "c", edges[0].To)
	assert.Len(t, g.Dependents("c"), 1)

	require.ErrorIs(t, g.RemoveComponent("b"), ErrNodeNotFound)
}

func TestSetDependencies_ReplacesOutgoingEdges(t *testing.T) {
	g := build(t, []string{"a", "b", "c"},
		Edge{From: "a", To: "b"},
		Edge{From: "c", To: "b"},
	)
	gen := g.Generation()

	require.NoError(t, g.SetDependencies("a", Edge{From: "a", To: "c", Constraint: "^1.0.0", Weight: 2}))
	deps := g.Dependencies("a")
	require.Len(t, deps, 1)
	assert.Equal(t, "c", deps[0].To)
	assert.Equal(t, "^1.0.0", deps[0].Constraint)

	dependents := g.Dependents("b")
	require.Len(t, dependents, 1)
	assert.Equal(t, "c", dependents[0].From)
	assert.Greater(t, g.Generation(), gen)

	gen = g.Generation()
	require.ErrorIs(t, g.SetDependencies("a", Edge{From: "a", To: "missing"}), ErrNodeNotFound)
	assert.Len(t, g.Dependencies("a"), 1)
	assert.Equal(t, gen, g.Generation())

	require.ErrorIs(t, g.SetDependencies("nope"), ErrNodeNotFound)
}

func TestDetectCycles(t *testing.T) {
	g := build(t, []string{"a", "b", "c", "d", "e"},
		Edge{From: "a", To: "b"},
		Edge{From: "b", To: "c"},
		Edge{From: "c", To: "a"},
		Edge{From: "d", To: "e"},
		Edge{From: "e", To: "e"},
	)
	cycles := g.DetectCycles()
	assert.Equal(t, [][]string{{"a", "b", "c"}, {"e"}}, cycles)
}

func TestDetectCycles_Acyclic(t *testing.T) {
	g := build(t, []string{"a", "b", "c", "d"},
		Edge{From: "a", To: "b"},
		Edge{From: "a", To: "c"},
		Edge{From: "b", To: "d"},
		Edge{From: "c", To: "d"},
	)
	assert.Empty(t, g.DetectCycles())
}

func TestCyclesFrom_OnlyReachable(t *testing.T) {
	g := build(t, []string{"a", "b", "x", "y"},
		Edge{From: "a", To: "b"},
		Edge{From: "x", To: "y"},
		Edge{From: "y", To: "x"},
	)
	cycles, err := g.CyclesFrom("a")
	require.NoError(t, err)
	assert.Empty(t, cycles)

	cycles, err = g.CyclesFrom("y")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"y", "x"}}, cycles)
}

func TestShortestPath(t *testing.T) {
	g := build(t, []string{"a", "b", "c", "d"},
		Edge{From: "a", To: "b", Weight: 1},
		Edge{From: "b", To: "d", Weight: 5},
		Edge{From: "a", To: "c", Weight: 2},
		Edge{From: "c", To: "d", Weight: 1},
	)
	path, err := g.ShortestPath("a", "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, path)

	path, err = g.ShortestPath("a", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, path)
}

func TestShortestPath_TieBrokenByEdgeOrder(t *testing.T) {
	g := build(t, []string{"a", "b", "c", "d"},
		Edge{From: "a", To: "c"},
		Edge{From: "a", To: "b"},
		Edge{From: "b", To: "d"},
		Edge{From: "c", To: "d"},
	)
	first, err := g.ShortestPath("a", "d")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, first)

	for i := 0; i < 20; i++ {
		again, err := g.ShortestPath("a", "d")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestShortestPath_Errors(t *testing.T) {
	g := build(t, []string{"a", "b"})
	_, err := g.ShortestPath("a", "b")
	require.ErrorIs(t, err, ErrNoPathFound)

	_, err = g.ShortestPath("a", "zzz")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestReachable(t *testing.T) {
	g := build(t, []string{"a", "b", "c", "d", "e"},
		Edge{From: "a", To: "c"},
		Edge{From: "a", To: "b"},
		Edge{From: "c", To: "d"},
		Edge{From: "e", To: "a"},
	)
	got, err := g.Reachable("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d", "b"}, got)

	_, err = g.Reachable("zzz")
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestClone_IsIndependent(t *testing.T) {
	g := build(t, []string{"a", "b"}, Edge{From: "a", To: "b"})
	c := g.Clone()
	assert.Equal(t, g.Generation(), c.Generation())

	require.NoError(t, g.RemoveComponent("b"))
	assert.True(t, c.HasNode("b"))
	assert.Len(t, c.Dependencies("a"), 1)
	assert.NotEqual(t, g.Generation(), c.Generation())
}
