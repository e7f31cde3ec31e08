package graph

import (
	"container/heap"
	"fmt"
)

// DetectCycles runs a depth-first traversal from every node in insertion
// order while tracking the recursion stack. Each back edge into the stack
// reports the stack slice starting at the revisited node.
func (g *Graph) DetectCycles() [][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cyclesFromLocked(g.order)
}

// CyclesFrom is DetectCycles restricted to what is reachable from root.
func (g *Graph) CyclesFrom(root string) ([][]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.hasLocked(root) {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, root)
	}
	return g.cyclesFromLocked([]string{root}), nil
}

const (
	white = iota
	grey
	black
)

func (g *Graph) cyclesFromLocked(roots []string) [][]string {
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycles [][]string

	var visit func(n string)
	visit = func(n string) {
		color[n] = grey
		stack = append(stack, n)
		for _, e := range g.out[n] {
			switch color[e.To] {
			case white:
				visit(e.To)
			case grey:
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == e.To {
						cycles = append(cycles, append([]string(nil), stack[i:]...))
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}

	for _, n := range roots {
		if color[n] == white {
			visit(n)
		}
	}
	return cycles
}

// ShortestPath returns the cheapest path from -> to by edge weight, both
// endpoints included. Among equal-cost paths the one discovered through
// older edges wins, so repeated calls on an unchanged graph agree.
func (g *Graph) ShortestPath(from, to string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.hasLocked(from) {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, from)
	}
	if !g.hasLocked(to) {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, to)
	}

	dist := map[string]float64{from: 0}
	prev := make(map[string]string)
	done := make(map[string]bool)
	pq := &queue{}
	var tick uint64
	heap.Push(pq, &item{node: from, tick: tick})

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*item)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true
		if cur.node == to {
			break
		}
		for _, e := range g.out[cur.node] {
			if done[e.To] {
				continue
			}
			d := cur.dist + e.Weight
			if old, seen := dist[e.To]; seen && d >= old {
				continue
			}
			dist[e.To] = d
			prev[e.To] = cur.node
			tick++
			heap.Push(pq, &item{node: e.To, dist: d, tick: tick})
		}
	}

	if !done[to] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoPathFound, from, to)
	}
	path := []string{to}
	for n := to; n != from; {
		n = prev[n]
		path = append(path, n)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

type item struct {
	node string
	dist float64
	// tick orders equal distances by discovery, which follows edge order.
	tick uint64
}

type queue []*item

func (q queue) Len() int { return len(q) }
func (q queue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].tick < q[j].tick
}
func (q queue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)   { *q = append(*q, x.(*item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
