package transpiler

import (
	"math/rand"
	"sort"
)

type couplingGraph struct {
	adj [][]int
}

// newCouplingGraph treats every edge as undirected.
func newCouplingGraph(n int, edges [][2]int) *couplingGraph {
	g := &couplingGraph{adj: make([][]int, n)}
	seen := map[[2]int]struct{}{}
	for _, e := range edges {
		a, b := e[0], e[1]
		if a == b || a < 0 || b < 0 || a >= n || b >= n {
			continue
		}
		if a > b {
			a, b = b, a
		}
		if _, ok := seen[[2]int{a, b}]; ok {
			continue
		}
		seen[[2]int{a, b}] = struct{}{}
		g.adj[a] = append(g.adj[a], b)
		g.adj[b] = append(g.adj[b], a)
	}
	for _, ns := range g.adj {
		sort.Ints(ns)
	}
	return g
}

func (g *couplingGraph) adjacent(a, b int) bool {
	for _, n := range g.adj[a] {
		if n == b {
			return true
		}
	}
	return false
}

// shortestPath returns the vertices from a to b inclusive, or nil when b is
// unreachable.
func (g *couplingGraph) shortestPath(a, b int) []int {
	prev := make([]int, len(g.adj))
	for i := range prev {
		prev[i] = -1
	}
	prev[a] = a
	queue := []int{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == b {
			break
		}
		for _, n := range g.adj[cur] {
			if prev[n] < 0 {
				prev[n] = cur
				queue = append(queue, n)
			}
		}
	}
	if prev[b] < 0 {
		return nil
	}
	path := []int{b}
	for cur := b; cur != a; cur = prev[cur] {
		path = append([]int{prev[cur]}, path...)
	}
	return path
}

// denseOrder lists physical qubits in BFS order from the best connected one.
// Ties go to the lowest index unless seed is non zero.
func (g *couplingGraph) denseOrder(seed int64) []int {
	best := []int{}
	maxDegree := -1
	for i, ns := range g.adj {
		switch {
		case len(ns) > maxDegree:
			maxDegree = len(ns)
			best = []int{i}
		case len(ns) == maxDegree:
			best = append(best, i)
		}
	}
	if len(best) == 0 {
		return nil
	}
	start := best[0]
	if seed != 0 {
		start = best[rand.New(rand.NewSource(seed)).Intn(len(best))]
	}
	visited := make([]bool, len(g.adj))
	order := make([]int, 0, len(g.adj))
	queue := []int{start}
	visited[start] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		for _, n := range g.adj[cur] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	for i := range g.adj {
		if !visited[i] {
			order = append(order, i)
		}
	}
	return order
}
