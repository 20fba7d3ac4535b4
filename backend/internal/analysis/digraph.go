// Package analysis holds the structural algorithms run over a knowledge
// graph. Algorithms work on a Digraph, an adjacency-list view indexed by
// dense integer positions that callers build on demand from the graph arena.
package analysis

import "sort"

// Digraph is a weighted directed graph over string ids. Parallel edges
// collapse into one, keeping the larger weight. Self-loops are ignored.
type Digraph struct {
	ids   []string
	index map[string]int
	out   [][]int
	in    [][]int
	w     []map[int]float64
	edges int
}

// New returns an empty Digraph over the given node ids. Duplicate ids are
// collapsed.
func New(ids []string) *Digraph {
	g := &Digraph{index: make(map[string]int, len(ids))}
	for _, id := range ids {
		g.AddNode(id)
	}
	return g
}

// AddNode adds id if absent and returns its index.
func (g *Digraph) AddNode(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = i
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	g.w = append(g.w, make(map[int]float64))
	return i
}

// AddEdge inserts from→to. It reports false when an endpoint is unknown or
// the edge is a self-loop.
func (g *Digraph) AddEdge(from, to string, weight float64) bool {
	u, ok := g.index[from]
	if !ok {
		return false
	}
	v, ok := g.index[to]
	if !ok || u == v {
		return false
	}
	if old, exists := g.w[u][v]; exists {
		if weight > old {
			g.w[u][v] = weight
		}
		return true
	}
	g.w[u][v] = weight
	g.out[u] = append(g.out[u], v)
	g.in[v] = append(g.in[v], u)
	g.edges++
	return true
}

// SetWeight overwrites the weight of an existing edge from→to.
func (g *Digraph) SetWeight(from, to string, weight float64) bool {
	u, ok := g.index[from]
	if !ok {
		return false
	}
	v, ok := g.index[to]
	if !ok {
		return false
	}
	if _, exists := g.w[u][v]; !exists {
		return false
	}
	g.w[u][v] = weight
	return true
}

// RemoveEdge deletes from→to if present.
func (g *Digraph) RemoveEdge(from, to string) {
	u, ok := g.index[from]
	if !ok {
		return
	}
	v, ok := g.index[to]
	if !ok {
		return
	}
	if _, exists := g.w[u][v]; !exists {
		return
	}
	delete(g.w[u], v)
	g.out[u] = without(g.out[u], v)
	g.in[v] = without(g.in[v], u)
	g.edges--
}

func without(s []int, x int) []int {
	for i, y := range s {
		if y == x {
			return append(s[:i:i], s[i+1:]...)
		}
	}
	return s
}

// Len returns the number of nodes.
func (g *Digraph) Len() int { return len(g.ids) }

// EdgeCount returns the number of directed edges.
func (g *Digraph) EdgeCount() int { return g.edges }

// ID returns the id at index i.
func (g *Digraph) ID(i int) string { return g.ids[i] }

// Index returns the dense index of id.
func (g *Digraph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// Weight returns the weight of from→to.
func (g *Digraph) Weight(from, to string) (float64, bool) {
	u, ok := g.index[from]
	if !ok {
		return 0, false
	}
	v, ok := g.index[to]
	if !ok {
		return 0, false
	}
	w, ok := g.w[u][v]
	return w, ok
}

// HasEdge reports whether from→to exists.
func (g *Digraph) HasEdge(from, to string) bool {
	_, ok := g.Weight(from, to)
	return ok
}

// Successors returns the ids reachable over one outgoing edge, sorted.
func (g *Digraph) Successors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.out[i])
}

// Predecessors returns the ids with an edge into id, sorted.
func (g *Digraph) Predecessors(id string) []string {
	i, ok := g.index[id]
	if !ok {
		return nil
	}
	return g.names(g.in[i])
}

// Degree returns in+out degree of id.
func (g *Digraph) Degree(id string) int {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return len(g.in[i]) + len(g.out[i])
}

func (g *Digraph) names(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.ids[i]
	}
	sort.Strings(out)
	return out
}

// Density is m / (n(n-1)) for a directed graph.
func (g *Digraph) Density() float64 {
	n := len(g.ids)
	if n < 2 {
		return 0
	}
	return float64(g.edges) / float64(n*(n-1))
}

// AverageDegree is the mean of in+out degree.
func (g *Digraph) AverageDegree() float64 {
	if len(g.ids) == 0 {
		return 0
	}
	return 2 * float64(g.edges) / float64(len(g.ids))
}
