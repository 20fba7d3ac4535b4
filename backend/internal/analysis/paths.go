package analysis

import "math/rand"

// PathSearch bounds StrongestAlternatePath.
type PathSearch struct {
	// MaxHops caps the number of edges in a candidate path.
	MaxHops int
	// Budget caps the number of edge expansions per search.
	Budget int
}

// AlternatePath is a path found by StrongestAlternatePath.
type AlternatePath struct {
	Nodes   []string
	Product float64
}

// StrongestAlternatePath looks for a simple path from→to, other than the
// direct edge, whose weight product exceeds threshold. Weights are in
// [0,1], so a partial product at or below threshold can never recover and
// the branch is pruned. The search returns the first qualifying path; when
// the budget runs out it gives up and reports false.
func (g *Digraph) StrongestAlternatePath(from, to string, threshold float64, limits PathSearch) (AlternatePath, bool) {
	s, ok := g.index[from]
	if !ok {
		return AlternatePath{}, false
	}
	t, ok := g.index[to]
	if !ok || s == t {
		return AlternatePath{}, false
	}
	if limits.MaxHops < 2 {
		limits.MaxHops = 2
	}
	if limits.Budget <= 0 {
		limits.Budget = 20000
	}

	visited := make([]bool, len(g.ids))
	visited[s] = true
	path := []int{s}
	budget := limits.Budget

	var walk func(u int, product float64) (float64, bool)
	walk = func(u int, product float64) (float64, bool) {
		for _, v := range g.out[u] {
			if budget <= 0 {
				return 0, false
			}
			budget--
			if visited[v] || (u == s && v == t) {
				continue
			}
			p := product * g.w[u][v]
			if p <= threshold {
				continue
			}
			if v == t {
				path = append(path, v)
				return p, true
			}
			if len(path) >= limits.MaxHops {
				continue
			}
			visited[v] = true
			path = append(path, v)
			if found, ok := walk(v, p); ok {
				return found, true
			}
			path = path[:len(path)-1]
			visited[v] = false
		}
		return 0, false
	}

	product, found := walk(s, 1)
	if !found {
		return AlternatePath{}, false
	}
	nodes := make([]string, len(path))
	for i, idx := range path {
		nodes[i] = g.ids[idx]
	}
	return AlternatePath{Nodes: nodes, Product: product}, true
}

// PathStats summarizes unweighted shortest paths.
type PathStats struct {
	// AverageLength is the mean hop count over reachable ordered pairs.
	AverageLength float64
	// Diameter is the longest shortest path among reachable pairs.
	Diameter int
	// ReachablePairs counts ordered pairs (u,v), u≠v, with v reachable from u.
	ReachablePairs int
}

// ShortestPathStats runs a BFS from every node, or from maxSources nodes
// picked with rng when the graph is larger than that.
func (g *Digraph) ShortestPathStats(maxSources int, rng *rand.Rand) PathStats {
	n := len(g.ids)
	sources := make([]int, n)
	for i := range sources {
		sources[i] = i
	}
	if maxSources > 0 && n > maxSources {
		if rng == nil {
			rng = rand.New(rand.NewSource(1))
		}
		rng.Shuffle(n, func(i, j int) { sources[i], sources[j] = sources[j], sources[i] })
		sources = sources[:maxSources]
	}

	var stats PathStats
	total := 0
	dist := make([]int, n)
	queue := make([]int, 0, n)
	for _, s := range sources {
		for i := range dist {
			dist[i] = -1
		}
		dist[s] = 0
		queue = append(queue[:0], s)
		for head := 0; head < len(queue); head++ {
			u := queue[head]
			for _, v := range g.out[u] {
				if dist[v] >= 0 {
					continue
				}
				dist[v] = dist[u] + 1
				total += dist[v]
				stats.ReachablePairs++
				if dist[v] > stats.Diameter {
					stats.Diameter = dist[v]
				}
				queue = append(queue, v)
			}
		}
	}
	if stats.ReachablePairs > 0 {
		stats.AverageLength = float64(total) / float64(stats.ReachablePairs)
	}
	return stats
}
