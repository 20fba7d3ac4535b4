package analysis

import "math"

// PageRankOptions tunes PageRank.
type PageRankOptions struct {
	Damping    float64
	Iterations int
	Tolerance  float64
}

// DefaultPageRankOptions matches the common 0.85 damping, 100 iterations.
func DefaultPageRankOptions() PageRankOptions {
	return PageRankOptions{Damping: 0.85, Iterations: 100, Tolerance: 1e-6}
}

// PageRank computes weighted PageRank. Each node's rank flows to its
// successors in proportion to edge weight; rank held by nodes without
// outgoing weight is spread uniformly. Scores sum to 1.
func (g *Digraph) PageRank(opts PageRankOptions) map[string]float64 {
	n := len(g.ids)
	scores := make(map[string]float64, n)
	if n == 0 {
		return scores
	}
	if opts.Damping <= 0 || opts.Damping >= 1 {
		opts.Damping = 0.85
	}
	if opts.Iterations <= 0 {
		opts.Iterations = 100
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}

	outWeight := make([]float64, n)
	for u := range g.out {
		for _, v := range g.out[u] {
			outWeight[u] += g.w[u][v]
		}
	}

	nf := float64(n)
	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1 / nf
	}

	for iter := 0; iter < opts.Iterations; iter++ {
		dangling := 0.0
		for i := range next {
			next[i] = 0
		}
		for u := 0; u < n; u++ {
			if outWeight[u] <= 0 {
				dangling += rank[u]
				continue
			}
			share := opts.Damping * rank[u] / outWeight[u]
			for _, v := range g.out[u] {
				next[v] += share * g.w[u][v]
			}
		}
		base := (1-opts.Damping)/nf + opts.Damping*dangling/nf
		delta := 0.0
		for i := range next {
			next[i] += base
			delta += math.Abs(next[i] - rank[i])
		}
		rank, next = next, rank
		if delta < nf*opts.Tolerance {
			break
		}
	}

	for i, id := range g.ids {
		scores[id] = rank[i]
	}
	return scores
}
