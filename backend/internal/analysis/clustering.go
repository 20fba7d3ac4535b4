package analysis

// Clustering returns the directed local clustering coefficient of id: the
// fraction of possible directed triangles through the node that exist,
// counting each edge direction separately.
func (g *Digraph) Clustering(id string) float64 {
	i, ok := g.index[id]
	if !ok {
		return 0
	}
	return g.clustering(i)
}

func (g *Digraph) clustering(i int) float64 {
	preds := g.in[i]
	succs := g.out[i]
	total := len(preds) + len(succs)
	if total < 2 {
		return 0
	}
	reciprocal := 0
	for _, p := range preds {
		if _, ok := g.w[i][p]; ok {
			reciprocal++
		}
	}

	triangles := 0
	count := func(j int) {
		for _, k := range preds {
			triangles += g.linked(j, k)
		}
		for _, k := range succs {
			triangles += g.linked(j, k)
		}
	}
	for _, j := range preds {
		count(j)
	}
	for _, j := range succs {
		count(j)
	}

	possible := 2 * (total*(total-1) - 2*reciprocal)
	if possible <= 0 || triangles == 0 {
		return 0
	}
	return float64(triangles) / float64(possible)
}

// linked counts the edges between j and k in both directions.
func (g *Digraph) linked(j, k int) int {
	if j == k {
		return 0
	}
	n := 0
	if _, ok := g.w[j][k]; ok {
		n++
	}
	if _, ok := g.w[k][j]; ok {
		n++
	}
	return n
}

// ClusteringAll returns the coefficient of every node.
func (g *Digraph) ClusteringAll() map[string]float64 {
	out := make(map[string]float64, len(g.ids))
	for i, id := range g.ids {
		out[id] = g.clustering(i)
	}
	return out
}

// AverageClustering averages the coefficient over all nodes, zeros included.
func (g *Digraph) AverageClustering() float64 {
	if len(g.ids) == 0 {
		return 0
	}
	sum := 0.0
	for i := range g.ids {
		sum += g.clustering(i)
	}
	return sum / float64(len(g.ids))
}
