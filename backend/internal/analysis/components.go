package analysis

// StronglyConnectedComponents returns the SCCs of the graph using an
// iterative Tarjan walk. Each component lists node ids.
func (g *Digraph) StronglyConnectedComponents() [][]string {
	n := len(g.ids)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	var (
		stack      []int
		components [][]string
		counter    int
	)

	type frame struct {
		node int
		next int
	}

	for root := 0; root < n; root++ {
		if index[root] != -1 {
			continue
		}
		call := []frame{{node: root}}
		index[root], low[root] = counter, counter
		counter++
		stack = append(stack, root)
		onStack[root] = true

		for len(call) > 0 {
			top := &call[len(call)-1]
			u := top.node
			if top.next < len(g.out[u]) {
				v := g.out[u][top.next]
				top.next++
				if index[v] == -1 {
					index[v], low[v] = counter, counter
					counter++
					stack = append(stack, v)
					onStack[v] = true
					call = append(call, frame{node: v})
				} else if onStack[v] && index[v] < low[u] {
					low[u] = index[v]
				}
				continue
			}

			if low[u] == index[u] {
				var comp []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, g.ids[w])
					if w == u {
						break
					}
				}
				components = append(components, comp)
			}
			call = call[:len(call)-1]
			if len(call) > 0 {
				parent := call[len(call)-1].node
				if low[u] < low[parent] {
					low[parent] = low[u]
				}
			}
		}
	}
	return components
}

// IsStronglyConnected reports whether every node reaches every other node.
// An empty graph is not strongly connected.
func (g *Digraph) IsStronglyConnected() bool {
	n := len(g.ids)
	if n == 0 {
		return false
	}
	return g.reachCount(0, g.out) == n && g.reachCount(0, g.in) == n
}

func (g *Digraph) reachCount(start int, adj [][]int) int {
	seen := make([]bool, len(g.ids))
	seen[start] = true
	queue := []int{start}
	count := 1
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range adj[u] {
			if !seen[v] {
				seen[v] = true
				count++
				queue = append(queue, v)
			}
		}
	}
	return count
}

// FindCycle returns the node ids of one directed cycle, first node repeated
// at the end, or nil when the graph is acyclic.
func (g *Digraph) FindCycle() []string {
	const (
		white = iota
		grey
		black
	)
	n := len(g.ids)
	color := make([]int, n)
	parent := make([]int, n)

	type frame struct {
		node int
		next int
	}

	for root := 0; root < n; root++ {
		if color[root] != white {
			continue
		}
		call := []frame{{node: root}}
		color[root] = grey
		parent[root] = -1
		for len(call) > 0 {
			top := &call[len(call)-1]
			u := top.node
			if top.next >= len(g.out[u]) {
				color[u] = black
				call = call[:len(call)-1]
				continue
			}
			v := g.out[u][top.next]
			top.next++
			switch color[v] {
			case white:
				color[v] = grey
				parent[v] = u
				call = append(call, frame{node: v})
			case grey:
				cycle := []string{g.ids[v]}
				for w := u; w != v; w = parent[w] {
					cycle = append(cycle, g.ids[w])
				}
				cycle = append(cycle, g.ids[v])
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
		}
	}
	return nil
}
