package graph

// Betweenness computes normalized betweenness centrality with Brandes'
// algorithm over the directed graph. Scores are normalized by
// 1/((n-1)(n-2)); graphs with fewer than three nodes score all zeros.
func (g *Graph) Betweenness() map[string]float64 {
	n := len(g.nodes)
	score := make([]float64, n)
	nbrs := g.outNeighbors()

	for _, s := range g.sortedIndices() {
		// Single-source shortest paths (unweighted BFS).
		sigma := make([]float64, n)
		dist := make([]int, n)
		for i := range dist {
			dist[i] = -1
		}
		preds := make([][]int, n)

		sigma[s] = 1
		dist[s] = 0
		queue := []int{s}
		var stack []int
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range nbrs[v] {
				if dist[w] < 0 {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					preds[w] = append(preds[w], v)
				}
			}
		}

		// Dependency accumulation in reverse BFS order.
		delta := make([]float64, n)
		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range preds[w] {
				delta[v] += sigma[v] / sigma[w] * (1 + delta[w])
			}
			if w != s {
				score[w] += delta[w]
			}
		}
	}

	norm := 0.0
	if n >= 3 {
		norm = 1.0 / (float64(n-1) * float64(n-2))
	}
	out := make(map[string]float64, n)
	for i, id := range g.nodes {
		out[id] = score[i] * norm
	}
	return out
}
