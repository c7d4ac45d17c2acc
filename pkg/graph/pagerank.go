package graph

const (
	pagerankDamping   = 0.85
	pagerankMaxIter   = 100
	pagerankTolerance = 1e-6
)

// PageRank computes the PageRank of every node by power iteration
// (damping 0.85, at most 100 iterations, stopping when the L1 change
// drops below 1e-6). Dangling mass is redistributed uniformly, so the
// ranks sum to 1.
func (g *Graph) PageRank() map[string]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}
	}

	rank := make([]float64, n)
	next := make([]float64, n)
	for i := range rank {
		rank[i] = 1.0 / float64(n)
	}

	// Total out-weight per node; zero marks a dangling node.
	outWeight := make([]float64, n)
	for i := 0; i < n; i++ {
		for _, e := range g.out[i] {
			outWeight[i] += e.weight
		}
	}

	for iter := 0; iter < pagerankMaxIter; iter++ {
		dangling := 0.0
		for i := 0; i < n; i++ {
			next[i] = 0
			if outWeight[i] == 0 {
				dangling += rank[i]
			}
		}
		base := (1-pagerankDamping)/float64(n) + pagerankDamping*dangling/float64(n)
		for i := 0; i < n; i++ {
			next[i] = base
		}
		for i := 0; i < n; i++ {
			if outWeight[i] == 0 {
				continue
			}
			share := pagerankDamping * rank[i] / outWeight[i]
			for _, e := range g.out[i] {
				next[e.to] += share * e.weight
			}
		}

		delta := 0.0
		for i := 0; i < n; i++ {
			d := next[i] - rank[i]
			if d < 0 {
				d = -d
			}
			delta += d
		}
		rank, next = next, rank
		if delta < pagerankTolerance {
			break
		}
	}

	out := make(map[string]float64, n)
	for i, id := range g.nodes {
		out[id] = rank[i]
	}
	return out
}
