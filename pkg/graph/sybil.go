package graph

// Thresholds below which structure looks engineered rather than organic.
const (
	sybilLowClustering = 0.1
	sybilLowPageRank   = 0.5 // relative to the uniform rank 1/n
)

// SybilScores assigns every node a heuristic [0,1] likelihood that its
// structural position is inconsistent with organic growth. seeds, when
// non-empty, names agents assumed honest; nodes with no in-edge from any
// seed are penalized. Higher is more suspicious.
func (g *Graph) SybilScores(seeds []string) map[string]float64 {
	n := len(g.nodes)
	if n == 0 {
		return map[string]float64{}
	}

	pagerank := g.PageRank()
	clustering := g.ClusteringCoefficients()
	uniform := 1.0 / float64(n)

	seedSet := make(map[int]bool, len(seeds))
	for _, s := range seeds {
		if i, ok := g.index[s]; ok {
			seedSet[i] = true
		}
	}

	out := make(map[string]float64, n)
	for i, id := range g.nodes {
		outDeg := len(g.out[i])
		inDeg := len(g.in[i])
		total := outDeg + inDeg

		score := 0.0

		// (a) lopsided edge direction.
		if total > 0 {
			imbalance := float64(outDeg - inDeg)
			if imbalance < 0 {
				imbalance = -imbalance
			}
			score += 0.3 * imbalance / float64(total)
		}

		// (b) well-connected but no triangles.
		if clustering[id] < sybilLowClustering {
			switch {
			case total >= 4:
				score += 0.3
			case total >= 2:
				score += 0.2
			}
		}

		// (c) connected yet ignored by the rest of the graph.
		if total > 2 && pagerank[id] < sybilLowPageRank*uniform {
			score += 0.2
		}

		// (d) unreachable from any trusted seed.
		if len(seedSet) > 0 {
			fromSeed := false
			for _, e := range g.in[i] {
				if seedSet[e.to] {
					fromSeed = true
					break
				}
			}
			if !fromSeed {
				score += 0.3
			}
		}

		// (e) many in-edges from a single source.
		if inDeg > 3 {
			first := g.in[i][0].to
			single := true
			for _, e := range g.in[i][1:] {
				if e.to != first {
					single = false
					break
				}
			}
			if single {
				score += 0.4
			}
		}

		if score > 1.0 {
			score = 1.0
		}
		out[id] = score
	}
	return out
}
