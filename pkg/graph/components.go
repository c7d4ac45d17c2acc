package graph

import "sort"

// StronglyConnectedComponents returns the SCCs of the directed graph via
// an iterative Tarjan traversal (safe for graphs far deeper than the
// goroutine stack would allow recursively). Each component's members are
// sorted; components are ordered by their smallest member.
func (g *Graph) StronglyConnectedComponents() [][]string {
	n := len(g.nodes)
	nbrs := g.outNeighbors()

	const unvisited = -1
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = unvisited
	}

	var (
		counter int
		stack   []int
		comps   [][]string
	)

	type frame struct {
		v    int
		next int
	}

	for _, root := range g.sortedIndices() {
		if index[root] != unvisited {
			continue
		}
		frames := []frame{{v: root}}
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.v
			if f.next == 0 {
				index[v] = counter
				lowlink[v] = counter
				counter++
				stack = append(stack, v)
				onStack[v] = true
			}

			advanced := false
			for f.next < len(nbrs[v]) {
				w := nbrs[v][f.next]
				f.next++
				if index[w] == unvisited {
					frames = append(frames, frame{v: w})
					advanced = true
					break
				}
				if onStack[w] && index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
			if advanced {
				continue
			}

			// v is finished; pop a component if v is a root.
			if lowlink[v] == index[v] {
				var comp []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, g.nodes[w])
					if w == v {
						break
					}
				}
				sort.Strings(comp)
				comps = append(comps, comp)
			}
			frames = frames[:len(frames)-1]
			if len(frames) > 0 {
				parent := frames[len(frames)-1].v
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}
		}
	}

	sort.Slice(comps, func(a, b int) bool { return comps[a][0] < comps[b][0] })
	return comps
}

// WeaklyConnectedComponents returns the components of the undirected
// view, each sorted, ordered by smallest member.
func (g *Graph) WeaklyConnectedComponents() [][]string {
	nbrs := g.undirectedNeighbors()
	seen := make([]bool, len(g.nodes))

	var comps [][]string
	for _, s := range g.sortedIndices() {
		if seen[s] {
			continue
		}
		var comp []string
		queue := []int{s}
		seen[s] = true
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			comp = append(comp, g.nodes[v])
			for _, w := range nbrs[v] {
				if !seen[w] {
					seen[w] = true
					queue = append(queue, w)
				}
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	sort.Slice(comps, func(a, b int) bool { return comps[a][0] < comps[b][0] })
	return comps
}

// Diameter returns the longest shortest path within the largest weakly
// connected component, measured on the undirected view. Empty graphs
// return -1.
func (g *Graph) Diameter() int {
	if len(g.nodes) == 0 {
		return -1
	}

	comps := g.WeaklyConnectedComponents()
	largest := comps[0]
	for _, c := range comps[1:] {
		if len(c) > len(largest) {
			largest = c
		}
	}

	nbrs := g.undirectedNeighbors()
	diameter := 0
	for _, id := range largest {
		s := g.index[id]
		dist := map[int]int{s: 0}
		queue := []int{s}
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range nbrs[v] {
				if _, ok := dist[w]; !ok {
					dist[w] = dist[v] + 1
					if dist[w] > diameter {
						diameter = dist[w]
					}
					queue = append(queue, w)
				}
			}
		}
	}
	return diameter
}

// ArticulationPoints returns the nodes whose removal disconnects the
// undirected view, sorted. Uses an iterative Hopcroft-Tarjan DFS.
func (g *Graph) ArticulationPoints() []string {
	n := len(g.nodes)
	nbrs := g.undirectedNeighbors()

	const unvisited = -1
	disc := make([]int, n)
	low := make([]int, n)
	parent := make([]int, n)
	isArt := make([]bool, n)
	for i := range disc {
		disc[i] = unvisited
		parent[i] = -1
	}

	counter := 0
	type frame struct {
		v    int
		next int
	}

	for _, root := range g.sortedIndices() {
		if disc[root] != unvisited {
			continue
		}
		rootChildren := 0
		frames := []frame{{v: root}}
		for len(frames) > 0 {
			f := &frames[len(frames)-1]
			v := f.v
			if f.next == 0 {
				disc[v] = counter
				low[v] = counter
				counter++
			}

			advanced := false
			for f.next < len(nbrs[v]) {
				w := nbrs[v][f.next]
				f.next++
				if disc[w] == unvisited {
					parent[w] = v
					if v == root {
						rootChildren++
					}
					frames = append(frames, frame{v: w})
					advanced = true
					break
				}
				if w != parent[v] && disc[w] < low[v] {
					low[v] = disc[w]
				}
			}
			if advanced {
				continue
			}

			frames = frames[:len(frames)-1]
			p := parent[v]
			if p >= 0 {
				if low[v] < low[p] {
					low[p] = low[v]
				}
				if p != root && low[v] >= disc[p] {
					isArt[p] = true
				}
			}
		}
		if rootChildren > 1 {
			isArt[root] = true
		}
	}

	var out []string
	for i, art := range isArt {
		if art {
			out = append(out, g.nodes[i])
		}
	}
	sort.Strings(out)
	return out
}

// ClusteringCoefficients returns the local clustering coefficient of
// every node on the undirected view: the fraction of neighbor pairs that
// are themselves connected. Nodes with fewer than two neighbors score 0.
func (g *Graph) ClusteringCoefficients() map[string]float64 {
	nbrs := g.undirectedNeighbors()
	sets := make([]map[int]bool, len(g.nodes))
	for i, list := range nbrs {
		sets[i] = make(map[int]bool, len(list))
		for _, w := range list {
			sets[i][w] = true
		}
	}

	out := make(map[string]float64, len(g.nodes))
	for i, id := range g.nodes {
		k := len(nbrs[i])
		if k < 2 {
			out[id] = 0
			continue
		}
		links := 0
		for a := 0; a < k; a++ {
			for b := a + 1; b < k; b++ {
				if sets[nbrs[i][a]][nbrs[i][b]] {
					links++
				}
			}
		}
		out[id] = 2.0 * float64(links) / (float64(k) * float64(k-1))
	}
	return out
}

// AverageClustering returns the mean local clustering coefficient, or 0
// for an empty graph.
func (g *Graph) AverageClustering() float64 {
	coeffs := g.ClusteringCoefficients()
	if len(coeffs) == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}
	return sum / float64(len(coeffs))
}
