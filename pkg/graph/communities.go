package graph

import "sort"

const labelPropMaxIter = 50

// Communities detects communities by synchronous-free label propagation
// on the undirected view. Nodes are visited in sorted ID order and adopt
// the most frequent label among their neighbors, breaking frequency ties
// by the minimum label. The run is fully deterministic. Labels are
// renumbered densely from 0 in order of each community's smallest member.
func (g *Graph) Communities() map[string]int {
	n := len(g.nodes)
	nbrs := g.undirectedNeighbors()
	order := g.sortedIndices()

	// Initial label: position in sorted order, so identical graphs get
	// identical initial conditions regardless of insertion order.
	label := make([]int, n)
	for pos, v := range order {
		label[v] = pos
	}

	for iter := 0; iter < labelPropMaxIter; iter++ {
		changed := false
		for _, v := range order {
			if len(nbrs[v]) == 0 {
				continue
			}
			counts := make(map[int]int)
			for _, w := range nbrs[v] {
				counts[label[w]]++
			}
			best, bestCount := label[v], -1
			for lbl, c := range counts {
				if c > bestCount || (c == bestCount && lbl < best) {
					best, bestCount = lbl, c
				}
			}
			if best != label[v] {
				label[v] = best
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// Dense renumbering by smallest member.
	members := make(map[int][]string)
	for i, id := range g.nodes {
		members[label[i]] = append(members[label[i]], id)
	}
	type comm struct {
		lbl int
		min string
	}
	var comms []comm
	for lbl, ids := range members {
		sort.Strings(ids)
		comms = append(comms, comm{lbl: lbl, min: ids[0]})
	}
	sort.Slice(comms, func(a, b int) bool { return comms[a].min < comms[b].min })

	renumber := make(map[int]int, len(comms))
	for dense, c := range comms {
		renumber[c.lbl] = dense
	}

	out := make(map[string]int, n)
	for i, id := range g.nodes {
		out[id] = renumber[label[i]]
	}
	return out
}
