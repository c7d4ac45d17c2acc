// Package graph provides directed-multigraph analytics over the
// attestation ledger: centrality, components, communities, and sybil
// heuristics. All algorithms are deterministic for a given graph.
package graph

import (
	"sort"

	"github.com/isnad-labs/isnad/pkg/record"
)

type halfEdge struct {
	to     int
	weight float64
}

// Graph is a directed multigraph with weighted edges. Nodes are agent IDs.
// The zero value is not usable; construct with New or FromAttestations.
type Graph struct {
	nodes []string
	index map[string]int
	out   [][]halfEdge
	in    [][]halfEdge
	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// FromAttestations builds the trust graph: one node per participant, one
// witness→subject edge per attestation, weight 1.0.
func FromAttestations(atts []*record.Attestation) *Graph {
	g := New()
	for _, att := range atts {
		g.AddEdge(att.Witness, att.Subject, 1.0)
	}
	return g
}

// AddNode ensures id is present and returns its index.
func (g *Graph) AddNode(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.nodes)
	g.index[id] = i
	g.nodes = append(g.nodes, id)
	g.out = append(g.out, nil)
	g.in = append(g.in, nil)
	return i
}

// AddEdge adds a directed weighted edge, creating missing nodes. Parallel
// edges are kept.
func (g *Graph) AddEdge(from, to string, weight float64) {
	f := g.AddNode(from)
	t := g.AddNode(to)
	g.out[f] = append(g.out[f], halfEdge{to: t, weight: weight})
	g.in[t] = append(g.in[t], halfEdge{to: f, weight: weight})
	g.edges++
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of directed edges, counting parallels.
func (g *Graph) EdgeCount() int { return g.edges }

// HasNode reports whether id is in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Nodes returns the node IDs in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.nodes))
	copy(out, g.nodes)
	sort.Strings(out)
	return out
}

// OutDegree returns the out-degree of id (0 for unknown nodes).
func (g *Graph) OutDegree(id string) int {
	if i, ok := g.index[id]; ok {
		return len(g.out[i])
	}
	return 0
}

// InDegree returns the in-degree of id (0 for unknown nodes).
func (g *Graph) InDegree(id string) int {
	if i, ok := g.index[id]; ok {
		return len(g.in[i])
	}
	return 0
}

// sortedIndices returns node indices ordered by node ID. Algorithms
// iterate in this order so results are reproducible.
func (g *Graph) sortedIndices() []int {
	idx := make([]int, len(g.nodes))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return g.nodes[idx[a]] < g.nodes[idx[b]] })
	return idx
}

// undirectedNeighbors returns, per node, the deduplicated set of
// neighbors ignoring direction and self-loops, each list sorted by index.
func (g *Graph) undirectedNeighbors() [][]int {
	n := len(g.nodes)
	nbrs := make([][]int, n)
	for i := 0; i < n; i++ {
		seen := make(map[int]bool)
		for _, e := range g.out[i] {
			if e.to != i {
				seen[e.to] = true
			}
		}
		for _, e := range g.in[i] {
			if e.to != i {
				seen[e.to] = true
			}
		}
		list := make([]int, 0, len(seen))
		for j := range seen {
			list = append(list, j)
		}
		sort.Ints(list)
		nbrs[i] = list
	}
	return nbrs
}

// outNeighbors returns the deduplicated out-neighbor sets, sorted.
func (g *Graph) outNeighbors() [][]int {
	n := len(g.nodes)
	nbrs := make([][]int, n)
	for i := 0; i < n; i++ {
		seen := make(map[int]bool)
		for _, e := range g.out[i] {
			seen[e.to] = true
		}
		list := make([]int, 0, len(seen))
		for j := range seen {
			list = append(list, j)
		}
		sort.Ints(list)
		nbrs[i] = list
	}
	return nbrs
}
