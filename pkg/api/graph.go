package api

import (
	"net/http"
	"strings"

	"github.com/isnad-labs/isnad/pkg/eventbus"
	"github.com/isnad-labs/isnad/pkg/graph"
)

// handleGraphAnalysis runs the structural analyses over the live
// attestation graph. ?seeds=a,b marks known-good agents for sybil
// scoring.
func (s *Server) handleGraphAnalysis(w http.ResponseWriter, r *http.Request) {
	g := graph.FromAttestations(s.deps.Ledger.All())

	var seeds []string
	if raw := r.URL.Query().Get("seeds"); raw != "" {
		for _, seed := range strings.Split(raw, ",") {
			if seed = strings.TrimSpace(seed); seed != "" {
				seeds = append(seeds, seed)
			}
		}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nodes":               g.NodeCount(),
		"edges":               g.EdgeCount(),
		"pagerank":            g.PageRank(),
		"betweenness":         g.Betweenness(),
		"communities":         g.Communities(),
		"strongly_connected":  g.StronglyConnectedComponents(),
		"diameter":            g.Diameter(),
		"average_clustering":  g.AverageClustering(),
		"articulation_points": g.ArticulationPoints(),
		"sybil_scores":        g.SybilScores(seeds),
	})
}

// handleEventHistory replays recent bus events matching ?pattern=
// (default "*"), newest last.
func (s *Server) handleEventHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bus == nil {
		WriteNotFound(w, "event bus is not enabled on this node")
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}
	limit := 100
	events := s.deps.Bus.History(pattern, limit)
	if events == nil {
		events = []eventbus.Event{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"pattern": pattern,
		"count":   len(events),
		"events":  events,
	})
}
