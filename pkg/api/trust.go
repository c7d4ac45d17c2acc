package api

import (
	"net/http"
	"strconv"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/scoring"
)

// handleTrustScore returns an agent's reputation, optionally scoped by
// ?scope=<task substring>.
func (s *Server) handleTrustScore(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}
	scope := r.URL.Query().Get("scope")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":     agentID,
		"scope":        scope,
		"trust_score":  s.deps.Scoring.TrustScore(agentID, scope),
		"endorsements": len(s.deps.Ledger.BySubject(agentID)),
		"revoked":      s.deps.Ledger.IsRevoked(agentID, scope),
	})
}

// handleTrustHistory replays an agent's attestations in ledger order
// with the running cumulative score after each admission.
func (s *Server) handleTrustHistory(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}

	type point struct {
		AttestationID string  `json:"attestation_id"`
		Witness       string  `json:"witness"`
		Task          string  `json:"task"`
		Timestamp     string  `json:"timestamp"`
		Score         float64 `json:"score"`
	}

	atts := s.deps.Ledger.BySubject(agentID)
	history := make([]point, 0, len(atts))
	score := 0.0
	witnessCounts := make(map[string]int)
	for _, att := range atts {
		if s.deps.Ledger.IsRevoked(att.ID, "") {
			continue
		}
		witnessCounts[att.Witness]++
		weight := scoring.BaseWeight
		for i := 1; i < witnessCounts[att.Witness]; i++ {
			weight *= scoring.WitnessDecay
		}
		score += weight
		if score > 1.0 {
			score = 1.0
		}
		history = append(history, point{
			AttestationID: att.ID,
			Witness:       att.Witness,
			Task:          att.Task,
			Timestamp:     att.Timestamp,
			Score:         score,
		})
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id": agentID,
		"history":  history,
		"current":  s.deps.Scoring.TrustScore(agentID, ""),
	})
}

// handleTransitiveTrust computes chain trust between two agents:
// ?source=&target=&max_hops=.
func (s *Server) handleTransitiveTrust(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, target := q.Get("source"), q.Get("target")
	if !identity.IsAgentID(source) || !identity.IsAgentID(target) {
		WriteBadRequest(w, "source and target must be agent ids")
		return
	}

	maxHops := 0
	if raw := q.Get("max_hops"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			WriteBadRequest(w, "max_hops must be a positive integer")
			return
		}
		maxHops = n
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"source":      source,
		"target":      target,
		"chain_trust": s.deps.Scoring.ChainTrust(source, target, maxHops),
	})
}
