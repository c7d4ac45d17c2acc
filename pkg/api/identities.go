package api

import (
	"net/http"

	"github.com/isnad-labs/isnad/pkg/identity"
)

// handleCreateIdentity mints a fresh keypair and returns it once. The
// node never stores the private key; losing the response loses the key.
func (s *Server) handleCreateIdentity(w http.ResponseWriter, _ *http.Request) {
	id, err := identity.New()
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, id.Export())
}

// handleGetIdentity summarizes what the ledger knows about an agent.
func (s *Server) handleGetIdentity(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id (agent:<16 hex>)")
		return
	}

	asSubject := s.deps.Ledger.BySubject(agentID)
	asWitness := s.deps.Ledger.ByWitness(agentID)
	if len(asSubject) == 0 && len(asWitness) == 0 {
		WriteNotFound(w, "agent has no ledger presence")
		return
	}

	resp := map[string]interface{}{
		"agent_id":    agentID,
		"as_subject":  len(asSubject),
		"as_witness":  len(asWitness),
		"trust_score": s.deps.Scoring.TrustScore(agentID, ""),
		"revoked":     s.deps.Ledger.IsRevoked(agentID, ""),
		"current_key": s.deps.Ledger.Rotations().Current(agentID),
		"registered":  false,
	}
	if s.deps.Directory != nil {
		if p, err := s.deps.Directory.Get(agentID); err == nil {
			resp["registered"] = true
			resp["name"] = p.Name
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}
