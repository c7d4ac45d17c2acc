package api

import (
	"net/http"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/scanner"
)

// handlePlatformData returns the newest scan result per platform URL for
// an agent.
func (s *Server) handlePlatformData(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}

	data, err := scanner.PlatformData(r.Context(), s.deps.Backend, agentID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":  agentID,
		"count":     len(data),
		"platforms": data,
	})
}

// handleManualScan triggers an immediate scan of one registered agent,
// outside the supervisor's normal cycle.
func (s *Server) handleManualScan(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scanner == nil {
		WriteNotFound(w, "scanner is not enabled on this node")
		return
	}
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}

	profile, err := s.deps.Directory.Get(agentID)
	if err != nil {
		WriteNotFound(w, "agent not registered")
		return
	}
	if len(profile.PlatformURLs) == 0 {
		WriteBadRequest(w, "agent has no platform URLs to scan")
		return
	}

	err = s.deps.Scanner.ScanAgent(r.Context(), scanner.Profile{
		AgentID: agentID,
		URLs:    profile.PlatformURLs,
	})
	if err != nil {
		WriteInternal(w, err)
		return
	}

	data, err := scanner.PlatformData(r.Context(), s.deps.Backend, agentID)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":  agentID,
		"scanned":   len(profile.PlatformURLs),
		"platforms": data,
	})
}

// handleEraseAgent removes every record mentioning an agent: compliance
// erasure, the only destructive operation on the ledger.
func (s *Server) handleEraseAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}
	if err := s.deps.Ledger.Erase(r.Context(), agentID); err != nil {
		WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
