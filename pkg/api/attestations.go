package api

import (
	"net/http"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/record"
)

// admissionResult is the wire form of one admission attempt. Admission
// rejections (bad signature, revoked, duplicate) are not HTTP errors:
// the request was well-formed, the ledger just declined it.
type admissionResult struct {
	AttestationID string `json:"attestation_id,omitempty"`
	Admitted      bool   `json:"admitted"`
}

// handleCreateAttestation admits one signed attestation.
func (s *Server) handleCreateAttestation(w http.ResponseWriter, r *http.Request) {
	var att record.Attestation
	if err := decodeValidated(r, w, attestationSchema, &att); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	admitted, err := s.deps.Ledger.Add(r.Context(), &att)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	status := http.StatusOK
	if admitted {
		status = http.StatusCreated
	}
	WriteJSON(w, status, admissionResult{AttestationID: att.ID, Admitted: admitted})
}

// handleBatchAttestations admits a list of attestations. One bad record
// never aborts the batch; each entry reports its own outcome.
func (s *Server) handleBatchAttestations(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Attestations []record.Attestation `json:"attestations"`
	}
	if err := decodeJSON(r, w, &req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if len(req.Attestations) == 0 {
		WriteBadRequest(w, "attestations list is empty")
		return
	}

	results := make([]admissionResult, len(req.Attestations))
	admitted := 0
	for i := range req.Attestations {
		att := &req.Attestations[i]
		ok, err := s.deps.Ledger.Add(r.Context(), att)
		if err != nil {
			WriteInternal(w, err)
			return
		}
		if ok {
			admitted++
		}
		results[i] = admissionResult{AttestationID: att.ID, Admitted: ok}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"admitted": admitted,
		"rejected": len(results) - admitted,
		"results":  results,
	})
}

// handleVerifyAttestation checks an attestation without admitting it.
func (s *Server) handleVerifyAttestation(w http.ResponseWriter, r *http.Request) {
	var att record.Attestation
	if err := decodeValidated(r, w, attestationSchema, &att); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	resp := map[string]interface{}{"valid": true}
	if err := att.Verify(); err != nil {
		resp["valid"] = false
		resp["reason"] = err.Error()
	} else if id, err := att.ComputeID(); err == nil {
		resp["attestation_id"] = id
		resp["revoked"] = s.deps.Ledger.IsRevoked(id, "") ||
			s.deps.Ledger.IsRevoked(att.Subject, att.Task)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// handleGetAttestation returns one admitted attestation by ID.
func (s *Server) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	att := s.deps.Ledger.Get(r.PathValue("id"))
	if att == nil {
		WriteNotFound(w, "no such attestation")
		return
	}
	WriteJSON(w, http.StatusOK, att)
}

// handleAgentAttestations lists an agent's attestations. ?role=witness
// switches from the default subject view.
func (s *Server) handleAgentAttestations(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}

	var atts []*record.Attestation
	switch role := r.URL.Query().Get("role"); role {
	case "", "subject":
		atts = s.deps.Ledger.BySubject(agentID)
	case "witness":
		atts = s.deps.Ledger.ByWitness(agentID)
	default:
		WriteBadRequest(w, "role must be subject or witness")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":     agentID,
		"count":        len(atts),
		"attestations": atts,
	})
}
