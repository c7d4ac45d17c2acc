package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/isnad-labs/isnad/pkg/identity"
	"github.com/isnad-labs/isnad/pkg/ledger"
	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

// handleCreateDelegation records a signed delegation: a root grant or a
// sub-delegation. Narrowing rules are re-checked at admission.
func (s *Server) handleCreateDelegation(w http.ResponseWriter, r *http.Request) {
	var del record.Delegation
	if err := decodeValidated(r, w, delegationSchema, &del); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if err := s.deps.Ledger.Delegations().Add(r.Context(), &del); err != nil {
		var storageErr *store.StorageError
		if errors.As(err, &storageErr) {
			WriteInternal(w, err)
			return
		}
		WriteUnprocessable(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"delegation_id": del.ID,
		"depth":         del.Depth,
	})
}

// handleDelegationChain walks and verifies a delegation chain back to
// its root, checking signatures, expiry, revocation, and cycles.
func (s *Server) handleDelegationChain(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chain, err := s.deps.Ledger.Delegations().VerifyChain(id, time.Now())
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownDelegation) {
			WriteNotFound(w, "no such delegation")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"delegation_id": id,
			"valid":         false,
			"reason":        err.Error(),
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"delegation_id": id,
		"valid":         true,
		"length":        len(chain),
		"chain":         chain,
	})
}

// handleAgentDelegations lists delegations granted to an agent.
func (s *Server) handleAgentDelegations(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}
	dels := s.deps.Ledger.Delegations().ByDelegate(agentID)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":    agentID,
		"count":       len(dels),
		"delegations": dels,
	})
}

// handleAuthorized answers whether an agent currently holds a valid
// delegation for ?scope=.
func (s *Server) handleAuthorized(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if !identity.IsAgentID(agentID) {
		WriteBadRequest(w, "id must be an agent id")
		return
	}
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		WriteBadRequest(w, "scope query parameter is required")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"agent_id":   agentID,
		"scope":      scope,
		"authorized": s.deps.Ledger.Delegations().IsAuthorized(agentID, scope, time.Now()),
	})
}
