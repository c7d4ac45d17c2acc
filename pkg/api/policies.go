package api

import (
	"errors"
	"net/http"

	"github.com/isnad-labs/isnad/pkg/policy"
)

// handleListPolicies returns every stored policy.
func (s *Server) handleListPolicies(w http.ResponseWriter, _ *http.Request) {
	policies := s.deps.Policies.List()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(policies),
		"policies": policies,
	})
}

// handleCreatePolicy stores a new policy document.
func (s *Server) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var p policy.Policy
	if err := decodeJSON(r, w, &p); err != nil {
		WriteBadRequest(w, "invalid policy document")
		return
	}
	if _, err := s.deps.Policies.Get(p.Name); err == nil {
		WriteConflict(w, "policy already exists; use PUT to update")
		return
	}
	if err := s.deps.Policies.Save(r.Context(), &p); err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, p)
}

// handleGetPolicy returns one policy by name.
func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Policies.Get(r.PathValue("name"))
	if err != nil {
		WriteNotFound(w, "no such policy")
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// handleUpdatePolicy replaces a policy. The path name wins over any name
// in the body.
func (s *Server) handleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	var p policy.Policy
	if err := decodeJSON(r, w, &p); err != nil {
		WriteBadRequest(w, "invalid policy document")
		return
	}
	p.Name = r.PathValue("name")
	if err := s.deps.Policies.Save(r.Context(), &p); err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// handleDeletePolicy retires a policy.
func (s *Server) handleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Policies.Delete(r.Context(), r.PathValue("name"))
	if err != nil {
		if errors.Is(err, policy.ErrUnknownPolicy) {
			WriteNotFound(w, "no such policy")
			return
		}
		WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// evaluationContext builds a policy context for an agent, filling
// ledger-derived facts the client did not supply.
func (s *Server) evaluationContext(reqCtx policy.Context) policy.Context {
	if reqCtx.AgentID == "" {
		return reqCtx
	}
	if reqCtx.TrustScore == 0 {
		reqCtx.TrustScore = s.deps.Scoring.TrustScore(reqCtx.AgentID, "")
	}
	if reqCtx.Endorsements == 0 {
		reqCtx.Endorsements = len(s.deps.Ledger.BySubject(reqCtx.AgentID))
	}
	return reqCtx
}

// handleEvaluatePolicy evaluates one context against a stored policy.
func (s *Server) handleEvaluatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Policies.Get(r.PathValue("name"))
	if err != nil {
		WriteNotFound(w, "no such policy")
		return
	}

	var reqCtx policy.Context
	if err := decodeJSON(r, w, &reqCtx); err != nil {
		WriteBadRequest(w, "invalid evaluation context")
		return
	}

	WriteJSON(w, http.StatusOK, p.Evaluate(s.evaluationContext(reqCtx)))
}

// handleEvaluatePolicyBatch evaluates many contexts against one policy.
func (s *Server) handleEvaluatePolicyBatch(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Policies.Get(r.PathValue("name"))
	if err != nil {
		WriteNotFound(w, "no such policy")
		return
	}

	var req struct {
		Contexts []policy.Context `json:"contexts"`
	}
	if err := decodeJSON(r, w, &req); err != nil {
		WriteBadRequest(w, "invalid request body")
		return
	}
	if len(req.Contexts) == 0 {
		WriteBadRequest(w, "contexts list is empty")
		return
	}

	for i := range req.Contexts {
		req.Contexts[i] = s.evaluationContext(req.Contexts[i])
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": p.EvaluateBatch(req.Contexts),
	})
}
