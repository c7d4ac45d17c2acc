package api

import (
	"errors"
	"net/http"

	"github.com/isnad-labs/isnad/pkg/record"
	"github.com/isnad-labs/isnad/pkg/store"
)

// handleCreateRevocation records a signed revocation. The revoker's
// authority is not checked here; that is a policy-layer concern.
func (s *Server) handleCreateRevocation(w http.ResponseWriter, r *http.Request) {
	var rev record.Revocation
	if err := decodeValidated(r, w, revocationSchema, &rev); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	if err := s.deps.Ledger.Revoke(r.Context(), &rev); err != nil {
		var storageErr *store.StorageError
		if errors.As(err, &storageErr) {
			WriteInternal(w, err)
			return
		}
		WriteUnprocessable(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"target_id": rev.TargetID,
		"revoked":   true,
	})
}

// handleListRevocations lists revocations naming a target (an agent id
// or an attestation id).
func (s *Server) handleListRevocations(w http.ResponseWriter, r *http.Request) {
	target := r.PathValue("target")
	revs := s.deps.Ledger.Revocations().ForTarget(target)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"target_id":   target,
		"count":       len(revs),
		"revocations": revs,
	})
}
