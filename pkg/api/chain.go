package api

import (
	"net/http"

	"github.com/isnad-labs/isnad/pkg/bundle"
)

// handleChainExport serializes the full ledger as an isnad bundle.
// ?sign=false skips signing even when the node has an identity.
func (s *Server) handleChainExport(w http.ResponseWriter, r *http.Request) {
	signer := s.deps.Signer
	if r.URL.Query().Get("sign") == "false" {
		signer = nil
	}

	b, err := bundle.Export(s.deps.Ledger, signer, map[string]interface{}{
		"source": "isnad-node",
	})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

// handleChainImport merges a bundle into the ledger. The envelope
// signature, when present, is verified before any record is admitted;
// individually bad records are skipped, never fatal.
func (s *Server) handleChainImport(w http.ResponseWriter, r *http.Request) {
	var b bundle.Bundle
	if err := decodeJSON(r, w, &b); err != nil {
		WriteBadRequest(w, "invalid bundle")
		return
	}

	// Signed bundles have their envelope enforced unless the caller opts
	// out; unsigned bundles import on per-record verification alone.
	verify := b.Signature != "" && r.URL.Query().Get("verify_signature") != "false"
	result, err := bundle.Import(r.Context(), s.deps.Ledger, &b, verify)
	if err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// handleChainVerify checks a bundle without importing anything: the
// envelope signature plus every record's own integrity.
func (s *Server) handleChainVerify(w http.ResponseWriter, r *http.Request) {
	var b bundle.Bundle
	if err := decodeJSON(r, w, &b); err != nil {
		WriteBadRequest(w, "invalid bundle")
		return
	}

	resp := map[string]interface{}{
		"version": b.Version,
		"count":   len(b.Attestations),
		"signed":  b.Signature != "",
	}
	if b.Version != bundle.Version {
		resp["valid"] = false
		resp["reason"] = "unknown bundle version"
		WriteJSON(w, http.StatusOK, resp)
		return
	}
	if b.Signature != "" {
		if err := b.VerifySignature(); err != nil {
			resp["valid"] = false
			resp["reason"] = err.Error()
			WriteJSON(w, http.StatusOK, resp)
			return
		}
	}

	if err := b.VerifyMerkleRoot(); err != nil {
		resp["valid"] = false
		resp["reason"] = err.Error()
		WriteJSON(w, http.StatusOK, resp)
		return
	}

	bad := 0
	for i := range b.Attestations {
		if b.Attestations[i].Verify() != nil {
			bad++
		}
	}
	resp["valid"] = bad == 0
	resp["invalid_records"] = bad
	WriteJSON(w, http.StatusOK, resp)
}
