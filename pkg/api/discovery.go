package api

import (
	"errors"
	"net/http"

	"github.com/isnad-labs/isnad/pkg/discovery"
)

// handleRegisterProfile creates or replaces an agent's directory entry.
func (s *Server) handleRegisterProfile(w http.ResponseWriter, r *http.Request) {
	var p discovery.Profile
	if err := decodeValidated(r, w, profileSchema, &p); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if err := s.deps.Directory.Register(r.Context(), p); err != nil {
		WriteUnprocessable(w, err.Error())
		return
	}
	WriteJSON(w, http.StatusCreated, map[string]string{
		"agent_id": p.AgentID,
		"status":   "registered",
	})
}

// handleSearchProfiles searches the directory: ?q= matches names,
// descriptions, and capabilities; empty lists everything.
func (s *Server) handleSearchProfiles(w http.ResponseWriter, r *http.Request) {
	results := s.deps.Directory.Search(r.URL.Query().Get("q"))
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(results),
		"profiles": results,
	})
}

// handleGetProfile returns one directory entry.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Directory.Get(r.PathValue("id"))
	if err != nil {
		WriteNotFound(w, "agent not registered")
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// handleRemoveProfile retires a directory entry.
func (s *Server) handleRemoveProfile(w http.ResponseWriter, r *http.Request) {
	err := s.deps.Directory.Remove(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, discovery.ErrNotRegistered) {
			WriteNotFound(w, "agent not registered")
			return
		}
		WriteInternal(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
