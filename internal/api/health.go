package api

import "net/http"

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Clients  int    `json:"clients"`
}

// handleHealth serves the single health endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sessions, clients := s.registry.Count()
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Sessions: sessions, Clients: clients})
}

type sessionResponse struct {
	Exists      bool `json:"exists"`
	HasHost     bool `json:"hasHost"`
	ClientCount int  `json:"clientCount"`
}

// handleSession serves the session existence probe.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, ok := s.registry.Lookup(id)
	if !ok {
		s.writeJSON(w, http.StatusOK, sessionResponse{Exists: false})
		return
	}
	s.writeJSON(w, http.StatusOK, sessionResponse{
		Exists:      true,
		HasHost:     snap.HasHost,
		ClientCount: snap.ClientCount,
	})
}
