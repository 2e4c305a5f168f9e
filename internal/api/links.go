package api

import (
	"encoding/json"
	"errors"
	"net/http"

	linkspkg "github.com/meshsig/meshsig/internal/links"
)

type createLinkRequest struct {
	LinkID        string `json:"linkId,omitempty"`
	SessionID     string `json:"sessionId"`
	WalletAddress string `json:"walletAddress,omitempty"`
}

func linkResponse(link linkspkg.Link) map[string]any {
	resp := map[string]any{
		"id":                link.ID,
		"sessionId":         link.SessionID,
		"tier":              link.Tier,
		"createdAt":         link.CreatedAt,
		"activityCount":     link.ActivityCount,
		"regenerationCount": link.RegenerationCount,
	}
	if link.WalletAddress != "" {
		resp["walletAddress"] = link.WalletAddress
	}
	if link.ExpiresAt != nil {
		resp["expiresAt"] = *link.ExpiresAt
	}
	return resp
}

func (s *Server) handleCreateLink(w http.ResponseWriter, r *http.Request) {
	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	link, err := s.linkMgr.Create(r.Context(), req.LinkID, req.SessionID, req.WalletAddress)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, linkResponse(link))
}

func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	link, _, err := s.linkStore.Get(id)
	if errors.Is(err, linkspkg.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "link not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, linkResponse(link))
}

func (s *Server) handleRegenerateLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	link, err := s.linkMgr.Regenerate(r.Context(), id)
	if errors.Is(err, linkspkg.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "link not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, linkResponse(link))
}

type keepAliveRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleKeepAliveLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req keepAliveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}
	}
	if req.Reason == "" {
		req.Reason = "explicit"
	}

	link, err := s.linkMgr.KeepAlive(r.Context(), id, req.Reason)
	if errors.Is(err, linkspkg.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "link not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, linkResponse(link))
}

func (s *Server) handleLinkNotifications(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	all, err := s.linkStore.ListNotifications()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	filtered := make([]linkspkg.Notification, 0, len(all))
	for _, n := range all {
		if n.LinkID == id {
			filtered = append(filtered, n)
		}
	}
	s.writeJSON(w, http.StatusOK, filtered)
}
