package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/meshsig/meshsig/internal/links"
	"github.com/meshsig/meshsig/internal/signaling"
)

// Counters is the subset of *signaling.Registry the health endpoint
// needs.
type Counters interface {
	Count() (sessions, clients int)
}

// Lookup is the subset of *signaling.Registry the session endpoint needs.
type Lookup interface {
	Lookup(sessionID string) (signaling.Snapshot, bool)
}

// Server exposes the admin/health HTTP routes over a registry and a
// links manager, using Go's method-aware ServeMux patterns rather than a
// third-party router -- the surface is small enough that the standard
// library's own routing covers it without pulling in another dependency.
type Server struct {
	registry interface {
		Counters
		Lookup
	}
	linkStore *links.Store
	linkMgr   *links.Manager
	logger    *slog.Logger

	mux *http.ServeMux
}

// NewServer builds a Server wired to registry and the link overlay.
func NewServer(registry interface {
	Counters
	Lookup
}, linkStore *links.Store, linkMgr *links.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		registry:  registry,
		linkStore: linkStore,
		linkMgr:   linkMgr,
		logger:    logger.With(slog.String("component", "api")),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/session/{id}", s.handleSession)
	s.mux.HandleFunc("POST /api/links", s.handleCreateLink)
	s.mux.HandleFunc("GET /api/links/{id}", s.handleGetLink)
	s.mux.HandleFunc("POST /api/links/{id}/regenerate", s.handleRegenerateLink)
	s.mux.HandleFunc("POST /api/links/{id}/keepalive", s.handleKeepAliveLink)
	s.mux.HandleFunc("GET /api/links/{id}/notifications", s.handleLinkNotifications)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
