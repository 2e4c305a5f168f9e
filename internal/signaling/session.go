package signaling

import "time"

// Session is a rendezvous group keyed by a session identifier: at most one
// host, a set of clients, and the host-mutable settings clients see. All
// mutation goes through Registry, which owns the lock covering every field
// below -- Session itself has no internal synchronization.
type Session struct {
	id        string
	host      *Endpoint
	clients   map[string]*Endpoint // keyed by endpoint id
	createdAt time.Time
	password  string
	nickname  string
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

func newSession(id string) *Session {
	return &Session{
		id:        id,
		clients:   make(map[string]*Endpoint),
		createdAt: time.Now(),
	}
}

// Snapshot is a point-in-time, lock-free-to-read copy of a session's
// externally visible state, returned by Registry.Lookup.
type Snapshot struct {
	ID          string
	HasHost     bool
	ClientCount int
	Age         time.Duration
}

func (s *Session) snapshot(now time.Time) Snapshot {
	return Snapshot{
		ID:          s.id,
		HasHost:     s.host != nil,
		ClientCount: len(s.clients),
		Age:         now.Sub(s.createdAt),
	}
}

// empty reports whether the session has neither a host nor any clients.
func (s *Session) empty() bool {
	return s.host == nil && len(s.clients) == 0
}
