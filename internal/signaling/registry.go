package signaling

import (
	"encoding/base32"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Settings carries the caller-chosen options accepted by create_session.
type Settings struct {
	Password string
	Nickname string
}

// Registry is the authoritative map from session identifier to its host,
// clients, creation time, and session-scoped settings. One RWMutex
// globally serializes session create/destroy and all field mutations --
// contention stays low enough in practice that a single lock beats
// sharding the map.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger.With(slog.String("component", "registry")),
		sessions: make(map[string]*Session),
	}
}

// foldID case-folds a session id for subdomain safety.
func foldID(id string) string { return strings.ToLower(id) }

// mintID generates a short, opaque, URL-safe session identifier for
// create_session calls that did not supply one.
func mintID() string {
	id := uuid.New()
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(id[:6]))
}

// CreateSession creates a new session with endpoint as host. If sessionID
// is empty, one is minted. If a session with this id already exists but is
// empty (no host, no clients -- closed but not yet reaped), it is revived
// in place rather than rejected. Returns ErrAlreadyExists if a live session
// with this id already exists.
func (r *Registry) CreateSession(endpoint *Endpoint, sessionID string, settings Settings) (*Session, error) {
	if sessionID == "" {
		sessionID = mintID()
	}
	id := foldID(sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if exists {
		if !sess.empty() {
			return nil, ErrAlreadyExists
		}
		sess.createdAt = time.Now()
	} else {
		sess = newSession(id)
		r.sessions[id] = sess
	}

	sess.host = endpoint
	sess.password = settings.Password
	sess.nickname = settings.Nickname

	endpoint.attach(id, RoleHost)
	r.logger.Debug("session created", slog.String("session_id", id))
	return sess, nil
}

// JoinAsHost attaches endpoint as host of sessionID. If the session does
// not exist, it is created implicitly -- create_session and host-join are
// the same operation from the registry's point of view.
// Returns ErrHostConflict if another live host is already attached.
func (r *Registry) JoinAsHost(endpoint *Endpoint, sessionID string) (*Session, error) {
	id := foldID(sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists {
		sess = newSession(id)
		r.sessions[id] = sess
	}

	if sess.host != nil {
		return nil, ErrHostConflict
	}

	sess.host = endpoint
	endpoint.attach(id, RoleHost)
	r.logger.Debug("host attached", slog.String("session_id", id), slog.String("endpoint_id", endpoint.ID()))
	return sess, nil
}

// JoinAsClient adds endpoint to sessionID's clients. Returns ErrNotFound if
// no such session exists.
func (r *Registry) JoinAsClient(endpoint *Endpoint, sessionID string) (*Session, error) {
	id := foldID(sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists {
		return nil, ErrNotFound
	}

	sess.clients[endpoint.ID()] = endpoint
	endpoint.attach(id, RoleClient)
	r.logger.Debug("client attached", slog.String("session_id", id), slog.String("endpoint_id", endpoint.ID()))
	return sess, nil
}

// LeaveResult describes what Leave changed, so Router can emit the right
// departure notifications without re-taking the registry lock.
type LeaveResult struct {
	SessionID    string
	WasHost      bool
	RemainingIDs []string // other endpoint ids still attached, host first if present
	HostLeft     bool     // true if the departing endpoint was host and the session survives (still has clients)
}

// Leave detaches endpoint from its current session, if any. A no-op if the
// endpoint is already fresh.
func (r *Registry) Leave(endpoint *Endpoint) (LeaveResult, bool) {
	sessionID, role := endpoint.Attachment()
	if role == RoleNone {
		return LeaveResult{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[sessionID]
	if !exists {
		endpoint.detach()
		return LeaveResult{}, false
	}

	wasHost := role == RoleHost
	if wasHost && sess.host == endpoint {
		sess.host = nil
	}
	delete(sess.clients, endpoint.ID())
	endpoint.detach()

	remaining := make([]string, 0, len(sess.clients)+1)
	if sess.host != nil {
		remaining = append(remaining, sess.host.ID())
	}
	for id := range sess.clients {
		remaining = append(remaining, id)
	}

	r.logger.Debug("endpoint left", slog.String("session_id", sessionID),
		slog.String("endpoint_id", endpoint.ID()), slog.String("role", role.String()))

	return LeaveResult{
		SessionID:    sessionID,
		WasHost:      wasHost,
		RemainingIDs: remaining,
		HostLeft:     wasHost && len(sess.clients) > 0,
	}, true
}

// Lookup returns a snapshot of sessionID's state, or false if it does not
// exist.
func (r *Registry) Lookup(sessionID string) (Snapshot, bool) {
	id := foldID(sessionID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return Snapshot{}, false
	}
	return sess.snapshot(time.Now()), true
}

// SetPassword updates the password of endpoint's session. Only the
// session's current host may do so; any other endpoint gets ErrNotHost.
func (r *Registry) SetPassword(endpoint *Endpoint, newPassword string) (*Session, error) {
	return r.mutateAsHost(endpoint, func(sess *Session) { sess.password = newPassword })
}

// SetNickname updates sessionID's nickname. Host-only, like SetPassword.
func (r *Registry) SetNickname(endpoint *Endpoint, nickname string) (*Session, error) {
	return r.mutateAsHost(endpoint, func(sess *Session) { sess.nickname = nickname })
}

func (r *Registry) mutateAsHost(endpoint *Endpoint, mutate func(*Session)) (*Session, error) {
	sessionID, role := endpoint.Attachment()
	if role != RoleHost {
		return nil, ErrNotHost
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[sessionID]
	if !exists || sess.host != endpoint {
		return nil, ErrNotHost
	}
	mutate(sess)
	return sess, nil
}

// Host returns sessionID's current host endpoint, if any.
func (r *Registry) Host(sessionID string) (*Endpoint, bool) {
	id := foldID(sessionID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists || sess.host == nil {
		return nil, false
	}
	return sess.host, true
}

// Clients returns a copy of sessionID's client endpoints. Safe to iterate
// without holding the registry lock.
func (r *Registry) Clients(sessionID string) []*Endpoint {
	id := foldID(sessionID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return nil
	}
	out := make([]*Endpoint, 0, len(sess.clients))
	for _, c := range sess.clients {
		out = append(out, c)
	}
	return out
}

// Password returns sessionID's password and whether the session exists.
func (r *Registry) Password(sessionID string) (string, bool) {
	id := foldID(sessionID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, exists := r.sessions[id]
	if !exists {
		return "", false
	}
	return sess.password, true
}

// Reclaim removes a session iff it has no host, no clients, and is older
// than maxAge. Returns true if the session was removed. This is the
// primitive the reaper calls once per session per tick.
func (r *Registry) Reclaim(sessionID string, maxAge time.Duration, now time.Time) bool {
	id := foldID(sessionID)

	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists || !sess.empty() || now.Sub(sess.createdAt) <= maxAge {
		return false
	}
	delete(r.sessions, id)
	r.logger.Debug("session reclaimed", slog.String("session_id", id))
	return true
}

// SessionIDs returns a snapshot of all currently registered session ids.
// Used by the reaper to decide which sessions to inspect each tick.
func (r *Registry) SessionIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	return out
}

// Count returns the number of sessions and total attached endpoints (hosts
// and clients) across all sessions, for the health endpoint.
func (r *Registry) Count() (sessions, clients int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions = len(r.sessions)
	for _, sess := range r.sessions {
		clients += len(sess.clients)
		if sess.host != nil {
			clients++
		}
	}
	return sessions, clients
}
