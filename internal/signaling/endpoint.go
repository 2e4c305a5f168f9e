package signaling

import "sync"

// Role is the attachment role of an endpoint within a session.
type Role uint8

const (
	// RoleNone means the endpoint is not attached to any session.
	RoleNone Role = iota
	// RoleHost means the endpoint shares its screen/input surface.
	RoleHost
	// RoleClient means the endpoint views and drives a host.
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	default:
		return "none"
	}
}

// Sender is the registry's weak reference to a live connection: enough to
// enqueue an outbound message, never the socket itself. The transport
// listener owns the actual connection; Registry and Router only ever see
// this handle, matching the "arena-plus-index" ownership model.
type Sender interface {
	// Send enqueues msg for delivery. It must never block the caller for
	// longer than it takes to push onto a bounded queue; a full queue is
	// the transport's problem (it disconnects the endpoint), not the
	// router's.
	Send(msg Outbound)

	// ID returns the endpoint's server-minted identifier.
	ID() string
}

// Endpoint is the registry's view of one live connection: its identifier,
// its send handle, and the mutable (session, role) attachment state that
// the fresh/attached-host/attached-client/closed state machine governs.
//
// Endpoint itself holds only the session id it is attached to, never a
// pointer to the Session -- every mutation goes back through the Registry
// so reads and writes of a session are always serialized through one lock.
type Endpoint struct {
	id     string
	sender Sender

	mu        sync.Mutex
	sessionID string
	role      Role
}

// NewEndpoint wraps a Sender as a fresh, unattached Endpoint.
func NewEndpoint(sender Sender) *Endpoint {
	return &Endpoint{id: sender.ID(), sender: sender}
}

// ID returns the endpoint's identifier.
func (e *Endpoint) ID() string { return e.id }

// Send forwards msg to the underlying connection.
func (e *Endpoint) Send(msg Outbound) { e.sender.Send(msg) }

// Attachment returns the endpoint's current session id and role. An empty
// session id with RoleNone means the endpoint is in the "fresh" state.
func (e *Endpoint) Attachment() (sessionID string, role Role) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID, e.role
}

// attach records the endpoint's (session, role). Called only by Registry
// under its own lock, after the registry mutation it reflects has
// succeeded -- this keeps Endpoint.mu strictly for this cheap bookkeeping
// read/write and never held across a Registry lock acquisition.
func (e *Endpoint) attach(sessionID string, role Role) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = sessionID
	e.role = role
}

// detach clears the endpoint's attachment, returning it to "fresh".
func (e *Endpoint) detach() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = ""
	e.role = RoleNone
}
