package signaling

import (
	"encoding/json"
	"log/slog"
)

// RouterMetrics receives per-message dispatch outcomes. *metrics.Collector
// satisfies this; it is an interface here purely to keep signaling free of
// a dependency on the metrics package.
type RouterMetrics interface {
	IncMessagesRouted(messageType string)
	IncMessagesRejected(messageType string)
}

type noopRouterMetrics struct{}

func (noopRouterMetrics) IncMessagesRouted(string)   {}
func (noopRouterMetrics) IncMessagesRejected(string) {}

// Router dispatches decoded Inbound messages against a Registry and
// produces the Outbound messages (and their recipients) the wire protocol
// requires. Router holds no session state of its own -- it is a stateless
// set of rules layered over Registry; all state lives in the registry
// it is given.
type Router struct {
	logger   *slog.Logger
	registry *Registry
	metrics  RouterMetrics
}

// RouterOption configures optional Router behavior.
type RouterOption func(*Router)

// WithRouterMetrics attaches a RouterMetrics sink to the router. If mr is
// nil, dispatch outcomes are silently dropped.
func WithRouterMetrics(mr RouterMetrics) RouterOption {
	return func(rt *Router) {
		if mr != nil {
			rt.metrics = mr
		}
	}
}

// NewRouter builds a Router over registry.
func NewRouter(registry *Registry, logger *slog.Logger, opts ...RouterOption) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Router{
		logger:   logger.With(slog.String("component", "router")),
		registry: registry,
		metrics:  noopRouterMetrics{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Dispatch decodes and routes one inbound frame from endpoint, sending any
// direct reply to endpoint itself and any side-effect notifications to
// other endpoints via their own Sender handles. Dispatch never returns an
// error to its caller -- every failure is translated into an error{}
// envelope sent back to the offending endpoint, because the wire protocol
// has no notion of a connection-level failure distinct from a
// message-level one.
func (rt *Router) Dispatch(endpoint *Endpoint, raw []byte) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		rt.metrics.IncMessagesRejected("")
		endpoint.Send(ErrorMessage(Kind(ErrInvalidMessage), "malformed message"))
		return
	}

	switch in.Type {
	case TypeCreateSession:
		rt.handleCreateSession(endpoint, in)
	case TypeHost:
		rt.handleHost(endpoint, in)
	case TypeJoin:
		rt.handleJoin(endpoint, in)
	case TypeLeave:
		rt.handleLeave(endpoint)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		rt.handleNegotiation(endpoint, in)
	case TypeBroadcast:
		rt.handleBroadcast(endpoint, in)
	case TypeQuerySession:
		rt.handleQuerySession(endpoint, in)
	case TypeUpdatePassword:
		rt.handleUpdatePassword(endpoint, in)
	case TypeUpdateDeviceInfo:
		rt.handleUpdateDeviceInfo(endpoint, in)
	case TypeClientInfo:
		// Informational only; the protocol defines no reply.
	default:
		rt.metrics.IncMessagesRejected(in.Type)
		endpoint.Send(ErrorMessage(Kind(ErrInvalidMessage), "unknown message type"))
		return
	}
	rt.metrics.IncMessagesRouted(in.Type)
}

func (rt *Router) handleCreateSession(endpoint *Endpoint, in Inbound) {
	sess, err := rt.registry.CreateSession(endpoint, in.SessionID, Settings{Password: in.Password})
	if err != nil {
		endpoint.Send(ErrorMessage(Kind(err), "could not create session"))
		return
	}
	endpoint.Send(Outbound{Type: TypeSessionCreated, SessionID: sess.id, IsHost: true})
}

func (rt *Router) handleHost(endpoint *Endpoint, in Inbound) {
	if in.SessionID == "" {
		endpoint.Send(ErrorMessage(Kind(ErrInvalidMessage), "host requires sessionId"))
		return
	}
	sess, err := rt.registry.JoinAsHost(endpoint, in.SessionID)
	if err != nil {
		endpoint.Send(ErrorMessage(Kind(err), "could not attach as host"))
		return
	}
	endpoint.Send(Outbound{Type: TypeSessionCreated, SessionID: sess.id, IsHost: true})
	rt.notifyHostRejoin(sess.id, endpoint)
}

// notifyHostRejoin tells every already-attached client that a host has
// (re)joined, so a client that was waiting through a host's disconnect
// learns the new host is present without having to poll.
func (rt *Router) notifyHostRejoin(sessionID string, host *Endpoint) {
	for _, client := range rt.registry.Clients(sessionID) {
		client.Send(Outbound{Type: TypePeerJoined, PeerID: host.ID(), IsHost: true})
	}
}

func (rt *Router) handleJoin(endpoint *Endpoint, in Inbound) {
	if in.SessionID == "" {
		endpoint.Send(ErrorMessage(Kind(ErrInvalidMessage), "join requires sessionId"))
		return
	}

	if want, have := rt.registry.Password(in.SessionID); have && want != "" && want != in.Password {
		endpoint.Send(ErrorMessage(Kind(ErrNotFound), "incorrect password"))
		return
	}

	if in.IsHost {
		sess, err := rt.registry.JoinAsHost(endpoint, in.SessionID)
		if err != nil {
			endpoint.Send(ErrorMessage(Kind(err), "could not join session as host"))
			return
		}
		endpoint.Send(Outbound{Type: TypeJoined, SessionID: sess.id, IsHost: true})
		rt.notifyHostRejoin(sess.id, endpoint)
		return
	}

	sess, err := rt.registry.JoinAsClient(endpoint, in.SessionID)
	if err != nil {
		endpoint.Send(ErrorMessage(Kind(err), "could not join session"))
		return
	}

	endpoint.Send(Outbound{Type: TypeJoined, SessionID: sess.id})

	if host, ok := rt.registry.Host(sess.id); ok {
		host.Send(Outbound{Type: TypePeerJoined, PeerID: endpoint.ID()})
	}
}

// handleLeave handles an explicit leave message by delegating to
// Disconnect, the same path the transport listener takes when a connection
// closes; it tolerates an endpoint that was never attached.
func (rt *Router) handleLeave(endpoint *Endpoint) {
	rt.Disconnect(endpoint)
}

// Disconnect detaches endpoint from whatever session it was in and emits
// the same departure notifications an explicit leave message would have.
// The transport listener calls this when a connection drops without ever
// sending a leave frame.
func (rt *Router) Disconnect(endpoint *Endpoint) {
	result, ok := rt.registry.Leave(endpoint)
	if !ok {
		return
	}
	rt.notifyDeparture(result)
}

func (rt *Router) notifyDeparture(result LeaveResult) {
	if result.WasHost {
		for _, client := range rt.registry.Clients(result.SessionID) {
			client.Send(Outbound{Type: TypeHostDisconnected})
		}
		return
	}
	if host, ok := rt.registry.Host(result.SessionID); ok {
		host.Send(Outbound{Type: TypePeerDisconnected})
	}
}

// handleNegotiation forwards offer/answer/ice_candidate payloads verbatim
// to in.TargetID, stamping fromId with the sender's endpoint id. Both
// peers in a session may address each other directly once joined; the
// router does not enforce host/client direction here because SDP
// renegotiation can originate from either side. A host with no targetId
// fans the payload out to every client in the session instead of naming
// one peer, since only the host has more than one possible counterpart.
func (rt *Router) handleNegotiation(endpoint *Endpoint, in Inbound) {
	sessionID, role := endpoint.Attachment()
	if role == RoleNone {
		endpoint.Send(ErrorMessage(Kind(ErrNotInSession), "not attached to a session"))
		return
	}

	out := Outbound{Type: in.Type, FromID: endpoint.ID()}
	switch in.Type {
	case TypeOffer, TypeAnswer:
		out.SDP = in.SDP
	case TypeICECandidate:
		out.Candidate = in.Candidate
	}

	targets, ok := rt.resolveTarget(sessionID, in.TargetID, role)
	if !ok {
		endpoint.Send(ErrorMessage(Kind(ErrHostAbsent), "target endpoint not available"))
		return
	}
	for _, target := range targets {
		target.Send(out)
	}
}

// resolveTarget finds the recipients for a negotiation message: an explicit
// targetId if present (and attached to the same session); otherwise the
// session's host when the caller is a client, since that is the only
// unambiguous default peer; otherwise, for a host with no targetId, every
// client in the session.
func (rt *Router) resolveTarget(sessionID, targetID string, role Role) ([]*Endpoint, bool) {
	if targetID != "" {
		if host, ok := rt.registry.Host(sessionID); ok && host.ID() == targetID {
			return []*Endpoint{host}, true
		}
		for _, c := range rt.registry.Clients(sessionID) {
			if c.ID() == targetID {
				return []*Endpoint{c}, true
			}
		}
		return nil, false
	}
	if role == RoleClient {
		host, ok := rt.registry.Host(sessionID)
		if !ok {
			return nil, false
		}
		return []*Endpoint{host}, true
	}

	clients := rt.registry.Clients(sessionID)
	return clients, true
}

// handleBroadcast fans a host's payload out to every client in its
// session, excluding the sender.
func (rt *Router) handleBroadcast(endpoint *Endpoint, in Inbound) {
	sessionID, role := endpoint.Attachment()
	if role != RoleHost {
		endpoint.Send(ErrorMessage(Kind(ErrNotHost), "only the host may broadcast"))
		return
	}
	for _, client := range rt.registry.Clients(sessionID) {
		client.Send(Outbound{Type: TypeBroadcast, FromID: endpoint.ID(), Data: in.Data})
	}
}

// handleQuerySession answers with a presence probe that deliberately
// leaks no endpoint identifiers.
func (rt *Router) handleQuerySession(endpoint *Endpoint, in Inbound) {
	snap, ok := rt.registry.Lookup(in.SessionID)
	if !ok {
		endpoint.Send(Outbound{Type: TypeSessionResponse, Found: false})
		return
	}
	endpoint.Send(Outbound{
		Type:  TypeSessionResponse,
		Found: true,
		Session: &SessionSummary{
			HasHost:     snap.HasHost,
			ClientCount: snap.ClientCount,
			AgeSeconds:  int(snap.Age.Seconds()),
		},
	})
}

// handleUpdatePassword lets the host change a session's password.
//
// The new password is forwarded to every attached client in cleartext, as
// specified; this mirrors an existing client-visible field rather than
// introducing a new one.
func (rt *Router) handleUpdatePassword(endpoint *Endpoint, in Inbound) {
	sess, err := rt.registry.SetPassword(endpoint, in.Password)
	if err != nil {
		endpoint.Send(ErrorMessage(Kind(err), "could not update password"))
		return
	}
	endpoint.Send(Outbound{Type: TypePasswordUpdateConfirmed})
	for _, client := range rt.registry.Clients(sess.id) {
		client.Send(Outbound{Type: TypePasswordUpdated, Password: in.Password})
	}
}

// handleUpdateDeviceInfo lets the host push an updated settings/nickname
// payload to every attached client.
func (rt *Router) handleUpdateDeviceInfo(endpoint *Endpoint, in Inbound) {
	sess, err := rt.registry.SetNickname(endpoint, in.Nickname)
	if err != nil {
		endpoint.Send(ErrorMessage(Kind(err), "could not update settings"))
		return
	}
	for _, client := range rt.registry.Clients(sess.id) {
		client.Send(Outbound{Type: TypeSettingsUpdated, Nickname: in.Nickname, Payload: in.Payload})
	}
}
