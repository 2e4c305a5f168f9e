package signaling

import "encoding/json"

// Inbound message type discriminators (client -> server).
const (
	TypeCreateSession    = "create_session"
	TypeHost             = "host"
	TypeJoin             = "join"
	TypeLeave            = "leave"
	TypeOffer            = "offer"
	TypeAnswer           = "answer"
	TypeICECandidate     = "ice_candidate"
	TypeBroadcast        = "broadcast"
	TypeQuerySession     = "query_session"
	TypeUpdatePassword   = "update_password"
	TypeUpdateDeviceInfo = "update_device_info"
	TypeClientInfo       = "client-info"
)

// Outbound message type discriminators (server -> client).
const (
	TypeWelcome                  = "welcome"
	TypeSessionCreated           = "session_created"
	TypeJoined                   = "joined"
	TypePeerJoined               = "peer_joined"
	TypePeerDisconnected         = "peer_disconnected"
	TypeHostDisconnected         = "host_disconnected"
	TypeSessionResponse          = "session_response"
	TypePasswordUpdated          = "password_updated"
	TypePasswordUpdateConfirmed  = "password_update_confirmed"
	TypeSettingsUpdated          = "settings_updated"
	TypeError                    = "error"
)

// Inbound is the envelope decoded from every inbound JSON frame before
// dispatch. Fields unused by a given type are left zero; Router.Dispatch
// validates presence of the fields each type requires.
type Inbound struct {
	Type         string          `json:"type"`
	SessionID    string          `json:"sessionId,omitempty"`
	Password     string          `json:"password,omitempty"`
	Settings     json.RawMessage `json:"settings,omitempty"`
	IsHost       bool            `json:"isHost,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	TargetID     string          `json:"targetId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Nickname     string          `json:"nickname,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// Outbound is the envelope encoded onto every outbound JSON frame. A
// nonzero zero-value field is omitted via `omitempty`, so one struct
// serves every outbound message type with the fields it needs set.
type Outbound struct {
	Type             string          `json:"type"`
	ClientID         string          `json:"clientId,omitempty"`
	SubdomainSession string          `json:"subdomainSession,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	IsHost           bool            `json:"isHost,omitempty"`
	PeerID           string          `json:"peerId,omitempty"`
	SDP              json.RawMessage `json:"sdp,omitempty"`
	Candidate        json.RawMessage `json:"candidate,omitempty"`
	FromID           string          `json:"fromId,omitempty"`
	Data             json.RawMessage `json:"data,omitempty"`
	Found            bool            `json:"found,omitempty"`
	Session          *SessionSummary `json:"session,omitempty"`
	Password         string          `json:"password,omitempty"`
	Nickname         string          `json:"nickname,omitempty"`
	Payload          json.RawMessage `json:"payload,omitempty"`
	Message          string          `json:"message,omitempty"`
	Kind             string          `json:"kind,omitempty"`
}

// SessionSummary is the existence-probe view of a session returned by
// query_session. It deliberately omits endpoint identifiers.
type SessionSummary struct {
	HasHost     bool `json:"hasHost"`
	ClientCount int  `json:"clientCount"`
	AgeSeconds  int  `json:"ageSeconds"`
}

// ErrorMessage builds the standard error{} outbound envelope.
func ErrorMessage(kind, message string) Outbound {
	return Outbound{Type: TypeError, Kind: kind, Message: message}
}
