package signaling

import "errors"

// Sentinel errors for Registry and Router operations. These map 1:1 onto
// the wire error kinds of the protocol (see Kind) so callers never need to
// string-match an error message to decide what to tell a client.
var (
	// ErrInvalidMessage indicates a message body failed to decode or a
	// required field was absent.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrNotFound indicates the session id has no live session.
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists indicates create_session collided with a live id.
	ErrAlreadyExists = errors.New("session already exists")

	// ErrHostConflict indicates a second host tried to attach while one is
	// already present.
	ErrHostConflict = errors.New("host already attached")

	// ErrNotInSession indicates an endpoint not attached to any session
	// attempted a session-scoped operation.
	ErrNotInSession = errors.New("endpoint not in session")

	// ErrNotHost indicates a non-host endpoint attempted a host-only
	// operation.
	ErrNotHost = errors.New("endpoint is not the session host")

	// ErrHostAbsent indicates a client's negotiation payload had no host
	// to reach.
	ErrHostAbsent = errors.New("session has no attached host")

	// ErrSlowConsumer indicates an endpoint's outbound queue exceeded its
	// high-water mark and the endpoint was disconnected.
	ErrSlowConsumer = errors.New("slow consumer disconnected")
)

// Kind classifies a sentinel error into the wire-level error.kind string
// defined by the protocol. Unrecognized errors fall back to
// "invalid_message" so the caller always gets a kind to report.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrHostConflict):
		return "host_conflict"
	case errors.Is(err, ErrNotInSession):
		return "not_in_session"
	case errors.Is(err, ErrNotHost):
		return "not_host"
	case errors.Is(err, ErrHostAbsent):
		return "host_absent"
	case errors.Is(err, ErrSlowConsumer):
		return "slow_consumer"
	default:
		return "invalid_message"
	}
}
