package transport

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/meshsig/meshsig/internal/signaling"
)

// Listener accepts WebSocket upgrades and hands each connection off to a
// signaling.Router as a signaling.Endpoint.
type Listener struct {
	router   *signaling.Router
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewListener builds a Listener that dispatches through router.
// allowedOrigins, when non-empty, restricts CheckOrigin to that list;
// an empty list accepts any origin, which is appropriate for a
// same-origin admin deployment but should be set in production.
func NewListener(router *signaling.Router, logger *slog.Logger, allowedOrigins []string) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		router: router,
		logger: logger.With(slog.String("component", "transport")),
	}
	l.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     l.checkOrigin(allowedOrigins),
	}
	return l
}

func (l *Listener) checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.ToLower(o)] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := strings.ToLower(r.Header.Get("Origin"))
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request to a WebSocket, mints a fresh endpoint,
// and runs its connection loop until it closes. It returns once the
// connection has fully torn down and its departure has been reported to
// the router.
func (l *Listener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn("upgrade failed", slog.Any("error", err))
		return
	}

	endpointID := uuid.NewString()
	c := newConn(endpointID, ws, l.router, l.logger, nil)
	endpoint := signaling.NewEndpoint(c)

	hint := subdomainHint(r.Host)
	endpoint.Send(signaling.Outbound{
		Type:             signaling.TypeWelcome,
		ClientID:         endpointID,
		SubdomainSession: hint,
	})

	c.run(endpoint)
	l.router.Disconnect(endpoint)
}

// subdomainHint extracts a leading subdomain label from host, if any, as
// a hint the client may use as its default session id. A bare host (no
// subdomain) yields an empty hint.
func subdomainHint(host string) string {
	host, _, _ = strings.Cut(host, ":")
	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}
	return strings.ToLower(labels[0])
}
