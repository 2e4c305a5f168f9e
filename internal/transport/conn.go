package transport

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/meshsig/meshsig/internal/signaling"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// outboundQueueSize is the per-connection high-water mark. A connection
	// whose outbound queue fills past this is disconnected rather than
	// allowed to apply backpressure to the router.
	outboundQueueSize = 256
)

// conn wraps one live WebSocket connection. It implements signaling.Sender
// so the registry and router can address it without knowing it is a
// WebSocket at all.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger
	router *signaling.Router

	outbound chan signaling.Outbound
	closed   chan struct{}

	onClose func(*conn)
}

func newConn(id string, ws *websocket.Conn, router *signaling.Router, logger *slog.Logger, onClose func(*conn)) *conn {
	return &conn{
		id:       id,
		ws:       ws,
		logger:   logger.With(slog.String("endpoint_id", id)),
		router:   router,
		outbound: make(chan signaling.Outbound, outboundQueueSize),
		closed:   make(chan struct{}),
		onClose:  onClose,
	}
}

// ID satisfies signaling.Sender.
func (c *conn) ID() string { return c.id }

// Send satisfies signaling.Sender. It never blocks: a full queue means the
// connection is judged a slow consumer and gets torn down instead.
func (c *conn) Send(msg signaling.Outbound) {
	select {
	case c.outbound <- msg:
	default:
		c.logger.Warn("outbound queue full, disconnecting slow consumer")
		c.closeOnce()
	}
}

// closeOnce closes the closed channel exactly once, regardless of which
// goroutine (reader, writer, or Send) observes the need to tear down.
func (c *conn) closeOnce() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}

// readPump decodes inbound frames and dispatches them until the connection
// closes. It runs on its own goroutine and is the only goroutine that
// calls ws.ReadMessage, per gorilla/websocket's single-reader requirement.
func (c *conn) readPump(endpoint *signaling.Endpoint) {
	defer c.closeOnce()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.router.Dispatch(endpoint, data)
	}
}

// writePump drains the outbound queue onto the socket and runs a ping
// ticker, the only goroutine that calls ws.WriteMessage, mirroring the
// single-writer convention gorilla/websocket requires.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbound:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				c.logger.Error("encode outbound message", slog.Any("error", err))
				continue
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// run drives both pumps and blocks until the connection is torn down,
// notifying onClose exactly once on the way out.
func (c *conn) run(endpoint *signaling.Endpoint) {
	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.readPump(endpoint)
	c.closeOnce()
	<-done

	if c.onClose != nil {
		c.onClose(c)
	}
}
