package server

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harsh-dexter/notera/internal/logging"
	"github.com/harsh-dexter/notera/internal/session"
)

const (
	eventBufferSize = 32
	writeWait       = 5 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = pongWait * 9 / 10
)

// eventMessage is the JSON frame sent for every session event. Type carries
// the event channel name.
type eventMessage struct {
	Type      session.EventKind `json:"type"`
	SessionID string            `json:"session_id,omitempty"`
	Status    session.Status    `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
}

func toMessage(ev session.Event) eventMessage {
	msg := eventMessage{Type: ev.Kind()}
	switch e := ev.(type) {
	case session.SessionStarted:
		msg.SessionID = e.SessionID
	case session.SessionStatus:
		msg.SessionID = e.SessionID
		msg.Status = e.Status
		msg.Message = e.Message
	}
	return msg
}

// originPolicy accepts loopback origins, requests without an Origin header
// and the configured extra origins.
type originPolicy map[string]bool

func newOriginPolicy(allowed []string) originPolicy {
	p := make(originPolicy, len(allowed))
	for _, o := range allowed {
		p[o] = true
	}
	return p
}

func (p originPolicy) allows(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p[origin] || p["*"] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Hostname() == "localhost" {
		return true
	}
	ip := net.ParseIP(u.Hostname())
	return ip != nil && ip.IsLoopback()
}

func newUpgrader(policy originPolicy) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     policy.allows,
	}
}

// eventClient is one connected /events websocket
type eventClient struct {
	conn   *websocket.Conn
	send   chan eventMessage
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

func (c *eventClient) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue never blocks the event bus; a client that falls behind is dropped
func (c *eventClient) enqueue(ev session.Event) {
	select {
	case c.send <- toMessage(ev):
	case <-c.done:
	default:
		c.logger.Warn().Msg("Event client too slow, disconnecting")
		c.close()
	}
}

// handleEvents implements the /events websocket endpoint
func (h *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.deps.Metrics.RecordHTTPError(r.Method, "/events", "upgrade_failed")
		h.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}
	h.deps.Metrics.RecordHTTPRequest(r.Method, "/events", "101", 0)

	c := &eventClient{
		conn:   conn,
		send:   make(chan eventMessage, eventBufferSize),
		done:   make(chan struct{}),
		logger: logging.WithCorrelationID(h.logger, "").With().Str("remote", r.RemoteAddr).Logger(),
	}

	unsubStarted := h.deps.Recording.Subscribe(session.KindStarted, c.enqueue)
	unsubStatus := h.deps.Recording.Subscribe(session.KindStatus, c.enqueue)
	h.addClient(c)
	c.logger.Debug().Msg("Event client connected")

	defer func() {
		unsubStarted()
		unsubStatus()
		h.removeClient(c)
		conn.Close()
		c.logger.Debug().Msg("Event client disconnected")
	}()

	go c.readPump()
	c.writePump()
}

// readPump discards client frames and notices disconnects
func (c *eventClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
	}
}

func (c *eventClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug().Err(err).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
