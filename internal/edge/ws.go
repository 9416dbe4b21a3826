// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package edge

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	applog "github.com/ManuGH/infinitune/internal/log"
	"github.com/ManuGH/infinitune/internal/metrics"
	"github.com/ManuGH/infinitune/internal/room"
)

// rateLimitKey returns the identity readPump's flood limiter buckets on:
// the device ID once a join frame has bound the connection to one, or
// the connection's remote address beforehand (an unauthenticated socket
// flooding join attempts is exactly the case the pre-join bucket guards
// against).
func (c *wsConn) rateLimitKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deviceID != "" {
		return c.deviceID
	}
	return c.conn.RemoteAddr().String()
}

const wsSendChannelSize = 16

// newUpgrader builds the connection upgrader. Origin checking mirrors
// the REST CORS allowlist: an empty allowlist or a "*" entry permits
// any origin, otherwise the Origin header must match exactly.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || len(allowed) == 0 {
				return true
			}
			return allowed[origin]
		},
	}
}

// wsConn adapts a gorilla/websocket connection to room.Socket. Sends are
// non-blocking: a full outbound queue evicts the connection outright
// rather than stalling the Room's broadcast or silently dropping the
// frame, per the overflow-is-close contract.
type wsConn struct {
	conn   *websocket.Conn
	sendCh chan []byte
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	closed   bool
	roomID   string
	deviceID string
}

func newWSConn(conn *websocket.Conn, cfg Config) *wsConn {
	return &wsConn{
		conn:   conn,
		sendCh: make(chan []byte, wsSendChannelSize),
		cfg:    cfg,
		logger: applog.WithComponent("edge.ws"),
	}
}

// Send implements room.Socket. Returns false (and evicts the
// connection) when the outbound queue was already full.
func (c *wsConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.sendCh <- payload:
		return true
	default:
		c.closed = true
		close(c.sendCh)
		c.logger.Warn().Msg("outbound queue full, evicting socket")
		return false
	}
}

// Close implements room.Socket.
func (c *wsConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendCh)
	}
}

func (c *wsConn) sendError(message string) {
	payload, _ := jsonMarshalErrorFrame(message)
	c.Send(payload)
}

// writePump drains sendCh to the socket and sends periodic pings.
// Returns when the connection is closed, either locally (sendCh closed)
// or by a write failure.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.WSPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.sendCh:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WSWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			metrics.IncWSFrame("out", "frame")
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WSWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames and dispatches them until the connection
// errors or closes. On exit it leaves the bound room, if any.
func (s *Server) readPump(c *wsConn) {
	defer func() {
		c.mu.Lock()
		roomID, deviceID := c.roomID, c.deviceID
		c.mu.Unlock()
		if roomID != "" && deviceID != "" {
			_ = s.roster.LeaveRoom(roomID, deviceID)
		}
		c.Close()
	}()

	c.conn.SetReadLimit(s.cfg.WSMaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.WSPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(s.cfg.WSPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if s.wsLimiter != nil && !s.wsLimiter.Allow(c.rateLimitKey()) {
			c.sendError("rate limit exceeded")
			continue
		}
		s.dispatch(c, message)
	}
}

// handleWebSocket upgrades the connection and starts its read/write
// pumps. The socket is unauthenticated at this layer: authorization is
// a function of room membership established by the first join frame.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newWSConn(conn, s.cfg)
	go c.writePump()
	s.readPump(c)
}
