package hub

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"incidentrelay/pkg/logging"
)

const (
	DefaultSendBuffer   = 8
	DefaultWriteTimeout = 10 * time.Second
	DefaultPingInterval = 30 * time.Second

	// maxInboundBytes limits client messages; the channel is server-to-client only.
	maxInboundBytes = 4096
)

// WSConfig configures the WebSocket transport.
type WSConfig struct {
	// SendBuffer is the per-connection queue length.
	SendBuffer int

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration

	// PingInterval is how often keepalive pings are sent. The connection is
	// considered dead if no pong arrives within twice this interval.
	PingInterval time.Duration

	// CheckOrigin validates the Origin header. Nil allows all origins, since the
	// desktop client does not send a browser origin.
	CheckOrigin func(r *http.Request) bool
}

func (c WSConfig) withDefaults() WSConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = DefaultSendBuffer
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = func(*http.Request) bool { return true }
	}
	return c
}

// wsConn is a Conn backed by a gorilla WebSocket.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	cfg  WSConfig
	send chan []byte

	open      atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, cfg WSConfig) *wsConn {
	c := &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
	c.open.Store(true)
	return c
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Open() bool { return c.open.Load() }

// Send enqueues msg without blocking. If the queue is full the oldest queued
// message is discarded to make room.
func (c *wsConn) Send(msg []byte) error {
	if !c.open.Load() {
		return ErrTransportClosed
	}
	for {
		select {
		case c.send <- msg:
			return nil
		default:
		}
		select {
		case <-c.send:
			logging.Debug("Hub", "Send queue full for connection %s, dropped oldest event", c.id)
		default:
		}
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.open.Store(false)
		close(c.done)
	})
	return nil
}

// writePump owns all writes to the socket.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debug("Hub", "Write to connection %s failed: %v", c.id, err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return
		}
	}
}

// readPump drains inbound frames so control messages are processed, and
// detects disconnects.
func (c *wsConn) readPump(onClose func()) {
	defer func() {
		c.Close()
		onClose()
	}()

	pongWait := 2 * c.cfg.PingInterval
	c.ws.SetReadLimit(maxInboundBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug("Hub", "Connection %s closed unexpectedly: %v", c.id, err)
			}
			return
		}
	}
}

// ServeWS returns the handler that upgrades requests to WebSocket connections
// and registers them with the hub.
func (h *Hub) ServeWS(cfg WSConfig) http.Handler {
	cfg = cfg.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     cfg.CheckOrigin,
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error response.
			logging.Debug("Hub", "WebSocket upgrade failed: %v", err)
			return
		}

		c := newWSConn(ws, cfg)
		logging.Info("Hub", "Client connected: %s from %s", c.id, r.RemoteAddr)

		go c.writePump()
		h.Register(c)
		go c.readPump(func() {
			h.Unregister(c)
			logging.Info("Hub", "Client disconnected: %s", c.id)
		})
	})
}
