package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/flockwatch/flockwatch/internal/alert"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second

	// sendBuffer bounds the per-client queue. A client that cannot drain it
	// gets dropped; the polling loop never blocks on a slow consumer.
	sendBuffer = 16
)

// Hub fans live alert reports out to connected websocket clients. It
// implements alert.Sink so the reporter can treat it like any other sink.
type Hub struct {
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	closed   bool
	upgrader websocket.Upgrader
}

type streamClient struct {
	conn *websocket.Conn
	send chan alert.Report
}

// NewHub creates an empty alert stream hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			// The monitor is operator tooling on a local or private bind;
			// browser origin checks add nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Emit queues the report for every connected client. Clients whose buffer is
// full are disconnected rather than slowing the pipeline down.
func (h *Hub) Emit(rep alert.Report) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- rep:
		default:
			log.Warn().Str("remote", c.conn.RemoteAddr().String()).
				Msg("Dropping slow alert stream client")
			h.dropLocked(c)
		}
	}
}

// ClientCount returns the number of connected stream clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client. Subsequent connection attempts are
// rejected; Emit becomes a no-op.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *streamClient) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// handleAlertStream upgrades the connection and streams alert reports as
// JSON messages until the client disconnects.
func (h *Hub) handleAlertStream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Alert stream upgrade failed")
		return
	}

	c := &streamClient{conn: conn, send: make(chan alert.Report, sendBuffer)}
	if !h.add(c) {
		conn.Close()
		return
	}

	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Alert stream client connected")

	go c.writePump()
	c.readPump(h)
}

// writePump delivers queued reports and keepalive pings. It owns all writes
// on the connection and closes it when the hub drops the client.
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case rep, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteJSON(rep); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes control frames until the peer goes away, then removes
// the client from the hub.
func (c *streamClient) readPump(h *Hub) {
	defer h.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
