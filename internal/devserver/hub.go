package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fentz26/reprocess/internal/live"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/gorilla/websocket"
)

const (
	sendBuffer = 64
	writeWait  = 5 * time.Second
)

// TokenChecker validates the token a live subscriber presents.
type TokenChecker interface {
	Authenticate(token string) (User, error)
}

// Hub fans events out to every connected live subscriber.
type Hub struct {
	auth     TokenChecker
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	closed  bool
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *hubClient) stop() {
	c.once.Do(func() { close(c.send) })
}

// NewHub creates a hub that admits subscribers auth accepts.
func NewHub(auth TokenChecker, logger *slog.Logger) *Hub {
	return &Hub{
		auth: auth,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logging.OrDiscard(logger),
		clients: make(map[*hubClient]struct{}),
	}
}

// SetAuth replaces the token checker. It is needed because the service and
// the hub reference each other.
func (h *Hub) SetAuth(auth TokenChecker) {
	h.mu.Lock()
	h.auth = auth
	h.mu.Unlock()
}

// Publish encodes ev and queues it for every subscriber. Subscribers whose
// buffer is full are dropped.
func (h *Hub) Publish(ev models.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow live subscriber", "remote", c.conn.RemoteAddr().String())
			delete(h.clients, c)
			c.stop()
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the subscriber. A missing or
// unknown token is answered with close code 4401 right after the upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("live upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	auth, closed := h.auth, h.closed
	h.mu.Unlock()

	token := r.URL.Query().Get("token")
	if closed || auth == nil {
		h.closeWith(conn, websocket.CloseGoingAway, "shutting down")
		return
	}
	if _, err := auth.Authenticate(token); err != nil {
		h.closeWith(conn, live.CloseUnauthorized, "Unauthorized")
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("live subscriber connected", "remote", conn.RemoteAddr().String())

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards inbound frames (pings) until the peer goes away.
func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			c.stop()
		}
		h.mu.Unlock()
		h.logger.Debug("live subscriber disconnected", "remote", c.conn.RemoteAddr().String())
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (h *Hub) closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	conn.Close()
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
}
