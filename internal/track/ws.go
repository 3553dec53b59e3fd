// Package track exposes a websocket feed of inventory events for ops
// dashboards.
package track

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) readMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *safeConn) close() { c.ws.Close() }

// Hub manages connected event-feed clients.
type Hub struct {
	mu    sync.RWMutex
	conns []*safeConn
}

// NewHub creates an event-feed hub.
func NewHub() *Hub {
	return &Hub{}
}

// Routes returns a chi.Router for the /ws mount point.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/events", h.HandleWS)
	return r
}

// HandleWS upgrades the connection and subscribes it to the event stream.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	conn := &safeConn{ws: ws}

	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	log.Printf("[ws] client connected to event feed")

	// Block until the client disconnects
	for {
		if _, _, err := conn.readMessage(); err != nil {
			break
		}
	}

	h.removeConn(conn)
	conn.close()
	log.Printf("[ws] client disconnected from event feed")
}

// Broadcast pushes an event to all connected clients. Safe for concurrent
// calls; each safeConn serialises its own writes.
func (h *Hub) Broadcast(kind string, payload any) {
	h.mu.RLock()
	conns := make([]*safeConn, len(h.conns))
	copy(conns, h.conns)
	h.mu.RUnlock()

	msg := map[string]any{
		"kind":    kind,
		"payload": payload,
		"ts":      time.Now().Unix(),
	}

	for _, c := range conns {
		if err := c.writeJSON(msg); err != nil {
			log.Printf("[ws] write error: %v", err)
		}
	}
}

func (h *Hub) removeConn(conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, c := range h.conns {
		if c == conn {
			h.conns = append(h.conns[:i], h.conns[i+1:]...)
			break
		}
	}
}
