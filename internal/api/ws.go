package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/banshee-data/presence.report/internal/monitoring"
	"github.com/banshee-data/presence.report/internal/vision"
)

// upgrader upgrades HTTP connections to WebSocket; CheckOrigin allows all
// origins because the feed carries the same data as the public JSON routes.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// broadcastQueue bounds pending live messages. When dashboards fall behind,
// messages are dropped here rather than backing up into the pipeline.
const broadcastQueue = 64

// liveMessage is the envelope for the WebSocket feed. Type is "count" for an
// occupancy change and "tracks" for a periodic overlay snapshot.
type liveMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans live messages out to connected WebSocket clients. Run owns the
// clients map; Register, Unregister, and the sink methods are safe from any
// goroutine.
type Hub struct {
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, broadcastQueue),
		clients:    make(map[*websocket.Conn]bool),
	}
}

var _ vision.EventSink = (*Hub)(nil)

// Run processes hub events until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("live feed client connected (total %d)", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			monitoring.Logf("live feed client disconnected (total %d)", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					monitoring.Logf("live feed write failed, dropping client: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(client *websocket.Conn) {
	h.register <- client
}

func (h *Hub) Unregister(client *websocket.Conn) {
	h.unregister <- client
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many live messages were discarded because the
// broadcast queue was full.
func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// send marshals and queues a live message without blocking the caller.
func (h *Hub) send(kind string, data interface{}) {
	message, err := json.Marshal(liveMessage{Type: kind, Data: data})
	if err != nil {
		monitoring.Logf("live feed marshal %s: %v", kind, err)
		return
	}
	select {
	case h.broadcast <- message:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// WriteCountEvent pushes an occupancy change to connected dashboards. A full
// queue is not an error; browsers recover from /api/tracks.
func (h *Hub) WriteCountEvent(ev vision.CountEvent) error {
	h.send("count", ev)
	return nil
}

// BroadcastSnapshot pushes a full overlay snapshot.
func (h *Hub) BroadcastSnapshot(snap vision.WorkerSnapshot) {
	h.send("tracks", snap)
}

// handleLive upgrades the connection, sends the current overlay state, and
// parks in a read loop until the client goes away. Broadcast writes happen on
// the hub goroutine only; the initial snapshot is written before registration
// so the two can never interleave on the connection.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade failed: %v", err)
		return
	}

	if message, err := json.Marshal(liveMessage{Type: "tracks", Data: s.worker.Snapshot()}); err == nil {
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			conn.Close()
			return
		}
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				monitoring.Logf("live feed client read: %v", err)
			}
			return
		}
	}
}

// StreamSnapshots broadcasts the overlay at the given cadence while clients
// are connected. Run it on its own goroutine; it returns when ctx ends.
func (s *Server) StreamSnapshots(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			s.hub.BroadcastSnapshot(s.worker.Snapshot())
		}
	}
}
