package adminserver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// maxLiveFeedConnections bounds the live feed the same way
// control_plane/ws_hub.go bounds its metrics hub.
const maxLiveFeedConnections = 200

// LiveFeed broadcasts plant-directory snapshots to connected WebSocket
// clients once a second, adapted from control_plane/ws_hub.go's
// MetricsHub: a single goroutine owns the client map, eliminating the
// need for per-connection broadcast loops.
type LiveFeed struct {
	store *Store

	mu         sync.RWMutex
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewLiveFeed creates a LiveFeed reading from store.
func NewLiveFeed(store *Store) *LiveFeed {
	return &LiveFeed{
		store:      store,
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run owns the client map until ctx is cancelled.
func (h *LiveFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case conn := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxLiveFeedConnections {
				h.mu.Unlock()
				conn.Close()
				log.Printf("adminserver: live feed connection rejected, at capacity (%d)", maxLiveFeedConnections)
				continue
			}
			h.clients[conn] = struct{}{}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.broadcast()
		}
	}
}

func (h *LiveFeed) broadcast() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	snapshot := h.store.List()
	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(snapshot); err != nil {
			go h.Unregister(conn)
		}
	}
}

func (h *LiveFeed) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
}

// Register enrolls a new client connection.
func (h *LiveFeed) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister removes a client connection.
func (h *LiveFeed) Unregister(conn *websocket.Conn) { h.unregister <- conn }
