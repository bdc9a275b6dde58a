// Package monitor provides an optional debug live-monitor: a websocket
// endpoint that broadcasts session.SessionState snapshots as JSON to any
// connected client, for watching a running adapter session from a browser
// or a `websocat` shell without instrumenting the host application. It is a
// read-only fan-out: the session manager's public API
// (internal/session.Session) remains the only place commands belong.
package monitor

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Snapshot is the outgoing message shape, one per broadcast SessionState.
type Snapshot struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Hub maintains the set of connected monitor clients and fans out
// snapshots broadcast to it.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool

	broadcast  chan Snapshot
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
}

// NewHub creates an idle Hub. Call Run in its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan Snapshot, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run is the Hub's event loop: client (un)registration and broadcast
// fan-out. Blocks until the process exits; intended to run in its own
// goroutine for the lifetime of the monitor.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()
			slog.Debug("monitor: client connected")

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mu.Unlock()
			slog.Debug("monitor: client disconnected")

		case snap := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(snap); err != nil {
					slog.Warn("monitor: broadcast write failed, dropping client", "error", err)
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast enqueues a SessionState snapshot for delivery to every
// connected client. Never blocks the caller for longer than the hub's
// buffer allows; a stalled Run goroutine is not this method's problem.
func (h *Hub) Broadcast(payload interface{}) {
	select {
	case h.broadcast <- Snapshot{Type: "session_state", Payload: payload}:
	default:
		slog.Warn("monitor: broadcast buffer full, dropping snapshot")
	}
}
