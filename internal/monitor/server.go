package monitor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obd327/elm327session/internal/session"
)

// stateDTO is the JSON-serializable projection of session.SessionState.
// error values don't marshal meaningfully on their own, so LastError is
// flattened to its message string.
type stateDTO struct {
	BluetoothOn   bool      `json:"bluetooth_on"`
	Phase         string    `json:"phase"`
	Device        string    `json:"device,omitempty"`
	InFlight      bool      `json:"in_flight"`
	Streaming     bool      `json:"streaming"`
	LastSuccessAt time.Time `json:"last_success_at,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
}

func toDTO(st session.SessionState) stateDTO {
	dto := stateDTO{
		BluetoothOn: st.BluetoothOn,
		Phase:       st.Connection.Phase.String(),
		Device:      string(st.Connection.Device),
		InFlight:    st.InFlight,
		Streaming:   st.Streaming,
	}
	if !st.LastSuccessAt.IsZero() {
		dto.LastSuccessAt = st.LastSuccessAt
	}
	if st.LastError != nil {
		dto.LastError = st.LastError.Error()
	}
	return dto
}

// Server exposes the Hub over a single "/ws" websocket endpoint.
type Server struct {
	hub        *Hub
	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates a monitor Server listening on addr. It subscribes to
// sess immediately so every subsequent SessionState transition is
// broadcast to connected clients; call Serve to start accepting
// connections.
func NewServer(sess *session.Session, addr string) *Server {
	hub := NewHub()
	go hub.Run()

	s := &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 512,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: addr, Handler: mux}

	sess.Subscribe(func(st session.SessionState) {
		hub.Broadcast(toDTO(st))
	})

	return s
}

// Serve starts the HTTP server. Blocks until the server stops.
func (s *Server) Serve() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("monitor: upgrade failed", "error", err)
		return
	}

	s.hub.register <- conn

	go func() {
		defer func() { s.hub.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
