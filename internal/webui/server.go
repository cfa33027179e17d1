package webui

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Snapshots bundles the read-only views the dashboard serves, each backed
// by a subsystem's own Snapshot method so webui never holds subsystem state
// itself.
type Snapshots struct {
	Leases func() any
	DNS    func() any
	NAT    func() any
}

// Server is the dashboard's HTTP/WebSocket endpoint, bound to TCP 1337 on
// the LAN device per spec.md §7.
type Server struct {
	snap Snapshots
	log  *LogTail
	mux  *http.ServeMux

	upgrader websocket.Upgrader
}

// NewServer builds the dashboard's request handler. snap provides the
// live subsystem snapshots; log is the tail every "/ws" connection streams.
func NewServer(snap Snapshots, log *LogTail) *Server {
	s := &Server{
		snap: snap,
		log:  log,
		mux:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is reached only from the LAN; there is no
			// cross-origin browser client to defend against here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/api/leases", s.handleSnapshot(snap.Leases))
	s.mux.HandleFunc("/api/dns", s.handleSnapshot(snap.DNS))
	s.mux.HandleFunc("/api/nat", s.handleSnapshot(snap.NAT))
	s.mux.HandleFunc("/api/log", s.handleLog)
	s.mux.HandleFunc("/ws", s.handleWS)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleSnapshot(get func() any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(get())
	}
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.log.Snapshot())
}

// handleWS upgrades to a WebSocket and streams every new log line until the
// client disconnects, per spec.md §7's live log tail.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan string, tailLen)
	s.log.Subscribe(ch)
	defer s.log.Unsubscribe(ch)

	for _, line := range s.log.Snapshot() {
		if err = conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}

	for line := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err = conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
}

// Listen starts serving the dashboard on addr (e.g. "192.168.1.1:1337")
// until the returned server is closed; errors are logged, not returned, matching
// spec.md §7's "the dashboard is a best-effort contract" framing.
func Listen(addr string, handler http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("dashboard server stopped", "error", err)
		}
	}()

	return srv
}
