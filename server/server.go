package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Command is a control message from a client. Params is only set for
// update_params.
type Command struct {
	Type   string             `json:"type"` // start, pause, reset, update_params
	Params map[string]float64 `json:"params,omitempty"`
}

// Server pushes binary frames to websocket clients and forwards their
// control commands to the run loop. Frames are broadcast best-effort: a
// slow client skips frames rather than stalling the simulation.
type Server struct {
	addr     string
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	commands chan Command
	httpSrv  *http.Server
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New builds a server listening on addr once Start is called.
func New(addr string, log *slog.Logger) *Server {
	return &Server{
		addr: addr,
		log:  log,
		upgrader: websocket.Upgrader{
			// Local visualization clients; no origin policy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		commands: make(chan Command, 16),
	}
}

// Commands returns the channel of client control messages.
func (s *Server) Commands() <-chan Command {
	return s.commands
}

// Start begins serving websocket connections on /ws. It returns once the
// listener goroutine is launched.
func (s *Server) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.httpSrv = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server failed", "error", err)
		}
	}()
}

// Shutdown closes all client connections and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
	s.mu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Broadcast queues a frame for every client. The frame is copied once so
// the caller may reuse its buffer immediately.
func (s *Server) Broadcast(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	for c := range s.clients {
		select {
		case c.send <- buf:
		default:
			// Client is behind; drop this frame for it.
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 8)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Info("client connected", "remote", conn.RemoteAddr().String())

	go s.writeLoop(c)
	s.readLoop(c)
}

// readLoop parses control messages until the connection drops.
func (s *Server) readLoop(c *client) {
	defer s.dropClient(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.log.Warn("bad control message", "error", err)
			continue
		}
		select {
		case s.commands <- cmd:
		default:
			s.log.Warn("command queue full, dropping", "type", cmd.Type)
		}
	}
}

// writeLoop pushes queued frames to one client.
func (s *Server) writeLoop(c *client) {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			s.dropClient(c)
			return
		}
	}
	c.conn.Close()
}

func (s *Server) dropClient(c *client) {
	s.mu.Lock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
	s.mu.Unlock()
	c.conn.Close()
}
