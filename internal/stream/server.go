// Package stream broadcasts presented frames to websocket clients. A
// client is a browser canvas: it receives the viewport size and then one
// bit-packed frame per tick, and may send its own size back to request a
// resize.
package stream

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/san-kum/binsim/internal/logging"
	"github.com/san-kum/binsim/internal/present"
)

const (
	DefaultMaxClients = 100
	sendBuffer        = 2
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	maxClients int
	onResize   func(width, height int)
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	width   int
	height  int
	dropped int64
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

type Option func(*Server)

func WithMaxClients(n int) Option {
	return func(s *Server) { s.maxClients = n }
}

// WithResizeHandler is called when a client reports a new canvas size.
func WithResizeHandler(fn func(width, height int)) Option {
	return func(s *Server) { s.onResize = fn }
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		maxClients: DefaultMaxClients,
		clients:    make(map[*client]struct{}),
		logger:     logging.Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler is the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveWS)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	s.mu.Lock()
	if len(s.clients) >= s.maxClients {
		s.mu.Unlock()
		s.logger.Warn("max clients reached", "remote", r.RemoteAddr)
		conn.Close()
		return
	}
	if s.width > 0 && s.height > 0 {
		c.send <- EncodeSize(s.width, s.height)
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("client connected", "remote", r.RemoteAddr)
	go s.writePump(c)

	defer func() {
		s.remove(c)
		conn.Close()
		s.logger.Info("client disconnected", "remote", r.RemoteAddr)
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage || len(message) == 0 || message[0] != OpCodeSimSize {
			continue
		}
		w, h, err := DecodeSize(message)
		if err != nil {
			s.logger.Debug("bad size message", "err", err)
			continue
		}
		if s.onResize != nil && w > 0 && h > 0 {
			s.onResize(w, h)
		}
	}
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) writePump(c *client) {
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, message); err != nil {
			s.logger.Debug("write to client failed", "err", err)
			c.conn.Close()
			return
		}
	}
}

// broadcast queues msg for every client, dropping it for clients that are
// behind. msg must not be modified afterwards.
func (s *Server) broadcast(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- msg:
		default:
			s.dropped++
		}
	}
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped counts frames skipped for slow clients.
func (s *Server) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close disconnects every client.
func (s *Server) Close() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.conn.Close()
	}
}

// Surface presents frames by broadcasting them.
func (s *Server) Surface() present.Surface {
	return surface{s}
}

type surface struct{ s *Server }

func (sf surface) Acquire(width, height int) (present.Target, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", present.ErrUnavailable, width, height)
	}
	t := &target{s: sf.s}
	t.Resize(width, height)
	return t, nil
}

type target struct{ s *Server }

func (t *target) Resize(width, height int) {
	t.s.mu.Lock()
	t.s.width, t.s.height = width, height
	t.s.mu.Unlock()
	t.s.broadcast(EncodeSize(width, height))
}

func (t *target) Present(f present.Frame) error {
	if t.s.Clients() == 0 {
		return nil
	}
	// each client may still hold the previous message, so encode fresh
	msg := EncodeFrame(f, nil)
	t.s.broadcast(msg)
	return nil
}

func (t *target) Release() {}
