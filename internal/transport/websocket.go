// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "audiobridge/internal/log"
	"audiobridge/internal/media"

	"github.com/gorilla/websocket"
)

const (
	clientQueueSize = 64
	writeTimeout    = 2 * time.Second
	maxClientRead   = 512
)

type wsMessage struct {
	kind int // websocket.BinaryMessage or websocket.TextMessage
	data []byte
}

type wsClient struct {
	conn *websocket.Conn
	send chan wsMessage
	done chan struct{}
	once sync.Once
}

// close asks the write pump to say goodbye and drop the connection.
func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// WebSocketServer implements the Transport interface by broadcasting frames
// to every connected WebSocket client. Each client has its own bounded queue;
// messages for a client whose queue is full are dropped.
type WebSocketServer struct {
	addr     string
	path     string
	upgrader websocket.Upgrader

	mu           sync.Mutex
	clients      map[*wsClient]struct{}
	lastMeta     []byte   // replayed to new clients
	lastSpectrum Spectrum // replayed to new clients as JSON
	closed       bool

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup

	dropped atomic.Uint64
}

// NewWebSocketServer creates a server for addr serving clients at path.
// Nothing listens until Start; Handler can be mounted elsewhere instead.
func NewWebSocketServer(addr, path string) *WebSocketServer {
	if path == "" {
		path = "/ws"
	}
	return &WebSocketServer{
		addr: addr,
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true // overlays are served from file:// and other local origins
			},
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// Handler returns the HTTP handler serving the WebSocket endpoint.
func (s *WebSocketServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.path, s.handleWebSocket)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *WebSocketServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("WebSocketServer: listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	applog.Infof("WebSocketServer: Serving ws://%s%s", ln.Addr(), s.path)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			applog.Errorf("WebSocketServer: Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *WebSocketServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// handleWebSocket upgrades HTTP connections to WebSocket.
func (s *WebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketServer: Upgrade error: %v", err)
		return
	}
	c := &wsClient{
		conn: conn,
		send: make(chan wsMessage, clientQueueSize),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	if s.lastMeta != nil {
		c.send <- wsMessage{kind: websocket.TextMessage, data: s.lastMeta}
	}
	if s.lastSpectrum != nil {
		if b, err := encodeJSON("fft", s.lastSpectrum); err == nil {
			c.send <- wsMessage{kind: websocket.TextMessage, data: b}
		}
	}
	total := len(s.clients)
	s.wg.Add(1)
	s.mu.Unlock()

	applog.Infof("WebSocketServer: Client %s connected, total: %d", r.RemoteAddr, total)
	go s.writePump(c)
	go s.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (s *WebSocketServer) readPump(c *wsClient) {
	c.conn.SetReadLimit(maxClientRead)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
	s.remove(c)
}

func (s *WebSocketServer) writePump(c *wsClient) {
	defer s.wg.Done()
	defer c.conn.Close()
	for {
		select {
		case <-c.done:
			deadline := time.Now().Add(writeTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
			return
		case m := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(m.kind, m.data); err != nil {
				applog.Debugf("WebSocketServer: Write error: %v", err)
				s.remove(c)
				return
			}
		}
	}
}

func (s *WebSocketServer) remove(c *wsClient) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	total := len(s.clients)
	s.mu.Unlock()

	c.close()
	if ok {
		applog.Infof("WebSocketServer: Client disconnected, total: %d", total)
	}
}

// Send broadcasts data to all connected clients. It never blocks on a
// client.
func (s *WebSocketServer) Send(data any) error {
	switch v := data.(type) {
	case Spectrum:
		s.mu.Lock()
		s.lastSpectrum = v
		s.mu.Unlock()
		s.broadcast(wsMessage{kind: websocket.BinaryMessage, data: EncodeSpectrum(v)})
	case Wave:
		s.broadcast(wsMessage{kind: websocket.BinaryMessage, data: EncodeWave(v)})
	case VU:
		s.broadcast(wsMessage{kind: websocket.BinaryMessage, data: EncodeVU(v)})
	case media.State:
		if v.Empty() {
			return s.Send(Clear{})
		}
		b, err := encodeJSON("metadata", NewMediaMetadata(v))
		if err != nil {
			return fmt.Errorf("WebSocketServer: encode metadata: %w", err)
		}
		s.mu.Lock()
		s.lastMeta = b
		s.mu.Unlock()
		s.broadcast(wsMessage{kind: websocket.TextMessage, data: b})
	case Clear:
		s.mu.Lock()
		s.lastMeta, s.lastSpectrum = nil, nil
		s.mu.Unlock()
		b, _ := encodeJSON("clear", nil)
		s.broadcast(wsMessage{kind: websocket.TextMessage, data: b})
	default:
		return fmt.Errorf("WebSocketServer: unsupported payload %T", data)
	}
	return nil
}

func (s *WebSocketServer) broadcast(m wsMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- m:
		default:
			s.dropped.Add(1)
		}
	}
}

// Clients returns the number of connected clients.
func (s *WebSocketServer) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped counts messages discarded because a client queue was full.
func (s *WebSocketServer) Dropped() uint64 {
	return s.dropped.Load()
}

// Close disconnects every client and shuts down the server.
func (s *WebSocketServer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := s.clients
	s.clients = make(map[*wsClient]struct{})
	srv := s.server
	s.mu.Unlock()

	applog.Infof("WebSocketServer: Closing server (%d clients)", len(clients))
	for c := range clients {
		c.close()
	}
	s.wg.Wait()

	if srv != nil {
		return srv.Close()
	}
	return nil
}

// Ensure WebSocketServer satisfies the interface.
var _ Transport = (*WebSocketServer)(nil)
