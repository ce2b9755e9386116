// Package ws is the trigger gateway's WebSocket server. The host runtime
// connects to /triggers and pushes trigger frames; each frame is handed to a
// callback from a bounded worker pool. Connections are multiplexed with
// epoll on Linux.
package ws

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/threadhelper/threadhelper/internal/metrics"
)

// ServerConfig holds tunable parameters for the gateway server.
type ServerConfig struct {
	ListenAddr     string        // address to listen on, e.g. ":8080"
	Token          string        // bearer token required on upgrade; empty disables the check
	WorkerPoolSize int           // max concurrent frame readers
	MaxConnections int           // hard cap on runtime connections
	MaxFrameSize   int64         // largest accepted frame payload in bytes
	ReadTimeout    time.Duration // timeout for reading one frame
	WriteTimeout   time.Duration // timeout for writing one reply
	Heartbeat      HeartbeatConfig
}

// DefaultMaxFrameSize bounds a trigger frame when MaxFrameSize is unset.
const DefaultMaxFrameSize = 1 << 20

// maxControlPayload is the RFC 6455 limit for ping, pong and close payloads.
const maxControlPayload = 125

// DefaultServerConfig returns a ServerConfig with production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:     ":8080",
		WorkerPoolSize: 64,
		MaxConnections: 1024,
		MaxFrameSize:   DefaultMaxFrameSize,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		Heartbeat:      DefaultHeartbeatConfig(),
	}
}

// Server accepts runtime connections and reads trigger frames from them.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	conns      *ConnectionManager
	workerPool chan struct{} // semaphore limiting concurrent readers
	onMessage  func(conn *Connection, data []byte)
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time
}

// NewServer creates a Server. onMessage is called from a worker goroutine for
// every complete text frame.
func NewServer(config ServerConfig, onMessage func(conn *Connection, data []byte)) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		onMessage:  onMessage,
		done:       make(chan struct{}),
	}
}

// Handler returns the gateway's HTTP routes: /triggers, /health and
// /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/triggers", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Start creates the readiness loop and serves HTTP until Shutdown.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}
	s.startedAt = time.Now()

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: s.Handler(),
	}

	go s.startEventLoop()
	s.startHeartbeat(s.config.Heartbeat)

	log.Printf("ws: gateway listening on %s (workers=%d, max_conns=%d)",
		s.config.ListenAddr, s.config.WorkerPoolSize, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ws: http server error: %w", err)
	}
	return nil
}

// authorized checks the bearer token when one is configured.
func (s *Server) authorized(r *http.Request) bool {
	if s.config.Token == "" {
		return true
	}
	want := "Bearer " + s.config.Token
	return subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), []byte(want)) == 1
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	now := time.Now()
	c := &Connection{
		ID:        uuid.New().String(),
		Conn:      conn,
		CreatedAt: now,
	}
	c.Touch(now)

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		log.Printf("ws: epoll add failed conn=%s: %v", c.ID, err)
		s.conns.Remove(c.ID)
		return
	}
	metrics.GatewayConnections.Inc()

	log.Printf("ws: runtime connected conn=%s remote=%s (total=%d)", c.ID, r.RemoteAddr, s.conns.Count())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// startEventLoop hands every ready connection to a worker, blocking when the
// pool is full.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if !isEINTR(err) {
				log.Printf("ws: epoll wait error: %v", err)
			}
			continue
		}

		for _, conn := range conns {
			s.workerPool <- struct{}{}
			go s.serve(conn)
		}
	}
}

// serve handles one ready connection on a worker slot taken by the caller.
// A panic is logged and the process keeps running.
func (s *Server) serve(netConn net.Conn) {
	defer func() { <-s.workerPool }()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ws: panic handling connection remote=%s: %v", netConn.RemoteAddr(), r)
		}
	}()
	s.handleConn(netConn)
}

// handleConn reads one frame from a ready connection. Pings are answered,
// other control frames only refresh LastSeen, and a close frame, read error
// or oversized frame drops the connection.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}
	// Level-triggered epoll may report the same connection twice.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)
	defer s.epoll.Resume(netConn)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	c.Touch(time.Now())

	if header.OpCode.IsControl() {
		s.handleControl(c, header, reader)
		_ = netConn.SetReadDeadline(time.Time{})
		return
	}

	if header.Length < 0 || header.Length > s.maxFrameSize() {
		log.Printf("ws: frame of %d bytes exceeds limit conn=%s", header.Length, c.ID)
		s.closeWith(c, ws.StatusMessageTooBig, "frame too large")
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}
	_ = netConn.SetReadDeadline(time.Time{})
	if len(data) == 0 || s.onMessage == nil {
		return
	}
	s.onMessage(c, data)
}

// handleControl consumes a control frame's payload so the next header is
// read from the right offset.
func (s *Server) handleControl(c *Connection, header ws.Header, reader io.Reader) {
	if header.Length < 0 || header.Length > maxControlPayload {
		s.closeWith(c, ws.StatusProtocolError, "control frame too large")
		return
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(reader, payload); err != nil {
		s.RemoveConnection(c)
		return
	}

	switch header.OpCode {
	case ws.OpClose:
		s.RemoveConnection(c)
	case ws.OpPing:
		s.withWriteDeadline(c, func() error { return c.WritePong(payload) })
	}
}

// closeWith sends a close frame and drops c.
func (s *Server) closeWith(c *Connection, code ws.StatusCode, reason string) {
	s.withWriteDeadline(c, func() error { return c.WriteClose(code, reason) })
	s.RemoveConnection(c)
}

// withWriteDeadline runs write under the configured write timeout. A failed
// write drops the connection.
func (s *Server) withWriteDeadline(c *Connection, write func() error) {
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	if err := write(); err != nil {
		log.Printf("ws: control write failed conn=%s: %v", c.ID, err)
		s.RemoveConnection(c)
	}
}

func (s *Server) maxFrameSize() int64 {
	if s.config.MaxFrameSize > 0 {
		return s.config.MaxFrameSize
	}
	return DefaultMaxFrameSize
}

// RemoveConnection unregisters and closes c. Concurrent removals of the same
// connection are harmless.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)
	if !s.conns.Remove(c.ID) {
		return
	}
	metrics.GatewayConnections.Dec()
	log.Printf("ws: connection closed conn=%s (total=%d)", c.ID, s.conns.Count())
}

// Reply writes data to c under the configured write timeout.
func (s *Server) Reply(c *Connection, data []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
		defer c.Conn.SetWriteDeadline(time.Time{})
	}
	return c.WriteMessage(data)
}

// Connections returns the connection registry.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops accepting connections, closes the open ones and releases
// the readiness loop.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down gateway...")
	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Printf("ws: http shutdown error: %v", err)
		}
	}

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}
	if s.epoll != nil {
		_ = s.epoll.Close()
	}

	log.Printf("ws: gateway stopped")
	return nil
}

// isEINTR reports an interrupted system call, which is retried.
func isEINTR(err error) bool {
	return errors.Is(err, syscall.EINTR)
}
