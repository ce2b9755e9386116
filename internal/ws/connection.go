package ws

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Connection is one runtime connection to the gateway.
type Connection struct {
	ID         string       // connection ID (UUID)
	Conn       net.Conn     // underlying TCP connection
	CreatedAt  time.Time    // when the connection was established
	lastSeen   atomic.Int64 // UnixNano of the last frame received from the runtime
	writeMu    sync.Mutex   // serializes writes to this connection
	processing int32        // atomic flag: 0 = idle, 1 = being read by handleConn
}

// Touch records that a frame arrived at t. Workers call it while the
// heartbeat reads LastSeen concurrently.
func (c *Connection) Touch(t time.Time) {
	c.lastSeen.Store(t.UnixNano())
}

// LastSeen returns when the last frame arrived.
func (c *Connection) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// WriteMessage sends a text frame. Concurrent callers are serialized so
// frames never interleave.
func (c *Connection) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return wsutil.WriteServerMessage(c.Conn, ws.OpText, data)
}

// WritePing sends a protocol-level ping frame (opcode 0x9).
func (c *Connection) WritePing() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPingFrame(nil))
}

// WritePong answers a runtime ping, echoing its payload.
func (c *Connection) WritePong(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewPongFrame(payload))
}

// WriteClose sends a close frame with the given status and reason.
func (c *Connection) WriteClose(code ws.StatusCode, reason string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteFrame(c.Conn, ws.NewCloseFrame(ws.NewCloseFrameBody(code, reason)))
}

// Close closes the underlying network connection.
func (c *Connection) Close() error {
	return c.Conn.Close()
}

// ConnectionManager is a registry of open connections, indexed by ID and by
// the net.Conn the readiness loop reports.
type ConnectionManager struct {
	mu     sync.RWMutex
	byID   map[string]*Connection
	byConn map[net.Conn]*Connection
}

// NewConnectionManager creates an empty ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID:   make(map[string]*Connection),
		byConn: make(map[net.Conn]*Connection),
	}
}

// Add registers a connection.
func (cm *ConnectionManager) Add(c *Connection) {
	cm.mu.Lock()
	cm.byID[c.ID] = c
	cm.byConn[c.Conn] = c
	cm.mu.Unlock()
}

// Remove unregisters and closes the connection with the given ID. It
// returns false if the connection was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	c, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
		delete(cm.byConn, c.Conn)
	}
	cm.mu.Unlock()

	if ok {
		c.Close()
	}
	return ok
}

// Get returns the connection with the given ID, or nil.
func (cm *ConnectionManager) Get(id string) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byID[id]
}

// GetByConn returns the connection wrapping nc, or nil.
func (cm *ConnectionManager) GetByConn(nc net.Conn) *Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.byConn[nc]
}

// Count returns the number of open connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.byID)
}

// All returns a snapshot of the open connections.
func (cm *ConnectionManager) All() []*Connection {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.byID))
	for _, c := range cm.byID {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()
	return conns
}
