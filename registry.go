package rconkit

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alexj212/rconkit/safemap"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Socket is the transport handle of one client. *websocket.Conn satisfies it.
// WriteMessage and SetWriteDeadline are only ever called by one goroutine at
// a time; WriteControl and Close may be called concurrently with them.
type Socket interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

const (
	// CloseNormal is the close code sent on shutdown and admin disconnects.
	CloseNormal = websocket.CloseNormalClosure

	// DefaultWriteWait bounds a single message write to a client.
	DefaultWriteWait = 10 * time.Second

	closeWriteWait    = time.Second
	reasonWriteFailed = "Write failed"
)

// Connection is the per-client session state kept by the Registry.
type Connection struct {
	ID        uuid.UUID
	Remote    string
	CreatedAt time.Time

	sock      Socket
	writeWait time.Duration
	open      atomic.Bool
	writeMu   sync.Mutex

	mu             sync.Mutex
	authenticated  bool
	failedAttempts int
}

func newConnection(sock Socket, writeWait time.Duration) *Connection {
	c := &Connection{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
		sock:      sock,
		writeWait: writeWait,
	}
	if addr := sock.RemoteAddr(); addr != nil {
		c.Remote = addr.String()
	}
	c.open.Store(true)
	return c
}

// Socket returns the transport handle.
func (c *Connection) Socket() Socket {
	return c.sock
}

// IsOpen reports the transport state.
func (c *Connection) IsOpen() bool {
	return c.open.Load()
}

// Send writes one message, serialising writers on this connection. A write
// that fails or misses the write deadline closes the connection.
func (c *Connection) Send(messageType int, data []byte) error {
	if !c.IsOpen() {
		return NewRconError(KindTransport, "send", "connection closed", nil)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.sock.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		_ = c.Close(websocket.CloseGoingAway, reasonWriteFailed)
		return NewRconError(KindTransport, "send", "set write deadline", err)
	}
	if err := c.sock.WriteMessage(messageType, data); err != nil {
		_ = c.Close(websocket.CloseGoingAway, reasonWriteFailed)
		return NewRconError(KindTransport, "send", "write failed", err)
	}
	return nil
}

// Close sends a close frame with code and reason, then tears the socket down.
// Closing an already closed connection is a no-op.
func (c *Connection) Close(code int, reason string) error {
	if !c.open.CompareAndSwap(true, false) {
		return nil
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = c.sock.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return c.sock.Close()
}

func (c *Connection) markClosed() {
	c.open.Store(false)
}

// Registry tracks every live connection keyed by its Socket.
type Registry struct {
	conns     *safemap.SafeMap[Socket, *Connection]
	writeWait atomic.Int64
	log       *zap.SugaredLogger
}

func NewRegistry(log *zap.SugaredLogger) *Registry {
	r := &Registry{
		conns: safemap.New[Socket, *Connection](),
		log:   orNop(log),
	}
	r.writeWait.Store(int64(DefaultWriteWait))
	return r
}

// SetWriteWait changes the write deadline for connections registered from
// now on. Non-positive values restore DefaultWriteWait.
func (r *Registry) SetWriteWait(d time.Duration) {
	if d <= 0 {
		d = DefaultWriteWait
	}
	r.writeWait.Store(int64(d))
}

// GetOrCreate returns the record for sock, creating an unauthenticated one
// the first time the handle is seen.
func (r *Registry) GetOrCreate(sock Socket) *Connection {
	conn, created := r.conns.GetOrCreate(sock, func() *Connection {
		return newConnection(sock, time.Duration(r.writeWait.Load()))
	})
	if created {
		r.log.Debugw("connection registered", "conn", conn.ID, "remote", conn.Remote)
	}
	return conn
}

func (r *Registry) Get(sock Socket) (*Connection, bool) {
	return r.conns.Get(sock)
}

// Remove drops the record for sock, marking it closed.
func (r *Registry) Remove(sock Socket) {
	if conn, ok := r.conns.Get(sock); ok {
		conn.markClosed()
	}
	if r.conns.Delete(sock) {
		r.log.Debugw("connection removed", "remote", addrString(sock))
	}
}

// CloseAll closes every open connection with code and reason, then empties
// the registry. It returns how many connections were closed.
func (r *Registry) CloseAll(code int, reason string) int {
	closed := 0
	for _, conn := range r.conns.Drain() {
		if !conn.IsOpen() {
			continue
		}
		if err := conn.Close(code, reason); err != nil {
			r.log.Debugw("close failed", "conn", conn.ID, "error", err)
		}
		r.log.Infow("closing websocket connection", "conn", conn.ID, "remote", conn.Remote, "reason", reason)
		closed++
	}
	return closed
}

func (r *Registry) Len() int {
	return r.conns.Len()
}

// Snapshot returns the current connections in no particular order.
func (r *Registry) Snapshot() []*Connection {
	return r.conns.Values()
}

func addrString(sock Socket) string {
	if addr := sock.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
