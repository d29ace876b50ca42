package service

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the registry's view of one client connection. The transport
// owns the underlying socket; the registry only holds a reference.
type Conn interface {
	WriteJSON(payload any) error
	Close() error
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewWSConn wraps a websocket connection with a write mutex so concurrent
// broadcasts never interleave frames.
func NewWSConn(conn *websocket.Conn) Conn {
	return &wsConn{conn: conn}
}

func (c *wsConn) WriteJSON(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(payload)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
