package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn wraps a WebSocket connection with serialized writes. gorilla's
// connections allow only one concurrent writer, but relay frames for a
// device originate from its read loop, the ping ticker, and any number
// of command-surface goroutines.
type Conn struct {
	mu           sync.Mutex
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func newConn(ws *websocket.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// Send writes frame as a JSON text message. Implements Channel.
func (c *Conn) Send(frame any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(frame)
}

// Ping sends a WebSocket ping control frame.
func (c *Conn) Ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	return c.ws.Close()
}
