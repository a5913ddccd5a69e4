package hub

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fiar-dev/fiar/pkg/auth"
)

// generateConnID generates a cryptographically random connection ID.
func generateConnID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// Conn is one WebSocket connection. Writes are serialized by a mutex
// so the channel broadcast path and direct sends never interleave
// frames.
type Conn struct {
	id       string
	identity auth.Identity
	ws       *websocket.Conn

	writeTimeout time.Duration

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConn(ws *websocket.Conn, identity auth.Identity, writeTimeout time.Duration) *Conn {
	return &Conn{
		id:           generateConnID(),
		identity:     identity,
		ws:           ws,
		writeTimeout: writeTimeout,
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() string { return c.id }

// Identity returns the authenticated identity behind the connection.
func (c *Conn) Identity() auth.Identity { return c.identity }

// Send writes one text frame under a write deadline.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("hub: write frame: %w", err)
	}
	return nil
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	c.ws.SetWriteDeadline(deadline)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}
