package hub

import (
	"log/slog"
	"sync"
)

// Channel is the broadcast group for one game. Every frame sent to the
// channel reaches all joined connections.
type Channel struct {
	gameID int64
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func newChannel(gameID int64, logger *slog.Logger) *Channel {
	return &Channel{
		gameID: gameID,
		logger: logger.With("game_id", gameID),
		conns:  make(map[string]*Conn),
	}
}

// Join adds a connection to the group.
func (ch *Channel) Join(c *Conn) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.conns[c.ID()] = c
}

// Leave removes a connection from the group.
func (ch *Channel) Leave(c *Conn) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.conns, c.ID())
}

// Len returns the number of joined connections.
func (ch *Channel) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.conns)
}

// Broadcast sends one frame to every joined connection. Write failures
// are logged and do not stop delivery to the rest of the group.
func (ch *Channel) Broadcast(data []byte) {
	ch.mu.Lock()
	conns := make([]*Conn, 0, len(ch.conns))
	for _, c := range ch.conns {
		conns = append(conns, c)
	}
	ch.mu.Unlock()

	for _, c := range conns {
		if err := c.Send(data); err != nil {
			ch.logger.Warn("broadcast write failed",
				"conn_id", c.ID(), "error", err)
		}
	}
}
