package hub

import "errors"

// Gateway errors.
var (
	// ErrConnClosed is returned when writing to a closed connection.
	ErrConnClosed = errors.New("hub: connection is closed")

	// ErrNoGame is returned when a connecting user owns no seat in any
	// live game.
	ErrNoGame = errors.New("hub: no live game for user")
)
