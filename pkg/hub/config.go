package hub

import "time"

// Config holds gateway tuning knobs.
type Config struct {
	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64

	// WriteTimeout bounds every outbound frame write.
	WriteTimeout time.Duration

	// PersistTimeout bounds persistence calls made while handling a
	// move.
	PersistTimeout time.Duration

	// ConnectTimeout bounds the connect handshake work dispatched to a
	// game's event loop.
	ConnectTimeout time.Duration

	// MaxChatLength truncates chat lines beyond this rune count.
	MaxChatLength int

	// CheckOrigin overrides the upgrader's origin check. Nil accepts
	// all origins; same-origin enforcement belongs to the proxy layer.
	CheckOrigin func(origin string) bool
}

// DefaultConfig returns the default gateway configuration.
func DefaultConfig() *Config {
	return &Config{
		ReadLimit:      4 * 1024,
		WriteTimeout:   10 * time.Second,
		PersistTimeout: 5 * time.Second,
		ConnectTimeout: 10 * time.Second,
		MaxChatLength:  500,
	}
}
