// Package archive exports finished-game replays to object storage.
// Archival is best effort; failures never affect the live game flow.
package archive

import (
	"context"
	"time"

	"github.com/fiar-dev/fiar/pkg/store"
)

// Replay is the exported record of a finished game.
type Replay struct {
	GameID        int64        `json:"game_id"`
	SeatOneUserID string       `json:"seat_one_user_id"`
	SeatTwoUserID string       `json:"seat_two_user_id"`
	Result        string       `json:"result"`
	Moves         []store.Move `json:"moves"`
	FinishedAt    time.Time    `json:"finished_at"`
}

// Archiver persists finished-game replays.
type Archiver interface {
	Archive(ctx context.Context, replay Replay) error
}

// Nop discards replays. It is the default when no bucket is
// configured.
type Nop struct{}

func (Nop) Archive(context.Context, Replay) error { return nil }
