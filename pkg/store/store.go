// Package store persists games, their move history, and pending
// challenge requests. The live game engine only touches storage
// through the GameStore interface; implementations must be safe for
// concurrent use.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by GameStore implementations.
var (
	// ErrGameNotFound is returned when an operation references a game
	// id that has no persisted record.
	ErrGameNotFound = errors.New("store: game not found")

	// ErrClosed is returned when operations are attempted on a closed
	// store.
	ErrClosed = errors.New("store: store is closed")
)

// Result is the recorded outcome of a game. A game with ResultNone is
// unresolved and blocks its players from starting another game.
type Result int

const (
	ResultNone Result = iota
	ResultDraw
	ResultSeatOneWon
	ResultSeatTwoWon
)

func (r Result) String() string {
	switch r {
	case ResultNone:
		return "none"
	case ResultDraw:
		return "draw"
	case ResultSeatOneWon:
		return "seat one won"
	case ResultSeatTwoWon:
		return "seat two won"
	default:
		return "unknown"
	}
}

// Move is one persisted placement. Ordinal numbers moves within a game
// starting at 1; Row and Col are the coordinates of the click as the
// player saw the board at the time.
type Move struct {
	GameID   int64
	Ordinal  int
	UserID   string
	Row      int
	Col      int
	PlayedAt time.Time
}

// GameStore is the persistence collaborator for the session registry
// and gateway.
type GameStore interface {
	// CreateGame persists a new unresolved game between the two users
	// and returns its assigned identifier.
	CreateGame(ctx context.Context, seatOneUserID, seatTwoUserID string) (int64, error)

	// AppendMove records a placement for the game. Ordinals are
	// assigned by the store in insertion order.
	AppendMove(ctx context.Context, gameID int64, userID string, row, col int) error

	// FinalizeResult records the game's outcome. Returns
	// ErrGameNotFound if no such game exists.
	FinalizeResult(ctx context.Context, gameID int64, result Result) error

	// HasUnresolvedGame reports whether the user participates in any
	// game without a recorded result.
	HasUnresolvedGame(ctx context.Context, userID string) (bool, error)

	// DeleteUnresolvedGame removes a game record and its moves, but
	// only while the game has no recorded result. Deleting a missing
	// or already resolved game is not an error.
	DeleteUnresolvedGame(ctx context.Context, gameID int64) error

	// PruneChallenges removes pending challenge requests between the
	// two users, in either direction.
	PruneChallenges(ctx context.Context, userA, userB string) error

	// Moves returns the game's move history in ordinal order.
	Moves(ctx context.Context, gameID int64) ([]Move, error)

	// Close releases any resources held by the store.
	Close() error
}
