// Package registry owns the lifetime of live game sessions and their
// persisted mirror. It is the only component allowed to create, look
// up, or destroy sessions.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fiar-dev/fiar/pkg/game"
	"github.com/fiar-dev/fiar/pkg/store"
)

// Config holds registry tuning knobs.
type Config struct {
	// PersistTimeout bounds every persistence call made on behalf of
	// registry operations.
	PersistTimeout time.Duration

	// DispatchQueueSize is the per-game event queue capacity.
	DispatchQueueSize int
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() *Config {
	return &Config{
		PersistTimeout:    5 * time.Second,
		DispatchQueueSize: 64,
	}
}

// Registry is a concurrency-safe directory of live games. A game is
// admitted only after its record has been persisted, so the in-memory
// set never holds a session absent from storage.
type Registry struct {
	mu    sync.Mutex
	games map[int64]*Game

	store  store.GameStore
	config *Config
	logger *slog.Logger
}

// New creates an empty registry backed by st.
func New(st store.GameStore, config *Config, logger *slog.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		games:  make(map[int64]*Game),
		store:  st,
		config: config,
		logger: logger.With("component", "registry"),
	}
}

// Add pairs two users into a new game. It refuses, returning false,
// when either user already participates in an unresolved persisted
// game. The game record is persisted first; only on success is the
// session admitted into the in-memory set under the persisted id.
func (r *Registry) Add(ctx context.Context, seatOneUserID, seatTwoUserID string) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seatOneUserID == seatTwoUserID {
		r.logger.Warn("refusing game against oneself", "user_id", seatOneUserID)
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.PersistTimeout)
	defer cancel()

	for _, userID := range []string{seatOneUserID, seatTwoUserID} {
		busy, err := r.store.HasUnresolvedGame(ctx, userID)
		if err != nil {
			r.logger.Error("unresolved game lookup failed",
				"user_id", userID, "error", err)
			return nil, false
		}
		if busy {
			r.logger.Warn("user already in an unresolved game",
				"user_id", userID)
			return nil, false
		}
	}

	id, err := r.store.CreateGame(ctx, seatOneUserID, seatTwoUserID)
	if err != nil {
		r.logger.Error("persisting new game failed",
			"seat_one", seatOneUserID, "seat_two", seatTwoUserID, "error", err)
		return nil, false
	}

	session := game.NewSession(seatOneUserID, seatTwoUserID)
	session.ID = id
	g := newGame(id, session, r.config.DispatchQueueSize, r.logger)
	r.games[id] = g

	r.logger.Info("game added",
		"game_id", id, "seat_one", seatOneUserID, "seat_two", seatTwoUserID)
	return g, true
}

// Find returns the live game with the given id.
func (r *Registry) Find(id int64) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.games[id]
	return g, ok
}

// FindByUser returns the live game in which the user owns a seat.
func (r *Registry) FindByUser(userID string) (*Game, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, g := range r.games {
		if g.SeatOneUserID() == userID || g.SeatTwoUserID() == userID {
			return g, true
		}
	}
	return nil, false
}

// Remove destroys a live game. If the game was resolved (a result was
// finalized elsewhere) the persisted record is kept and only pending
// re-challenge requests between the two players are pruned; otherwise
// the unresolved record and its moves are deleted. The handle's event
// loop is stopped, so stale dispatches fail with ErrGameClosed.
func (r *Registry) Remove(ctx context.Context, g *Game, resolved bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.games[g.ID()]; !ok {
		r.logger.Warn("removing a game absent from the registry",
			"game_id", g.ID())
	} else {
		delete(r.games, g.ID())
	}
	g.stop()

	ctx, cancel := context.WithTimeout(ctx, r.config.PersistTimeout)
	defer cancel()

	if resolved {
		if err := r.store.PruneChallenges(ctx, g.SeatOneUserID(), g.SeatTwoUserID()); err != nil {
			r.logger.Error("pruning challenges failed",
				"game_id", g.ID(), "error", err)
		}
	} else {
		if err := r.store.DeleteUnresolvedGame(ctx, g.ID()); err != nil {
			r.logger.Error("deleting unresolved game failed",
				"game_id", g.ID(), "error", err)
		}
	}

	r.logger.Info("game removed", "game_id", g.ID(), "resolved", resolved)
}

// Len returns the number of live games.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}
