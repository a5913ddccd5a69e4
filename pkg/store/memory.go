package store

import (
	"context"
	"sync"
	"time"
)

// MemStore is an in-memory GameStore. It backs tests and single-run
// tooling; production deployments use SQLStore.
type MemStore struct {
	mu         sync.Mutex
	nextID     int64
	games      map[int64]*memGame
	challenges []memChallenge
	closed     bool
}

type memGame struct {
	seatOneUserID string
	seatTwoUserID string
	result        Result
	moves         []Move
}

type memChallenge struct {
	fromUserID string
	toUserID   string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{games: make(map[int64]*memGame)}
}

// CreateGame persists a new unresolved game and returns its id.
func (m *MemStore) CreateGame(ctx context.Context, seatOneUserID, seatTwoUserID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	m.nextID++
	m.games[m.nextID] = &memGame{
		seatOneUserID: seatOneUserID,
		seatTwoUserID: seatTwoUserID,
	}
	return m.nextID, nil
}

// AppendMove records a placement with the next ordinal.
func (m *MemStore) AppendMove(ctx context.Context, gameID int64, userID string, row, col int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	g, ok := m.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	g.moves = append(g.moves, Move{
		GameID:   gameID,
		Ordinal:  len(g.moves) + 1,
		UserID:   userID,
		Row:      row,
		Col:      col,
		PlayedAt: time.Now().UTC(),
	})
	return nil
}

// FinalizeResult records the game's outcome.
func (m *MemStore) FinalizeResult(ctx context.Context, gameID int64, result Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	g, ok := m.games[gameID]
	if !ok {
		return ErrGameNotFound
	}
	g.result = result
	return nil
}

// HasUnresolvedGame reports whether the user holds a seat in a game
// without a result.
func (m *MemStore) HasUnresolvedGame(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	for _, g := range m.games {
		if g.result != ResultNone {
			continue
		}
		if g.seatOneUserID == userID || g.seatTwoUserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// DeleteUnresolvedGame removes the game and its moves while no result
// is recorded.
func (m *MemStore) DeleteUnresolvedGame(ctx context.Context, gameID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	g, ok := m.games[gameID]
	if ok && g.result == ResultNone {
		delete(m.games, gameID)
	}
	return nil
}

// PruneChallenges removes pending challenges between the two users.
func (m *MemStore) PruneChallenges(ctx context.Context, userA, userB string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	kept := m.challenges[:0]
	for _, c := range m.challenges {
		between := (c.fromUserID == userA && c.toUserID == userB) ||
			(c.fromUserID == userB && c.toUserID == userA)
		if !between {
			kept = append(kept, c)
		}
	}
	m.challenges = kept
	return nil
}

// AddChallenge records a pending challenge request.
func (m *MemStore) AddChallenge(ctx context.Context, fromUserID, toUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.challenges = append(m.challenges, memChallenge{fromUserID: fromUserID, toUserID: toUserID})
	return nil
}

// ChallengeCount returns the number of pending challenges.
func (m *MemStore) ChallengeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.challenges)
}

// Result returns the recorded outcome for a game.
func (m *MemStore) Result(gameID int64) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[gameID]
	if !ok {
		return ResultNone, false
	}
	return g.result, true
}

// Moves returns the move history in ordinal order.
func (m *MemStore) Moves(ctx context.Context, gameID int64) ([]Move, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	g, ok := m.games[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	out := make([]Move, len(g.moves))
	copy(out, g.moves)
	return out, nil
}

// Close marks the store closed; subsequent operations fail with
// ErrClosed.
func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
