package store

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLStore is a SQLite-backed GameStore over database/sql.
type SQLStore struct {
	db *sql.DB

	mu     sync.Mutex
	closed bool
}

// Open opens (or creates) a SQLite database at path and bootstraps the
// schema.
func Open(path string) (*SQLStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is required")
	}

	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}

	s := NewSQLStore(db)
	if err := s.CreateTables(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLStore wraps an already opened database handle. The caller is
// responsible for schema bootstrap via CreateTables.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// CreateTables creates the games, moves, and challenges tables if they
// do not exist yet.
func (s *SQLStore) CreateTables(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS games (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seat_one_user_id TEXT NOT NULL,
			seat_two_user_id TEXT NOT NULL,
			result INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_games_unresolved
			ON games(seat_one_user_id, seat_two_user_id) WHERE result = 0;

		CREATE TABLE IF NOT EXISTS moves (
			game_id INTEGER NOT NULL,
			ordinal INTEGER NOT NULL,
			user_id TEXT NOT NULL,
			row INTEGER NOT NULL,
			col INTEGER NOT NULL,
			played_at INTEGER NOT NULL,
			PRIMARY KEY (game_id, ordinal)
		);

		CREATE TABLE IF NOT EXISTS challenges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_user_id TEXT NOT NULL,
			to_user_id TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`
	if err := s.guard(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: create tables: %w", err)
	}
	return nil
}

func (s *SQLStore) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// CreateGame persists a new unresolved game and returns its row id.
func (s *SQLStore) CreateGame(ctx context.Context, seatOneUserID, seatTwoUserID string) (int64, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO games (seat_one_user_id, seat_two_user_id, created_at) VALUES (?, ?, ?)`,
		seatOneUserID, seatTwoUserID, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: create game: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: create game id: %w", err)
	}
	return id, nil
}

// AppendMove records a placement, assigning the next ordinal for the
// game.
func (s *SQLStore) AppendMove(ctx context.Context, gameID int64, userID string, row, col int) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moves (game_id, ordinal, user_id, row, col, played_at)
		SELECT ?, COALESCE(MAX(ordinal), 0) + 1, ?, ?, ?, ?
		FROM moves WHERE game_id = ?`,
		gameID, userID, row, col, time.Now().Unix(), gameID)
	if err != nil {
		return fmt.Errorf("store: append move: %w", err)
	}
	return nil
}

// FinalizeResult records the outcome for an existing game.
func (s *SQLStore) FinalizeResult(ctx context.Context, gameID int64, result Result) error {
	if err := s.guard(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE games SET result = ? WHERE id = ?`, int(result), gameID)
	if err != nil {
		return fmt.Errorf("store: finalize result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: finalize result: %w", err)
	}
	if n == 0 {
		return ErrGameNotFound
	}
	return nil
}

// HasUnresolvedGame reports whether the user holds a seat in any game
// without a recorded result.
func (s *SQLStore) HasUnresolvedGame(ctx context.Context, userID string) (bool, error) {
	if err := s.guard(); err != nil {
		return false, err
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM games
			WHERE result = 0 AND (seat_one_user_id = ? OR seat_two_user_id = ?)
		)`, userID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: unresolved game lookup: %w", err)
	}
	return exists, nil
}

// DeleteUnresolvedGame removes the game and its moves while the game
// has no recorded result.
func (s *SQLStore) DeleteUnresolvedGame(ctx context.Context, gameID int64) error {
	if err := s.guard(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM games WHERE id = ? AND result = 0`, gameID)
	if err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	if n > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM moves WHERE game_id = ?`, gameID); err != nil {
			return fmt.Errorf("store: delete game moves: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: delete game: %w", err)
	}
	return nil
}

// PruneChallenges removes pending challenges between the two users in
// either direction.
func (s *SQLStore) PruneChallenges(ctx context.Context, userA, userB string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM challenges
		WHERE (from_user_id = ? AND to_user_id = ?)
		   OR (from_user_id = ? AND to_user_id = ?)`,
		userA, userB, userB, userA)
	if err != nil {
		return fmt.Errorf("store: prune challenges: %w", err)
	}
	return nil
}

// AddChallenge records a pending challenge request. The web frontend
// owns the challenge flow; this entry point exists for seeding and
// operational tooling.
func (s *SQLStore) AddChallenge(ctx context.Context, fromUserID, toUserID string) error {
	if err := s.guard(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO challenges (from_user_id, to_user_id, created_at) VALUES (?, ?, ?)`,
		fromUserID, toUserID, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: add challenge: %w", err)
	}
	return nil
}

// ChallengeCount returns the number of pending challenge requests.
func (s *SQLStore) ChallengeCount(ctx context.Context) (int, error) {
	if err := s.guard(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM challenges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count challenges: %w", err)
	}
	return n, nil
}

// Moves returns the game's move history ordered by ordinal.
func (s *SQLStore) Moves(ctx context.Context, gameID int64) ([]Move, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT game_id, ordinal, user_id, row, col, played_at
		FROM moves WHERE game_id = ? ORDER BY ordinal`, gameID)
	if err != nil {
		return nil, fmt.Errorf("store: load moves: %w", err)
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		var m Move
		var playedAt int64
		if err := rows.Scan(&m.GameID, &m.Ordinal, &m.UserID, &m.Row, &m.Col, &playedAt); err != nil {
			return nil, fmt.Errorf("store: scan move: %w", err)
		}
		m.PlayedAt = time.Unix(playedAt, 0).UTC()
		moves = append(moves, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load moves: %w", err)
	}
	return moves, nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
