package game

import (
	"errors"
	"fmt"
)

// Session state errors.
var (
	ErrSeatsUnbound  = errors.New("game: both seats must be bound")
	ErrSeatTaken     = errors.New("game: seat already bound")
	ErrUnknownPlayer = errors.New("game: user does not own a seat in this game")
)

// Session is the authoritative state of one game: the board, the two
// seats, and the turn pointer. It performs no synchronization of its
// own; callers must serialize mutation (the hub runs every session on a
// single-threaded dispatch loop).
type Session struct {
	// ID is the persisted game identifier, assigned by the registry
	// once the game record exists in storage.
	ID int64

	seatOneUserID string
	seatTwoUserID string

	seatOne *Participant
	seatTwo *Participant

	current    *Participant
	inProgress bool

	board Board
}

// NewSession creates a session for two user identifiers with an empty
// board of the initial size. Seats are fixed at creation; participants
// bind lazily as each side connects.
func NewSession(seatOneUserID, seatTwoUserID string) *Session {
	return &Session{
		seatOneUserID: seatOneUserID,
		seatTwoUserID: seatTwoUserID,
		board:         NewBoard(InitialRows, InitialCols),
	}
}

// SeatOneUserID returns the user owning the first seat.
func (s *Session) SeatOneUserID() string { return s.seatOneUserID }

// SeatTwoUserID returns the user owning the second seat.
func (s *Session) SeatTwoUserID() string { return s.seatTwoUserID }

// SeatFor returns the seat a user owns in this game, if any.
func (s *Session) SeatFor(userID string) (Seat, bool) {
	switch userID {
	case s.seatOneUserID:
		return SeatOne, true
	case s.seatTwoUserID:
		return SeatTwo, true
	default:
		return Spectator, false
	}
}

// Bind attaches a connected participant to the seat their user owns.
// The seat must match the creation-time ownership and must not already
// be bound; there is no reconnect semantic.
func (s *Session) Bind(p *Participant) error {
	seat, ok := s.SeatFor(p.UserID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlayer, p.UserID)
	}
	if seat != p.Seat {
		return fmt.Errorf("%w: user %s owns %s", ErrInvalidSeat, p.UserID, seat)
	}
	switch seat {
	case SeatOne:
		if s.seatOne != nil {
			return ErrSeatTaken
		}
		s.seatOne = p
	case SeatTwo:
		if s.seatTwo != nil {
			return ErrSeatTaken
		}
		s.seatTwo = p
	}
	return nil
}

// Participant returns the participant bound to a seat, or nil.
func (s *Session) Participant(seat Seat) *Participant {
	switch seat {
	case SeatOne:
		return s.seatOne
	case SeatTwo:
		return s.seatTwo
	default:
		return nil
	}
}

// ParticipantByConn returns the bound participant carried by the given
// connection, or nil.
func (s *Session) ParticipantByConn(connID string) *Participant {
	if s.seatOne != nil && s.seatOne.ConnID == connID {
		return s.seatOne
	}
	if s.seatTwo != nil && s.seatTwo.ConnID == connID {
		return s.seatTwo
	}
	return nil
}

// HasConn reports whether the connection belongs to this game.
func (s *Session) HasConn(connID string) bool {
	return s.ParticipantByConn(connID) != nil
}

// Bound reports whether both seats are bound.
func (s *Session) Bound() bool {
	return s.seatOne != nil && s.seatTwo != nil
}

// InProgress reports whether the game has started.
func (s *Session) InProgress() bool { return s.inProgress }

// CurrentTurn returns the participant holding the turn, or nil before
// the game starts.
func (s *Session) CurrentTurn() *Participant { return s.current }

// Start begins play once both seats are bound: the game becomes
// in-progress and the opening turn goes to the first seat.
func (s *Session) Start() error {
	if !s.Bound() {
		return ErrSeatsUnbound
	}
	s.inProgress = true
	s.current = s.seatOne
	return nil
}

// TryPlace marks (row, col) with the current participant's seat mark if
// the cell is empty. It reports whether the cell was taken; an occupied
// cell leaves the board untouched. Out-of-range coordinates are a
// programmer error and panic.
func (s *Session) TryPlace(row, col int) bool {
	if s.board[row][col] != Empty {
		return false
	}
	s.board[row][col] = Mark(s.current.Seat)
	return true
}

// ClearCell reverts a cell to empty. Used to undo a placement whose
// persistence failed, keeping board and move log in sync.
func (s *Session) ClearCell(row, col int) {
	s.board[row][col] = Empty
}

// AdvanceTurn moves the turn pointer to the other participant. From a
// nil pointer it assigns SeatTwo; this bootstrap quirk is preserved
// from the original game for behavioral parity (Start is the normal
// path and opens with SeatOne).
func (s *Session) AdvanceTurn() error {
	if !s.Bound() {
		return ErrSeatsUnbound
	}
	if s.current == nil || s.current.UserID == s.seatOne.UserID {
		s.current = s.seatTwo
	} else {
		s.current = s.seatOne
	}
	return nil
}

// TryGrow extends the board when the just-played cell sits within
// ChainToWin-1 cells of an edge, each edge evaluated independently and
// capped at MaxRows×MaxCols. Existing contents keep their relative
// positions. It reports whether any edge grew.
func (s *Session) TryGrow(row, col int) bool {
	_, grew := s.board.grow(row, col)
	return grew
}

// victoryAxes lists the scan directions in fixed evaluation order:
// horizontal, vertical, then the two diagonals. Each entry is the
// forward unit step; the run start is found by walking backward.
var victoryAxes = [4][2]int{
	{0, 1},  // horizontal
	{1, 0},  // vertical
	{1, 1},  // diagonal, top-left to bottom-right
	{-1, 1}, // diagonal, bottom-left to top-right
}

// CheckVictory examines the cell just played. For each axis it walks
// outward up to ChainToWin-1 steps in both directions, stopping at a
// boundary or a differing mark. The first axis with a run of at least
// ChainToWin cells wins: exactly ChainToWin cells from the run start
// are re-marked with the seat's win variant and evaluation stops.
func (s *Session) CheckVictory(row, col int) bool {
	mark := s.board[row][col]

	for _, axis := range victoryAxes {
		dr, dc := axis[0], axis[1]

		back := s.runLength(row, col, -dr, -dc, mark)
		fwd := s.runLength(row, col, dr, dc, mark)

		if back+fwd+1 < ChainToWin {
			continue
		}

		win := WinningMark(s.current.Seat)
		r, c := row-back*dr, col-back*dc
		for k := 0; k < ChainToWin; k++ {
			s.board[r+k*dr][c+k*dc] = win
		}
		return true
	}
	return false
}

// runLength counts consecutive cells matching mark from (row, col)
// exclusive, stepping by (dr, dc), up to ChainToWin-1 cells.
func (s *Session) runLength(row, col, dr, dc int, mark Cell) int {
	rows, cols := s.board.Rows(), s.board.Cols()
	n := 0
	for k := 1; k < ChainToWin; k++ {
		r, c := row+k*dr, col+k*dc
		if r < 0 || r >= rows || c < 0 || c >= cols {
			break
		}
		if s.board[r][c] != mark {
			break
		}
		n++
	}
	return n
}

// Board returns the live board. Callers outside the session's dispatch
// loop must use BoardSnapshot instead.
func (s *Session) Board() Board { return s.board }

// BoardSnapshot returns a copy of the board safe for broadcasting.
func (s *Session) BoardSnapshot() Board { return s.board.Snapshot() }

// RestoreBoard replaces the board with a previously taken snapshot.
// Rolls back a placement whose outcome could not be persisted.
func (s *Session) RestoreBoard(b Board) { s.board = b }

// Full reports whether the board has no empty cells left.
func (s *Session) Full() bool { return s.board.Full() }
