package game

import "fmt"

// Board dimension limits. A fresh board starts at the initial size and
// grows toward the cap as play approaches an edge.
const (
	InitialRows = 15
	InitialCols = 15
	MaxRows     = 75
	MaxCols     = 75

	// ChainToWin is the run length that wins the game.
	ChainToWin = 5
)

// Seat identifies one of the two fixed roles in a game.
// Spectator exists on the wire for future use but is never a valid
// participant seat.
type Seat uint8

const (
	Spectator Seat = iota
	SeatOne
	SeatTwo
)

// String returns the seat name for logs and wire messages.
func (s Seat) String() string {
	switch s {
	case SeatOne:
		return "seat_one"
	case SeatTwo:
		return "seat_two"
	case Spectator:
		return "spectator"
	default:
		return fmt.Sprintf("seat(%d)", uint8(s))
	}
}

// Opponent returns the other playing seat.
// It panics for Spectator, which never holds a turn.
func (s Seat) Opponent() Seat {
	switch s {
	case SeatOne:
		return SeatTwo
	case SeatTwo:
		return SeatOne
	default:
		panic("game: spectator has no opponent")
	}
}

// Color returns the display color associated with a seat.
// The mapping is fixed: SeatOne is blue, SeatTwo is red.
func (s Seat) Color() string {
	if s == SeatTwo {
		return "ff0000"
	}
	return "0000ff"
}

// Cell is the state of one board position. Winning cells are distinct
// tagged states rather than an offset over the mark values, so code can
// never conjure a "winning" cell by arithmetic.
type Cell uint8

const (
	Empty Cell = iota
	SeatOneMark
	SeatTwoMark
	SeatOneWin
	SeatTwoWin
)

// Mark returns the base mark cell for a seat.
func Mark(s Seat) Cell {
	if s == SeatTwo {
		return SeatTwoMark
	}
	return SeatOneMark
}

// WinningMark returns the highlighted win variant for a seat.
func WinningMark(s Seat) Cell {
	if s == SeatTwo {
		return SeatTwoWin
	}
	return SeatOneWin
}

// String returns the cell name for logs and debugging.
func (c Cell) String() string {
	switch c {
	case Empty:
		return "empty"
	case SeatOneMark:
		return "seat_one"
	case SeatTwoMark:
		return "seat_two"
	case SeatOneWin:
		return "seat_one_win"
	case SeatTwoWin:
		return "seat_two_win"
	default:
		return fmt.Sprintf("cell(%d)", uint8(c))
	}
}
