package game

import (
	"errors"
	"fmt"
)

// ErrInvalidSeat is returned when a participant is constructed for a
// seat that cannot play (Spectator or an unknown value).
var ErrInvalidSeat = errors.New("game: invalid participant seat")

// Participant is one bound seat in a game: the user behind it, their
// display name, the transport connection carrying them, and the color
// derived from the seat. Immutable after construction.
type Participant struct {
	UserID      string
	DisplayName string
	ConnID      string
	Seat        Seat
	Color       string
}

// NewParticipant builds a participant for a playing seat.
// Spectators are not participants; constructing one fails.
func NewParticipant(userID, displayName, connID string, seat Seat) (*Participant, error) {
	if seat != SeatOne && seat != SeatTwo {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSeat, seat)
	}
	return &Participant{
		UserID:      userID,
		DisplayName: displayName,
		ConnID:      connID,
		Seat:        seat,
		Color:       seat.Color(),
	}, nil
}
