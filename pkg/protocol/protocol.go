// Package protocol defines the JSON wire messages exchanged between
// the game gateway and its clients. Every frame is an envelope with a
// kind tag and a kind-specific payload.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fiar-dev/fiar/pkg/game"
)

// Decode errors.
var (
	ErrEmptyMessage = errors.New("protocol: empty message")
	ErrUnknownKind  = errors.New("protocol: unknown message kind")
	ErrBadPayload   = errors.New("protocol: malformed payload")
)

// Kind tags a wire message.
type Kind string

// Server to client kinds.
const (
	KindRenderBoard   Kind = "render_board"
	KindUpdatePlayers Kind = "update_players"
	KindTurn          Kind = "turn"
	KindVictory       Kind = "victory"
	KindDraw          Kind = "draw"
	KindConcede       Kind = "concede"
	KindChat          Kind = "chat"
)

// Client to server kinds. Chat frames share KindChat in both
// directions.
const (
	KindCellClick Kind = "cell_click"
)

// Envelope is the outer frame of every message.
type Envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RenderBoard carries a full board snapshot. Cell values are the
// numeric game.Cell states.
type RenderBoard struct {
	Rows  int     `json:"rows"`
	Cols  int     `json:"cols"`
	Cells [][]int `json:"cells"`
}

// NewRenderBoard converts a board snapshot into its wire form.
func NewRenderBoard(b game.Board) RenderBoard {
	cells := make([][]int, b.Rows())
	for r, row := range b {
		cells[r] = make([]int, len(row))
		for c, cell := range row {
			cells[r][c] = int(cell)
		}
	}
	return RenderBoard{Rows: b.Rows(), Cols: b.Cols(), Cells: cells}
}

// Player describes one seat for the roster broadcast.
type Player struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
	Color       string `json:"color"`
	Connected   bool   `json:"connected"`
}

// UpdatePlayers carries the seat roster.
type UpdatePlayers struct {
	Players []Player `json:"players"`
}

// Turn announces the participant now holding the turn.
type Turn struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
}

// Victory announces the winning participant.
type Victory struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	Seat        int    `json:"seat"`
}

// Draw announces a full board with no winner.
type Draw struct{}

// Concede announces that a participant left an unfinished game.
type Concede struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Chat carries a chat line, in either direction. The server fills the
// sender fields before relaying.
type Chat struct {
	UserID      string `json:"user_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"text"`
}

// CellClick is a client's attempt to mark a cell.
type CellClick struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Encode wraps payload in an envelope of the given kind.
func Encode(kind Kind, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s payload: %w", kind, err)
	}
	out, err := json.Marshal(Envelope{Kind: kind, Data: data})
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s envelope: %w", kind, err)
	}
	return out, nil
}

// DecodeEnvelope parses the outer frame of an inbound message and
// validates its kind against the client vocabulary.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if len(data) == 0 {
		return Envelope{}, ErrEmptyMessage
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	switch env.Kind {
	case KindCellClick, KindChat:
		return env, nil
	default:
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownKind, env.Kind)
	}
}

// CellClick unpacks a cell click payload.
func (e Envelope) CellClick() (CellClick, error) {
	if e.Kind != KindCellClick {
		return CellClick{}, fmt.Errorf("%w: %q is not a cell click", ErrUnknownKind, e.Kind)
	}
	var click CellClick
	if err := json.Unmarshal(e.Data, &click); err != nil {
		return CellClick{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return click, nil
}

// Chat unpacks a chat payload.
func (e Envelope) Chat() (Chat, error) {
	if e.Kind != KindChat {
		return Chat{}, fmt.Errorf("%w: %q is not a chat message", ErrUnknownKind, e.Kind)
	}
	var chat Chat
	if err := json.Unmarshal(e.Data, &chat); err != nil {
		return Chat{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return chat, nil
}
