package hub

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"net/http/httptest"

	"github.com/fiar-dev/fiar/pkg/auth"
	"github.com/fiar-dev/fiar/pkg/game"
	"github.com/fiar-dev/fiar/pkg/protocol"
	"github.com/fiar-dev/fiar/pkg/registry"
	"github.com/fiar-dev/fiar/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testFixture struct {
	hub      *Hub
	registry *registry.Registry
	store    *store.MemStore
	server   *httptest.Server
}

func newFixture(t *testing.T) *testFixture {
	return newFixtureWith(t, auth.StaticRoles{
		"user-viewer": {"viewer"},
		"user-admin":  {"admin"},
	})
}

func newFixtureWith(t *testing.T, roles auth.RoleDirectory) *testFixture {
	t.Helper()
	st := store.NewMemStore()
	reg := registry.New(st, nil, testLogger())
	h := New(Options{
		Registry:   reg,
		Store:      st,
		Authorizer: auth.NewPolicyAuthorizer(nil, roles),
		Logger:     testLogger(),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testFixture{hub: h, registry: reg, store: st, server: srv}
}

func (f *testFixture) dial(t *testing.T, userID, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	hdr := http.Header{}
	hdr.Set("X-User-Id", userID)
	hdr.Set("X-User-Name", name)
	ws, _, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		t.Fatalf("dial as %s: %v", userID, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func (f *testFixture) dialErr(t *testing.T, hdr http.Header) int {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	ws, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err == nil {
		ws.Close()
		t.Fatal("dial should fail")
	}
	if resp == nil {
		t.Fatalf("no handshake response: %v", err)
	}
	return resp.StatusCode
}

type frame struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func readFrame(t *testing.T, ws *websocket.Conn) frame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return f
}

func expectKind(t *testing.T, ws *websocket.Conn, kind protocol.Kind) frame {
	t.Helper()
	f := readFrame(t, ws)
	if f.Kind != string(kind) {
		t.Fatalf("frame kind = %q, want %q", f.Kind, kind)
	}
	return f
}

func sendClick(t *testing.T, ws *websocket.Conn, row, col int) {
	t.Helper()
	data, err := protocol.Encode(protocol.KindCellClick, protocol.CellClick{Row: row, Col: col})
	if err != nil {
		t.Fatalf("encode click: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write click: %v", err)
	}
}

func sendChat(t *testing.T, ws *websocket.Conn, text string) {
	t.Helper()
	data, err := protocol.Encode(protocol.KindChat, protocol.Chat{Text: text})
	if err != nil {
		t.Fatalf("encode chat: %v", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write chat: %v", err)
	}
}

func decodeInto(t *testing.T, f frame, v any) {
	t.Helper()
	if err := json.Unmarshal(f.Data, v); err != nil {
		t.Fatalf("decode %s payload: %v", f.Kind, err)
	}
}

func TestConnectRejections(t *testing.T) {
	f := newFixture(t)

	t.Run("missing identity", func(t *testing.T) {
		if code := f.dialErr(t, http.Header{}); code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", code)
		}
	})

	t.Run("forbidden role", func(t *testing.T) {
		hdr := http.Header{}
		hdr.Set("X-User-Id", "user-viewer")
		if code := f.dialErr(t, hdr); code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", code)
		}
	})

	t.Run("no live game", func(t *testing.T) {
		hdr := http.Header{}
		hdr.Set("X-User-Id", "user-idle")
		if code := f.dialErr(t, hdr); code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", code)
		}
	})
}

func TestConnectFlowStartsGame(t *testing.T) {
	f := newFixture(t)
	if _, ok := f.registry.Add(context.Background(), "user-a", "user-b"); !ok {
		t.Fatal("add game")
	}

	wsA := f.dial(t, "user-a", "Alice")

	// Only one seat bound: roster only, no board yet.
	rosterFrame := expectKind(t, wsA, protocol.KindUpdatePlayers)
	var roster protocol.UpdatePlayers
	decodeInto(t, rosterFrame, &roster)
	if len(roster.Players) != 2 {
		t.Fatalf("roster has %d players, want 2", len(roster.Players))
	}
	if !roster.Players[0].Connected || roster.Players[1].Connected {
		t.Fatalf("roster connected flags = %+v", roster.Players)
	}
	if roster.Players[0].Color != "0000ff" || roster.Players[1].Color != "ff0000" {
		t.Fatalf("roster colors = %+v", roster.Players)
	}

	wsB := f.dial(t, "user-b", "Bob")

	// Both seats bound: roster, board, and opening turn reach both.
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		decodeInto(t, expectKind(t, ws, protocol.KindUpdatePlayers), &roster)
		if !roster.Players[0].Connected || !roster.Players[1].Connected {
			t.Fatalf("roster connected flags = %+v", roster.Players)
		}

		var board protocol.RenderBoard
		decodeInto(t, expectKind(t, ws, protocol.KindRenderBoard), &board)
		if board.Rows != game.InitialRows || board.Cols != game.InitialCols {
			t.Fatalf("board size = %dx%d", board.Rows, board.Cols)
		}

		var turn protocol.Turn
		decodeInto(t, expectKind(t, ws, protocol.KindTurn), &turn)
		if turn.UserID != "user-a" {
			t.Fatalf("opening turn = %q, want user-a", turn.UserID)
		}
	}
}

// connectBoth establishes a started game with both players connected
// and their initial frames drained.
func connectBoth(t *testing.T, f *testFixture) (wsA, wsB *websocket.Conn) {
	t.Helper()
	if _, ok := f.registry.Add(context.Background(), "user-a", "user-b"); !ok {
		t.Fatal("add game")
	}
	wsA = f.dial(t, "user-a", "Alice")
	expectKind(t, wsA, protocol.KindUpdatePlayers)
	wsB = f.dial(t, "user-b", "Bob")
	for _, ws := range []*websocket.Conn{wsA, wsB} {
		expectKind(t, ws, protocol.KindUpdatePlayers)
		expectKind(t, ws, protocol.KindRenderBoard)
		expectKind(t, ws, protocol.KindTurn)
	}
	return wsA, wsB
}

func TestCellClickAlternatesTurns(t *testing.T) {
	f := newFixture(t)
	wsA, wsB := connectBoth(t, f)
	g, ok := f.registry.FindByUser("user-a")
	if !ok {
		t.Fatal("game not found")
	}

	// B clicks out of turn. A chat line on the same socket is consumed
	// by the same read loop, so seeing it broadcast proves the click
	// was processed before A moves.
	sendClick(t, wsB, 3, 3)
	sendChat(t, wsB, "sync")
	expectKind(t, wsA, protocol.KindChat)
	expectKind(t, wsB, protocol.KindChat)

	var cell int
	err := g.Do(context.Background(), func(s *game.Session) {
		cell = int(s.Board()[3][3])
	})
	if err != nil {
		t.Fatalf("inspect board: %v", err)
	}
	if cell != int(game.Empty) {
		t.Fatalf("cell (3,3) = %d, want empty after out-of-turn click", cell)
	}

	sendClick(t, wsA, 7, 7)

	var board protocol.RenderBoard
	decodeInto(t, expectKind(t, wsA, protocol.KindRenderBoard), &board)
	if board.Cells[7][7] != int(game.SeatOneMark) {
		t.Fatalf("cell (7,7) = %d, want seat one mark", board.Cells[7][7])
	}
	if board.Cells[3][3] != int(game.Empty) {
		t.Fatal("out-of-turn click should not mark the board")
	}

	var turn protocol.Turn
	decodeInto(t, expectKind(t, wsA, protocol.KindTurn), &turn)
	if turn.UserID != "user-b" {
		t.Fatalf("turn = %q, want user-b", turn.UserID)
	}

	expectKind(t, wsB, protocol.KindRenderBoard)
	expectKind(t, wsB, protocol.KindTurn)

	// B clicks the occupied cell, then a free one.
	sendClick(t, wsB, 7, 7)
	sendClick(t, wsB, 5, 5)

	decodeInto(t, expectKind(t, wsB, protocol.KindRenderBoard), &board)
	if board.Cells[5][5] != int(game.SeatTwoMark) {
		t.Fatalf("cell (5,5) = %d, want seat two mark", board.Cells[5][5])
	}
	decodeInto(t, expectKind(t, wsB, protocol.KindTurn), &turn)
	if turn.UserID != "user-a" {
		t.Fatalf("turn = %q, want user-a", turn.UserID)
	}
}

// revocableRoles is a RoleDirectory whose grants can change while
// connections are live.
type revocableRoles struct {
	mu    sync.Mutex
	roles map[string][]string
}

func (r *revocableRoles) Roles(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if roles, ok := r.roles[userID]; ok {
		return roles
	}
	return []string{"player"}
}

func (r *revocableRoles) set(userID string, roles ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles[userID] = roles
}

func TestRevokedRoleAbortsConnection(t *testing.T) {
	roles := &revocableRoles{roles: map[string][]string{}}
	f := newFixtureWith(t, roles)
	wsA, wsB := connectBoth(t, f)
	g, ok := f.registry.FindByUser("user-a")
	if !ok {
		t.Fatal("game not found")
	}

	// A loses the player role mid-game. The next click is rejected and
	// the connection aborted, which forfeits the game to B.
	roles.set("user-a", "viewer")
	sendClick(t, wsA, 7, 7)

	wsA.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := wsA.ReadMessage(); err == nil {
		t.Fatal("revoked connection should be closed")
	}

	var concede protocol.Concede
	decodeInto(t, expectKind(t, wsB, protocol.KindConcede), &concede)
	if concede.UserID != "user-a" {
		t.Fatalf("concede = %q, want user-a", concede.UserID)
	}

	// The rejected move never resolved the game; the unresolved record
	// and the live session are torn down as on any disconnect.
	deadline := time.Now().Add(3 * time.Second)
	gone := func() bool {
		_, found := f.store.Result(g.ID())
		return f.registry.Len() == 0 && !found
	}
	for !gone() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.registry.Len() != 0 {
		t.Fatal("forfeited game should leave the registry")
	}
	if _, found := f.store.Result(g.ID()); found {
		t.Fatal("forfeited game record should be gone")
	}
}

func TestConnectBroadcastsFollowMutationOrder(t *testing.T) {
	f := newFixture(t)
	if _, ok := f.registry.Add(context.Background(), "user-a", "user-b"); !ok {
		t.Fatal("add game")
	}

	// Both connects land back to back; their broadcasts run on the
	// session's event loop, so the one-player roster can never overtake
	// the complete one. The last roster either client sees before the
	// opening turn must show both seats connected.
	wsA := f.dial(t, "user-a", "Alice")
	wsB := f.dial(t, "user-b", "Bob")

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		var roster protocol.UpdatePlayers
		sawRoster := false
		for {
			fr := readFrame(t, ws)
			if fr.Kind == string(protocol.KindUpdatePlayers) {
				decodeInto(t, fr, &roster)
				sawRoster = true
			}
			if fr.Kind == string(protocol.KindTurn) {
				break
			}
		}
		if !sawRoster {
			t.Fatal("no roster frame before the opening turn")
		}
		if !roster.Players[0].Connected || !roster.Players[1].Connected {
			t.Fatalf("final roster = %+v, want both connected", roster.Players)
		}
	}
}

func TestVictoryFlow(t *testing.T) {
	f := newFixture(t)
	wsA, wsB := connectBoth(t, f)
	g, ok := f.registry.FindByUser("user-a")
	if !ok {
		t.Fatal("game not found")
	}

	// A builds a vertical run at col 7; B fills row 5.
	moves := []struct {
		ws       *websocket.Conn
		row, col int
	}{
		{wsA, 7, 7}, {wsB, 5, 5},
		{wsA, 8, 7}, {wsB, 5, 6},
		{wsA, 9, 7}, {wsB, 5, 7},
		{wsA, 10, 7}, {wsB, 5, 8},
	}
	for _, m := range moves {
		sendClick(t, m.ws, m.row, m.col)
		for _, ws := range []*websocket.Conn{wsA, wsB} {
			expectKind(t, ws, protocol.KindRenderBoard)
			expectKind(t, ws, protocol.KindTurn)
		}
	}

	// The winning move.
	sendClick(t, wsA, 11, 7)

	var board protocol.RenderBoard
	decodeInto(t, expectKind(t, wsA, protocol.KindRenderBoard), &board)
	for r := 7; r <= 11; r++ {
		if board.Cells[r][7] != int(game.SeatOneWin) {
			t.Fatalf("cell (%d,7) = %d, want seat one win mark", r, board.Cells[r][7])
		}
	}

	var victory protocol.Victory
	decodeInto(t, expectKind(t, wsA, protocol.KindVictory), &victory)
	if victory.UserID != "user-a" {
		t.Fatalf("victory = %q, want user-a", victory.UserID)
	}
	expectKind(t, wsB, protocol.KindRenderBoard)
	expectKind(t, wsB, protocol.KindVictory)

	// The result is finalized, the record kept, and the winning move
	// itself is not part of the persisted history.
	result, found := f.store.Result(g.ID())
	if !found {
		t.Fatal("resolved game record should be kept")
	}
	if result != store.ResultSeatOneWon {
		t.Fatalf("result = %v, want seat one won", result)
	}
	persisted, err := f.store.Moves(context.Background(), g.ID())
	if err != nil {
		t.Fatalf("load moves: %v", err)
	}
	if len(persisted) != len(moves) {
		t.Fatalf("persisted %d moves, want %d", len(persisted), len(moves))
	}
	if f.registry.Len() != 0 {
		t.Fatal("finished game should leave the registry")
	}
}

func TestDisconnectConcedes(t *testing.T) {
	f := newFixture(t)
	wsA, wsB := connectBoth(t, f)
	g, ok := f.registry.FindByUser("user-a")
	if !ok {
		t.Fatal("game not found")
	}

	wsA.Close()

	var concede protocol.Concede
	decodeInto(t, expectKind(t, wsB, protocol.KindConcede), &concede)
	if concede.UserID != "user-a" {
		t.Fatalf("concede = %q, want user-a", concede.UserID)
	}

	// The unresolved record is deleted and the session destroyed.
	deadline := time.Now().Add(3 * time.Second)
	for f.registry.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.registry.Len() != 0 {
		t.Fatal("conceded game should leave the registry")
	}
	busy, err := f.store.HasUnresolvedGame(context.Background(), "user-a")
	if err != nil {
		t.Fatalf("unresolved lookup: %v", err)
	}
	if busy {
		t.Fatal("unresolved record should be deleted on concede")
	}
	if _, found := f.store.Result(g.ID()); found {
		t.Fatal("conceded game record should be gone")
	}
}

func TestChatRelay(t *testing.T) {
	f := newFixture(t)
	wsA, wsB := connectBoth(t, f)

	// Blank chat is dropped; the next line reaches both players.
	sendChat(t, wsA, "   ")
	sendChat(t, wsA, "  good luck  ")

	for _, ws := range []*websocket.Conn{wsA, wsB} {
		var chat protocol.Chat
		decodeInto(t, expectKind(t, ws, protocol.KindChat), &chat)
		if chat.Text != "good luck" {
			t.Fatalf("chat text = %q, want trimmed line", chat.Text)
		}
		if chat.UserID != "user-a" || chat.DisplayName != "Alice" {
			t.Fatalf("chat sender = %+v", chat)
		}
	}
}

func TestDrawFlow(t *testing.T) {
	f := newFixture(t)
	wsA, wsB := connectBoth(t, f)
	g, ok := f.registry.FindByUser("user-a")
	if !ok {
		t.Fatal("game not found")
	}

	// Fill the board except one interior cell with a pattern that has
	// no five-run on any axis, then let A play the last cell.
	err := g.Do(context.Background(), func(s *game.Session) {
		b := s.Board()
		for r := 0; r < b.Rows(); r++ {
			for c := 0; c < b.Cols(); c++ {
				if r == 7 && c == 7 {
					continue
				}
				if (c+2*r)%4 < 2 {
					b[r][c] = game.SeatOneMark
				} else {
					b[r][c] = game.SeatTwoMark
				}
			}
		}
	})
	if err != nil {
		t.Fatalf("seed board: %v", err)
	}

	sendClick(t, wsA, 7, 7)

	expectKind(t, wsA, protocol.KindRenderBoard)
	expectKind(t, wsA, protocol.KindDraw)
	expectKind(t, wsB, protocol.KindRenderBoard)
	expectKind(t, wsB, protocol.KindDraw)

	result, found := f.store.Result(g.ID())
	if !found {
		t.Fatal("drawn game record should be kept")
	}
	if result != store.ResultDraw {
		t.Fatalf("result = %v, want draw", result)
	}
	if f.registry.Len() != 0 {
		t.Fatal("drawn game should leave the registry")
	}
}

func TestCreateGameEndpoint(t *testing.T) {
	f := newFixture(t)

	post := func(userID, body string) *httptest.ResponseRecorder {
		r := httptest.NewRequest("POST", "/games", strings.NewReader(body))
		if userID != "" {
			r.Header.Set("X-User-Id", userID)
		}
		w := httptest.NewRecorder()
		f.hub.CreateGame(w, r)
		return w
	}

	if w := post("", `{}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", w.Code)
	}
	if w := post("user-a", `{"seat_one_user_id":"a","seat_two_user_id":"b"}`); w.Code != http.StatusForbidden {
		t.Fatalf("player status = %d, want 403", w.Code)
	}
	if w := post("user-admin", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad body status = %d, want 400", w.Code)
	}
	if w := post("user-admin", `{"seat_one_user_id":"user-a"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing seat status = %d, want 400", w.Code)
	}

	w := post("user-admin", `{"seat_one_user_id":"user-a","seat_two_user_id":"user-b"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", w.Code)
	}
	var created struct {
		GameID int64 `json:"game_id"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := f.registry.Find(created.GameID); !ok {
		t.Fatal("created game should be live")
	}

	// user-a is now busy; the same pairing conflicts.
	if w := post("user-admin", `{"seat_one_user_id":"user-a","seat_two_user_id":"user-c"}`); w.Code != http.StatusConflict {
		t.Fatalf("conflict status = %d, want 409", w.Code)
	}
}

func TestMoveNotBroadcastWhenPersistenceFails(t *testing.T) {
	f := newFixture(t)
	wsA, wsB := connectBoth(t, f)
	g, ok := f.registry.FindByUser("user-a")
	if !ok {
		t.Fatal("game not found")
	}

	// A closed store fails every persistence call.
	f.store.Close()

	sendClick(t, wsA, 7, 7)

	// The cell must be left unmutated so no desynchronization between
	// board and move log occurs.
	var cell int
	err := g.Do(context.Background(), func(s *game.Session) {
		cell = int(s.Board()[7][7])
	})
	if err != nil {
		t.Fatalf("inspect board: %v", err)
	}
	if cell != int(game.Empty) {
		t.Fatalf("cell (7,7) = %d, want empty after failed persistence", cell)
	}

	// No frame was broadcast for the failed move; a chat line is the
	// next thing either client sees.
	sendChat(t, wsA, "ping")
	expectKind(t, wsB, protocol.KindChat)
}
