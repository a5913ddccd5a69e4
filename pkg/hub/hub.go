// Package hub is the WebSocket gateway. It upgrades connections,
// authorizes them, and drives the connect, disconnect, cell click, and
// chat flows against each game's event loop. The hub is the only
// runtime caller of session mutation methods.
package hub

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fiar-dev/fiar/internal/archive"
	"github.com/fiar-dev/fiar/pkg/auth"
	"github.com/fiar-dev/fiar/pkg/game"
	"github.com/fiar-dev/fiar/pkg/protocol"
	"github.com/fiar-dev/fiar/pkg/registry"
	"github.com/fiar-dev/fiar/pkg/store"
)

// Options wires the hub's collaborators. Registry, Store, and
// Authorizer are required; the rest default.
type Options struct {
	Registry   *registry.Registry
	Store      store.GameStore
	Authorizer auth.Authorizer
	Identity   auth.IdentityFunc
	Archiver   archive.Archiver
	Config     *Config
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// Hub is the gateway between WebSocket clients and live games.
type Hub struct {
	registry *registry.Registry
	store    store.GameStore
	authz    auth.Authorizer
	identity auth.IdentityFunc
	archiver archive.Archiver
	config   *Config
	logger   *slog.Logger
	metrics  *metrics
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	mu       sync.Mutex
	channels map[int64]*Channel
}

// New creates a hub from the given options.
func New(opts Options) *Hub {
	if opts.Identity == nil {
		opts.Identity = auth.HeaderIdentity
	}
	if opts.Archiver == nil {
		opts.Archiver = archive.Nop{}
	}
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}

	h := &Hub{
		registry: opts.Registry,
		store:    opts.Store,
		authz:    opts.Authorizer,
		identity: opts.Identity,
		archiver: opts.Archiver,
		config:   opts.Config,
		logger:   opts.Logger.With("component", "hub"),
		tracer:   otel.Tracer("fiar/hub"),
		channels: make(map[int64]*Channel),
	}
	h.metrics = newMetrics(opts.Registerer, func() float64 {
		return float64(opts.Registry.Len())
	})
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if opts.Config.CheckOrigin != nil {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			return opts.Config.CheckOrigin(r.Header.Get("Origin"))
		}
	} else {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// ServeHTTP upgrades the request and runs the connection until the
// client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if err := h.authz.Authorize(identity, auth.CapabilityPlayer); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	g, ok := h.registry.FindByUser(identity.UserID)
	if !ok {
		http.Error(w, ErrNoGame.Error(), http.StatusNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.metrics.wsErrors.WithLabelValues("upgrade").Inc()
		h.logger.Warn("upgrade failed", "user_id", identity.UserID, "error", err)
		return
	}
	ws.SetReadLimit(h.config.ReadLimit)

	conn := newConn(ws, identity, h.config.WriteTimeout)
	h.metrics.connections.Inc()
	defer h.metrics.connections.Dec()

	if err := h.connect(r.Context(), g, conn); err != nil {
		h.logger.Warn("connect rejected",
			"user_id", identity.UserID, "game_id", g.ID(), "error", err)
		ch := h.channel(g.ID())
		ch.Leave(conn)
		if ch.Len() == 0 {
			h.dropChannel(g.ID())
		}
		conn.Close()
		return
	}

	h.readLoop(g, conn)
	h.disconnect(g, conn)
}

// channel returns the broadcast group for a game, creating it on first
// use.
func (h *Hub) channel(gameID int64) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[gameID]
	if !ok {
		ch = newChannel(gameID, h.logger)
		h.channels[gameID] = ch
	}
	return ch
}

func (h *Hub) dropChannel(gameID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels, gameID)
}

// connect binds the connection to its seat, starts the game when both
// seats are bound, and pushes the initial broadcasts.
func (h *Hub) connect(ctx context.Context, g *registry.Game, conn *Conn) error {
	ctx, span := h.tracer.Start(ctx, "hub.connect",
		trace.WithAttributes(attribute.Int64("fiar.game_id", g.ID())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, h.config.ConnectTimeout)
	defer cancel()

	ch := h.channel(g.ID())
	ch.Join(conn)

	// The broadcasts run inside the dispatched closure so their order
	// matches the mutation order when two connects land back to back.
	var bindErr error
	err := g.Do(ctx, func(s *game.Session) {
		seat, ok := s.SeatFor(conn.Identity().UserID)
		if !ok {
			bindErr = game.ErrUnknownPlayer
			return
		}
		p, err := game.NewParticipant(conn.Identity().UserID,
			conn.Identity().DisplayName, conn.ID(), seat)
		if err != nil {
			bindErr = err
			return
		}
		if err := s.Bind(p); err != nil {
			bindErr = err
			return
		}
		if s.Bound() && !s.InProgress() {
			if err := s.Start(); err != nil {
				bindErr = err
				return
			}
		}
		h.send(ch, protocol.KindUpdatePlayers, rosterOf(s))
		if s.InProgress() {
			h.send(ch, protocol.KindRenderBoard, protocol.NewRenderBoard(s.BoardSnapshot()))
			h.send(ch, protocol.KindTurn, turnOf(s.CurrentTurn()))
		}
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if bindErr != nil {
		span.RecordError(bindErr)
		span.SetStatus(codes.Error, bindErr.Error())
		return bindErr
	}

	h.metrics.eventsTotal.WithLabelValues("connect", "ok").Inc()
	span.SetStatus(codes.Ok, "")
	h.logger.Info("participant connected",
		"game_id", g.ID(), "user_id", conn.Identity().UserID, "conn_id", conn.ID())
	return nil
}

// readLoop pumps inbound frames until the socket errors or closes.
func (h *Hub) readLoop(g *registry.Game, conn *Conn) {
	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.metrics.wsErrors.WithLabelValues("read").Inc()
			}
			return
		}

		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			h.metrics.eventsTotal.WithLabelValues("unknown", "rejected").Inc()
			h.logger.Debug("discarding malformed frame",
				"conn_id", conn.ID(), "error", err)
			continue
		}

		switch env.Kind {
		case protocol.KindCellClick:
			click, err := env.CellClick()
			if err != nil {
				h.metrics.eventsTotal.WithLabelValues("cell_click", "rejected").Inc()
				continue
			}
			h.handleCellClick(g, conn, click)
		case protocol.KindChat:
			chat, err := env.Chat()
			if err != nil {
				h.metrics.eventsTotal.WithLabelValues("chat", "rejected").Inc()
				continue
			}
			h.handleChat(g, conn, chat)
		}
	}
}

// reauthorize rechecks the player capability on an established
// connection. Roles can be revoked mid-game; a failed check aborts the
// connection.
func (h *Hub) reauthorize(conn *Conn, kind string) bool {
	if err := h.authz.Authorize(conn.Identity(), auth.CapabilityPlayer); err != nil {
		h.metrics.eventsTotal.WithLabelValues(kind, "forbidden").Inc()
		h.logger.Warn("authorization revoked mid-game",
			"user_id", conn.Identity().UserID, "conn_id", conn.ID(), "error", err)
		conn.Close()
		return false
	}
	return true
}

// handleCellClick runs the move flow on the game's event loop. Clicks
// out of turn, on occupied cells, or on finished games are ignored
// silently.
func (h *Hub) handleCellClick(g *registry.Game, conn *Conn, click protocol.CellClick) {
	if !h.reauthorize(conn, "cell_click") {
		return
	}
	ctx, span := h.tracer.Start(context.Background(), "hub.cell_click",
		trace.WithAttributes(
			attribute.Int64("fiar.game_id", g.ID()),
			attribute.Int("fiar.row", click.Row),
			attribute.Int("fiar.col", click.Col),
		))
	defer span.End()
	timer := prometheus.NewTimer(h.metrics.eventduration.WithLabelValues("cell_click"))
	defer timer.ObserveDuration()

	ctx, cancel := context.WithTimeout(ctx, 3*h.config.PersistTimeout)
	defer cancel()

	var flowErr error
	err := g.Do(ctx, func(s *game.Session) {
		flowErr = h.applyClick(ctx, g, s, conn, click)
	})
	if err == nil {
		err = flowErr
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.metrics.eventsTotal.WithLabelValues("cell_click", "error").Inc()
		if !errors.Is(err, registry.ErrGameClosed) {
			h.logger.Error("cell click failed",
				"game_id", g.ID(), "conn_id", conn.ID(), "error", err)
		}
		return
	}
	span.SetStatus(codes.Ok, "")
	h.metrics.eventsTotal.WithLabelValues("cell_click", "ok").Inc()
}

// applyClick is the move flow proper. It runs on the game's event loop
// with exclusive session access. A move is broadcast only after its
// durable facts are committed.
func (h *Hub) applyClick(ctx context.Context, g *registry.Game, s *game.Session, conn *Conn, click protocol.CellClick) error {
	if !s.InProgress() {
		return nil
	}
	current := s.CurrentTurn()
	if current == nil || current.ConnID != conn.ID() {
		return nil
	}
	if click.Row < 0 || click.Row >= s.Board().Rows() ||
		click.Col < 0 || click.Col >= s.Board().Cols() {
		return nil
	}

	snapshot := s.BoardSnapshot()
	if !s.TryPlace(click.Row, click.Col) {
		return nil
	}

	ch := h.channel(g.ID())
	pctx, cancel := context.WithTimeout(ctx, h.config.PersistTimeout)
	defer cancel()

	if s.CheckVictory(click.Row, click.Col) {
		result := store.ResultSeatOneWon
		if current.Seat == game.SeatTwo {
			result = store.ResultSeatTwoWon
		}
		if err := h.store.FinalizeResult(pctx, g.ID(), result); err != nil {
			s.RestoreBoard(snapshot)
			return err
		}
		h.send(ch, protocol.KindRenderBoard, protocol.NewRenderBoard(s.BoardSnapshot()))
		h.send(ch, protocol.KindVictory, protocol.Victory{
			UserID:      current.UserID,
			DisplayName: current.DisplayName,
			Seat:        int(current.Seat),
		})
		h.finish(g, result)
		return nil
	}

	if err := h.store.AppendMove(pctx, g.ID(), current.UserID, click.Row, click.Col); err != nil {
		s.RestoreBoard(snapshot)
		return err
	}
	s.TryGrow(click.Row, click.Col)

	if s.Full() {
		if err := h.store.FinalizeResult(pctx, g.ID(), store.ResultDraw); err != nil {
			s.RestoreBoard(snapshot)
			return err
		}
		h.send(ch, protocol.KindRenderBoard, protocol.NewRenderBoard(s.BoardSnapshot()))
		h.send(ch, protocol.KindDraw, protocol.Draw{})
		h.finish(g, store.ResultDraw)
		return nil
	}

	h.send(ch, protocol.KindRenderBoard, protocol.NewRenderBoard(s.BoardSnapshot()))
	if err := s.AdvanceTurn(); err != nil {
		return err
	}
	h.send(ch, protocol.KindTurn, turnOf(s.CurrentTurn()))
	return nil
}

// handleChat relays a chat line to the game's channel. Blank lines are
// dropped; oversized lines are truncated.
func (h *Hub) handleChat(g *registry.Game, conn *Conn, chat protocol.Chat) {
	if !h.reauthorize(conn, "chat") {
		return
	}
	text := strings.TrimSpace(chat.Text)
	if text == "" {
		return
	}
	if runes := []rune(text); len(runes) > h.config.MaxChatLength {
		text = string(runes[:h.config.MaxChatLength])
	}

	h.send(h.channel(g.ID()), protocol.KindChat, protocol.Chat{
		UserID:      conn.Identity().UserID,
		DisplayName: conn.Identity().DisplayName,
		Text:        text,
	})
	h.metrics.eventsTotal.WithLabelValues("chat", "ok").Inc()
}

// disconnect tears the connection down. Leaving an unfinished game is
// a concession: the channel is told, and the session is destroyed.
func (h *Hub) disconnect(g *registry.Game, conn *Conn) {
	ctx, span := h.tracer.Start(context.Background(), "hub.disconnect",
		trace.WithAttributes(attribute.Int64("fiar.game_id", g.ID())))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, h.config.ConnectTimeout)
	defer cancel()

	// The teardown runs regardless; a revoked role still forfeits the
	// game the same way a dropped socket does.
	if err := h.authz.Authorize(conn.Identity(), auth.CapabilityPlayer); err != nil {
		h.logger.Warn("authorization revoked at disconnect",
			"user_id", conn.Identity().UserID, "conn_id", conn.ID(), "error", err)
	}

	ch := h.channel(g.ID())
	ch.Leave(conn)
	conn.Close()

	err := g.Do(ctx, func(*game.Session) {})
	if errors.Is(err, registry.ErrGameClosed) {
		// Game already finished; nothing to concede.
		if ch.Len() == 0 {
			h.dropChannel(g.ID())
		}
		span.SetStatus(codes.Ok, "")
		return
	}

	h.send(ch, protocol.KindConcede, protocol.Concede{
		UserID:      conn.Identity().UserID,
		DisplayName: conn.Identity().DisplayName,
	})
	h.registry.Remove(ctx, g, false)
	h.dropChannel(g.ID())

	h.metrics.eventsTotal.WithLabelValues("disconnect", "ok").Inc()
	span.SetStatus(codes.Ok, "")
	h.logger.Info("participant disconnected",
		"game_id", g.ID(), "user_id", conn.Identity().UserID, "conn_id", conn.ID())
}

// finish archives the replay and removes a resolved game from the
// registry. Archival failures are logged only.
func (h *Hub) finish(g *registry.Game, result store.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.PersistTimeout)
	defer cancel()

	moves, err := h.store.Moves(ctx, g.ID())
	if err != nil {
		h.logger.Error("loading replay moves failed", "game_id", g.ID(), "error", err)
	} else {
		replay := archive.Replay{
			GameID:        g.ID(),
			SeatOneUserID: g.SeatOneUserID(),
			SeatTwoUserID: g.SeatTwoUserID(),
			Result:        result.String(),
			Moves:         moves,
			FinishedAt:    time.Now().UTC(),
		}
		if err := h.archiver.Archive(ctx, replay); err != nil {
			h.logger.Error("replay archival failed", "game_id", g.ID(), "error", err)
		}
	}

	h.registry.Remove(ctx, g, true)
}

// send encodes and broadcasts one message, logging encode failures.
func (h *Hub) send(ch *Channel, kind protocol.Kind, payload any) {
	data, err := protocol.Encode(kind, payload)
	if err != nil {
		h.logger.Error("encoding broadcast failed", "kind", kind, "error", err)
		return
	}
	ch.Broadcast(data)
}

// rosterOf builds the seat roster broadcast from the session.
func rosterOf(s *game.Session) protocol.UpdatePlayers {
	players := make([]protocol.Player, 0, 2)
	for _, seat := range []game.Seat{game.SeatOne, game.SeatTwo} {
		userID := s.SeatOneUserID()
		if seat == game.SeatTwo {
			userID = s.SeatTwoUserID()
		}
		player := protocol.Player{
			UserID: userID,
			Seat:   int(seat),
			Color:  seat.Color(),
		}
		if p := s.Participant(seat); p != nil {
			player.DisplayName = p.DisplayName
			player.Connected = true
		}
		players = append(players, player)
	}
	return protocol.UpdatePlayers{Players: players}
}

func turnOf(p *game.Participant) protocol.Turn {
	if p == nil {
		return protocol.Turn{}
	}
	return protocol.Turn{
		UserID:      p.UserID,
		DisplayName: p.DisplayName,
		Seat:        int(p.Seat),
	}
}
