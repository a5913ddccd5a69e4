package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/fiar-dev/fiar/pkg/game"
)

// ErrGameClosed is returned by Dispatch and Do once a game has been
// removed from the registry. In-flight events holding a stale handle
// must treat it as "session not found".
var ErrGameClosed = errors.New("registry: game is closed")

// Game is the handle the registry hands out for a live session. The
// underlying game.Session is owned by a single event loop goroutine;
// all reads and mutations of board or turn state must go through
// Dispatch or Do.
type Game struct {
	id      int64
	session *game.Session

	dispatchCh chan func()
	done       chan struct{}
	loopDone   chan struct{}
	closed     atomic.Bool

	logger *slog.Logger
}

func newGame(id int64, session *game.Session, queueSize int, logger *slog.Logger) *Game {
	g := &Game{
		id:         id,
		session:    session,
		dispatchCh: make(chan func(), queueSize),
		done:       make(chan struct{}),
		loopDone:   make(chan struct{}),
		logger:     logger.With("game_id", id),
	}
	go g.run()
	return g
}

// ID returns the persisted game identifier.
func (g *Game) ID() int64 { return g.id }

// SeatOneUserID returns the user owning the first seat.
func (g *Game) SeatOneUserID() string { return g.session.SeatOneUserID() }

// SeatTwoUserID returns the user owning the second seat.
func (g *Game) SeatTwoUserID() string { return g.session.SeatTwoUserID() }

// run is the session's event loop. Queued callbacks execute one at a
// time, so callbacks may mutate the session without further locking.
// On stop the remaining queue is drained before the loop exits.
func (g *Game) run() {
	for {
		select {
		case fn := <-g.dispatchCh:
			fn()
		case <-g.done:
			for {
				select {
				case fn := <-g.dispatchCh:
					fn()
				default:
					close(g.loopDone)
					return
				}
			}
		}
	}
}

// Dispatch queues fn to run on the game's event loop. The callback
// receives exclusive access to the session. Returns ErrGameClosed if
// the game has been stopped.
func (g *Game) Dispatch(fn func(s *game.Session)) error {
	if g.closed.Load() {
		return ErrGameClosed
	}
	select {
	case g.dispatchCh <- func() { fn(g.session) }:
		return nil
	case <-g.done:
		return ErrGameClosed
	}
}

// Do runs fn on the game's event loop and waits for it to complete.
func (g *Game) Do(ctx context.Context, fn func(s *game.Session)) error {
	ran := make(chan struct{})
	err := g.Dispatch(func(s *game.Session) {
		defer close(ran)
		fn(s)
	})
	if err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.loopDone:
		// The loop drained its queue before exiting, so fn may still
		// have run; losing the race to stop is the only failure here.
		select {
		case <-ran:
			return nil
		default:
			return ErrGameClosed
		}
	}
}

// stop shuts the event loop down. Queued callbacks still run; new
// dispatches fail with ErrGameClosed.
func (g *Game) stop() {
	if g.closed.CompareAndSwap(false, true) {
		close(g.done)
	}
}
