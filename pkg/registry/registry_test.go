package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/fiar-dev/fiar/pkg/game"
	"github.com/fiar-dev/fiar/pkg/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry() (*Registry, *store.MemStore) {
	st := store.NewMemStore()
	return New(st, nil, testLogger()), st
}

func TestAddPersistsThenAdmits(t *testing.T) {
	r, st := newTestRegistry()
	ctx := context.Background()

	g, ok := r.Add(ctx, "user-a", "user-b")
	if !ok {
		t.Fatal("add should succeed")
	}
	if g.ID() == 0 {
		t.Fatal("game should carry its persisted id")
	}
	if r.Len() != 1 {
		t.Fatalf("registry holds %d games, want 1", r.Len())
	}

	busy, err := st.HasUnresolvedGame(ctx, "user-a")
	if err != nil {
		t.Fatalf("unresolved lookup: %v", err)
	}
	if !busy {
		t.Fatal("game record should be persisted before admission")
	}

	if found, ok := r.Find(g.ID()); !ok || found != g {
		t.Fatal("Find should return the admitted game")
	}
	for _, user := range []string{"user-a", "user-b"} {
		if found, ok := r.FindByUser(user); !ok || found != g {
			t.Fatalf("FindByUser(%s) should return the admitted game", user)
		}
	}
}

func TestAddRejectsBusyUser(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	if _, ok := r.Add(ctx, "user-a", "user-b"); !ok {
		t.Fatal("first add should succeed")
	}
	// Both repeated attempts fail and no second record is created.
	for i := 0; i < 2; i++ {
		if _, ok := r.Add(ctx, "user-a", "user-c"); ok {
			t.Fatalf("add %d with a busy user should fail", i)
		}
	}
	if r.Len() != 1 {
		t.Fatalf("registry holds %d games, want 1", r.Len())
	}
	if _, ok := r.FindByUser("user-c"); ok {
		t.Fatal("user-c should not be in a game")
	}
}

func TestAddRejectsSameUserBothSeats(t *testing.T) {
	r, _ := newTestRegistry()
	if _, ok := r.Add(context.Background(), "user-a", "user-a"); ok {
		t.Fatal("a user cannot take both seats")
	}
	if r.Len() != 0 {
		t.Fatal("nothing should be admitted")
	}
}

func TestAddFailsWhenPersistenceFails(t *testing.T) {
	st := store.NewMemStore()
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	r := New(st, nil, testLogger())

	if _, ok := r.Add(context.Background(), "user-a", "user-b"); ok {
		t.Fatal("add should fail when the store is unavailable")
	}
	if r.Len() != 0 {
		t.Fatal("nothing should be admitted without a persisted record")
	}
}

func TestRemoveUnresolvedDeletesRecord(t *testing.T) {
	r, st := newTestRegistry()
	ctx := context.Background()

	g, ok := r.Add(ctx, "user-a", "user-b")
	if !ok {
		t.Fatal("add should succeed")
	}
	r.Remove(ctx, g, false)

	if r.Len() != 0 {
		t.Fatalf("registry holds %d games, want 0", r.Len())
	}
	busy, err := st.HasUnresolvedGame(ctx, "user-a")
	if err != nil {
		t.Fatalf("unresolved lookup: %v", err)
	}
	if busy {
		t.Fatal("unresolved record should be deleted on remove")
	}
	if err := g.Dispatch(func(*game.Session) {}); !errors.Is(err, ErrGameClosed) {
		t.Fatalf("dispatch after remove = %v, want ErrGameClosed", err)
	}
}

func TestRemoveResolvedKeepsRecordAndPrunesChallenges(t *testing.T) {
	r, st := newTestRegistry()
	ctx := context.Background()

	g, ok := r.Add(ctx, "user-a", "user-b")
	if !ok {
		t.Fatal("add should succeed")
	}
	if err := st.FinalizeResult(ctx, g.ID(), store.ResultSeatOneWon); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := st.AddChallenge(ctx, "user-b", "user-a"); err != nil {
		t.Fatalf("add challenge: %v", err)
	}
	if err := st.AddChallenge(ctx, "user-a", "user-c"); err != nil {
		t.Fatalf("add challenge: %v", err)
	}

	r.Remove(ctx, g, true)

	result, found := st.Result(g.ID())
	if !found {
		t.Fatal("resolved record should be kept")
	}
	if result != store.ResultSeatOneWon {
		t.Fatalf("result = %v, want seat one won", result)
	}
	if got := st.ChallengeCount(); got != 1 {
		t.Fatalf("challenge count = %d, want 1 (unrelated challenge kept)", got)
	}
}

func TestRemoveMissingGameIsNotFatal(t *testing.T) {
	r, _ := newTestRegistry()
	ctx := context.Background()

	g, ok := r.Add(ctx, "user-a", "user-b")
	if !ok {
		t.Fatal("add should succeed")
	}
	r.Remove(ctx, g, false)
	r.Remove(ctx, g, false) // already gone, logged only
}

func TestDispatchSerializesSessionAccess(t *testing.T) {
	r, _ := newTestRegistry()
	g, ok := r.Add(context.Background(), "user-a", "user-b")
	if !ok {
		t.Fatal("add should succeed")
	}

	// Unsynchronized counter; the event loop is the only writer.
	n := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = g.Dispatch(func(*game.Session) { n++ })
		}()
	}
	wg.Wait()

	ctx := context.Background()
	if err := g.Do(ctx, func(*game.Session) {}); err != nil {
		t.Fatalf("do: %v", err)
	}
	if n != 100 {
		t.Fatalf("counter = %d, want 100", n)
	}
}

func TestDoRunsOnEventLoop(t *testing.T) {
	r, _ := newTestRegistry()
	g, ok := r.Add(context.Background(), "user-a", "user-b")
	if !ok {
		t.Fatal("add should succeed")
	}

	var rows int
	err := g.Do(context.Background(), func(s *game.Session) {
		rows = s.Board().Rows()
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if rows != game.InitialRows {
		t.Fatalf("rows = %d, want %d", rows, game.InitialRows)
	}
}
