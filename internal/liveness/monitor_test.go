package liveness

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/identity"
	"github.com/kapu/chess-arena/internal/player"
	"github.com/kapu/chess-arena/internal/rules"
	"github.com/kapu/chess-arena/internal/store"
)

func newFixture(t *testing.T, offlineAfter time.Duration) (*Monitor, *player.Manager, *game.Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	st, err := store.Open(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	players := player.NewManager(st, identity.NewLock(st), offlineAfter)
	games := game.NewManager(st, rules.NewEngine(), nil)
	return NewMonitor(games, players, time.Minute), players, games
}

func TestSweepAbandonsStaleGame(t *testing.T) {
	mon, players, games := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	a, _ := players.Guest(ctx)
	b, _ := players.Guest(ctx)
	_ = players.Heartbeat(ctx, a.ID)
	_ = players.Heartbeat(ctx, b.ID)

	s, err := games.CreateMatched(ctx,
		game.PlayerRef{ID: a.ID, Name: a.Name},
		game.PlayerRef{ID: b.ID, Name: b.Name})
	if err != nil {
		t.Fatalf("CreateMatched: %v", err)
	}

	mon.Sweep(ctx)
	got, _ := games.Get(ctx, s.ID)
	if got.Status != domain.StatusOngoing {
		t.Fatalf("fresh game must survive the sweep: %s", got.Status)
	}

	// let a's heartbeat expire while b keeps polling
	time.Sleep(60 * time.Millisecond)
	_ = players.Heartbeat(ctx, b.ID)

	mon.Sweep(ctx)
	got, _ = games.Get(ctx, s.ID)
	if got.Status != domain.StatusAbandoned {
		t.Fatalf("stale game should be abandoned, got %s", got.Status)
	}
	// a holds the white seat, so the surviving black player wins
	if got.Winner != domain.Black {
		t.Fatalf("remaining player should win, got winner=%s", got.Winner)
	}
}

func TestSweepSkipsWaitingGames(t *testing.T) {
	mon, players, games := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	a, _ := players.Guest(ctx)
	s, _ := games.Create(ctx, game.PlayerRef{ID: a.ID, Name: a.Name}, "")

	time.Sleep(60 * time.Millisecond)
	mon.Sweep(ctx)

	got, _ := games.Get(ctx, s.ID)
	if got.Status != domain.StatusWaiting {
		t.Fatalf("waiting game must not be abandoned, got %s", got.Status)
	}
}
