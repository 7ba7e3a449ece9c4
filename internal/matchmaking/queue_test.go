package matchmaking

import (
	"context"
	"fmt"
	"sync"
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

func newTestQueue(t *testing.T, maxActive int64) (*Queue, *player.Manager, *game.Manager) {
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
	players := player.NewManager(st, identity.NewLock(st), 2*time.Minute)
	games := game.NewManager(st, rules.NewEngine(), nil)
	return NewQueue(st, games, players, maxActive), players, games
}

func TestFindMatchPairsTwoPlayers(t *testing.T) {
	q, players, games := newTestQueue(t, 0)
	ctx := context.Background()
	a, _ := players.Guest(ctx)
	b, _ := players.Guest(ctx)

	res, err := q.FindMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindMatch a: %v", err)
	}
	if res.Status != StatusSearching {
		t.Fatalf("first player should be searching, got %s", res.Status)
	}
	// repeat poll while queued stays searching and does not double-queue
	res, err = q.FindMatch(ctx, a.ID)
	if err != nil || res.Status != StatusSearching {
		t.Fatalf("repeat FindMatch: %+v %v", res, err)
	}

	res, err = q.FindMatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("FindMatch b: %v", err)
	}
	if res.Status != StatusMatched || res.GameID == "" {
		t.Fatalf("second player should be matched, got %+v", res)
	}

	s, err := games.Get(ctx, res.GameID)
	if err != nil {
		t.Fatalf("Get matched game: %v", err)
	}
	if s.Status != domain.StatusOngoing || s.White == nil || s.Black == nil {
		t.Fatalf("matched game not ongoing with both slots: %+v", s)
	}
	seated := map[string]bool{s.White.ID: true, s.Black.ID: true}
	if !seated[a.ID] || !seated[b.ID] {
		t.Fatalf("wrong players seated: %+v", seated)
	}

	// the waiter learns the game from their mailbox, exactly once
	chk, err := q.CheckMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("CheckMatch: %v", err)
	}
	if chk.Status != StatusMatched || chk.GameID != res.GameID {
		t.Fatalf("waiter mailbox wrong: %+v", chk)
	}
	chk, _ = q.CheckMatch(ctx, a.ID)
	if chk.Status != StatusSearching {
		t.Fatalf("mailbox must drain on read, got %+v", chk)
	}

	ap, _ := players.Get(ctx, a.ID)
	bp, _ := players.Get(ctx, b.ID)
	if ap.CurrentGameID != res.GameID || bp.CurrentGameID != res.GameID {
		t.Fatalf("current game not set: %q %q", ap.CurrentGameID, bp.CurrentGameID)
	}
}

func TestFindMatchCeiling(t *testing.T) {
	q, players, games := newTestQueue(t, 1)
	ctx := context.Background()
	a, _ := players.Guest(ctx)

	if _, err := games.CreateMatched(ctx,
		game.PlayerRef{ID: "x", Name: "x"}, game.PlayerRef{ID: "y", Name: "y"}); err != nil {
		t.Fatalf("CreateMatched: %v", err)
	}
	res, err := q.FindMatch(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if res.Status != StatusFull {
		t.Fatalf("expected full at ceiling, got %s", res.Status)
	}
}

func TestCancelLeavesQueue(t *testing.T) {
	q, players, _ := newTestQueue(t, 0)
	ctx := context.Background()
	a, _ := players.Guest(ctx)
	b, _ := players.Guest(ctx)

	if _, err := q.FindMatch(ctx, a.ID); err != nil {
		t.Fatalf("FindMatch: %v", err)
	}
	if err := q.Cancel(ctx, a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	// cancel of a non-queued player is a no-op
	if err := q.Cancel(ctx, b.ID); err != nil {
		t.Fatalf("Cancel non-queued: %v", err)
	}

	res, err := q.FindMatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("FindMatch after cancel: %v", err)
	}
	if res.Status != StatusSearching {
		t.Fatalf("cancelled player must not be paired, got %+v", res)
	}
}

func TestConcurrentFindMatchNeverDoubleSeats(t *testing.T) {
	q, players, games := newTestQueue(t, 0)
	ctx := context.Background()

	const n = 12
	ids := make([]string, n)
	for i := range ids {
		p, err := players.Guest(ctx)
		if err != nil {
			t.Fatalf("Guest: %v", err)
		}
		ids[i] = p.ID
	}

	var wg sync.WaitGroup
	errCh := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := q.FindMatch(ctx, id); err != nil {
				errCh <- err
			}
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrent FindMatch: %v", err)
	}

	known := map[string]bool{}
	for _, id := range ids {
		known[id] = true
	}

	// every seated player occupies exactly one seat in exactly one game
	active, err := games.ActiveIDs(ctx)
	if err != nil {
		t.Fatalf("ActiveIDs: %v", err)
	}
	seated := map[string]int{}
	for _, gid := range active {
		s, err := games.Get(ctx, gid)
		if err != nil {
			t.Fatalf("Get %s: %v", gid, err)
		}
		if s.White == nil || s.Black == nil {
			t.Fatalf("paired game %s missing a slot: %+v", gid, s)
		}
		seated[s.White.ID]++
		seated[s.Black.ID]++
	}
	for id, c := range seated {
		if !known[id] {
			t.Fatalf("unknown player %s seated", id)
		}
		if c != 1 {
			t.Fatalf("player %s seated %d times", id, c)
		}
	}
	if len(seated) != 2*len(active) {
		t.Fatalf("seat count %d does not match %d games", len(seated), len(active))
	}

	// unseated players are still queued: no mailbox, eligible to pair later
	for _, id := range ids {
		if seated[id] == 1 {
			continue
		}
		res, err := q.CheckMatch(ctx, id)
		if err != nil {
			t.Fatalf("CheckMatch %s: %v", id, err)
		}
		if res.Status != StatusSearching {
			t.Fatalf("unseated player %s reports %s", id, res.Status)
		}
	}
}

func TestCheckMatchEmpty(t *testing.T) {
	q, players, _ := newTestQueue(t, 0)
	a, _ := players.Guest(context.Background())
	res, err := q.CheckMatch(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("CheckMatch: %v", err)
	}
	if res.Status != StatusSearching {
		t.Fatalf("empty mailbox should report searching, got %+v", res)
	}
}
