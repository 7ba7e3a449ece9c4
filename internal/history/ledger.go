// Package history keeps a bounded per-player log of finished games, newest
// first. A row is appended exactly once per player per terminated session.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/store"
)

// MaxEntries caps each player's ledger; older rows fall off the end.
const MaxEntries = 50

// Summary is one finished game from a single player's point of view.
type Summary struct {
	GameID          string            `json:"game_id"`
	WhitePlayerName string            `json:"white_player_name"`
	BlackPlayerName string            `json:"black_player_name"`
	Result          domain.Result     `json:"result"`
	EndStatus       domain.GameStatus `json:"end_status"`
	Date            time.Time         `json:"date"`
}

type Ledger struct {
	st *store.Store
}

func NewLedger(st *store.Store) *Ledger { return &Ledger{st: st} }

type record struct {
	Games []Summary `json:"games"`
}

func ledgerKey(playerID string) string { return "history:" + strings.TrimSpace(playerID) }

// Append prepends one summary to the player's ledger, trimming to MaxEntries.
func (l *Ledger) Append(ctx context.Context, playerID string, s Summary) error {
	_, err := store.Update(ctx, l.st, ledgerKey(playerID), func(rec *record, found bool) error {
		games := make([]Summary, 0, len(rec.Games)+1)
		games = append(games, s)
		games = append(games, rec.Games...)
		if len(games) > MaxEntries {
			games = games[:MaxEntries]
		}
		rec.Games = games
		return nil
	})
	return err
}

// List returns the player's ledger, newest first; empty when absent.
func (l *Ledger) List(ctx context.Context, playerID string) ([]Summary, error) {
	rec, err := store.Get[record](ctx, l.st, ledgerKey(playerID))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return []Summary{}, nil
	}
	return rec.Games, nil
}
