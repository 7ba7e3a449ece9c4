// Package matchmaking pairs waiting players into games. The queue is a single
// atomically-updated record; a successful pairing deposits the new game id in
// a per-player mailbox that each side polls and drains exactly once.
package matchmaking

import (
	"context"
	"crypto/rand"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/player"
	"github.com/kapu/chess-arena/internal/store"
)

const (
	StatusSearching = "searching"
	StatusMatched   = "matched"
	StatusFull      = "full"
)

// DefaultMaxActive caps the number of concurrent unfinished games.
const DefaultMaxActive = 50

// FindResult is the outcome of one matchmaking poll. GameID is set only when
// Status is matched.
type FindResult struct {
	Status string `json:"status"`
	GameID string `json:"game_id,omitempty"`
}

type Queue struct {
	st        *store.Store
	games     *game.Manager
	players   *player.Manager
	maxActive int64
}

func NewQueue(st *store.Store, games *game.Manager, players *player.Manager, maxActive int64) *Queue {
	if maxActive <= 0 {
		maxActive = DefaultMaxActive
	}
	return &Queue{st: st, games: games, players: players, maxActive: maxActive}
}

const queueKey = "mm:queue"

func mailboxKey(playerID string) string { return "mm:mailbox:" + strings.TrimSpace(playerID) }

type queueRecord struct {
	Waiting []string `json:"waiting"`
}

// FindMatch enters the queue or, when someone is already waiting, pairs with
// them immediately. Re-entry while queued is idempotent. A server at its game
// ceiling reports full without touching the queue.
func (q *Queue) FindMatch(ctx context.Context, playerID string) (*FindResult, error) {
	active, err := q.games.ActiveCount(ctx)
	if err != nil {
		return nil, err
	}
	if active >= q.maxActive {
		return &FindResult{Status: StatusFull}, nil
	}

	var opponentID string
	_, err = store.Update(ctx, q.st, queueKey, func(rec *queueRecord, found bool) error {
		opponentID = ""
		for _, id := range rec.Waiting {
			if id == playerID {
				return store.ErrSkipWrite
			}
		}
		if len(rec.Waiting) > 0 {
			opponentID = rec.Waiting[0]
			rec.Waiting = rec.Waiting[1:]
			return nil
		}
		rec.Waiting = append(rec.Waiting, playerID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opponentID == "" {
		return &FindResult{Status: StatusSearching}, nil
	}
	return q.pair(ctx, opponentID, playerID)
}

// pair creates the matched game and deposits its id in both mailboxes. The
// caller learns the game id directly; the opponent learns it from their next
// CheckMatch poll.
func (q *Queue) pair(ctx context.Context, waiterID, joinerID string) (*FindResult, error) {
	waiter, err := q.players.Get(ctx, waiterID)
	if err != nil {
		return nil, err
	}
	joiner, err := q.players.Get(ctx, joinerID)
	if err != nil {
		return nil, err
	}

	whiteP, blackP := waiter, joiner
	if coinFlip() {
		whiteP, blackP = joiner, waiter
	}
	s, err := q.games.CreateMatched(ctx,
		game.PlayerRef{ID: whiteP.ID, Name: whiteP.Name},
		game.PlayerRef{ID: blackP.ID, Name: blackP.Name},
	)
	if err != nil {
		return nil, err
	}

	for _, id := range []string{waiterID, joinerID} {
		if err := q.st.Client().Set(ctx, mailboxKey(id), s.ID, 0).Err(); err != nil {
			return nil, err
		}
		if err := q.players.SetCurrentGame(ctx, id, s.ID); err != nil {
			obslog.L().Warn("matchmaking_set_current_game_error",
				zap.String("player_id", id), zap.Error(err))
		}
	}
	obslog.L().Info("matchmaking_paired",
		zap.String("game_id", s.ID),
		zap.String("white_id", whiteP.ID),
		zap.String("black_id", blackP.ID),
	)
	return &FindResult{Status: StatusMatched, GameID: s.ID}, nil
}

// CheckMatch drains the player's mailbox. The first poll after a pairing
// returns matched with the game id; every other poll reports searching.
func (q *Queue) CheckMatch(ctx context.Context, playerID string) (*FindResult, error) {
	gameID, err := q.st.Client().GetDel(ctx, mailboxKey(playerID)).Result()
	if err == redis.Nil {
		return &FindResult{Status: StatusSearching}, nil
	}
	if err != nil {
		return nil, err
	}
	return &FindResult{Status: StatusMatched, GameID: gameID}, nil
}

// Cancel removes the player from the queue if still waiting.
func (q *Queue) Cancel(ctx context.Context, playerID string) error {
	_, err := store.Update(ctx, q.st, queueKey, func(rec *queueRecord, found bool) error {
		if !found {
			return store.ErrSkipWrite
		}
		kept := rec.Waiting[:0]
		for _, id := range rec.Waiting {
			if id != playerID {
				kept = append(kept, id)
			}
		}
		if len(kept) == len(rec.Waiting) {
			return store.ErrSkipWrite
		}
		rec.Waiting = kept
		return nil
	})
	return err
}

func coinFlip() bool {
	var b [1]byte
	if _, err := rand.Read(b[:]); err != nil {
		return false
	}
	return b[0]&1 == 1
}
