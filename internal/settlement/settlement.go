// Package settlement applies the per-player consequences of a finished game:
// result counters, current-game cleanup and one history row for each side.
package settlement

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/history"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/player"
)

type Settler struct {
	players *player.Manager
	ledger  *history.Ledger
}

func New(players *player.Manager, ledger *history.Ledger) *Settler {
	return &Settler{players: players, ledger: ledger}
}

// Settle runs once per terminated session. Sub-steps are individually atomic
// and independent; a failure in one is logged and does not block the others.
func (s *Settler) Settle(ctx context.Context, sess *game.Session, results map[string]domain.Result) {
	now := time.Now()
	for _, ref := range []*game.PlayerRef{sess.White, sess.Black} {
		if ref == nil {
			continue
		}
		res := results[ref.ID]
		if err := s.players.ApplyResult(ctx, ref.ID, res); err != nil {
			obslog.L().Error("settle_apply_result_error",
				zap.String("game_id", sess.ID), zap.String("player_id", ref.ID), zap.Error(err))
		}
		if err := s.players.ClearCurrentGame(ctx, ref.ID, sess.ID); err != nil {
			obslog.L().Error("settle_clear_current_game_error",
				zap.String("game_id", sess.ID), zap.String("player_id", ref.ID), zap.Error(err))
		}
		row := history.Summary{
			GameID:          sess.ID,
			WhitePlayerName: sess.White.Name,
			BlackPlayerName: sess.Black.Name,
			Result:          res,
			EndStatus:       sess.Status,
			Date:            now,
		}
		if err := s.ledger.Append(ctx, ref.ID, row); err != nil {
			obslog.L().Error("settle_history_error",
				zap.String("game_id", sess.ID), zap.String("player_id", ref.ID), zap.Error(err))
		}
	}
}
