// Package liveness periodically sweeps active games and abandons those whose
// participants stopped heartbeating. Abandon itself re-checks every
// precondition atomically, so a stale read here can at worst cause a no-op.
package liveness

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/game"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/player"
)

// DefaultInterval is how often the sweep runs.
const DefaultInterval = 30 * time.Second

type Monitor struct {
	games    *game.Manager
	players  *player.Manager
	interval time.Duration
}

func NewMonitor(games *game.Manager, players *player.Manager, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{games: games, players: players, interval: interval}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep abandons every ongoing game that has an offline participant. Errors
// on individual games are logged and do not stop the pass.
func (m *Monitor) Sweep(ctx context.Context) {
	ids, err := m.games.ActiveIDs(ctx)
	if err != nil {
		obslog.L().Error("liveness_list_error", zap.Error(err))
		return
	}
	for _, id := range ids {
		s, err := m.games.Get(ctx, id)
		if err != nil {
			obslog.L().Warn("liveness_load_error", zap.String("game_id", id), zap.Error(err))
			continue
		}
		if s.Status != domain.StatusOngoing || s.White == nil || s.Black == nil {
			continue
		}
		if staleID := m.staleParticipant(ctx, s); staleID != "" {
			if _, err := m.games.Abandon(ctx, s.ID, staleID); err != nil {
				obslog.L().Warn("liveness_abandon_error",
					zap.String("game_id", s.ID), zap.String("player_id", staleID), zap.Error(err))
				continue
			}
			obslog.L().Info("liveness_abandoned",
				zap.String("game_id", s.ID), zap.String("player_id", staleID))
		}
	}
}

func (m *Monitor) staleParticipant(ctx context.Context, s *game.Session) string {
	for _, ref := range []*game.PlayerRef{s.White, s.Black} {
		p, err := m.players.Get(ctx, ref.ID)
		if err != nil {
			obslog.L().Warn("liveness_player_load_error",
				zap.String("player_id", ref.ID), zap.Error(err))
			continue
		}
		if !m.players.Online(p) {
			return p.ID
		}
	}
	return ""
}
