// Package game implements the turn-based session state machine: joining,
// moves, chat, the draw-offer protocol, abandonment and end-of-game
// settlement. Every operation is one atomic read-modify-write against the
// session key; no intermediate state is ever observable.
package game

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kapu/chess-arena/internal/apperr"
	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/rules"
	"github.com/kapu/chess-arena/internal/store"
)

// Archiver receives finished sessions for long-term storage. Archival is
// best-effort; a nil Archiver disables it.
type Archiver interface {
	SaveResult(ctx context.Context, s *Session) error
}

// Settler applies the per-player side effects of a terminated session.
// Implemented by the player manager + history ledger pair; split out so the
// session core stays free of their storage details.
type Settler interface {
	Settle(ctx context.Context, s *Session, results map[string]domain.Result)
}

type Manager struct {
	st      *store.Store
	engine  rules.Engine
	settler Settler
	archive Archiver
}

func NewManager(st *store.Store, engine rules.Engine, settler Settler) *Manager {
	return &Manager{st: st, engine: engine, settler: settler}
}

// AttachArchive wires an optional finished-game archive.
func (m *Manager) AttachArchive(a Archiver) { m.archive = a }

func gameKey(id string) string { return "game:" + strings.TrimSpace(id) }

const activeIndexKey = "game:index:active"

// Create opens a session in waiting status with the creator as white.
// partyCode may be empty.
func (m *Manager) Create(ctx context.Context, creator PlayerRef, partyCode string) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		FEN:       domain.StartFEN,
		Turn:      domain.White,
		Status:    domain.StatusWaiting,
		History:   []string{},
		White:     &creator,
		PartyCode: strings.ToUpper(strings.TrimSpace(partyCode)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.persistNew(ctx, s); err != nil {
		return nil, err
	}
	obslog.L().Info("game_create",
		zap.String("game_id", s.ID),
		zap.String("white_id", creator.ID),
		zap.String("party_code", s.PartyCode),
	)
	return s, nil
}

// CreateMatched opens a session directly in ongoing status with both slots
// filled; used by the matchmaker.
func (m *Manager) CreateMatched(ctx context.Context, white, black PlayerRef) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		FEN:       domain.StartFEN,
		Turn:      domain.White,
		Status:    domain.StatusOngoing,
		History:   []string{},
		White:     &white,
		Black:     &black,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.persistNew(ctx, s); err != nil {
		return nil, err
	}
	obslog.L().Info("game_create_matched",
		zap.String("game_id", s.ID),
		zap.String("white_id", white.ID),
		zap.String("black_id", black.ID),
	)
	return s, nil
}

func (m *Manager) persistNew(ctx context.Context, s *Session) error {
	if err := store.Put(ctx, m.st, gameKey(s.ID), s); err != nil {
		return err
	}
	return m.st.Client().SAdd(ctx, activeIndexKey, s.ID).Err()
}

// SetPartyCode binds a code to a session created without one. A session that
// already carries a code is left untouched.
func (m *Manager) SetPartyCode(ctx context.Context, id, code string) (*Session, error) {
	return store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		if !found {
			return apperr.NotFound("game not found")
		}
		if cur.PartyCode != "" {
			return store.ErrSkipWrite
		}
		cur.PartyCode = strings.ToUpper(strings.TrimSpace(code))
		return nil
	})
}

// Get loads one session.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	s, err := store.Get[Session](ctx, m.st, gameKey(id))
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, apperr.NotFound("game not found")
	}
	return s, nil
}

// ActiveCount is the number of waiting+ongoing sessions.
func (m *Manager) ActiveCount(ctx context.Context) (int64, error) {
	return m.st.Client().SCard(ctx, activeIndexKey).Result()
}

// ActiveIDs lists waiting+ongoing session ids.
func (m *Manager) ActiveIDs(ctx context.Context) ([]string, error) {
	return m.st.Client().SMembers(ctx, activeIndexKey).Result()
}

// Join seats p in the second slot and starts the game. Joining a session the
// player already occupies is an idempotent success; a seat held by someone
// else is Conflict.
func (m *Manager) Join(ctx context.Context, id string, p PlayerRef) (*Session, error) {
	s, err := store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		if !found {
			return apperr.NotFound("game not found")
		}
		if cur.colorOf(p.ID) != "" {
			return store.ErrSkipWrite
		}
		if cur.Black != nil {
			return apperr.Conflict("game is already full")
		}
		cur.Black = &p
		cur.Status = domain.StatusOngoing
		cur.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_join", zap.String("game_id", id), zap.String("player_id", p.ID))
	return s, nil
}

// Move validates and applies one move for playerID. On a legal move the
// notation is appended, the turn flips and any pending draw offer is cleared;
// a game-ending move also records the winner, clears chat and settles.
func (m *Manager) Move(ctx context.Context, id, playerID string, mv domain.Move) (*Session, error) {
	var ended bool
	s, err := store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		ended = false
		if !found {
			return apperr.NotFound("game not found")
		}
		if cur.Status == domain.StatusWaiting {
			return apperr.InvalidState("waiting for opponent to join")
		}
		if cur.Status.Terminal() {
			return apperr.InvalidState("game is over")
		}
		if cur.Black == nil {
			return apperr.InvalidState("opponent has not joined yet")
		}
		color := cur.colorOf(playerID)
		if color == "" {
			return apperr.InvalidState("player not in this game")
		}
		if cur.Turn != color {
			return apperr.InvalidState("not your turn")
		}
		v, err := m.engine.Apply(cur.FEN, mv)
		if err != nil {
			return err
		}
		if !v.Legal {
			return apperr.IllegalInput("invalid move")
		}
		cur.FEN = v.NewFEN
		cur.History = append(cur.History, v.SAN)
		cur.Turn = color.Other()
		cur.DrawOffer = ""
		cur.UpdatedAt = time.Now()
		if v.Status != "" {
			if !cur.Status.CanTransitionTo(v.Status) {
				return apperr.InvalidState("game is over")
			}
			cur.Status = v.Status
			cur.Winner = v.Winner
			cur.Chat = nil
			ended = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_move",
		zap.String("game_id", id),
		zap.String("player_id", playerID),
		zap.String("san", lastSAN(s)),
		zap.String("status", string(s.Status)),
	)
	if ended {
		m.settle(ctx, s)
	}
	return s, nil
}

// OfferDraw records a pending offer by playerID's color.
func (m *Manager) OfferDraw(ctx context.Context, id, playerID string) (*Session, error) {
	s, err := store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		if !found {
			return apperr.NotFound("game not found")
		}
		if cur.Status != domain.StatusOngoing {
			return apperr.InvalidState("game is not ongoing")
		}
		color := cur.colorOf(playerID)
		if color == "" {
			return apperr.InvalidState("player not in this game")
		}
		if cur.DrawOffer != "" {
			return apperr.InvalidState("a draw offer is already pending")
		}
		cur.DrawOffer = color
		cur.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_draw_offer", zap.String("game_id", id), zap.String("player_id", playerID))
	return s, nil
}

// RespondToDraw resolves a pending offer. Only the color that did not offer
// may respond; accepting ends the game as a draw, rejecting clears the offer.
func (m *Manager) RespondToDraw(ctx context.Context, id, playerID string, accept bool) (*Session, error) {
	var ended bool
	s, err := store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		ended = false
		if !found {
			return apperr.NotFound("game not found")
		}
		if cur.Status != domain.StatusOngoing {
			return apperr.InvalidState("game is not ongoing")
		}
		if cur.Black == nil {
			return apperr.InvalidState("opponent has not joined yet")
		}
		color := cur.colorOf(playerID)
		if color == "" {
			return apperr.InvalidState("player not in this game")
		}
		if cur.DrawOffer == "" || cur.DrawOffer == color {
			return apperr.InvalidState("no draw offer to respond to")
		}
		cur.DrawOffer = ""
		cur.UpdatedAt = time.Now()
		if accept {
			cur.Status = domain.StatusDraw
			cur.Chat = nil
			ended = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	obslog.L().Info("game_draw_response",
		zap.String("game_id", id),
		zap.String("player_id", playerID),
		zap.Bool("accept", accept),
	)
	if ended {
		m.settle(ctx, s)
	}
	return s, nil
}

// SendChat appends a message. Messages sent after termination land in the
// fresh empty log and are never rendered; that is acceptable.
func (m *Manager) SendChat(ctx context.Context, id, playerID, playerName, text string) (*Session, error) {
	msg := ChatMessage{
		ID:         uuid.NewString(),
		PlayerID:   playerID,
		PlayerName: playerName,
		Text:       text,
		Ts:         time.Now(),
	}
	return store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		if !found {
			return apperr.NotFound("game not found")
		}
		cur.Chat = append(cur.Chat, msg)
		return nil
	})
}

// Abandon declares the other participant the winner. Invoked by the liveness
// monitor on stale presence; any precondition miss is a silent no-op.
func (m *Manager) Abandon(ctx context.Context, id, playerID string) (*Session, error) {
	var ended bool
	s, err := store.Update(ctx, m.st, gameKey(id), func(cur *Session, found bool) error {
		ended = false
		if !found {
			return apperr.NotFound("game not found")
		}
		if cur.Status != domain.StatusOngoing || cur.Black == nil {
			return store.ErrSkipWrite
		}
		color := cur.colorOf(playerID)
		if color == "" {
			return store.ErrSkipWrite
		}
		cur.Status = domain.StatusAbandoned
		cur.Winner = color.Other()
		cur.Chat = nil
		cur.UpdatedAt = time.Now()
		ended = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if ended {
		obslog.L().Info("game_abandon",
			zap.String("game_id", id),
			zap.String("abandoned_by", playerID),
			zap.String("winner", string(s.Winner)),
		)
		m.settle(ctx, s)
	}
	return s, nil
}

// settle runs exactly once per terminated session: it is only reached by the
// caller whose transition to a terminal status won the CAS. Each sub-step is
// individually atomic; the session record itself is already final.
func (m *Manager) settle(ctx context.Context, s *Session) {
	if s.White == nil || s.Black == nil {
		return
	}
	results := map[string]domain.Result{}
	switch s.Winner {
	case domain.White:
		results[s.White.ID] = domain.ResultWin
		results[s.Black.ID] = domain.ResultLoss
	case domain.Black:
		results[s.White.ID] = domain.ResultLoss
		results[s.Black.ID] = domain.ResultWin
	default:
		results[s.White.ID] = domain.ResultDraw
		results[s.Black.ID] = domain.ResultDraw
	}
	if m.settler != nil {
		m.settler.Settle(ctx, s, results)
	}
	if err := m.st.Client().SRem(ctx, activeIndexKey, s.ID).Err(); err != nil {
		obslog.L().Warn("game_active_index_remove_error", zap.String("game_id", s.ID), zap.Error(err))
	}
	if m.archive != nil {
		if err := m.archive.SaveResult(ctx, s); err != nil {
			obslog.L().Error("game_archive_error", zap.String("game_id", s.ID), zap.Error(err))
		}
	}
	obslog.L().Info("game_settled",
		zap.String("game_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.String("winner", string(s.Winner)),
	)
}

func lastSAN(s *Session) string {
	if n := len(s.History); n > 0 {
		return s.History[n-1]
	}
	return ""
}
