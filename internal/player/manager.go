// Package player owns the per-player record: identity, cumulative stats,
// presence, the social graph and the current-game back-reference. Every
// mutation is an atomic read-modify-write on the player's own key.
package player

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kapu/chess-arena/internal/apperr"
	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/identity"
	"github.com/kapu/chess-arena/internal/obslog"
	"github.com/kapu/chess-arena/internal/store"
)

const (
	minNameLen     = 3
	maxNameLen     = 15
	minPasswordLen = 6
)

// DefaultOfflineThreshold is how stale a heartbeat may be before a player
// counts as offline.
const DefaultOfflineThreshold = 2 * time.Minute

type Manager struct {
	st           *store.Store
	lock         *identity.Lock
	offlineAfter time.Duration
}

func NewManager(st *store.Store, lock *identity.Lock, offlineAfter time.Duration) *Manager {
	if offlineAfter <= 0 {
		offlineAfter = DefaultOfflineThreshold
	}
	return &Manager{st: st, lock: lock, offlineAfter: offlineAfter}
}

func playerKey(id string) string { return "player:" + strings.TrimSpace(id) }

const indexKey = "player:index"

// Register creates a named account, claiming the username atomically. A held
// name fails with Conflict; only one concurrent claimant can win.
func (m *Manager) Register(ctx context.Context, name, password string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if len(name) < minNameLen || len(name) > maxNameLen {
		return nil, apperr.IllegalInput(fmt.Sprintf("username must be between %d and %d characters", minNameLen, maxNameLen))
	}
	if len(password) < minPasswordLen {
		return nil, apperr.IllegalInput(fmt.Sprintf("password must be at least %d characters long", minPasswordLen))
	}
	id := uuid.NewString()
	ok, err := m.lock.Acquire(ctx, name, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("username is already taken")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	p := &Profile{ID: id, Name: name, PasswordHash: string(hash), CreatedAt: time.Now()}
	if err := m.create(ctx, p); err != nil {
		return nil, err
	}
	obslog.L().Info("player_register", zap.String("player_id", id), zap.String("name", name))
	return p, nil
}

// Login resolves the name lock and checks the credential hash.
func (m *Manager) Login(ctx context.Context, name, password string) (*Profile, error) {
	ownerID, err := m.lock.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, apperr.NotFound("invalid username or password")
	}
	p, err := store.Get[Profile](ctx, m.st, playerKey(ownerID))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("invalid username or password")
	}
	if p.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password)) != nil {
		return nil, apperr.IllegalInput("invalid username or password")
	}
	return p, nil
}

// Guest creates an anonymous throwaway profile with a generated name.
func (m *Manager) Guest(ctx context.Context) (*Profile, error) {
	id := uuid.NewString()
	p := &Profile{ID: id, Name: "Guest_" + id[:5], CreatedAt: time.Now()}
	if err := m.create(ctx, p); err != nil {
		return nil, err
	}
	obslog.L().Info("player_guest", zap.String("player_id", id), zap.String("name", p.Name))
	return p, nil
}

func (m *Manager) create(ctx context.Context, p *Profile) error {
	if err := store.Put(ctx, m.st, playerKey(p.ID), p); err != nil {
		return err
	}
	return m.st.Client().SAdd(ctx, indexKey, p.ID).Err()
}

// Get loads one profile.
func (m *Manager) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := store.Get[Profile](ctx, m.st, playerKey(id))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("player not found")
	}
	return p, nil
}

// List returns every known player with derived presence.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	ids, err := m.st.Client().SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(ids))
	for _, id := range ids {
		p, err := store.Get[Profile](ctx, m.st, playerKey(id))
		if err != nil {
			return nil, err
		}
		if p == nil {
			continue
		}
		out = append(out, m.summary(p))
	}
	return out, nil
}

// Online derives presence from the last heartbeat.
func (m *Manager) Online(p *Profile) bool {
	return time.Since(p.LastSeen) < m.offlineAfter
}

func (m *Manager) summary(p *Profile) Summary {
	return Summary{ID: p.ID, Name: p.Name, Online: m.Online(p)}
}

// Heartbeat marks the player seen now.
func (m *Manager) Heartbeat(ctx context.Context, id string) error {
	return m.mutate(ctx, id, func(p *Profile) error {
		p.LastSeen = time.Now()
		return nil
	})
}

// ApplyResult bumps the cumulative counters for one finished game.
func (m *Manager) ApplyResult(ctx context.Context, id string, r domain.Result) error {
	return m.mutate(ctx, id, func(p *Profile) error {
		p.applyResult(r)
		return nil
	})
}

// SetCurrentGame points the player at a session; empty clears the pointer.
func (m *Manager) SetCurrentGame(ctx context.Context, id, gameID string) error {
	return m.mutate(ctx, id, func(p *Profile) error {
		p.CurrentGameID = gameID
		return nil
	})
}

// ClearCurrentGame drops the pointer only while it still references gameID,
// so a settlement cannot clobber a newer game the player already joined.
func (m *Manager) ClearCurrentGame(ctx context.Context, id, gameID string) error {
	return m.mutate(ctx, id, func(p *Profile) error {
		if p.CurrentGameID != gameID {
			return store.ErrSkipWrite
		}
		p.CurrentGameID = ""
		return nil
	})
}

// SendFriendRequest records a pending request on the target and a sent marker
// on the sender. Duplicates by the same sender are dropped silently.
func (m *Manager) SendFriendRequest(ctx context.Context, fromID, fromName, toID string) error {
	if fromID == toID {
		return apperr.IllegalInput("you cannot send a friend request to yourself")
	}
	if err := m.mutate(ctx, toID, func(p *Profile) error {
		for _, r := range p.IncomingFriendRequests {
			if r.FromID == fromID {
				return store.ErrSkipWrite
			}
		}
		p.IncomingFriendRequests = append(p.IncomingFriendRequests, FriendRequest{FromID: fromID, FromName: fromName})
		return nil
	}); err != nil {
		return err
	}
	return m.mutate(ctx, fromID, func(p *Profile) error {
		for _, id := range p.SentFriendRequests {
			if id == toID {
				return store.ErrSkipWrite
			}
		}
		p.SentFriendRequests = append(p.SentFriendRequests, toID)
		return nil
	})
}

// AcceptFriendRequest links both players and clears the pending entries.
func (m *Manager) AcceptFriendRequest(ctx context.Context, selfID, fromID string) error {
	if err := m.mutate(ctx, selfID, func(p *Profile) error {
		p.Friends = appendUnique(p.Friends, fromID)
		p.IncomingFriendRequests = removeRequest(p.IncomingFriendRequests, fromID)
		return nil
	}); err != nil {
		return err
	}
	return m.mutate(ctx, fromID, func(p *Profile) error {
		p.Friends = appendUnique(p.Friends, selfID)
		p.SentFriendRequests = removeString(p.SentFriendRequests, selfID)
		return nil
	})
}

// DeclineFriendRequest drops the pending entries on both sides. A missing
// sender is tolerated.
func (m *Manager) DeclineFriendRequest(ctx context.Context, selfID, fromID string) error {
	if err := m.mutate(ctx, selfID, func(p *Profile) error {
		p.IncomingFriendRequests = removeRequest(p.IncomingFriendRequests, fromID)
		return nil
	}); err != nil {
		return err
	}
	err := m.mutate(ctx, fromID, func(p *Profile) error {
		p.SentFriendRequests = removeString(p.SentFriendRequests, selfID)
		return nil
	})
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil
	}
	return err
}

// RemoveFriend unlinks both players. A missing counterpart is tolerated.
func (m *Manager) RemoveFriend(ctx context.Context, selfID, friendID string) error {
	if err := m.mutate(ctx, selfID, func(p *Profile) error {
		p.Friends = removeString(p.Friends, friendID)
		return nil
	}); err != nil {
		return err
	}
	err := m.mutate(ctx, friendID, func(p *Profile) error {
		p.Friends = removeString(p.Friends, selfID)
		return nil
	})
	if apperr.IsKind(err, apperr.KindNotFound) {
		return nil
	}
	return err
}

// Friends resolves the friend list to summaries, skipping dangling ids.
func (m *Manager) Friends(ctx context.Context, id string) ([]Summary, error) {
	p, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(p.Friends))
	for _, fid := range p.Friends {
		f, err := store.Get[Profile](ctx, m.st, playerKey(fid))
		if err != nil {
			return nil, err
		}
		if f == nil {
			continue
		}
		out = append(out, m.summary(f))
	}
	return out, nil
}

// AddGameInvitation appends a pending invite, unique per game id.
func (m *Manager) AddGameInvitation(ctx context.Context, toID string, inv GameInvitation) error {
	return m.mutate(ctx, toID, func(p *Profile) error {
		for _, v := range p.IncomingGameInvitations {
			if v.GameID == inv.GameID {
				return store.ErrSkipWrite
			}
		}
		p.IncomingGameInvitations = append(p.IncomingGameInvitations, inv)
		return nil
	})
}

// RemoveGameInvitation drops the invite for a game, if present.
func (m *Manager) RemoveGameInvitation(ctx context.Context, id, gameID string) error {
	return m.mutate(ctx, id, func(p *Profile) error {
		kept := p.IncomingGameInvitations[:0]
		for _, v := range p.IncomingGameInvitations {
			if v.GameID != gameID {
				kept = append(kept, v)
			}
		}
		p.IncomingGameInvitations = kept
		return nil
	})
}

// mutate runs fn inside the player's CAS loop; absent players are NotFound,
// never implicitly created.
func (m *Manager) mutate(ctx context.Context, id string, fn func(*Profile) error) error {
	_, err := store.Update(ctx, m.st, playerKey(id), func(p *Profile, found bool) error {
		if !found {
			return apperr.NotFound("player not found")
		}
		return fn(p)
	})
	return err
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	kept := list[:0]
	for _, s := range list {
		if s != v {
			kept = append(kept, s)
		}
	}
	return kept
}

func removeRequest(list []FriendRequest, fromID string) []FriendRequest {
	kept := list[:0]
	for _, r := range list {
		if r.FromID != fromID {
			kept = append(kept, r)
		}
	}
	return kept
}
