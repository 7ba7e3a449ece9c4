// Package identity enforces one-owner-per-username. The lock record is keyed
// by the normalized name and claimed with an atomic compare-and-set, so under
// concurrent registration exactly one claimant wins.
package identity

import (
	"context"
	"strings"

	"github.com/kapu/chess-arena/internal/store"
)

type Lock struct {
	st *store.Store
}

func NewLock(st *store.Store) *Lock { return &Lock{st: st} }

type record struct {
	OwnerID string `json:"owner_id"`
}

// Normalize maps a display name to its lock key form.
func Normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

func lockKey(name string) string { return "namelock:" + Normalize(name) }

// Acquire claims the name for claimantID. Succeeds when the name is unclaimed
// or already owned by the same claimant (idempotent retry); fails when another
// player holds it.
func (l *Lock) Acquire(ctx context.Context, name, claimantID string) (bool, error) {
	taken := false
	_, err := store.Update(ctx, l.st, lockKey(name), func(cur *record, found bool) error {
		if found && cur.OwnerID != "" && cur.OwnerID != claimantID {
			taken = true
			return store.ErrSkipWrite
		}
		cur.OwnerID = claimantID
		return nil
	})
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Resolve returns the owning player id for a name, or "" when unclaimed.
func (l *Lock) Resolve(ctx context.Context, name string) (string, error) {
	rec, err := store.Get[record](ctx, l.st, lockKey(name))
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "", nil
	}
	return rec.OwnerID, nil
}
