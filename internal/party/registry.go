// Package party maps short human-shareable codes to game ids. A code is bound
// once at game creation and never mutated afterward.
package party

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kapu/chess-arena/internal/apperr"
	"github.com/kapu/chess-arena/internal/store"
)

// codeAlphabet omits 0/O and 1/I to keep codes unambiguous when read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 5

const allocAttempts = 5

type Registry struct {
	st *store.Store
}

func NewRegistry(st *store.Store) *Registry { return &Registry{st: st} }

type record struct {
	GameID string `json:"game_id"`
}

func codeKey(code string) string { return "party:" + strings.ToUpper(strings.TrimSpace(code)) }

// CreateCode allocates a fresh collision-free code and binds it to gameID.
func (r *Registry) CreateCode(ctx context.Context, gameID string) (string, error) {
	for i := 0; i < allocAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		raw, err := json.Marshal(&record{GameID: gameID})
		if err != nil {
			return "", err
		}
		// claim only if the code is unused
		ok, err := r.st.Client().SetNX(ctx, codeKey(code), raw, 0).Result()
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", apperr.Capacity(fmt.Sprintf("no free party code after %d attempts", allocAttempts))
}

// Resolve returns the game id bound to a code. Codes are case-insensitive.
func (r *Registry) Resolve(ctx context.Context, code string) (string, error) {
	raw, err := r.st.Client().Get(ctx, codeKey(code)).Bytes()
	if err == redis.Nil {
		return "", apperr.NotFound("party code not found")
	}
	if err != nil {
		return "", err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", err
	}
	if rec.GameID == "" {
		return "", apperr.NotFound("party code not bound to a game")
	}
	return rec.GameID, nil
}

func generateCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
