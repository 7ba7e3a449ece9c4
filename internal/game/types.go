package game

import (
	"time"

	"github.com/kapu/chess-arena/internal/domain"
)

// PlayerRef is the slot-level view of a participant.
type PlayerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ChatMessage struct {
	ID         string    `json:"id"`
	PlayerID   string    `json:"player_id"`
	PlayerName string    `json:"player_name"`
	Text       string    `json:"text"`
	Ts         time.Time `json:"ts"`
}

// Session is the persisted state of one two-player game. White is fixed at
// creation; Black is nil until a second player joins (at most once). Status
// only ever advances toward a terminal state.
type Session struct {
	ID      string            `json:"id"`
	FEN     string            `json:"fen"`
	Turn    domain.Color      `json:"turn"`
	Status  domain.GameStatus `json:"status"`
	History []string          `json:"history"`

	White *PlayerRef `json:"white"`
	Black *PlayerRef `json:"black,omitempty"`

	Winner    domain.Color `json:"winner,omitempty"`
	Chat      []ChatMessage `json:"chat,omitempty"`
	PartyCode string        `json:"party_code,omitempty"`
	// DrawOffer is the color with a pending offer, empty when none.
	DrawOffer domain.Color `json:"draw_offer,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// colorOf returns the color playerID occupies, or "" for non-participants.
func (s *Session) colorOf(playerID string) domain.Color {
	if s.White != nil && s.White.ID == playerID {
		return domain.White
	}
	if s.Black != nil && s.Black.ID == playerID {
		return domain.Black
	}
	return ""
}
