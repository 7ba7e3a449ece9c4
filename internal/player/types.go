package player

import (
	"time"

	"github.com/kapu/chess-arena/internal/domain"
)

// FriendRequest is a pending incoming request, at most one per sender.
type FriendRequest struct {
	FromID   string `json:"from_id"`
	FromName string `json:"from_name"`
}

// GameInvitation is a pending invite into a waiting game, unique per game id.
type GameInvitation struct {
	FromID   string `json:"from_id"`
	FromName string `json:"from_name"`
	GameID   string `json:"game_id"`
}

// Profile is the persisted player record. PasswordHash is empty for guests.
type Profile struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hash,omitempty"`

	GamesPlayed int `json:"games_played"`
	Wins        int `json:"wins"`
	Losses      int `json:"losses"`
	Draws       int `json:"draws"`

	Friends                 []string         `json:"friends,omitempty"`
	IncomingFriendRequests  []FriendRequest  `json:"incoming_friend_requests,omitempty"`
	SentFriendRequests      []string         `json:"sent_friend_requests,omitempty"`
	IncomingGameInvitations []GameInvitation `json:"incoming_game_invitations,omitempty"`

	LastSeen      time.Time `json:"last_seen"`
	CurrentGameID string    `json:"current_game_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Summary is the listing form of a player: identity plus derived presence.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Online bool   `json:"online"`
}

func (p *Profile) applyResult(r domain.Result) {
	p.GamesPlayed++
	switch r {
	case domain.ResultWin:
		p.Wins++
	case domain.ResultLoss:
		p.Losses++
	default:
		p.Draws++
	}
}
