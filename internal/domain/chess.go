// Package domain holds the chess vocabulary shared across the server: colors,
// game lifecycle statuses and the wire form of a move.
package domain

import "strings"

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

type Color string

const (
	White Color = "w"
	Black Color = "b"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// GameStatus is a closed lifecycle enumeration. waiting -> ongoing -> one
// terminal status; nothing ever leaves a terminal status.
type GameStatus string

const (
	StatusWaiting              GameStatus = "waiting"
	StatusOngoing              GameStatus = "ongoing"
	StatusCheckmate            GameStatus = "checkmate"
	StatusStalemate            GameStatus = "stalemate"
	StatusDraw                 GameStatus = "draw"
	StatusThreefoldRepetition  GameStatus = "threefold_repetition"
	StatusInsufficientMaterial GameStatus = "insufficient_material"
	StatusAbandoned            GameStatus = "abandoned"
)

func (s GameStatus) Terminal() bool {
	switch s {
	case StatusCheckmate, StatusStalemate, StatusDraw, StatusThreefoldRepetition, StatusInsufficientMaterial, StatusAbandoned:
		return true
	}
	return false
}

// CanTransitionTo encodes the legal status edges. Terminal statuses have no
// outgoing edges, which makes terminal-to-anything structurally impossible.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	switch s {
	case StatusWaiting:
		return next == StatusOngoing || next.Terminal()
	case StatusOngoing:
		return next.Terminal()
	}
	return false
}

// Result is a single player's outcome of a finished game.
type Result string

const (
	ResultWin  Result = "win"
	ResultLoss Result = "loss"
	ResultDraw Result = "draw"
)

// Move is a square-to-square move request, promotion piece optional.
type Move struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// UCI renders the move in coordinate notation (e7e8q).
func (m Move) UCI() string {
	return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
}
