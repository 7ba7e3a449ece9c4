// Package rules is the move-legality boundary. The session core hands it a
// position and a proposed move and trusts the verdict; all chess knowledge
// lives behind this interface.
package rules

import (
	nchess "github.com/corentings/chess/v2"

	"github.com/kapu/chess-arena/internal/domain"
)

// Verdict is the outcome of applying one move to one position.
type Verdict struct {
	Legal  bool
	NewFEN string
	SAN    string
	// Status is set when the move ends the game, empty while play continues.
	Status domain.GameStatus
	// Winner is set only for checkmate.
	Winner domain.Color
}

type Engine interface {
	Apply(fen string, mv domain.Move) (*Verdict, error)
}

type ChessEngine struct{}

func NewEngine() *ChessEngine { return &ChessEngine{} }

// Apply validates mv against the position in fen. An unparseable or illegal
// move yields Legal=false and no further fields; a malformed fen is an error.
func (e *ChessEngine) Apply(fen string, mv domain.Move) (*Verdict, error) {
	fenOpt, err := nchess.FEN(fen)
	if err != nil {
		return nil, err
	}
	game := nchess.NewGame(fenOpt)
	pos := game.Position()

	uci := mv.UCI()
	if uci == "" {
		return &Verdict{}, nil
	}
	decoded, derr := nchess.UCINotation{}.Decode(pos, uci)
	if derr != nil {
		return &Verdict{}, nil
	}
	san := nchess.AlgebraicNotation{}.Encode(pos, decoded)
	if merr := game.Move(decoded, nil); merr != nil {
		return &Verdict{}, nil
	}

	v := &Verdict{Legal: true, NewFEN: game.FEN(), SAN: san}
	switch game.Outcome() {
	case nchess.WhiteWon:
		v.Status = domain.StatusCheckmate
		v.Winner = domain.White
	case nchess.BlackWon:
		v.Status = domain.StatusCheckmate
		v.Winner = domain.Black
	case nchess.Draw:
		v.Status = drawStatus(game.Method())
	default:
		// Claimable draws count as immediate terminal states here; there is
		// no claim step in this protocol.
		for _, m := range game.EligibleDraws() {
			switch m {
			case nchess.ThreefoldRepetition:
				v.Status = domain.StatusThreefoldRepetition
			case nchess.FiftyMoveRule:
				v.Status = domain.StatusDraw
			}
		}
	}
	return v, nil
}

func drawStatus(m nchess.Method) domain.GameStatus {
	switch m {
	case nchess.Stalemate:
		return domain.StatusStalemate
	case nchess.InsufficientMaterial:
		return domain.StatusInsufficientMaterial
	case nchess.ThreefoldRepetition, nchess.FivefoldRepetition:
		return domain.StatusThreefoldRepetition
	default:
		return domain.StatusDraw
	}
}
