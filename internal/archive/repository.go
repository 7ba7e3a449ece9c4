// Package archive persists finished games to Postgres for long-term storage.
// The hot path lives entirely in Redis; this is write-only bookkeeping fed by
// settlement.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/kapu/chess-arena/internal/domain"
	"github.com/kapu/chess-arena/internal/game"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SaveResult upserts one finished session. Re-running for the same game id is
// harmless.
func (r *Repository) SaveResult(ctx context.Context, s *game.Session) error {
	if r == nil || r.db == nil || s == nil {
		return nil
	}

	pgnResult := resultToPGN(s.Winner, s.Status)
	pgn := buildPGN(s, pgnResult)
	movesRaw, _ := json.Marshal(s.History)
	duration := s.UpdatedAt.Sub(s.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	var blackID, blackName string
	if s.Black != nil {
		blackID, blackName = s.Black.ID, s.Black.Name
	}

	q := `INSERT INTO finished_games (
	    game_id, white_id, white_name, black_id, black_name,
	    party_code, end_status, winner, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	  ) ON CONFLICT (game_id) DO UPDATE SET
	    white_id=EXCLUDED.white_id,
	    white_name=EXCLUDED.white_name,
	    black_id=EXCLUDED.black_id,
	    black_name=EXCLUDED.black_name,
	    party_code=EXCLUDED.party_code,
	    end_status=EXCLUDED.end_status,
	    winner=EXCLUDED.winner,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    started_at=EXCLUDED.started_at,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.White.ID, s.White.Name,
		blackID, blackName,
		s.PartyCode, string(s.Status), string(s.Winner),
		string(movesRaw), pgn,
		s.CreatedAt, s.UpdatedAt, duration,
	)
	return err
}

func resultToPGN(winner domain.Color, status domain.GameStatus) string {
	switch winner {
	case domain.White:
		return "1-0"
	case domain.Black:
		return "0-1"
	}
	if status.Terminal() {
		return "1/2-1/2"
	}
	return "*"
}

func buildPGN(s *game.Session, pgnResult string) string {
	var b strings.Builder
	date := s.UpdatedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Chess Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(s.White.Name)))
	if s.Black != nil {
		b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(s.Black.Name)))
	}
	b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(string(s.Status))))
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(s.History); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(s.History[i])))
		if i+1 < len(s.History) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(s.History[i+1]))
		}
		b.WriteString(" ")
	}
	if pgnResult != "" {
		b.WriteString(pgnResult)
	}
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
