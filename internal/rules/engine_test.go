package rules

import (
	"testing"

	"github.com/kapu/chess-arena/internal/domain"
)

func TestApplyLegalMove(t *testing.T) {
	e := NewEngine()
	v, err := e.Apply(domain.StartFEN, domain.Move{From: "e2", To: "e4"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !v.Legal {
		t.Fatalf("e2e4 from start should be legal")
	}
	if v.SAN != "e4" {
		t.Fatalf("expected SAN e4, got %q", v.SAN)
	}
	if v.Status != "" {
		t.Fatalf("opening move must not end the game, got %q", v.Status)
	}
	if v.NewFEN == domain.StartFEN || v.NewFEN == "" {
		t.Fatalf("expected advanced position, got %q", v.NewFEN)
	}
}

func TestApplyIllegalMove(t *testing.T) {
	e := NewEngine()
	for _, mv := range []domain.Move{
		{From: "e2", To: "e5"}, // pawn cannot triple-step
		{From: "a1", To: "h8"}, // rook through pieces
		{From: "", To: ""},
		{From: "zz", To: "99"},
	} {
		v, err := e.Apply(domain.StartFEN, mv)
		if err != nil {
			t.Fatalf("Apply(%v): %v", mv, err)
		}
		if v.Legal {
			t.Fatalf("move %v should be illegal", mv)
		}
	}
}

func TestApplyBadFEN(t *testing.T) {
	e := NewEngine()
	if _, err := e.Apply("not a position", domain.Move{From: "e2", To: "e4"}); err == nil {
		t.Fatalf("expected error for malformed fen")
	}
}

func TestApplyCheckmate(t *testing.T) {
	e := NewEngine()
	// Scholar's mate, one move before the end.
	fen := "r1bqkbnr/pppp1ppp/2n5/4p3/2B1P3/5Q2/PPPP1PPP/RNB1K1NR w KQkq - 4 4"
	v, err := e.Apply(fen, domain.Move{From: "f3", To: "f7"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !v.Legal {
		t.Fatalf("Qxf7# should be legal")
	}
	if v.Status != domain.StatusCheckmate {
		t.Fatalf("expected checkmate, got %q", v.Status)
	}
	if v.Winner != domain.White {
		t.Fatalf("expected white winner, got %q", v.Winner)
	}
}

func TestApplyStalemate(t *testing.T) {
	e := NewEngine()
	// Kf6 leaves the lone black king with no legal move and no check.
	fen := "5k2/5P2/4K3/8/8/8/8/8 w - - 0 1"
	v, err := e.Apply(fen, domain.Move{From: "e6", To: "f6"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !v.Legal {
		t.Fatalf("Kf6 should be legal")
	}
	if v.Status != domain.StatusStalemate {
		t.Fatalf("expected stalemate, got %q", v.Status)
	}
	if v.Winner != "" {
		t.Fatalf("stalemate has no winner, got %q", v.Winner)
	}
}

func TestApplyInsufficientMaterial(t *testing.T) {
	e := NewEngine()
	// Kxa2 leaves king versus king.
	fen := "7k/8/8/8/8/8/q7/K7 w - - 0 1"
	v, err := e.Apply(fen, domain.Move{From: "a1", To: "a2"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !v.Legal {
		t.Fatalf("Kxa2 should be legal")
	}
	if v.Status != domain.StatusInsufficientMaterial {
		t.Fatalf("expected insufficient_material, got %q", v.Status)
	}
}

func TestApplyPromotion(t *testing.T) {
	e := NewEngine()
	fen := "7k/P7/8/8/8/8/8/7K w - - 0 1"
	v, err := e.Apply(fen, domain.Move{From: "a7", To: "a8", Promotion: "q"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !v.Legal {
		t.Fatalf("a8=Q should be legal")
	}
	if v.SAN != "a8=Q" && v.SAN != "a8=Q+" {
		t.Fatalf("unexpected SAN %q", v.SAN)
	}
}
