package answer

import (
	"errors"
	"math"
	"testing"

	"github.com/felixgeelhaar/hone/internal/domain"
)

func TestWinLikelihood(t *testing.T) {
	tests := []struct {
		name string
		cp   float64
		want float64
	}{
		{"level position", 0, 50.0},
		{"slight edge", 100, 59.1},
		{"winning", 500, 86.3},
		{"crushing", 1000, 97.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WinLikelihood(tt.cp)
			if math.Abs(got-tt.want) > 0.1 {
				t.Errorf("WinLikelihood(%v) = %.2f, want %.2f", tt.cp, got, tt.want)
			}
		})
	}
}

func TestWinLikelihood_Symmetry(t *testing.T) {
	for _, cp := range []float64{10, 50, 150, 300, 700} {
		up := WinLikelihood(cp)
		down := WinLikelihood(-cp)
		if math.Abs(up+down-100) > 1e-9 {
			t.Errorf("WinLikelihood(%v) + WinLikelihood(%v) = %v, want 100", cp, -cp, up+down)
		}
	}
}

func TestJudge(t *testing.T) {
	tests := []struct {
		name        string
		initialCp   float64
		moveCp      float64
		wantCorrect bool
	}{
		{"holds the evaluation", 30, 30, true},
		{"improves the position", 0, 50, true},
		{"small slip tolerated", 0, -5, true},
		// WinLikelihood(-10) loses 0.92 points, just inside the
		// threshold; -11 loses 1.01 points, just outside.
		{"boundary slip accepted", 0, -10, true},
		{"boundary slip rejected", 0, -11, false},
		{"throws the advantage", 200, -150, false},
		{"blunders a level game", 0, -300, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Judge(tt.initialCp, tt.moveCp)
			if err != nil {
				t.Fatalf("Judge() error = %v", err)
			}
			if v.Correct != tt.wantCorrect {
				t.Errorf("Judge(%v, %v).Correct = %v (delta %.3f), want %v",
					tt.initialCp, tt.moveCp, v.Correct, v.Delta, tt.wantCorrect)
			}
		})
	}
}

func TestJudge_RejectsNonFinite(t *testing.T) {
	bad := []struct {
		name      string
		initialCp float64
		moveCp    float64
	}{
		{"nan initial", math.NaN(), 0},
		{"nan move", 0, math.NaN()},
		{"positive infinity", 0, math.Inf(1)},
		{"negative infinity", math.Inf(-1), 0},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Judge(tt.initialCp, tt.moveCp)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("Judge() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestRewardMultiplier(t *testing.T) {
	tests := []struct {
		attemptIndex int
		want         float64
	}{
		{1, 1.0},
		{2, 0.5},
		{3, 0.25},
		{0, 1.0},
	}
	for _, tt := range tests {
		if got := RewardMultiplier(tt.attemptIndex); got != tt.want {
			t.Errorf("RewardMultiplier(%d) = %v, want %v", tt.attemptIndex, got, tt.want)
		}
	}
}

func TestFromSquare(t *testing.T) {
	tests := []struct {
		name        string
		fen         string
		solutionSAN string
		want        string
	}{
		{
			name:        "knight development",
			fen:         "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1",
			solutionSAN: "Nf3",
			want:        "g1",
		},
		{
			name:        "bishop capture",
			fen:         "r1bqkbnr/1ppp1ppp/p1n5/1B2p3/4P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 0 4",
			solutionSAN: "Bxc6",
			want:        "b5",
		},
		{
			name:        "castling reveals the king square",
			fen:         "r1bqk1nr/pppp1ppp/2n5/2b1p3/2B1P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 4 4",
			solutionSAN: "O-O",
			want:        "e1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromSquare(tt.fen, tt.solutionSAN)
			if err != nil {
				t.Fatalf("FromSquare() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("FromSquare() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromSquare_BadInput(t *testing.T) {
	if _, err := FromSquare("not a position", "Nf3"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("FromSquare() with bad FEN error = %v, want ErrInvalidInput", err)
	}

	start := "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	if _, err := FromSquare(start, "Qh5"); err == nil {
		t.Error("FromSquare() with an illegal reference move should fail")
	}
}
