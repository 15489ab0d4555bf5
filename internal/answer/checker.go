// Package answer judges attempted moves by engine evaluation rather than by
// comparing against a single stored move. Any move that keeps the player's
// winning chances close to the position's best line counts as correct, so
// alternate refutations are accepted without an opening-book of solutions.
package answer

import (
	"fmt"
	"math"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// winDeltaThreshold is the win-likelihood loss still accepted as correct,
// boundary inclusive. The policy started at -10.0 and was tightened; keep
// the comparison against this constant only.
const winDeltaThreshold = -1.0

// WinLikelihood maps a centipawn evaluation onto a 0-100 winning-chance
// scale from the mover's perspective.
func WinLikelihood(cp float64) float64 {
	return 50 + 50*(2/(1+math.Exp(-0.00368*cp))-1)
}

// Verdict is the outcome of judging one attempted move.
type Verdict struct {
	Correct bool
	// Delta is the win-likelihood change the move produced, in points on
	// the 0-100 scale.
	Delta float64
}

// Judge compares the evaluation before the attempt with the evaluation after
// the attempted move. Both are centipawns from the mover's perspective;
// callers flip the sign for Black before calling. Non-finite evaluations are
// rejected before any state is touched.
func Judge(initialCp, moveCp float64) (Verdict, error) {
	if !finite(initialCp) || !finite(moveCp) {
		return Verdict{}, fmt.Errorf("%w: evaluation must be a finite centipawn value", domain.ErrInvalidInput)
	}
	delta := WinLikelihood(moveCp) - WinLikelihood(initialCp)
	return Verdict{
		Correct: delta >= winDeltaThreshold,
		Delta:   delta,
	}, nil
}

// RewardMultiplier scales the base reward by how many attempts the success
// took: 1.0 on the first attempt, halved for each retry.
func RewardMultiplier(attemptIndex int) float64 {
	if attemptIndex <= 1 {
		return 1.0
	}
	return math.Pow(2, -float64(attemptIndex-1))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
