// Package selector picks the next puzzle to present. Selection prefers due
// puzzles, holds back anything answered within the cooldown window, and then
// draws weighted by difficulty so the positions a player keeps missing come
// around more often.
package selector

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// Selector draws puzzles from a candidate pool.
type Selector struct {
	logger    *slog.Logger
	randFloat func() float64
}

// New creates a selector using the default random source.
func New(logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		logger:    logger,
		randFloat: rand.Float64,
	}
}

// Due returns the subset of candidates due for review.
func Due(candidates []*domain.Puzzle, now time.Time) []*domain.Puzzle {
	var due []*domain.Puzzle
	for _, p := range candidates {
		if p.IsDue(now) {
			due = append(due, p)
		}
	}
	return due
}

// Pick chooses one puzzle. Candidates are assumed pre-filtered to the user's
// preference buckets; Pick applies the scheduling rules on top. It returns
// domain.ErrNoPuzzles when the pool is empty or the cooldown empties it.
func (s *Selector) Pick(candidates []*domain.Puzzle, settings domain.Settings, now time.Time) (*domain.Puzzle, error) {
	if len(candidates) == 0 {
		return nil, domain.ErrNoPuzzles
	}

	// The cooldown applies to both branches so a just-answered puzzle
	// never bounces straight back.
	cooldown := settings.Cooldown()
	eligible := candidates[:0:0]
	for _, p := range candidates {
		if !p.OnCooldown(now, cooldown) {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNoPuzzles
	}

	if !settings.UseSpacedRepetition {
		return eligible[s.index(len(eligible))], nil
	}

	// Due puzzles first; when nothing is due yet fall back to the whole
	// cooled-down pool rather than making the player wait.
	pool := Due(eligible, now)
	if len(pool) == 0 {
		pool = eligible
	}

	picked := s.weighted(pool)
	s.logger.Debug("picked puzzle",
		"puzzle_id", picked.ID,
		"weight", picked.Weight,
		"pool", len(pool))
	return picked, nil
}

// weighted draws proportionally to weight. A degenerate pool with no
// positive total falls back to a uniform draw.
func (s *Selector) weighted(pool []*domain.Puzzle) *domain.Puzzle {
	var total float64
	for _, p := range pool {
		total += p.Weight
	}
	if total <= 0 {
		return pool[s.index(len(pool))]
	}

	r := s.randFloat() * total
	var cum float64
	for _, p := range pool {
		cum += p.Weight
		if cum >= r {
			return p
		}
	}
	return pool[len(pool)-1]
}

// index draws a uniform index in [0, n).
func (s *Selector) index(n int) int {
	i := int(s.randFloat() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}
