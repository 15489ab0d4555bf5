package domain

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity classifies how serious an annotated mistake was
type Severity string

const (
	SeverityBlunder    Severity = "Blunder"
	SeverityMistake    Severity = "Mistake"
	SeverityInaccuracy Severity = "Inaccuracy"
	SeverityError      Severity = "Error"
)

// TimeControlType is a coarse classification of game speed
type TimeControlType string

const (
	TimeControlBullet    TimeControlType = "Bullet"
	TimeControlBlitz     TimeControlType = "Blitz"
	TimeControlRapid     TimeControlType = "Rapid"
	TimeControlClassical TimeControlType = "Classical"
)

// ClassifyTimeControl buckets a PGN TimeControl header ("base+increment",
// seconds) into a speed category. Headers without an increment separator or
// with a non-numeric base are left unclassified rather than failing the
// surrounding import.
func ClassifyTimeControl(tc string) TimeControlType {
	base, _, ok := strings.Cut(tc, "+")
	if !ok {
		return ""
	}
	secs, err := strconv.Atoi(strings.TrimSpace(base))
	if err != nil {
		return ""
	}
	switch {
	case secs < 180:
		return TimeControlBullet
	case secs < 600:
		return TimeControlBlitz
	case secs < 1800:
		return TimeControlRapid
	default:
		return TimeControlClassical
	}
}

// Side identifies which color made the flagged move
type Side string

const (
	SideWhite Side = "white"
	SideBlack Side = "black"
)

// Puzzle represents one playable exercise mined from a user's game.
// A puzzle belongs to exactly one user and is never shared.
type Puzzle struct {
	ID     uuid.UUID
	UserID uuid.UUID

	// Position before the flagged move. FEN is immutable after creation.
	GameID    string
	MoveIndex int
	FEN       string
	Side      Side

	// Reference best continuation. Kept for hint generation and for
	// revealing after attempt exhaustion; never used as exact-match
	// ground truth by the validator.
	SolutionSAN string
	// The move actually played in the game, shown next to the solution
	// when the puzzle is revealed.
	PlayedSAN string

	// Scheduling and weighting. Weight stays strictly positive and is the
	// authoritative selection signal; the spaced-repetition fields only
	// gate the due-first preference.
	Weight       float64
	NextReview   *time.Time
	LastReviewed *time.Time
	Repetitions  int
	IntervalDays int
	EaseFactor   float64
	Successes    int
	Failures     int

	// Evaluation metadata from the annotation, in pawn units.
	PreEval  float64
	PostEval float64
	Tag      Severity

	// Display metadata from the PGN headers.
	White           string
	Black           string
	Date            string
	TimeControl     string
	TimeControlType TimeControlType

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Swing returns the absolute evaluation change of the flagged move
func (p *Puzzle) Swing() float64 {
	return math.Abs(p.PreEval - p.PostEval)
}

// IsDue reports whether the puzzle is due for review at the given time.
// Puzzles with no scheduled review are always due.
func (p *Puzzle) IsDue(now time.Time) bool {
	return p.NextReview == nil || !p.NextReview.After(now)
}

// OnCooldown reports whether the puzzle was reviewed within the cooldown
// window and should be held back from selection.
func (p *Puzzle) OnCooldown(now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 || p.LastReviewed == nil {
		return false
	}
	return p.LastReviewed.After(now.Add(-cooldown))
}
