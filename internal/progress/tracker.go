// Package progress applies the consequences of a judged answer: puzzle
// weight and scheduling, experience with daily and weekly buckets, streak
// accounting, and badge awards. Everything mutates in memory; the trainer
// owns persistence.
package progress

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/felixgeelhaar/hone/internal/answer"
	"github.com/felixgeelhaar/hone/internal/domain"
)

const (
	// baseReward is the experience paid for a first-try correct answer on
	// a weight-1.0 puzzle.
	baseReward = 10.0
	// correctStep and streakAccel shrink a puzzle's weight on success;
	// the shrink grows with the answer streak so hot players retire
	// rehearsed puzzles faster.
	correctStep = 0.5
	streakAccel = 0.1
	// incorrectStep grows the weight on every miss.
	incorrectStep = 1.0
	// weightFloor keeps every puzzle selectable.
	weightFloor = 0.1

	// bigSwing is the recorded evaluation swing, in pawns, beyond which a
	// correct answer counts as a perfect recall in the scheduler.
	bigSwing = 3.0

	dateLayout = "2006-01-02"
)

// DayKey returns the bucket watermark for the day containing t.
func DayKey(t time.Time) string {
	return t.Format(dateLayout)
}

// WeekKey returns the bucket watermark for the ISO week containing t.
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// Outcome describes one judged answer.
type Outcome struct {
	Correct bool
	// AttemptIndex is the 1-based attempt on which this answer was given.
	AttemptIndex int
	HintUsed     bool
}

// Result reports what an answer changed.
type Result struct {
	ExperienceDelta int
	NewBadges       []*domain.Badge
}

// Tracker folds answer outcomes into puzzle and user state.
type Tracker struct {
	catalog *Catalog
	logger  *slog.Logger
}

// New creates a tracker over the given badge catalog.
func New(catalog *Catalog, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{catalog: catalog, logger: logger}
}

// Apply mutates the puzzle and user for one judged answer and returns the
// experience delta and any newly earned badges. held is the set of badge
// names the user already owns.
func (t *Tracker) Apply(u *domain.User, p *domain.Puzzle, held map[string]bool, out Outcome, now time.Time) Result {
	var res Result

	if out.Correct {
		res.ExperienceDelta = t.applyCorrect(u, p, out, now)
	} else {
		p.Weight += incorrectStep
		p.Failures++
		u.ConsecutiveCorrect = 0
	}

	reschedule(p, quality(out.Correct, p.Swing()), now)

	if out.Correct {
		res.NewBadges = t.catalog.NewlyEarned(u, held, now)
	}

	t.logger.Debug("applied answer",
		"puzzle_id", p.ID,
		"correct", out.Correct,
		"weight", p.Weight,
		"xp_delta", res.ExperienceDelta,
		"new_badges", len(res.NewBadges))
	return res
}

// applyCorrect handles the reward side. The experience payout uses the
// weight before this answer's update, so well-rehearsed puzzles pay more.
func (t *Tracker) applyCorrect(u *domain.User, p *domain.Puzzle, out Outcome, now time.Time) int {
	weightBefore := p.Weight
	if weightBefore < weightFloor {
		weightBefore = weightFloor
	}

	xp := int(math.Round(baseReward / weightBefore * answer.RewardMultiplier(out.AttemptIndex)))
	if out.HintUsed && xp > 1 {
		xp = 1
	}

	streakBefore := u.ConsecutiveCorrect
	p.Weight = math.Max(weightFloor, p.Weight-correctStep*(1+streakAccel*float64(streakBefore)))
	p.Successes++

	addExperience(u, xp, now)
	if !out.HintUsed {
		u.ConsecutiveCorrect++
		if u.ConsecutiveCorrect > u.BestPuzzleStreak {
			u.BestPuzzleStreak = u.ConsecutiveCorrect
		}
	}
	bumpDayStreak(u, now)
	u.CorrectCount++

	return xp
}

// addExperience adds xp to the lifetime total and the lazily reset daily and
// weekly buckets.
func addExperience(u *domain.User, xp int, now time.Time) {
	today := DayKey(now)
	if u.XPTodayDate != today {
		u.XPToday = 0
		u.XPTodayDate = today
	}
	u.XPToday += xp

	week := WeekKey(now)
	if u.XPWeekKey != week {
		u.XPWeek = 0
		u.XPWeekKey = week
	}
	u.XPWeek += xp

	u.XP += xp
}

// bumpDayStreak extends the calendar-day streak. Multiple correct answers on
// the same day count once; a missed day restarts at 1.
func bumpDayStreak(u *domain.User, now time.Time) {
	today := DayKey(now)
	yesterday := DayKey(now.AddDate(0, 0, -1))

	switch u.LastCorrectDate {
	case today:
		// Already counted.
	case yesterday:
		u.StreakDays++
	default:
		u.StreakDays = 1
	}
	if u.StreakDays > u.BestStreakDays {
		u.BestStreakDays = u.StreakDays
	}
	u.LastCorrectDate = today
}

// quality maps an answer onto the scheduler's 0-5 recall scale: incorrect
// answers score 2, correct ones 4, and a correct answer on a puzzle with a
// large recorded swing scores 5.
func quality(correct bool, swing float64) int {
	if !correct {
		return 2
	}
	if swing > bigSwing {
		return 5
	}
	return 4
}

// reschedule runs the SM-2 recurrence and stamps the review times.
func reschedule(p *domain.Puzzle, quality int, now time.Time) {
	if quality < 3 {
		p.Repetitions = 0
		p.IntervalDays = 1
	} else {
		p.Repetitions++
		switch p.Repetitions {
		case 1:
			p.IntervalDays = 1
		case 2:
			p.IntervalDays = 6
		default:
			p.IntervalDays = int(math.Round(float64(p.IntervalDays) * p.EaseFactor))
		}
	}

	q := float64(quality)
	p.EaseFactor = math.Max(1.3, p.EaseFactor+(0.1-(5-q)*(0.08+(5-q)*0.02)))

	next := now.AddDate(0, 0, p.IntervalDays)
	p.NextReview = &next
	p.LastReviewed = &now
}
