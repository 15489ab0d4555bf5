package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ImportStatus represents the state of a user's most recent import
type ImportStatus string

const (
	ImportStatusIdle       ImportStatus = "idle"
	ImportStatusInProgress ImportStatus = "in_progress"
	ImportStatusFinished   ImportStatus = "finished"
	ImportStatusError      ImportStatus = "error"
)

// User represents a player and their aggregate training state
type User struct {
	ID       uuid.UUID
	Username string

	// Experience. The day and week buckets reset lazily: the watermark
	// strings record which day (2006-01-02) and ISO week (2006-W01) the
	// bucket refers to, and the first write of a new period zeroes the
	// bucket before adding.
	XP          int
	XPToday     int
	XPTodayDate string
	XPWeek      int
	XPWeekKey   string

	// Streaks. ConsecutiveCorrect counts correct answers in a row;
	// StreakDays counts consecutive calendar days containing at least one
	// correct answer. Both carry best-ever watermarks.
	CorrectCount       int
	ConsecutiveCorrect int
	BestPuzzleStreak   int
	StreakDays         int
	BestStreakDays     int
	LastCorrectDate    string

	// Import progress, maintained by the import pipeline.
	ImportStatus ImportStatus
	ImportTotal  int
	ImportDone   int
	ImportError  string

	Settings Settings

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates a user with default settings
func NewUser(username string) *User {
	now := time.Now()
	return &User{
		ID:           uuid.New(),
		Username:     username,
		ImportStatus: ImportStatusIdle,
		Settings:     DefaultSettings(),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Settings holds the per-user knobs consumed by the selector and validator.
// A Settings value is constructed once per request with explicit defaults;
// callers never fall back to ad hoc literals.
type Settings struct {
	// Days limits selection to puzzles created within the window. 0 means
	// no window.
	Days int
	// PerfTypes is the set of accepted time-control buckets.
	PerfTypes []TimeControlType
	// Tags is the set of accepted severity labels.
	Tags []Severity
	// MaxPuzzles caps stored puzzles per user; oldest beyond the cap are
	// pruned at import time. 0 means unlimited.
	MaxPuzzles int
	// MaxAttempts bounds incorrect tries per presented puzzle (1-3).
	MaxAttempts int
	// CooldownMinutes holds a just-reviewed puzzle out of selection.
	CooldownMinutes int
	// UseSpacedRepetition toggles weighted spaced selection versus uniform
	// random selection.
	UseSpacedRepetition bool
}

// DefaultSettings returns the settings a new user starts with
func DefaultSettings() Settings {
	return Settings{
		Days:                30,
		PerfTypes:           []TimeControlType{TimeControlBlitz, TimeControlRapid},
		Tags:                []Severity{SeverityBlunder, SeverityMistake, SeverityInaccuracy},
		MaxPuzzles:          0,
		MaxAttempts:         3,
		CooldownMinutes:     10,
		UseSpacedRepetition: true,
	}
}

// Validate checks settings ranges before any mutation is attempted
func (s Settings) Validate() error {
	if s.MaxAttempts < 1 || s.MaxAttempts > 3 {
		return fmt.Errorf("%w: max attempts must be between 1 and 3, got %d", ErrInvalidInput, s.MaxAttempts)
	}
	if s.Days < 0 {
		return fmt.Errorf("%w: review window days cannot be negative", ErrInvalidInput)
	}
	if s.MaxPuzzles < 0 {
		return fmt.Errorf("%w: max puzzles cannot be negative", ErrInvalidInput)
	}
	if s.CooldownMinutes < 0 {
		return fmt.Errorf("%w: cooldown minutes cannot be negative", ErrInvalidInput)
	}
	for _, pt := range s.PerfTypes {
		if _, err := ParseTimeControlType(string(pt)); err != nil {
			return err
		}
	}
	for _, tag := range s.Tags {
		if _, err := ParseSeverity(string(tag)); err != nil {
			return err
		}
	}
	return nil
}

// Cooldown returns the cooldown window as a duration
func (s Settings) Cooldown() time.Duration {
	return time.Duration(s.CooldownMinutes) * time.Minute
}

// ParseTimeControlType normalizes a user-supplied bucket name
func ParseTimeControlType(s string) (TimeControlType, error) {
	for _, tc := range []TimeControlType{TimeControlBullet, TimeControlBlitz, TimeControlRapid, TimeControlClassical} {
		if strings.EqualFold(string(tc), s) {
			return tc, nil
		}
	}
	return "", fmt.Errorf("%w: unknown time control type %q", ErrInvalidInput, s)
}

// ParseSeverity normalizes a user-supplied severity label
func ParseSeverity(s string) (Severity, error) {
	for _, sev := range []Severity{SeverityBlunder, SeverityMistake, SeverityInaccuracy, SeverityError} {
		if strings.EqualFold(string(sev), s) {
			return sev, nil
		}
	}
	return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, s)
}
