package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptSession tracks one puzzle-answering cycle. It is created when a
// puzzle is selected, replaced when the same user selects again, and cleared
// on a correct answer or attempt exhaustion. It never outlives one cycle and
// is never persisted.
//
// HintUsed is asserted server-side by the hint operation only; answer checks
// carry no hint field, so the flag cannot be spoofed by a caller.
type AttemptSession struct {
	UserID       uuid.UUID
	PuzzleID     uuid.UUID
	AttemptCount int
	HintUsed     bool
	StartedAt    time.Time
}

// NewAttemptSession creates a fresh session for a just-selected puzzle
func NewAttemptSession(userID, puzzleID uuid.UUID) *AttemptSession {
	return &AttemptSession{
		UserID:    userID,
		PuzzleID:  puzzleID,
		StartedAt: time.Now(),
	}
}

// RecordFailure counts one incorrect attempt
func (s *AttemptSession) RecordFailure() {
	s.AttemptCount++
}

// MarkHintUsed records that the hint was requested for this puzzle
func (s *AttemptSession) MarkHintUsed() {
	s.HintUsed = true
}

// AttemptIndex returns the 1-based index the next answer would be: 1 for a
// first try, 2 after one failure, and so on.
func (s *AttemptSession) AttemptIndex() int {
	return s.AttemptCount + 1
}

// Exhausted reports whether the attempt budget is spent
func (s *AttemptSession) Exhausted(maxAttempts int) bool {
	return s.AttemptCount >= maxAttempts
}

// Remaining returns how many attempts are left
func (s *AttemptSession) Remaining(maxAttempts int) int {
	if r := maxAttempts - s.AttemptCount; r > 0 {
		return r
	}
	return 0
}
