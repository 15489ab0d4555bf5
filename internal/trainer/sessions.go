package trainer

import (
	"sync"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// sessionRegistry holds at most one live domain.AttemptSession per user.
// Selecting a new puzzle replaces the previous session wholesale. Sessions
// live in process only: a restart forgets what was on the board, which costs
// the player a re-select and nothing else.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.AttemptSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[uuid.UUID]*domain.AttemptSession)}
}

// begin replaces whatever session the user had with a fresh one.
func (r *sessionRegistry) begin(userID, puzzleID uuid.UUID) *domain.AttemptSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := domain.NewAttemptSession(userID, puzzleID)
	r.sessions[userID] = s
	return s
}

// get returns the user's live session only when it refers to the given
// puzzle; answering or hinting a puzzle that is not on the board is not
// allowed.
func (r *sessionRegistry) get(userID, puzzleID uuid.UUID) *domain.AttemptSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[userID]
	if s == nil || s.PuzzleID != puzzleID {
		return nil
	}
	return s
}

// markHint flags the live session for (user, puzzle) as hinted.
func (r *sessionRegistry) markHint(userID, puzzleID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[userID]
	if s == nil || s.PuzzleID != puzzleID {
		return false
	}
	s.MarkHintUsed()
	return true
}

// end discards the user's live session.
func (r *sessionRegistry) end(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}
