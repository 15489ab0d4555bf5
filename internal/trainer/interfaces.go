package trainer

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// Filter narrows candidate queries to the user's configured preferences.
// Empty sets leave their dimension unfiltered, matching how a user with no
// bucket preference sees everything.
type Filter struct {
	PerfTypes []domain.TimeControlType
	Tags      []domain.Severity
	// Days restricts to puzzles created within the window. 0 disables the
	// window.
	Days int
}

// FilterFromSettings builds the selection filter a user's settings imply
func FilterFromSettings(s domain.Settings) Filter {
	return Filter{
		PerfTypes: s.PerfTypes,
		Tags:      s.Tags,
		Days:      s.Days,
	}
}

// UserStore is the persistence contract for users and their badges
type UserStore interface {
	// GetOrCreate returns the user with the given username, creating a
	// fresh one with default settings on first sight.
	GetOrCreate(ctx context.Context, username string) (*domain.User, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// Update writes the user guarded by its version counter and bumps the
	// version on success. A stale version yields domain.ErrConflict.
	Update(ctx context.Context, u *domain.User) error
	// Leaderboard pages users ordered by total experience descending.
	Leaderboard(ctx context.Context, page, perPage int) ([]*domain.User, error)
	ListBadges(ctx context.Context, userID uuid.UUID) ([]*domain.Badge, error)
}

// HistoryStore records training activity. Recording is best effort: a failed
// write is logged by the caller, never surfaced to the player.
type HistoryStore interface {
	Record(ctx context.Context, userID uuid.UUID, eventType string, data any) error
	Recent(ctx context.Context, userID uuid.UUID, eventType string, limit int) ([]domain.HistoryEvent, error)
	CountByType(ctx context.Context, userID uuid.UUID, eventType string) (int, error)
}

// PuzzleStore is the persistence contract for puzzles. Every query is scoped
// to an owner: a puzzle is never visible to a user who does not own it.
type PuzzleStore interface {
	// Upsert inserts the puzzle or, when (user, game, move index) already
	// exists, refreshes its annotation metadata in place, preserving
	// weight and progress counters. Reports whether a row was created.
	Upsert(ctx context.Context, p *domain.Puzzle) (created bool, err error)
	// Get fetches an owned puzzle. Another user's puzzle is
	// domain.ErrPuzzleNotFound, indistinguishable from absence.
	Get(ctx context.Context, id, userID uuid.UUID) (*domain.Puzzle, error)
	// ListCandidates returns the owner's puzzles matching the filter.
	ListCandidates(ctx context.Context, userID uuid.UUID, f Filter) ([]*domain.Puzzle, error)
	// Count reports how many puzzles match the filter and how many the
	// user has in total.
	Count(ctx context.Context, userID uuid.UUID, f Filter) (available, total int, err error)
	// PruneOldest deletes the oldest puzzles beyond max, ordered by game
	// date then id. A max of 0 means unlimited and prunes nothing.
	PruneOldest(ctx context.Context, userID uuid.UUID, max int) (removed int, err error)
	// CommitAnswer atomically persists the outcome of one answer check:
	// the mutated puzzle, the mutated user, and any newly awarded badges.
	// Either version guard failing rolls the whole write back with
	// domain.ErrConflict.
	CommitAnswer(ctx context.Context, u *domain.User, p *domain.Puzzle, awarded []*domain.Badge) error
}
