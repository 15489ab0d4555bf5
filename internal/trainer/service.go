// Package trainer is the engine facade: it owns puzzle selection, hints,
// answer checking and import, and coordinates the stores, the annotation
// parser, the selector and the progression tracker behind one API that the
// CLI, the MCP server and the worker all share.
package trainer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/annotation"
	"github.com/felixgeelhaar/hone/internal/answer"
	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/progress"
	"github.com/felixgeelhaar/hone/internal/selector"
)

// staleImportAfter is how long an in-progress import may go without touching
// the user row before a new import may reclaim it. A live run persists
// progress per candidate, so minutes of silence means the process died.
const staleImportAfter = 15 * time.Minute

// Service coordinates one training engine instance.
type Service struct {
	users   UserStore
	puzzles PuzzleStore
	history HistoryStore // optional: activity log, best effort

	parser   *annotation.Parser
	selector *selector.Selector
	tracker  *progress.Tracker
	logger   *slog.Logger

	// Commits guarded by version counters are retried on conflict before
	// the error surfaces.
	answers retry.Retry[*CheckAnswerResult]
	updates retry.Retry[*domain.User]

	mu       sync.Mutex
	locks    map[uuid.UUID]*sync.Mutex
	sessions *sessionRegistry
}

// NewService creates the trainer facade over the given stores.
func NewService(users UserStore, puzzles PuzzleStore, tracker *progress.Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		puzzles:  puzzles,
		parser:   annotation.NewParser(logger),
		selector: selector.New(logger),
		tracker:  tracker,
		logger:   logger,
		answers:  conflictRetrier[*CheckAnswerResult](),
		updates:  conflictRetrier[*domain.User](),
		locks:    make(map[uuid.UUID]*sync.Mutex),
		sessions: newSessionRegistry(),
	}
}

// SetHistoryStore enables activity recording. History is decoration: a
// failed write logs a warning and the operation still succeeds.
func (s *Service) SetHistoryStore(h HistoryStore) {
	s.history = h
}

// conflictRetrier builds the retry policy for version-guarded commits: a
// stale snapshot is reloaded and replayed up to three times before the
// conflict surfaces.
func conflictRetrier[T any]() retry.Retry[T] {
	return retry.New[T](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  25 * time.Millisecond,
		MaxDelay:      250 * time.Millisecond,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return errors.Is(err, domain.ErrConflict)
		},
	})
}

// userLock returns the per-user mutex, creating it on first use. Every
// state-changing operation for a user runs under this lock; different users
// never contend.
func (s *Service) userLock(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// User resolves a username to its record, creating a fresh user with
// default settings on first sight.
func (s *Service) User(ctx context.Context, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username required", domain.ErrInvalidInput)
	}
	return s.users.GetOrCreate(ctx, username)
}

// PuzzlePresentation is what the player sees when a puzzle is served: the
// position and display metadata. Never the solution, never the move index.
type PuzzlePresentation struct {
	PuzzleID        uuid.UUID
	FEN             string
	SideToMove      domain.Side
	White           string
	Black           string
	Date            string
	TimeControl     string
	TimeControlType domain.TimeControlType
	Tag             domain.Severity
	PreEval         float64
	PostEval        float64
	NextReview      *time.Time
	MaxAttempts     int
}

// SelectPuzzle draws the next puzzle for the user and opens an attempt
// session for it, replacing any session already open. An empty candidate
// pool returns domain.ErrNoPuzzles.
func (s *Service) SelectPuzzle(ctx context.Context, userID uuid.UUID) (*PuzzlePresentation, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	candidates, err := s.puzzles.ListCandidates(ctx, userID, FilterFromSettings(u.Settings))
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	now := time.Now()
	picked, err := s.selector.Pick(candidates, u.Settings, now)
	if err != nil {
		return nil, err
	}

	s.sessions.begin(userID, picked.ID)
	s.logger.Debug("puzzle selected",
		"user_id", userID,
		"puzzle_id", picked.ID,
		"candidates", len(candidates))

	return &PuzzlePresentation{
		PuzzleID:        picked.ID,
		FEN:             picked.FEN,
		SideToMove:      picked.Side,
		White:           picked.White,
		Black:           picked.Black,
		Date:            picked.Date,
		TimeControl:     picked.TimeControl,
		TimeControlType: picked.TimeControlType,
		Tag:             picked.Tag,
		PreEval:         picked.PreEval,
		PostEval:        picked.PostEval,
		NextReview:      picked.NextReview,
		MaxAttempts:     u.Settings.MaxAttempts,
	}, nil
}

type hintEvent struct {
	PuzzleID   string `json:"puzzle_id"`
	FromSquare string `json:"from_square"`
}

// RequestHint reveals the origin square of the reference move for the puzzle
// currently on the board. The cost lands when the answer is checked: a
// hinted correct answer caps its reward and does not extend the streak.
func (s *Service) RequestHint(ctx context.Context, userID, puzzleID uuid.UUID) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if s.sessions.get(userID, puzzleID) == nil {
		return "", domain.ErrNoActiveSession
	}

	p, err := s.puzzles.Get(ctx, puzzleID, userID)
	if err != nil {
		return "", fmt.Errorf("load puzzle: %w", err)
	}

	square, err := answer.FromSquare(p.FEN, p.SolutionSAN)
	if err != nil {
		return "", err
	}

	s.sessions.markHint(userID, puzzleID)
	s.recordHistory(ctx, userID, domain.HistoryHint, hintEvent{
		PuzzleID:   puzzleID.String(),
		FromSquare: square,
	})
	return square, nil
}

// CheckAnswerResult reports one judged attempt.
type CheckAnswerResult struct {
	Correct bool
	// Delta is the win-likelihood change the attempted move produced, in
	// points on the 0-100 scale from the mover's perspective.
	Delta              float64
	AttemptsRemaining  int
	MaxAttemptsReached bool
	ExperienceDelta    int
	NewExperienceTotal int
	NewBadges          []*domain.Badge
	// RevealedSolutionSAN and RevealedPlayedSAN are populated only when
	// the attempt budget is exhausted: the best move, and the move
	// actually played in the game.
	RevealedSolutionSAN string
	RevealedPlayedSAN   string
}

type answerEvent struct {
	PuzzleID string  `json:"puzzle_id"`
	Correct  bool    `json:"correct"`
	Attempt  int     `json:"attempt"`
	XP       int     `json:"xp"`
	Delta    float64 `json:"delta"`
}

// CheckAnswer judges the attempted move by its engine evaluations and
// persists every consequence in one transaction. Both evaluations are
// centipawns from White's perspective, as engines report them; the facade
// normalizes to the mover's perspective. Invalid input is rejected before
// any state changes, and a failed attempt only counts once the verdict is
// committed.
func (s *Service) CheckAnswer(ctx context.Context, userID, puzzleID uuid.UUID, initialCp, moveCp float64) (*CheckAnswerResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	session := s.sessions.get(userID, puzzleID)
	if session == nil {
		return nil, domain.ErrNoActiveSession
	}

	owner, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	maxAttempts := owner.Settings.MaxAttempts

	// Settings can shrink the budget under a live session.
	if session.Exhausted(maxAttempts) {
		s.sessions.end(userID)
		return nil, domain.ErrSessionExhausted
	}
	attemptIndex := session.AttemptIndex()

	result, err := s.answers.Do(ctx, func(ctx context.Context) (*CheckAnswerResult, error) {
		// Reload on every try: a conflict means this snapshot lost a
		// race and the mutations must be recomputed on fresh state.
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		p, err := s.puzzles.Get(ctx, puzzleID, userID)
		if err != nil {
			return nil, fmt.Errorf("load puzzle: %w", err)
		}

		init, move := initialCp, moveCp
		if p.Side == domain.SideBlack {
			init, move = -init, -move
		}
		verdict, err := answer.Judge(init, move)
		if err != nil {
			return nil, err
		}

		held, err := s.heldBadges(ctx, userID)
		if err != nil {
			return nil, err
		}

		applied := s.tracker.Apply(u, p, held, progress.Outcome{
			Correct:      verdict.Correct,
			AttemptIndex: attemptIndex,
			HintUsed:     session.HintUsed,
		}, time.Now())

		res := &CheckAnswerResult{
			Correct:            verdict.Correct,
			Delta:              verdict.Delta,
			AttemptsRemaining:  maxAttempts - attemptIndex,
			MaxAttemptsReached: !verdict.Correct && attemptIndex >= maxAttempts,
			ExperienceDelta:    applied.ExperienceDelta,
			NewExperienceTotal: u.XP,
			NewBadges:          applied.NewBadges,
		}
		if res.MaxAttemptsReached {
			res.RevealedSolutionSAN = p.SolutionSAN
			res.RevealedPlayedSAN = p.PlayedSAN
		}

		if err := s.puzzles.CommitAnswer(ctx, u, p, applied.NewBadges); err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	if result.Correct || result.MaxAttemptsReached {
		s.sessions.end(userID)
	} else {
		session.RecordFailure()
	}

	s.recordHistory(ctx, userID, domain.HistoryAnswer, answerEvent{
		PuzzleID: puzzleID.String(),
		Correct:  result.Correct,
		Attempt:  attemptIndex,
		XP:       result.ExperienceDelta,
		Delta:    result.Delta,
	})
	s.logger.Info("answer checked",
		"user_id", userID,
		"puzzle_id", puzzleID,
		"correct", result.Correct,
		"attempt", attemptIndex,
		"xp_delta", result.ExperienceDelta)
	return result, nil
}

// ImportRequest carries one batch of annotated games.
type ImportRequest struct {
	PGN string
	// AnySide keeps candidates regardless of which player made the
	// flagged move. The default keeps only the importing user's own
	// mistakes.
	AnySide bool
}

// ImportResult summarizes one import pass.
type ImportResult struct {
	Games   int
	Created int
	Updated int
	// Skipped counts annotated moves that produced no puzzle: grammar
	// mismatches, uninstructive positions, and the opponent's mistakes.
	Skipped int
}

type importEvent struct {
	Games   int `json:"games"`
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// ImportAnnotatedGames parses the PGN batch and upserts a puzzle per kept
// candidate. Import progress is persisted per candidate so another process
// can poll ImportStatus while this runs.
func (s *Service) ImportAnnotatedGames(ctx context.Context, userID uuid.UUID, req ImportRequest) (*ImportResult, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.ImportStatus == domain.ImportStatusInProgress {
		// A live import touches the user row on every candidate, so a
		// row this old belongs to a run that died mid-import. Reclaim
		// it instead of wedging the user forever.
		if time.Since(u.UpdatedAt) < staleImportAfter {
			return nil, domain.ErrImportInProgress
		}
		s.logger.Warn("reclaiming stale import",
			"user_id", userID,
			"last_progress", u.UpdatedAt)
	}
	if strings.TrimSpace(req.PGN) == "" {
		return nil, fmt.Errorf("%w: empty pgn", domain.ErrInvalidInput)
	}

	report, err := s.parser.ParseString(req.PGN)
	if err != nil {
		s.failImport(ctx, u, err)
		return nil, fmt.Errorf("parse pgn: %w", err)
	}

	var matched []annotation.Candidate
	sideSkipped := 0
	for _, c := range report.Candidates {
		if !req.AnySide && !playedBy(c, u.Username) {
			sideSkipped++
			continue
		}
		matched = append(matched, c)
	}

	u.ImportStatus = domain.ImportStatusInProgress
	u.ImportTotal = len(matched)
	u.ImportDone = 0
	u.ImportError = ""
	if err := s.persistImportProgress(ctx, u); err != nil {
		return nil, fmt.Errorf("start import: %w", err)
	}

	result := &ImportResult{
		Games:   report.Games,
		Skipped: report.Skipped + report.Excluded + sideSkipped,
	}
	for _, c := range matched {
		created, err := s.puzzles.Upsert(ctx, c.Puzzle(userID))
		if err != nil {
			s.failImport(ctx, u, err)
			return nil, fmt.Errorf("store puzzle %s#%d: %w", c.GameID, c.MoveIndex, err)
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
		u.ImportDone++
		if err := s.persistImportProgress(ctx, u); err != nil {
			return nil, fmt.Errorf("record import progress: %w", err)
		}
	}

	if u.Settings.MaxPuzzles > 0 {
		removed, err := s.puzzles.PruneOldest(ctx, userID, u.Settings.MaxPuzzles)
		if err != nil {
			s.failImport(ctx, u, err)
			return nil, fmt.Errorf("prune puzzles: %w", err)
		}
		if removed > 0 {
			s.logger.Info("pruned puzzles beyond cap",
				"user_id", userID,
				"removed", removed)
		}
	}

	u.ImportStatus = domain.ImportStatusFinished
	if err := s.persistImportProgress(ctx, u); err != nil {
		return nil, fmt.Errorf("finish import: %w", err)
	}

	s.recordHistory(ctx, userID, domain.HistoryImport, importEvent{
		Games:   result.Games,
		Created: result.Created,
		Updated: result.Updated,
		Skipped: result.Skipped,
	})
	s.logger.Info("import finished",
		"user_id", userID,
		"games", result.Games,
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped)
	return result, nil
}

// playedBy reports whether the flagged move of the candidate was made by the
// given player.
func playedBy(c annotation.Candidate, username string) bool {
	player := c.White
	if c.Side == domain.SideBlack {
		player = c.Black
	}
	return strings.EqualFold(player, username)
}

// persistImportProgress writes the import counters through a fresh read so a
// concurrent answer commit from another process cannot wedge the import on a
// version conflict.
func (s *Service) persistImportProgress(ctx context.Context, u *domain.User) error {
	fresh, err := s.updates.Do(ctx, func(ctx context.Context) (*domain.User, error) {
		fresh, err := s.users.Get(ctx, u.ID)
		if err != nil {
			return nil, err
		}
		fresh.ImportStatus = u.ImportStatus
		fresh.ImportTotal = u.ImportTotal
		fresh.ImportDone = u.ImportDone
		fresh.ImportError = u.ImportError
		if err := s.users.Update(ctx, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	})
	if err != nil {
		return err
	}
	*u = *fresh
	return nil
}

// failImport marks the import failed. Best effort: the original error is
// what the caller sees.
func (s *Service) failImport(ctx context.Context, u *domain.User, cause error) {
	u.ImportStatus = domain.ImportStatusError
	u.ImportError = cause.Error()
	if err := s.persistImportProgress(ctx, u); err != nil {
		s.logger.Warn("failed to record import error",
			"user_id", u.ID,
			"error", err)
	}
}

// ImportState is the poll view of a user's most recent import.
type ImportState struct {
	Status domain.ImportStatus
	Done   int
	Total  int
	Error  string
}

// ImportStatus reports where the user's most recent import stands.
func (s *Service) ImportStatus(ctx context.Context, userID uuid.UUID) (*ImportState, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &ImportState{
		Status: u.ImportStatus,
		Done:   u.ImportDone,
		Total:  u.ImportTotal,
		Error:  u.ImportError,
	}, nil
}

// ProgressReport aggregates a user's training state for display.
type ProgressReport struct {
	Username           string
	XP                 int
	XPToday            int
	XPWeek             int
	CorrectCount       int
	ConsecutiveCorrect int
	BestPuzzleStreak   int
	StreakDays         int
	BestStreakDays     int
	LastCorrectDate    string
	AvailablePuzzles   int
	TotalPuzzles       int
	// HintsUsed counts hint requests over the whole history. Zero when no
	// history store is configured.
	HintsUsed int
	Badges    []*domain.Badge
}

// Progress returns the user's training state. Stale daily and weekly
// buckets read as zero without being rewritten.
func (s *Service) Progress(ctx context.Context, userID uuid.UUID) (*ProgressReport, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	available, total, err := s.puzzles.Count(ctx, userID, FilterFromSettings(u.Settings))
	if err != nil {
		return nil, fmt.Errorf("count puzzles: %w", err)
	}

	badges, err := s.users.ListBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}

	now := time.Now()
	xpToday, xpWeek := u.XPToday, u.XPWeek
	if u.XPTodayDate != progress.DayKey(now) {
		xpToday = 0
	}
	if u.XPWeekKey != progress.WeekKey(now) {
		xpWeek = 0
	}

	hintsUsed := 0
	if s.history != nil {
		hintsUsed, err = s.history.CountByType(ctx, userID, domain.HistoryHint)
		if err != nil {
			s.logger.Warn("failed to count hint events",
				"user_id", userID,
				"error", err)
			hintsUsed = 0
		}
	}

	return &ProgressReport{
		Username:           u.Username,
		XP:                 u.XP,
		XPToday:            xpToday,
		XPWeek:             xpWeek,
		CorrectCount:       u.CorrectCount,
		ConsecutiveCorrect: u.ConsecutiveCorrect,
		BestPuzzleStreak:   u.BestPuzzleStreak,
		StreakDays:         u.StreakDays,
		BestStreakDays:     u.BestStreakDays,
		LastCorrectDate:    u.LastCorrectDate,
		AvailablePuzzles:   available,
		TotalPuzzles:       total,
		HintsUsed:          hintsUsed,
		Badges:             badges,
	}, nil
}

// RecentActivity lists the user's latest history events, newest first. An
// empty eventType lists every kind. Without a history store the list is
// empty.
func (s *Service) RecentActivity(ctx context.Context, userID uuid.UUID, eventType string, limit int) ([]domain.HistoryEvent, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.Recent(ctx, userID, eventType, limit)
}

// PuzzleCounts reports how many puzzles the user's current filters admit and
// how many are stored in total.
func (s *Service) PuzzleCounts(ctx context.Context, userID uuid.UUID) (available, total int, err error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("load user: %w", err)
	}
	return s.puzzles.Count(ctx, userID, FilterFromSettings(u.Settings))
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	Rank         int
	Username     string
	XP           int
	CorrectCount int
	StreakDays   int
}

// Leaderboard pages users by total experience descending.
func (s *Service) Leaderboard(ctx context.Context, page, perPage int) ([]LeaderboardEntry, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	users, err := s.users.Leaderboard(ctx, page, perPage)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}

	entries := make([]LeaderboardEntry, len(users))
	for i, u := range users {
		entries[i] = LeaderboardEntry{
			Rank:         (page-1)*perPage + i + 1,
			Username:     u.Username,
			XP:           u.XP,
			CorrectCount: u.CorrectCount,
			StreakDays:   u.StreakDays,
		}
	}
	return entries, nil
}

// UpdateSettings validates and persists new settings for the user. Nothing
// is written when validation fails.
func (s *Service) UpdateSettings(ctx context.Context, userID uuid.UUID, settings domain.Settings) (*domain.User, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	u, err := s.updates.Do(ctx, func(ctx context.Context) (*domain.User, error) {
		u, err := s.users.Get(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		u.Settings = settings
		if err := s.users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("save settings: %w", err)
		}
		return u, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("settings updated", "user_id", userID)
	return u, nil
}

// heldBadges returns the set of badge names the user already owns.
func (s *Service) heldBadges(ctx context.Context, userID uuid.UUID) (map[string]bool, error) {
	badges, err := s.users.ListBadges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	held := make(map[string]bool, len(badges))
	for _, b := range badges {
		held[b.Name] = true
	}
	return held, nil
}

// recordHistory appends an activity event, logging instead of failing.
func (s *Service) recordHistory(ctx context.Context, userID uuid.UUID, eventType string, data any) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(ctx, userID, eventType, data); err != nil {
		s.logger.Warn("failed to record history event",
			"user_id", userID,
			"type", eventType,
			"error", err)
	}
}
