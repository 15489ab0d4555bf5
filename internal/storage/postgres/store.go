package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

const puzzleCols = `id, user_id, game_id, move_index, fen, side, solution_san, played_san, weight,
	next_review, last_reviewed, repetitions, interval_days, ease_factor,
	successes, failures, pre_eval, post_eval, tag, white, black, date,
	time_control, time_control_type, version, created_at, updated_at`

const userCols = `id, username, xp, xp_today, xp_today_date, xp_week, xp_week_key,
	correct_count, consecutive_correct, best_puzzle_streak,
	streak_days, best_streak_days, last_correct_date,
	import_status, import_total, import_done, import_error,
	settings, version, created_at, updated_at`

const userUpdateSQL = `
	UPDATE users SET
		xp = $1, xp_today = $2, xp_today_date = $3, xp_week = $4, xp_week_key = $5,
		correct_count = $6, consecutive_correct = $7, best_puzzle_streak = $8,
		streak_days = $9, best_streak_days = $10, last_correct_date = $11,
		import_status = $12, import_total = $13, import_done = $14, import_error = $15,
		settings = $16,
		version = version + 1, updated_at = $17
	WHERE id = $18 AND version = $19`

func userUpdateArgs(u *domain.User, settings string) []any {
	return []any{
		u.XP, u.XPToday, u.XPTodayDate, u.XPWeek, u.XPWeekKey,
		u.CorrectCount, u.ConsecutiveCorrect, u.BestPuzzleStreak,
		u.StreakDays, u.BestStreakDays, u.LastCorrectDate,
		string(u.ImportStatus), u.ImportTotal, u.ImportDone, u.ImportError,
		settings,
		u.UpdatedAt,
		u.ID, u.Version,
	}
}

// PuzzleStore implements puzzle persistence using PostgreSQL.
type PuzzleStore struct {
	pool *pgxpool.Pool
}

// NewPuzzleStore creates a new PostgreSQL puzzle store.
func NewPuzzleStore(pool *pgxpool.Pool) *PuzzleStore {
	return &PuzzleStore{pool: pool}
}

// Upsert inserts a puzzle, or refreshes the annotation metadata of the row
// already keyed by (user, game, move index).
func (s *PuzzleStore) Upsert(ctx context.Context, p *domain.Puzzle) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var existing uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM puzzles WHERE user_id = $1 AND game_id = $2 AND move_index = $3`,
		p.UserID, p.GameID, p.MoveIndex).Scan(&existing)

	if errors.Is(err, pgx.ErrNoRows) {
		query := `
			INSERT INTO puzzles (` + puzzleCols + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
				$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)`
		_, err = tx.Exec(ctx, query,
			p.ID, p.UserID, p.GameID, p.MoveIndex, p.FEN,
			string(p.Side), p.SolutionSAN, p.PlayedSAN, p.Weight,
			p.NextReview, p.LastReviewed,
			p.Repetitions, p.IntervalDays, p.EaseFactor,
			p.Successes, p.Failures, p.PreEval, p.PostEval, string(p.Tag),
			p.White, p.Black, p.Date, p.TimeControl, string(p.TimeControlType),
			p.Version, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("insert puzzle: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return false, fmt.Errorf("commit upsert: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up puzzle: %w", err)
	}

	p.UpdatedAt = time.Now()
	query := `
		UPDATE puzzles SET
			solution_san = $1, played_san = $2, pre_eval = $3, post_eval = $4, tag = $5,
			white = $6, black = $7, date = $8, time_control = $9, time_control_type = $10,
			updated_at = $11
		WHERE id = $12`
	_, err = tx.Exec(ctx, query,
		p.SolutionSAN, p.PlayedSAN, p.PreEval, p.PostEval, string(p.Tag),
		p.White, p.Black, p.Date, p.TimeControl, string(p.TimeControlType),
		p.UpdatedAt, existing,
	)
	if err != nil {
		return false, fmt.Errorf("update puzzle metadata: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}
	p.ID = existing
	return false, nil
}

// Get retrieves a puzzle owned by the given user.
func (s *PuzzleStore) Get(ctx context.Context, id, userID uuid.UUID) (*domain.Puzzle, error) {
	query := `SELECT ` + puzzleCols + ` FROM puzzles WHERE id = $1 AND user_id = $2`
	p, err := scanPuzzle(s.pool.QueryRow(ctx, query, id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPuzzleNotFound
	}
	return p, err
}

// ListCandidates returns the user's puzzles matching the filter, oldest first.
func (s *PuzzleStore) ListCandidates(ctx context.Context, userID uuid.UUID, f trainer.Filter) ([]*domain.Puzzle, error) {
	where, args := filterClause(userID, f)
	rows, err := s.pool.Query(ctx,
		`SELECT `+puzzleCols+` FROM puzzles `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var puzzles []*domain.Puzzle
	for rows.Next() {
		p, err := scanPuzzle(rows)
		if err != nil {
			return nil, err
		}
		puzzles = append(puzzles, p)
	}
	return puzzles, rows.Err()
}

// Count reports how many puzzles match the filter and how many exist in total.
func (s *PuzzleStore) Count(ctx context.Context, userID uuid.UUID, f trainer.Filter) (int, int, error) {
	where, args := filterClause(userID, f)

	var available int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM puzzles `+where, args...).Scan(&available); err != nil {
		return 0, 0, fmt.Errorf("count candidates: %w", err)
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM puzzles WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("count puzzles: %w", err)
	}
	return available, total, nil
}

// PruneOldest deletes the oldest puzzles beyond max, ordered by game date
// then id. max <= 0 means unlimited.
func (s *PuzzleStore) PruneOldest(ctx context.Context, userID uuid.UUID, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM puzzles WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count puzzles: %w", err)
	}
	excess := total - max
	if excess <= 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM puzzles WHERE id IN (
			SELECT id FROM puzzles WHERE user_id = $1
			ORDER BY date ASC, id ASC LIMIT $2
		)`, userID, excess)
	if err != nil {
		return 0, fmt.Errorf("prune puzzles: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CommitAnswer persists the outcome of one answer check in a single
// transaction, guarded by both version counters.
func (s *PuzzleStore) CommitAnswer(ctx context.Context, u *domain.User, p *domain.Puzzle, awarded []*domain.Badge) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit answer: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	u.UpdatedAt = now
	p.UpdatedAt = now

	tag, err := tx.Exec(ctx, userUpdateSQL, userUpdateArgs(u, string(settings))...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrConflict)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE puzzles SET
			weight = $1, next_review = $2, last_reviewed = $3,
			repetitions = $4, interval_days = $5, ease_factor = $6,
			successes = $7, failures = $8,
			version = version + 1, updated_at = $9
		WHERE id = $10 AND user_id = $11 AND version = $12`,
		p.Weight, p.NextReview, p.LastReviewed,
		p.Repetitions, p.IntervalDays, p.EaseFactor,
		p.Successes, p.Failures,
		p.UpdatedAt, p.ID, p.UserID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("update puzzle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("puzzle %s: %w", p.ID, domain.ErrConflict)
	}

	for _, b := range awarded {
		_, err := tx.Exec(ctx, `
			INSERT INTO badges (id, user_id, name, icon, description, awarded_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, name) DO NOTHING`,
			b.ID, b.UserID, b.Name, b.Icon, b.Description, b.AwardedAt,
		)
		if err != nil {
			return fmt.Errorf("insert badge %s: %w", b.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit answer: %w", err)
	}

	u.Version++
	p.Version++
	return nil
}

// UserStore implements user and badge persistence using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new PostgreSQL user store.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetOrCreate returns the user with the given username, creating one with
// default settings on first sight.
func (s *UserStore) GetOrCreate(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	u = domain.NewUser(username)
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return nil, fmt.Errorf("marshal settings: %w", err)
	}

	query := `
		INSERT INTO users (` + userCols + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21)`
	_, err = s.pool.Exec(ctx, query,
		u.ID, u.Username,
		u.XP, u.XPToday, u.XPTodayDate, u.XPWeek, u.XPWeekKey,
		u.CorrectCount, u.ConsecutiveCorrect, u.BestPuzzleStreak,
		u.StreakDays, u.BestStreakDays, u.LastCorrectDate,
		string(u.ImportStatus), u.ImportTotal, u.ImportDone, u.ImportError,
		string(settings), u.Version, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

// Get retrieves a user by ID.
func (s *UserStore) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE id = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

// GetByUsername retrieves a user by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT ` + userCols + ` FROM users WHERE username = $1`
	u, err := scanUser(s.pool.QueryRow(ctx, query, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	return u, err
}

// Update writes the user guarded by its version counter.
func (s *UserStore) Update(ctx context.Context, u *domain.User) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	u.UpdatedAt = time.Now()
	tag, err := s.pool.Exec(ctx, userUpdateSQL, userUpdateArgs(u, string(settings))...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrConflict)
	}
	u.Version++
	return nil
}

// Leaderboard pages users by total experience, highest first.
func (s *UserStore) Leaderboard(ctx context.Context, page, perPage int) ([]*domain.User, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	query := `SELECT ` + userCols + ` FROM users
		ORDER BY xp DESC, username ASC LIMIT $1 OFFSET $2`
	rows, err := s.pool.Query(ctx, query, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListBadges returns the user's badges in award order.
func (s *UserStore) ListBadges(ctx context.Context, userID uuid.UUID) ([]*domain.Badge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, icon, description, awarded_at
		FROM badges WHERE user_id = $1 ORDER BY awarded_at, name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []*domain.Badge
	for rows.Next() {
		var b domain.Badge
		if err := rows.Scan(&b.ID, &b.UserID, &b.Name, &b.Icon, &b.Description, &b.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, &b)
	}
	return badges, rows.Err()
}

// HistoryStore implements training activity recording using PostgreSQL.
type HistoryStore struct {
	pool *pgxpool.Pool
}

// NewHistoryStore creates a new PostgreSQL history store.
func NewHistoryStore(pool *pgxpool.Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Record appends one activity event for a user.
func (s *HistoryStore) Record(ctx context.Context, userID uuid.UUID, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal history data: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO history (user_id, event_type, data, created_at) VALUES ($1, $2, $3, $4)`,
		userID, eventType, string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert history event: %w", err)
	}
	return nil
}

// Recent returns the user's newest events, optionally filtered by type.
func (s *HistoryStore) Recent(ctx context.Context, userID uuid.UUID, eventType string, limit int) ([]domain.HistoryEvent, error) {
	if limit < 1 {
		limit = 20
	}

	query := `SELECT id, user_id, event_type, data, created_at FROM history WHERE user_id = $1`
	args := []any{userID}
	if eventType != "" {
		query += ` AND event_type = $2 ORDER BY created_at DESC, id DESC LIMIT $3`
		args = append(args, eventType, limit)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []domain.HistoryEvent
	for rows.Next() {
		var e domain.HistoryEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Type, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByType returns how many events of one type the user has recorded.
func (s *HistoryStore) CountByType(ctx context.Context, userID uuid.UUID, eventType string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM history WHERE user_id = $1 AND event_type = $2`,
		userID, eventType,
	).Scan(&count)
	return count, err
}

// filterClause builds the WHERE clause and arguments a filter implies.
func filterClause(userID uuid.UUID, f trainer.Filter) (string, []any) {
	where := "WHERE user_id = $1"
	args := []any{userID}

	next := 2
	if len(f.PerfTypes) > 0 {
		where += fmt.Sprintf(" AND time_control_type = ANY($%d)", next)
		args = append(args, toStrings(f.PerfTypes))
		next++
	}
	if len(f.Tags) > 0 {
		where += fmt.Sprintf(" AND tag = ANY($%d)", next)
		args = append(args, toStrings(f.Tags))
		next++
	}
	if f.Days > 0 {
		where += fmt.Sprintf(" AND created_at >= $%d", next)
		args = append(args, time.Now().AddDate(0, 0, -f.Days))
		next++
	}
	return where, args
}

func toStrings[S ~string](in []S) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

// scanPuzzle scans one puzzle row. pgx.Rows satisfies pgx.Row, so list
// queries share this helper.
func scanPuzzle(row pgx.Row) (*domain.Puzzle, error) {
	var p domain.Puzzle
	var side, tag, tcType string

	err := row.Scan(
		&p.ID, &p.UserID, &p.GameID, &p.MoveIndex, &p.FEN, &side, &p.SolutionSAN,
		&p.PlayedSAN, &p.Weight, &p.NextReview, &p.LastReviewed,
		&p.Repetitions, &p.IntervalDays, &p.EaseFactor,
		&p.Successes, &p.Failures, &p.PreEval, &p.PostEval, &tag,
		&p.White, &p.Black, &p.Date, &p.TimeControl, &tcType,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Side = domain.Side(side)
	p.Tag = domain.Severity(tag)
	p.TimeControlType = domain.TimeControlType(tcType)
	return &p, nil
}

// scanUser scans one user row.
func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var importStatus, settingsJSON string

	err := row.Scan(
		&u.ID, &u.Username,
		&u.XP, &u.XPToday, &u.XPTodayDate, &u.XPWeek, &u.XPWeekKey,
		&u.CorrectCount, &u.ConsecutiveCorrect, &u.BestPuzzleStreak,
		&u.StreakDays, &u.BestStreakDays, &u.LastCorrectDate,
		&importStatus, &u.ImportTotal, &u.ImportDone, &u.ImportError,
		&settingsJSON, &u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.ImportStatus = domain.ImportStatus(importStatus)
	if err := json.Unmarshal([]byte(settingsJSON), &u.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return &u, nil
}
