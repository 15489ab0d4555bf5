package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// puzzleCols is the canonical column order shared by every puzzle query and
// the two scan helpers.
const puzzleCols = `id, user_id, game_id, move_index, fen, side, solution_san, played_san, weight,
	next_review, last_reviewed, repetitions, interval_days, ease_factor,
	successes, failures, pre_eval, post_eval, tag, white, black, date,
	time_control, time_control_type, version, created_at, updated_at`

// PuzzleStore implements puzzle persistence backed by SQLite.
type PuzzleStore struct {
	db *DB
}

// NewPuzzleStore creates a new SQLite-backed puzzle store.
func NewPuzzleStore(db *DB) *PuzzleStore {
	return &PuzzleStore{db: db}
}

// Upsert inserts a puzzle, or refreshes the annotation metadata of the row
// already keyed by (user, game, move index). Weight, scheduling state and
// attempt counters survive a re-import untouched.
func (s *PuzzleStore) Upsert(ctx context.Context, p *domain.Puzzle) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		"SELECT id FROM puzzles WHERE user_id = ? AND game_id = ? AND move_index = ?",
		p.UserID.String(), p.GameID, p.MoveIndex).Scan(&existing)

	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO puzzles (`+puzzleCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID.String(), p.UserID.String(), p.GameID, p.MoveIndex, p.FEN,
			string(p.Side), p.SolutionSAN, p.PlayedSAN, p.Weight,
			nullTime(p.NextReview), nullTime(p.LastReviewed),
			p.Repetitions, p.IntervalDays, p.EaseFactor,
			p.Successes, p.Failures, p.PreEval, p.PostEval, string(p.Tag),
			p.White, p.Black, p.Date, p.TimeControl, string(p.TimeControlType),
			p.Version, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return false, fmt.Errorf("insert puzzle: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("commit upsert: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up puzzle: %w", err)
	}

	// FEN and side derive from the game itself and never change; only the
	// annotation-derived metadata is refreshed.
	p.UpdatedAt = time.Now()
	_, err = tx.ExecContext(ctx, `
		UPDATE puzzles SET
			solution_san = ?, played_san = ?, pre_eval = ?, post_eval = ?, tag = ?,
			white = ?, black = ?, date = ?, time_control = ?, time_control_type = ?,
			updated_at = ?
		WHERE id = ?`,
		p.SolutionSAN, p.PlayedSAN, p.PreEval, p.PostEval, string(p.Tag),
		p.White, p.Black, p.Date, p.TimeControl, string(p.TimeControlType),
		p.UpdatedAt, existing,
	)
	if err != nil {
		return false, fmt.Errorf("update puzzle metadata: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit upsert: %w", err)
	}

	id, err := uuid.Parse(existing)
	if err != nil {
		return false, fmt.Errorf("parse puzzle id: %w", err)
	}
	p.ID = id
	return false, nil
}

// Get retrieves a puzzle owned by the given user.
func (s *PuzzleStore) Get(ctx context.Context, id, userID uuid.UUID) (*domain.Puzzle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+puzzleCols+`
		FROM puzzles WHERE id = ? AND user_id = ?`, id.String(), userID.String())
	return scanPuzzle(row)
}

// ListCandidates returns the user's puzzles matching the filter, oldest first.
func (s *PuzzleStore) ListCandidates(ctx context.Context, userID uuid.UUID, f trainer.Filter) ([]*domain.Puzzle, error) {
	where, args := filterClause(userID, f)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+puzzleCols+`
		FROM puzzles `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var puzzles []*domain.Puzzle
	for rows.Next() {
		p, err := scanPuzzleRow(rows)
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
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM puzzles "+where, args...).Scan(&available); err != nil {
		return 0, 0, fmt.Errorf("count candidates: %w", err)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM puzzles WHERE user_id = ?", userID.String()).Scan(&total); err != nil {
		return 0, 0, fmt.Errorf("count puzzles: %w", err)
	}
	return available, total, nil
}

// PruneOldest deletes the oldest puzzles beyond max, ordered by game date then
// id so ties resolve deterministically. max <= 0 means unlimited.
func (s *PuzzleStore) PruneOldest(ctx context.Context, userID uuid.UUID, max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM puzzles WHERE user_id = ?", userID.String()).Scan(&total); err != nil {
		return 0, fmt.Errorf("count puzzles: %w", err)
	}
	excess := total - max
	if excess <= 0 {
		return 0, nil
	}

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM puzzles WHERE id IN (
			SELECT id FROM puzzles WHERE user_id = ?
			ORDER BY date ASC, id ASC LIMIT ?
		)`, userID.String(), excess)
	if err != nil {
		return 0, fmt.Errorf("prune puzzles: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// CommitAnswer persists the outcome of one answer check in a single
// transaction: the mutated user, the mutated puzzle, and any badges earned.
// Both updates are guarded by version counters; a stale read surfaces as
// domain.ErrConflict and nothing is written.
func (s *PuzzleStore) CommitAnswer(ctx context.Context, u *domain.User, p *domain.Puzzle, awarded []*domain.Badge) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit answer: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	u.UpdatedAt = now
	p.UpdatedAt = now

	result, err := tx.ExecContext(ctx, userUpdateSQL, userUpdateArgs(u, string(settings))...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrConflict)
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE puzzles SET
			weight = ?, next_review = ?, last_reviewed = ?,
			repetitions = ?, interval_days = ?, ease_factor = ?,
			successes = ?, failures = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND user_id = ? AND version = ?`,
		p.Weight, nullTime(p.NextReview), nullTime(p.LastReviewed),
		p.Repetitions, p.IntervalDays, p.EaseFactor,
		p.Successes, p.Failures,
		p.UpdatedAt, p.ID.String(), p.UserID.String(), p.Version,
	)
	if err != nil {
		return fmt.Errorf("update puzzle: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("puzzle %s: %w", p.ID, domain.ErrConflict)
	}

	for _, b := range awarded {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO badges (id, user_id, name, icon, description, awarded_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, name) DO NOTHING`,
			b.ID.String(), b.UserID.String(), b.Name, b.Icon, b.Description, b.AwardedAt,
		)
		if err != nil {
			return fmt.Errorf("insert badge %s: %w", b.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit answer: %w", err)
	}

	u.Version++
	p.Version++
	return nil
}

// filterClause builds the WHERE clause and arguments a filter implies.
func filterClause(userID uuid.UUID, f trainer.Filter) (string, []any) {
	var sb strings.Builder
	sb.WriteString("WHERE user_id = ?")
	args := []any{userID.String()}

	if len(f.PerfTypes) > 0 {
		sb.WriteString(" AND time_control_type IN (" + placeholders(len(f.PerfTypes)) + ")")
		for _, pt := range f.PerfTypes {
			args = append(args, string(pt))
		}
	}
	if len(f.Tags) > 0 {
		sb.WriteString(" AND tag IN (" + placeholders(len(f.Tags)) + ")")
		for _, tag := range f.Tags {
			args = append(args, string(tag))
		}
	}
	if f.Days > 0 {
		sb.WriteString(" AND created_at >= ?")
		args = append(args, time.Now().AddDate(0, 0, -f.Days))
	}
	return sb.String(), args
}

// placeholders returns n comma-separated SQL placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// nullTime converts a *time.Time to sql.NullTime for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// scanPuzzle scans a single puzzle from a *sql.Row.
func scanPuzzle(row *sql.Row) (*domain.Puzzle, error) {
	var p domain.Puzzle
	var id, ownerID, side, tag, tcType string
	var nextReview, lastReviewed sql.NullTime

	err := row.Scan(
		&id, &ownerID, &p.GameID, &p.MoveIndex, &p.FEN, &side, &p.SolutionSAN,
		&p.PlayedSAN, &p.Weight, &nextReview, &lastReviewed,
		&p.Repetitions, &p.IntervalDays, &p.EaseFactor,
		&p.Successes, &p.Failures, &p.PreEval, &p.PostEval, &tag,
		&p.White, &p.Black, &p.Date, &p.TimeControl, &tcType,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPuzzleNotFound
		}
		return nil, fmt.Errorf("scan puzzle: %w", err)
	}
	return finishPuzzle(&p, id, ownerID, side, tag, tcType, nextReview, lastReviewed)
}

// scanPuzzleRow scans a puzzle from *sql.Rows (for list queries).
func scanPuzzleRow(rows *sql.Rows) (*domain.Puzzle, error) {
	var p domain.Puzzle
	var id, ownerID, side, tag, tcType string
	var nextReview, lastReviewed sql.NullTime

	err := rows.Scan(
		&id, &ownerID, &p.GameID, &p.MoveIndex, &p.FEN, &side, &p.SolutionSAN,
		&p.PlayedSAN, &p.Weight, &nextReview, &lastReviewed,
		&p.Repetitions, &p.IntervalDays, &p.EaseFactor,
		&p.Successes, &p.Failures, &p.PreEval, &p.PostEval, &tag,
		&p.White, &p.Black, &p.Date, &p.TimeControl, &tcType,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan puzzle row: %w", err)
	}
	return finishPuzzle(&p, id, ownerID, side, tag, tcType, nextReview, lastReviewed)
}

// finishPuzzle converts the string and nullable columns onto the domain type.
func finishPuzzle(p *domain.Puzzle, id, ownerID, side, tag, tcType string, nextReview, lastReviewed sql.NullTime) (*domain.Puzzle, error) {
	var err error
	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse puzzle id: %w", err)
	}
	if p.UserID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("parse puzzle owner id: %w", err)
	}
	p.Side = domain.Side(side)
	p.Tag = domain.Severity(tag)
	p.TimeControlType = domain.TimeControlType(tcType)
	if nextReview.Valid {
		p.NextReview = &nextReview.Time
	}
	if lastReviewed.Valid {
		p.LastReviewed = &lastReviewed.Time
	}
	return p, nil
}
