package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// userCols is the canonical column order shared by every user query and the
// two scan helpers.
const userCols = `id, username, xp, xp_today, xp_today_date, xp_week, xp_week_key,
	correct_count, consecutive_correct, best_puzzle_streak,
	streak_days, best_streak_days, last_correct_date,
	import_status, import_total, import_done, import_error,
	settings, version, created_at, updated_at`

// userUpdateSQL writes every mutable user column guarded by the version
// counter. Shared with PuzzleStore.CommitAnswer so both paths stay in step.
const userUpdateSQL = `
	UPDATE users SET
		xp = ?, xp_today = ?, xp_today_date = ?, xp_week = ?, xp_week_key = ?,
		correct_count = ?, consecutive_correct = ?, best_puzzle_streak = ?,
		streak_days = ?, best_streak_days = ?, last_correct_date = ?,
		import_status = ?, import_total = ?, import_done = ?, import_error = ?,
		settings = ?,
		version = version + 1, updated_at = ?
	WHERE id = ? AND version = ?`

// userUpdateArgs builds the argument list matching userUpdateSQL.
func userUpdateArgs(u *domain.User, settings string) []any {
	return []any{
		u.XP, u.XPToday, u.XPTodayDate, u.XPWeek, u.XPWeekKey,
		u.CorrectCount, u.ConsecutiveCorrect, u.BestPuzzleStreak,
		u.StreakDays, u.BestStreakDays, u.LastCorrectDate,
		string(u.ImportStatus), u.ImportTotal, u.ImportDone, u.ImportError,
		settings,
		u.UpdatedAt,
		u.ID.String(), u.Version,
	}
}

// UserStore implements user and badge persistence backed by SQLite.
type UserStore struct {
	db *DB
}

// NewUserStore creates a new SQLite-backed user store.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (`+userCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID.String(), u.Username,
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
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userCols+`
		FROM users WHERE id = ?`, id.String())
	return scanUser(row)
}

// GetByUsername retrieves a user by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userCols+`
		FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// Update writes the user guarded by its version counter. A stale version
// yields domain.ErrConflict and no write.
func (s *UserStore) Update(ctx context.Context, u *domain.User) error {
	settings, err := json.Marshal(u.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	u.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, userUpdateSQL, userUpdateArgs(u, string(settings))...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", u.ID, domain.ErrConflict)
	}
	u.Version++
	return nil
}

// Leaderboard pages users by total experience, highest first. Pages are
// 1-based; ties break on username for a stable order.
func (s *UserStore) Leaderboard(ctx context.Context, page, perPage int) ([]*domain.User, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userCols+`
		FROM users ORDER BY xp DESC, username ASC
		LIMIT ? OFFSET ?`, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ListBadges returns the user's badges in award order.
func (s *UserStore) ListBadges(ctx context.Context, userID uuid.UUID) ([]*domain.Badge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, icon, description, awarded_at
		FROM badges WHERE user_id = ? ORDER BY awarded_at, name`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []*domain.Badge
	for rows.Next() {
		var b domain.Badge
		var id, ownerID string
		if err := rows.Scan(&id, &ownerID, &b.Name, &b.Icon, &b.Description, &b.AwardedAt); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		if b.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse badge id: %w", err)
		}
		if b.UserID, err = uuid.Parse(ownerID); err != nil {
			return nil, fmt.Errorf("parse badge owner id: %w", err)
		}
		badges = append(badges, &b)
	}
	return badges, rows.Err()
}

// scanUser scans a single user from a *sql.Row.
func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var id, importStatus, settingsJSON string

	err := row.Scan(
		&id, &u.Username,
		&u.XP, &u.XPToday, &u.XPTodayDate, &u.XPWeek, &u.XPWeekKey,
		&u.CorrectCount, &u.ConsecutiveCorrect, &u.BestPuzzleStreak,
		&u.StreakDays, &u.BestStreakDays, &u.LastCorrectDate,
		&importStatus, &u.ImportTotal, &u.ImportDone, &u.ImportError,
		&settingsJSON, &u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return finishUser(&u, id, importStatus, settingsJSON)
}

// scanUserRow scans a user from *sql.Rows (for list queries).
func scanUserRow(rows *sql.Rows) (*domain.User, error) {
	var u domain.User
	var id, importStatus, settingsJSON string

	err := rows.Scan(
		&id, &u.Username,
		&u.XP, &u.XPToday, &u.XPTodayDate, &u.XPWeek, &u.XPWeekKey,
		&u.CorrectCount, &u.ConsecutiveCorrect, &u.BestPuzzleStreak,
		&u.StreakDays, &u.BestStreakDays, &u.LastCorrectDate,
		&importStatus, &u.ImportTotal, &u.ImportDone, &u.ImportError,
		&settingsJSON, &u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return finishUser(&u, id, importStatus, settingsJSON)
}

// finishUser converts the string columns onto the domain type.
func finishUser(u *domain.User, id, importStatus, settingsJSON string) (*domain.User, error) {
	var err error
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	u.ImportStatus = domain.ImportStatus(importStatus)
	if err := json.Unmarshal([]byte(settingsJSON), &u.Settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return u, nil
}
