package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// HistoryStore provides training activity recording backed by SQLite.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a new SQLite-backed history store.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record appends one activity event for a user.
func (s *HistoryStore) Record(ctx context.Context, userID uuid.UUID, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal history data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO history (user_id, event_type, data, created_at) VALUES (?, ?, ?, ?)",
		userID.String(), eventType, string(payload), time.Now(),
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

	query := "SELECT id, user_id, event_type, data, created_at FROM history WHERE user_id = ?"
	args := []any{userID.String()}
	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var events []domain.HistoryEvent
	for rows.Next() {
		var e domain.HistoryEvent
		var ownerID string
		if err := rows.Scan(&e.ID, &ownerID, &e.Type, &e.Data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history event: %w", err)
		}
		if e.UserID, err = uuid.Parse(ownerID); err != nil {
			return nil, fmt.Errorf("parse history owner id: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByType returns how many events of one type the user has recorded.
func (s *HistoryStore) CountByType(ctx context.Context, userID uuid.UUID, eventType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history WHERE user_id = ? AND event_type = ?",
		userID.String(), eventType,
	).Scan(&count)
	return count, err
}

// Prune deletes events older than the given duration.
func (s *HistoryStore) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.ExecContext(ctx, "DELETE FROM history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return result.RowsAffected()
}
