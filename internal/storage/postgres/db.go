// Package postgres provides a PostgreSQL storage backend. It implements the
// same store contracts as the SQLite backend and is selected when a database
// URL is configured, which is the deployment mode of the import worker.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema mirrors the SQLite migrations in PostgreSQL dialect. The worker may
// race other instances at startup, so every statement is idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                  UUID PRIMARY KEY,
    username            TEXT NOT NULL UNIQUE,
    xp                  INTEGER NOT NULL DEFAULT 0,
    xp_today            INTEGER NOT NULL DEFAULT 0,
    xp_today_date       TEXT NOT NULL DEFAULT '',
    xp_week             INTEGER NOT NULL DEFAULT 0,
    xp_week_key         TEXT NOT NULL DEFAULT '',
    correct_count       INTEGER NOT NULL DEFAULT 0,
    consecutive_correct INTEGER NOT NULL DEFAULT 0,
    best_puzzle_streak  INTEGER NOT NULL DEFAULT 0,
    streak_days         INTEGER NOT NULL DEFAULT 0,
    best_streak_days    INTEGER NOT NULL DEFAULT 0,
    last_correct_date   TEXT NOT NULL DEFAULT '',
    import_status       TEXT NOT NULL DEFAULT 'idle',
    import_total        INTEGER NOT NULL DEFAULT 0,
    import_done         INTEGER NOT NULL DEFAULT 0,
    import_error        TEXT NOT NULL DEFAULT '',
    settings            TEXT NOT NULL DEFAULT '{}',
    version             INTEGER NOT NULL DEFAULT 1,
    created_at          TIMESTAMPTZ NOT NULL,
    updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS puzzles (
    id                UUID PRIMARY KEY,
    user_id           UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    game_id           TEXT NOT NULL,
    move_index        INTEGER NOT NULL,
    fen               TEXT NOT NULL,
    side              TEXT NOT NULL,
    solution_san      TEXT NOT NULL,
    played_san        TEXT NOT NULL DEFAULT '',
    weight            DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    next_review       TIMESTAMPTZ,
    last_reviewed     TIMESTAMPTZ,
    repetitions       INTEGER NOT NULL DEFAULT 0,
    interval_days     INTEGER NOT NULL DEFAULT 0,
    ease_factor       DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    successes         INTEGER NOT NULL DEFAULT 0,
    failures          INTEGER NOT NULL DEFAULT 0,
    pre_eval          DOUBLE PRECISION NOT NULL DEFAULT 0,
    post_eval         DOUBLE PRECISION NOT NULL DEFAULT 0,
    tag               TEXT NOT NULL DEFAULT '',
    white             TEXT NOT NULL DEFAULT '',
    black             TEXT NOT NULL DEFAULT '',
    date              TEXT NOT NULL DEFAULT '',
    time_control      TEXT NOT NULL DEFAULT '',
    time_control_type TEXT NOT NULL DEFAULT '',
    version           INTEGER NOT NULL DEFAULT 1,
    created_at        TIMESTAMPTZ NOT NULL,
    updated_at        TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, game_id, move_index)
);

CREATE INDEX IF NOT EXISTS idx_puzzles_user ON puzzles(user_id);
CREATE INDEX IF NOT EXISTS idx_puzzles_user_buckets ON puzzles(user_id, time_control_type, tag);

CREATE TABLE IF NOT EXISTS badges (
    id          UUID PRIMARY KEY,
    user_id     UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    icon        TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    awarded_at  TIMESTAMPTZ NOT NULL,
    UNIQUE (user_id, name)
);

CREATE INDEX IF NOT EXISTS idx_badges_user ON badges(user_id);

CREATE TABLE IF NOT EXISTS history (
    id         BIGSERIAL PRIMARY KEY,
    user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    event_type TEXT NOT NULL,
    data       TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_history_user ON history(user_id, created_at);
`

// Connect opens a connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
