package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/felixgeelhaar/hone/internal/config"
	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/progress"
	"github.com/felixgeelhaar/hone/internal/storage/postgres"
	"github.com/felixgeelhaar/hone/internal/storage/sqlite"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// app wires the trainer over the configured storage backend for one CLI
// invocation.
type app struct {
	cfg     *config.LocalConfig
	svc     *trainer.Service
	user    *domain.User
	cleanup func()
}

// newApp loads the local config, opens storage and resolves the configured
// user. DATABASE_URL in the environment selects PostgreSQL; the default is
// the SQLite file under ~/.hone.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("no username configured (run 'hone init <username>' first)")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	svc, cleanup, err := buildTrainer(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	user, err := svc.User(ctx, cfg.Username)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("resolve user %q: %w", cfg.Username, err)
	}

	return &app{
		cfg:     cfg,
		svc:     svc,
		user:    user,
		cleanup: cleanup,
	}, nil
}

// buildTrainer opens the storage backend and assembles the trainer facade.
func buildTrainer(ctx context.Context, cfg *config.LocalConfig, logger *slog.Logger) (*trainer.Service, func(), error) {
	catalog, err := progress.LoadCatalog()
	if err != nil {
		return nil, nil, fmt.Errorf("load badge catalog: %w", err)
	}
	tracker := progress.New(catalog, logger)

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := postgres.Connect(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		svc := trainer.NewService(postgres.NewUserStore(pool), postgres.NewPuzzleStore(pool), tracker, logger)
		svc.SetHistoryStore(postgres.NewHistoryStore(pool))
		return svc, pool.Close, nil
	}

	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, nil, err
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	svc := trainer.NewService(sqlite.NewUserStore(db), sqlite.NewPuzzleStore(db), tracker, logger)
	svc.SetHistoryStore(sqlite.NewHistoryStore(db))
	return svc, func() { db.Close() }, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
