package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/felixgeelhaar/hone/internal/config"
	"github.com/felixgeelhaar/hone/internal/progress"
	"github.com/felixgeelhaar/hone/internal/queue"
	"github.com/felixgeelhaar/hone/internal/storage/postgres"
	"github.com/felixgeelhaar/hone/internal/storage/sqlite"
	"github.com/felixgeelhaar/hone/internal/trainer"
	"github.com/felixgeelhaar/hone/internal/worker"
)

const pidFileName = "honed.pid"

// version is set at build time via ldflags
var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Ensure ~/.hone directory exists
	honeDir, err := config.EnsureHoneDir()
	if err != nil {
		return fmt.Errorf("ensure hone dir: %w", err)
	}

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logFile, err := setupLogging(honeDir, logLevel)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Write PID file
	pidPath := filepath.Join(honeDir, pidFileName)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, cleanup, err := buildTrainer(ctx, cfg, honeDir)
	if err != nil {
		return err
	}
	defer cleanup()

	// Connect to the message broker
	conn, err := queue.NewConnection(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	defer conn.Close()

	// Start consuming import jobs
	w := worker.New(conn, svc, queue.ConsumerConfig{
		Workers:  cfg.Workers,
		Prefetch: cfg.Prefetch,
	}, slog.Default())
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	// Status server for the CLI's daemon commands
	addr := fmt.Sprintf("%s:%d", cfg.StatusBind, cfg.StatusPort)
	status := worker.NewStatusServer(addr, w, version)

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		slog.Info("received signal, shutting down", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := status.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	if err := status.Start(); err != http.ErrServerClosed {
		return fmt.Errorf("status server error: %w", err)
	}

	<-done
	slog.Info("worker stopped")
	return nil
}

// buildTrainer opens the configured storage backend and assembles the
// trainer. DatabaseURL selects PostgreSQL; the default is a SQLite file
// under the hone directory.
func buildTrainer(ctx context.Context, cfg *config.Config, honeDir string) (*trainer.Service, func(), error) {
	catalog, err := progress.LoadCatalog()
	if err != nil {
		return nil, nil, fmt.Errorf("load badge catalog: %w", err)
	}
	tracker := progress.New(catalog, slog.Default())

	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		svc := trainer.NewService(postgres.NewUserStore(pool), postgres.NewPuzzleStore(pool), tracker, slog.Default())
		svc.SetHistoryStore(postgres.NewHistoryStore(pool))
		return svc, pool.Close, nil
	}

	path := cfg.SQLitePath
	if path == "" {
		path = filepath.Join(honeDir, "hone.db")
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	svc := trainer.NewService(sqlite.NewUserStore(db), sqlite.NewPuzzleStore(db), tracker, slog.Default())
	svc.SetHistoryStore(sqlite.NewHistoryStore(db))
	return svc, func() { db.Close() }, nil
}

func setupLogging(honeDir string, level slog.Level) (*os.File, error) {
	logPath := filepath.Join(honeDir, "logs", "honed.log")

	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	handler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{
		Level: level,
	})

	// Also log to stderr for foreground mode
	multiHandler := &multiHandler{
		handlers: []slog.Handler{
			handler,
			slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			}),
		},
	}

	slog.SetDefault(slog.New(multiHandler))

	return logFile, nil
}

func writePIDFile(path string) error {
	pid := os.Getpid()
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0644)
}

// multiHandler logs to multiple handlers
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
