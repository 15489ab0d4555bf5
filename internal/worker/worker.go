// Package worker runs the honed side of the import pipeline: it consumes
// queued PGN batches, feeds them through the trainer, and reports outcomes
// on the result queue.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/queue"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// ImportService is the slice of the trainer the worker drives.
type ImportService interface {
	User(ctx context.Context, username string) (*domain.User, error)
	ImportAnnotatedGames(ctx context.Context, userID uuid.UUID, req trainer.ImportRequest) (*trainer.ImportResult, error)
}

// Worker consumes import jobs and executes them against the trainer. A job
// that arrives while the user already has an import running fails with the
// trainer's in-progress error; the publisher decides whether to requeue.
type Worker struct {
	conn     *queue.Connection
	consumer *queue.Consumer
	svc      ImportService
	logger   *slog.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// New wires a worker onto the connection. A nil logger falls back to the
// default.
func New(conn *queue.Connection, svc ImportService, cfg queue.ConsumerConfig, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{
		conn:   conn,
		svc:    svc,
		logger: logger,
	}
	w.consumer = queue.NewConsumer(conn, w.handleJob, cfg)
	return w
}

// Start begins consuming import jobs.
func (w *Worker) Start(ctx context.Context) error {
	return w.consumer.Start(ctx)
}

// Stop drains the consumer workers.
func (w *Worker) Stop() {
	w.consumer.Stop()
}

// Connected reports whether the broker connection is up.
func (w *Worker) Connected() bool {
	return w.conn != nil && w.conn.IsConnected()
}

// Stats reports how many jobs finished and how many failed since start.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// handleJob resolves the job's user and runs the import. Jobs published by
// older front ends carry only a username; the worker resolves it the same
// way the CLI does, creating the user on first sight.
func (w *Worker) handleJob(ctx context.Context, job *queue.ImportJob) (*queue.ImportSummary, error) {
	userID := job.UserID
	if userID == uuid.Nil {
		if job.Username == "" {
			w.failed.Add(1)
			return nil, fmt.Errorf("%w: job %s carries neither user id nor username", domain.ErrInvalidInput, job.ID)
		}
		u, err := w.svc.User(ctx, job.Username)
		if err != nil {
			w.failed.Add(1)
			return nil, fmt.Errorf("resolve user %q: %w", job.Username, err)
		}
		userID = u.ID
	}

	res, err := w.svc.ImportAnnotatedGames(ctx, userID, trainer.ImportRequest{
		PGN:     job.PGN,
		AnySide: job.AnySide,
	})
	if err != nil {
		w.failed.Add(1)
		return nil, err
	}

	w.processed.Add(1)
	w.logger.Debug("import job done",
		"job_id", job.ID,
		"user_id", userID,
		"created", res.Created,
		"updated", res.Updated,
	)

	return &queue.ImportSummary{
		Games:   res.Games,
		Created: res.Created,
		Updated: res.Updated,
		Skipped: res.Skipped,
	}, nil
}
