package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Producer publishes import jobs and their outcomes.
type Producer struct {
	conn *Connection
}

// NewProducer creates a producer on the given connection.
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishJob enqueues an import job, filling in the ID and timestamp when the
// caller left them zero.
func (p *Producer) PublishJob(ctx context.Context, job *ImportJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, JobQueueName, job); err != nil {
		return fmt.Errorf("publish import job: %w", err)
	}

	slog.Info("published import job",
		"job_id", job.ID,
		"user", job.Username,
		"pgn_bytes", len(job.PGN),
		"any_side", job.AnySide,
	)

	return nil
}

// PublishOutcome reports the terminal state of a job on the result queue.
func (p *Producer) PublishOutcome(ctx context.Context, out *ImportOutcome) error {
	if out.CompletedAt.IsZero() {
		out.CompletedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, ResultQueueName, out); err != nil {
		return fmt.Errorf("publish import outcome: %w", err)
	}

	slog.Info("published import outcome",
		"job_id", out.JobID,
		"status", out.Status,
		"duration", out.Duration,
	)

	return nil
}

// NewImportJob builds a job for the given user and PGN batch.
func NewImportJob(userID uuid.UUID, username, pgn string, anySide bool) *ImportJob {
	return &ImportJob{
		ID:        uuid.New(),
		UserID:    userID,
		Username:  username,
		PGN:       pgn,
		AnySide:   anySide,
		CreatedAt: time.Now(),
	}
}
