package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// defaultJobTimeout bounds a single import when the job does not carry its
// own timeout. Large archives take a while to replay move by move.
const defaultJobTimeout = 2 * time.Minute

// JobHandler runs one import job and reports its counters.
type JobHandler func(ctx context.Context, job *ImportJob) (*ImportSummary, error)

// Consumer pulls import jobs off the queue and hands them to a JobHandler,
// publishing an ImportOutcome per job.
type Consumer struct {
	conn       *Connection
	handler    JobHandler
	producer   *Producer
	workers    int
	prefetch   int
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration.
type ConsumerConfig struct {
	Workers  int // concurrent workers
	Prefetch int // prefetch count per worker
}

// DefaultConsumerConfig returns sensible defaults. Imports are heavyweight
// and serialized per user anyway, so two workers go a long way.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  2,
		Prefetch: 1,
	}
}

// NewConsumer creates a queue consumer.
func NewConsumer(conn *Connection, handler JobHandler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		producer: NewProducer(conn),
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
	}
}

// Start begins consuming jobs.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		JobQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("starting import job consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var job ImportJob
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		slog.Error("unmarshal import job",
			"worker_id", workerID,
			"error", err,
		)
		// Reject without requeue for malformed messages.
		_ = msg.Reject(false)
		return
	}

	slog.Info("processing import job",
		"worker_id", workerID,
		"job_id", job.ID,
		"user", job.Username,
		"pgn_bytes", len(job.PGN),
	)

	timeout := time.Duration(job.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	summary, err := c.handler(jobCtx, &job)
	duration := time.Since(start)

	out := &ImportOutcome{
		JobID:       job.ID,
		Username:    job.Username,
		Duration:    duration,
		CompletedAt: time.Now(),
	}
	if err != nil {
		out.Status = "failed"
		out.Error = err.Error()
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			out.Status = "timeout"
			out.Error = "import timed out"
		}

		slog.Error("import job failed",
			"worker_id", workerID,
			"job_id", job.ID,
			"status", out.Status,
			"error", err,
			"duration", duration,
		)
	} else {
		out.Status = "completed"
		out.Summary = summary

		slog.Info("import job completed",
			"worker_id", workerID,
			"job_id", job.ID,
			"created", summary.Created,
			"updated", summary.Updated,
			"skipped", summary.Skipped,
			"duration", duration,
		)
	}

	if err := c.producer.PublishOutcome(ctx, out); err != nil {
		slog.Error("publish outcome",
			"worker_id", workerID,
			"job_id", job.ID,
			"error", err,
		)
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("ack message",
			"worker_id", workerID,
			"job_id", job.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}

// ResultConsumer consumes import outcomes so a front end can wait for the
// jobs it published.
type ResultConsumer struct {
	conn       *Connection
	handlers   map[string]ResultHandler
	handlersMu sync.RWMutex
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ResultHandler handles the outcome of a specific job.
type ResultHandler func(out *ImportOutcome)

// NewResultConsumer creates a result consumer.
func NewResultConsumer(conn *Connection) *ResultConsumer {
	return &ResultConsumer{
		conn:     conn,
		handlers: make(map[string]ResultHandler),
	}
}

// Subscribe registers a handler for the outcome of one job.
func (rc *ResultConsumer) Subscribe(jobID string, handler ResultHandler) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	rc.handlers[jobID] = handler
}

// Unsubscribe removes a handler.
func (rc *ResultConsumer) Unsubscribe(jobID string) {
	rc.handlersMu.Lock()
	defer rc.handlersMu.Unlock()
	delete(rc.handlers, jobID)
}

// Start begins consuming outcomes.
func (rc *ResultConsumer) Start(ctx context.Context) error {
	ctx, rc.cancelFunc = context.WithCancel(ctx)

	ch := rc.conn.Channel()

	msgs, err := ch.Consume(
		ResultQueueName,
		"",    // consumer tag
		true,  // auto-ack (outcomes are fire-and-forget)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start result consumer: %w", err)
	}

	rc.wg.Add(1)
	go rc.consume(ctx, msgs)

	return nil
}

func (rc *ResultConsumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer rc.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}

			var out ImportOutcome
			if err := json.Unmarshal(msg.Body, &out); err != nil {
				slog.Error("unmarshal import outcome", "error", err)
				continue
			}

			rc.handlersMu.RLock()
			handler, ok := rc.handlers[out.JobID.String()]
			rc.handlersMu.RUnlock()

			if ok {
				handler(&out)
			}
		}
	}
}

// Stop stops the result consumer.
func (rc *ResultConsumer) Stop() {
	if rc.cancelFunc != nil {
		rc.cancelFunc()
	}
	rc.wg.Wait()
}
