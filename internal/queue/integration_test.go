//go:build integration

package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/felixgeelhaar/hone/internal/queue"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

const integrationPGN = `[Event "Rated blitz game"]
[Site "https://lichess.org/integr01"]
[Date "2024.02.02"]
[White "alice"]
[Black "bob"]
[Result "1-0"]
[TimeControl "300+3"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 { (0.40 -> -0.80) Mistake. Bxc6 was best. } Nf6 1-0
`

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672")
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_PublishJob(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)
	job := queue.NewImportJob(uuid.New(), "alice", integrationPGN, false)

	ctx := context.Background()
	if err := producer.PublishJob(ctx, job); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}

	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.JobQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_Producer_PublishOutcome(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)
	out := &queue.ImportOutcome{
		JobID:  uuid.New(),
		Status: "completed",
		Summary: &queue.ImportSummary{
			Games:   1,
			Created: 1,
		},
		Duration:    1500 * time.Millisecond,
		CompletedAt: time.Now(),
	}

	ctx := context.Background()
	if err := producer.PublishOutcome(ctx, out); err != nil {
		t.Fatalf("failed to publish outcome: %v", err)
	}

	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.ResultQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

func TestIntegration_Consumer_ProcessJobs(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var receivedJobs []*queue.ImportJob
	var mu sync.Mutex
	receivedCh := make(chan struct{}, 5)

	handler := func(ctx context.Context, job *queue.ImportJob) (*queue.ImportSummary, error) {
		mu.Lock()
		receivedJobs = append(receivedJobs, job)
		mu.Unlock()

		receivedCh <- struct{}{}

		return &queue.ImportSummary{Games: 1, Created: 1}, nil
	}

	consumer := queue.NewConsumer(conn, handler, queue.ConsumerConfig{
		Workers:  2,
		Prefetch: 1,
	})

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	jobCount := 3
	for i := 0; i < jobCount; i++ {
		job := queue.NewImportJob(uuid.New(), "alice", integrationPGN, false)
		if err := producer.PublishJob(ctx, job); err != nil {
			t.Fatalf("failed to publish job %d: %v", i, err)
		}
	}

	for i := 0; i < jobCount; i++ {
		select {
		case <-receivedCh:
		case <-ctx.Done():
			t.Fatalf("timeout waiting for job %d", i)
		}
	}

	mu.Lock()
	if len(receivedJobs) != jobCount {
		t.Errorf("expected %d jobs, got %d", jobCount, len(receivedJobs))
	}
	mu.Unlock()
}

func TestIntegration_Consumer_HandlerError(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	processedCh := make(chan struct{}, 1)

	handler := func(ctx context.Context, job *queue.ImportJob) (*queue.ImportSummary, error) {
		processedCh <- struct{}{}
		return nil, errors.New("parse pgn: broken movetext")
	}

	consumer := queue.NewConsumer(conn, handler, queue.DefaultConsumerConfig())

	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	producer := queue.NewProducer(conn)
	job := queue.NewImportJob(uuid.New(), "alice", "garbage", false)
	if err := producer.PublishJob(ctx, job); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}

	select {
	case <-processedCh:
	case <-ctx.Done():
		t.Fatal("timeout waiting for job processing")
	}

	// Give time for the failed outcome to land on the result queue.
	time.Sleep(100 * time.Millisecond)

	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.ResultQueueName)
	if err != nil {
		t.Fatalf("failed to inspect result queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 outcome in queue, got %d", q.Messages)
	}
}

func TestIntegration_ResultConsumer_Subscribe(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resultConsumer := queue.NewResultConsumer(conn)
	if err := resultConsumer.Start(ctx); err != nil {
		t.Fatalf("failed to start result consumer: %v", err)
	}
	defer resultConsumer.Stop()

	jobID := uuid.New()
	receivedCh := make(chan *queue.ImportOutcome, 1)

	resultConsumer.Subscribe(jobID.String(), func(out *queue.ImportOutcome) {
		receivedCh <- out
	})

	producer := queue.NewProducer(conn)
	out := &queue.ImportOutcome{
		JobID:  jobID,
		Status: "completed",
		Summary: &queue.ImportSummary{
			Games:   2,
			Created: 3,
			Skipped: 1,
		},
		Duration:    500 * time.Millisecond,
		CompletedAt: time.Now(),
	}

	if err := producer.PublishOutcome(ctx, out); err != nil {
		t.Fatalf("failed to publish outcome: %v", err)
	}

	select {
	case received := <-receivedCh:
		if received.JobID != jobID {
			t.Errorf("expected job ID %s, got %s", jobID, received.JobID)
		}
		if received.Status != "completed" {
			t.Errorf("expected status 'completed', got '%s'", received.Status)
		}
		if received.Summary == nil || received.Summary.Created != 3 {
			t.Errorf("summary lost in transit: %+v", received.Summary)
		}
	case <-ctx.Done():
		t.Fatal("timeout waiting for outcome")
	}

	resultConsumer.Unsubscribe(jobID.String())
}

func TestIntegration_Connection_PublishJSON(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()

	job := queue.NewImportJob(uuid.New(), "alice", integrationPGN, true)
	if err := conn.PublishJSON(ctx, queue.JobQueueName, job); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	ch := conn.Channel()
	q, err := ch.QueueInspect(queue.JobQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}

	if q.Messages != 1 {
		t.Errorf("expected 1 message, got %d", q.Messages)
	}
}
