package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/queue"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// fakeImportService implements ImportService for testing.
type fakeImportService struct {
	users       map[string]*domain.User
	result      *trainer.ImportResult
	importErr   error
	lastUserID  uuid.UUID
	lastRequest trainer.ImportRequest
}

func newFakeImportService() *fakeImportService {
	return &fakeImportService{
		users:  make(map[string]*domain.User),
		result: &trainer.ImportResult{Games: 1, Created: 2, Updated: 1, Skipped: 3},
	}
}

func (f *fakeImportService) User(ctx context.Context, username string) (*domain.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	u := domain.NewUser(username)
	f.users[username] = u
	return u, nil
}

func (f *fakeImportService) ImportAnnotatedGames(ctx context.Context, userID uuid.UUID, req trainer.ImportRequest) (*trainer.ImportResult, error) {
	f.lastUserID = userID
	f.lastRequest = req
	if f.importErr != nil {
		return nil, f.importErr
	}
	return f.result, nil
}

func newTestWorker(svc ImportService) *Worker {
	return New(nil, svc, queue.DefaultConsumerConfig(), nil)
}

func TestHandleJob_ResolvesUsername(t *testing.T) {
	svc := newFakeImportService()
	w := newTestWorker(svc)

	job := &queue.ImportJob{
		ID:       uuid.New(),
		Username: "alice",
		PGN:      "1. e4 e5 1-0",
		AnySide:  true,
	}

	summary, err := w.handleJob(context.Background(), job)
	if err != nil {
		t.Fatalf("handleJob() error = %v", err)
	}

	created, ok := svc.users["alice"]
	if !ok {
		t.Fatal("user was not resolved by username")
	}
	if svc.lastUserID != created.ID {
		t.Errorf("import ran for user %v, want %v", svc.lastUserID, created.ID)
	}
	if !svc.lastRequest.AnySide || svc.lastRequest.PGN != job.PGN {
		t.Errorf("request = %+v", svc.lastRequest)
	}
	if summary.Games != 1 || summary.Created != 2 || summary.Updated != 1 || summary.Skipped != 3 {
		t.Errorf("summary = %+v", summary)
	}

	processed, failed := w.Stats()
	if processed != 1 || failed != 0 {
		t.Errorf("stats = %d/%d, want 1/0", processed, failed)
	}
}

func TestHandleJob_UsesCarriedUserID(t *testing.T) {
	svc := newFakeImportService()
	w := newTestWorker(svc)

	userID := uuid.New()
	job := &queue.ImportJob{
		ID:     uuid.New(),
		UserID: userID,
		PGN:    "1. e4 e5 1-0",
	}

	if _, err := w.handleJob(context.Background(), job); err != nil {
		t.Fatalf("handleJob() error = %v", err)
	}

	if svc.lastUserID != userID {
		t.Errorf("import ran for user %v, want carried %v", svc.lastUserID, userID)
	}
	if len(svc.users) != 0 {
		t.Error("username resolution ran despite a carried user id")
	}
}

func TestHandleJob_MissingIdentity(t *testing.T) {
	svc := newFakeImportService()
	w := newTestWorker(svc)

	job := &queue.ImportJob{ID: uuid.New(), PGN: "1. e4 e5 1-0"}

	if _, err := w.handleJob(context.Background(), job); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("handleJob() error = %v, want ErrInvalidInput", err)
	}

	processed, failed := w.Stats()
	if processed != 0 || failed != 1 {
		t.Errorf("stats = %d/%d, want 0/1", processed, failed)
	}
}

func TestHandleJob_ImportError(t *testing.T) {
	svc := newFakeImportService()
	svc.importErr = domain.ErrImportInProgress
	w := newTestWorker(svc)

	job := &queue.ImportJob{ID: uuid.New(), Username: "alice", PGN: "1. e4 e5 1-0"}

	if _, err := w.handleJob(context.Background(), job); !errors.Is(err, domain.ErrImportInProgress) {
		t.Fatalf("handleJob() error = %v, want ErrImportInProgress", err)
	}

	processed, failed := w.Stats()
	if processed != 0 || failed != 1 {
		t.Errorf("stats = %d/%d, want 0/1", processed, failed)
	}
}

func TestWorker_ConnectedWithoutConnection(t *testing.T) {
	w := newTestWorker(newFakeImportService())

	if w.Connected() {
		t.Error("Connected() = true without a broker connection")
	}
}
