package mcp

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/felixgeelhaar/hone/internal/progress"
	"github.com/felixgeelhaar/hone/internal/storage/sqlite"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

const annotatedGame = `[Event "Rated blitz game"]
[Site "https://lichess.org/test0001"]
[Date "2024.03.01"]
[Round "-"]
[White "alice"]
[Black "bob"]
[Result "1-0"]
[TimeControl "300+3"]

1. e4 e5 2. Nf3 Nc6 3. Bb5 a6 4. Ba4 { (0.40 -> -0.80) Mistake. Bxc6 was best. } Nf6 5. O-O Be7 1-0
`

// setupTestServer creates an MCP server over a sqlite-backed trainer
func setupTestServer(t *testing.T) *Server {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "hone.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	catalog, err := progress.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	users := sqlite.NewUserStore(db)
	puzzles := sqlite.NewPuzzleStore(db)
	svc := trainer.NewService(users, puzzles, progress.New(catalog, nil), nil)

	return NewServer(Config{
		Trainer:     svc,
		DefaultUser: "alice",
	})
}

func TestNewServer(t *testing.T) {
	server := setupTestServer(t)

	if server == nil {
		t.Fatal("expected non-nil server")
	}
	if server.mcpServer == nil {
		t.Fatal("expected non-nil MCP server")
	}
	if server.trainer == nil {
		t.Fatal("expected non-nil trainer")
	}
	if server.GetMCPServer() == nil {
		t.Fatal("expected non-nil underlying MCP server")
	}
}

func TestResolveUser_NoUsername(t *testing.T) {
	server := setupTestServer(t)
	server.defaultUser = ""

	if _, err := server.resolveUser(context.Background(), ""); err == nil {
		t.Error("resolveUser with no username and no default should error")
	}
}

func TestHandleNextPuzzle_EmptyPool(t *testing.T) {
	server := setupTestServer(t)

	out, err := server.handleNextPuzzle(context.Background(), NextPuzzleInput{})
	if err != nil {
		t.Fatalf("handleNextPuzzle() error = %v", err)
	}

	// An empty pool reads as a message, never an error.
	if out.PuzzleID != "" {
		t.Errorf("PuzzleID = %q, want empty", out.PuzzleID)
	}
	if out.Message == "" {
		t.Error("expected a no-puzzles message")
	}
}

func TestImportThenPlayCycle(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	imported, err := server.handleImportGames(ctx, ImportGamesInput{PGN: annotatedGame})
	if err != nil {
		t.Fatalf("handleImportGames() error = %v", err)
	}
	if imported.Created != 1 {
		t.Fatalf("Created = %d, want 1", imported.Created)
	}

	next, err := server.handleNextPuzzle(ctx, NextPuzzleInput{})
	if err != nil {
		t.Fatalf("handleNextPuzzle() error = %v", err)
	}
	if next.PuzzleID == "" {
		t.Fatal("expected a puzzle after import")
	}
	if next.FEN == "" {
		t.Error("expected the position FEN")
	}
	if next.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want default 3", next.MaxAttempts)
	}

	hint, err := server.handleRequestHint(ctx, RequestHintInput{PuzzleID: next.PuzzleID})
	if err != nil {
		t.Fatalf("handleRequestHint() error = %v", err)
	}
	// The position is before 4. Ba4, so Bxc6 moves the b5 bishop.
	if hint.FromSquare != "b5" {
		t.Errorf("FromSquare = %q, want b5", hint.FromSquare)
	}

	// A clearly winning continuation: correct, but hinted, so at most 1 XP.
	answer, err := server.handleCheckAnswer(ctx, CheckAnswerInput{
		PuzzleID:  next.PuzzleID,
		InitialCp: 40,
		MoveCp:    60,
	})
	if err != nil {
		t.Fatalf("handleCheckAnswer() error = %v", err)
	}
	if !answer.Correct {
		t.Error("expected a correct verdict")
	}
	if answer.ExperienceDelta > 1 {
		t.Errorf("ExperienceDelta = %d, want at most 1 after the hint", answer.ExperienceDelta)
	}

	report, err := server.handleProgress(ctx, ProgressInput{})
	if err != nil {
		t.Fatalf("handleProgress() error = %v", err)
	}
	if report.CorrectCount != 1 {
		t.Errorf("CorrectCount = %d, want 1", report.CorrectCount)
	}
	if report.ConsecutiveCorrect != 0 {
		t.Errorf("ConsecutiveCorrect = %d, want 0 (hinted answers do not extend the streak)", report.ConsecutiveCorrect)
	}
}

func TestHandleUpdateSettings(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	days := 7
	attempts := 2
	out, err := server.handleUpdateSettings(ctx, UpdateSettingsInput{
		Days:        &days,
		MaxAttempts: &attempts,
		PerfTypes:   []string{"bullet", "blitz"},
	})
	if err != nil {
		t.Fatalf("handleUpdateSettings() error = %v", err)
	}

	if out.Days != 7 {
		t.Errorf("Days = %d, want 7", out.Days)
	}
	if out.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", out.MaxAttempts)
	}
	if len(out.PerfTypes) != 2 || out.PerfTypes[0] != "Bullet" {
		t.Errorf("PerfTypes = %v, want normalized [Bullet Blitz]", out.PerfTypes)
	}
	// Untouched knobs keep their stored values.
	if !out.UseSpacedRepetition {
		t.Error("UseSpacedRepetition should keep its default true")
	}

	badAttempts := 5
	if _, err := server.handleUpdateSettings(ctx, UpdateSettingsInput{MaxAttempts: &badAttempts}); err == nil {
		t.Error("max attempts outside 1-3 should be rejected")
	}

	if _, err := server.handleUpdateSettings(ctx, UpdateSettingsInput{Tags: []string{"brilliant"}}); err == nil {
		t.Error("unknown severity should be rejected")
	}
}
