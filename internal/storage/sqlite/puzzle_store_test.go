package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// seedUser creates a user row to own test puzzles.
func seedUser(t *testing.T, db *DB, username string) *domain.User {
	t.Helper()
	u, err := NewUserStore(db).GetOrCreate(context.Background(), username)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	return u
}

// testPuzzle builds a minimal valid puzzle for the given owner.
func testPuzzle(userID uuid.UUID, gameID string, moveIndex int) *domain.Puzzle {
	now := time.Now()
	return &domain.Puzzle{
		ID:              uuid.New(),
		UserID:          userID,
		GameID:          gameID,
		MoveIndex:       moveIndex,
		FEN:             "r1bqkbnr/1ppp1ppp/p1n5/1B2p3/4P3/5N2/PPPP1PPP/RNBQK2R w KQkq - 0 4",
		Side:            domain.SideWhite,
		SolutionSAN:     "Bxc6",
		PlayedSAN:       "Ba4",
		Weight:          5.0,
		EaseFactor:      2.5,
		PreEval:         0.3,
		PostEval:        -1.2,
		Tag:             domain.SeverityMistake,
		White:           "alice",
		Black:           "bob",
		Date:            "2024.03.17",
		TimeControl:     "300+3",
		TimeControlType: domain.TimeControlBlitz,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPuzzleStore_UpsertAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	p := testPuzzle(user.ID, "game-1", 4)
	created, err := store.Upsert(ctx, p)
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if !created {
		t.Error("Upsert() created = false, want true for a new puzzle")
	}

	got, err := store.Get(ctx, p.ID, user.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.GameID != "game-1" || got.MoveIndex != 4 {
		t.Errorf("Get() identity = (%q, %d), want (game-1, 4)", got.GameID, got.MoveIndex)
	}
	if got.FEN != p.FEN || got.Side != domain.SideWhite || got.SolutionSAN != "Bxc6" {
		t.Errorf("Get() position = (%q, %q, %q)", got.FEN, got.Side, got.SolutionSAN)
	}
	if got.PlayedSAN != "Ba4" {
		t.Errorf("Get() PlayedSAN = %q, want Ba4", got.PlayedSAN)
	}
	if got.Weight != 5.0 || got.EaseFactor != 2.5 || got.Version != 1 {
		t.Errorf("Get() state = (weight %v, ease %v, version %d)", got.Weight, got.EaseFactor, got.Version)
	}
	if got.NextReview != nil || got.LastReviewed != nil {
		t.Error("Get() expected nil review timestamps for a fresh puzzle")
	}
}

func TestPuzzleStore_UpsertRefreshesMetadataOnly(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	original := testPuzzle(user.ID, "game-1", 4)
	if _, err := store.Upsert(ctx, original); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	// Re-import the same move with revised analysis and a different weight.
	reimport := testPuzzle(user.ID, "game-1", 4)
	reimport.SolutionSAN = "Nd4"
	reimport.Tag = domain.SeverityBlunder
	reimport.PostEval = -2.5
	reimport.Weight = 9.0

	created, err := store.Upsert(ctx, reimport)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if created {
		t.Error("Upsert() created = true, want false for an existing puzzle")
	}
	if reimport.ID != original.ID {
		t.Errorf("Upsert() id = %v, want the existing row id %v", reimport.ID, original.ID)
	}

	got, err := store.Get(ctx, original.ID, user.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.SolutionSAN != "Nd4" || got.Tag != domain.SeverityBlunder || got.PostEval != -2.5 {
		t.Errorf("metadata not refreshed: (%q, %q, %v)", got.SolutionSAN, got.Tag, got.PostEval)
	}
	if got.Weight != 5.0 {
		t.Errorf("Weight = %v, want original 5.0 preserved across re-import", got.Weight)
	}
}

func TestPuzzleStore_GetScopedToOwner(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")
	store := NewPuzzleStore(db)

	p := testPuzzle(alice.ID, "game-1", 4)
	if _, err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if _, err := store.Get(ctx, p.ID, bob.ID); !errors.Is(err, domain.ErrPuzzleNotFound) {
		t.Errorf("Get() with wrong owner error = %v, want ErrPuzzleNotFound", err)
	}
}

func TestPuzzleStore_ListCandidates(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	blitzBlunder := testPuzzle(user.ID, "game-1", 4)
	blitzBlunder.Tag = domain.SeverityBlunder

	rapidMistake := testPuzzle(user.ID, "game-2", 10)
	rapidMistake.TimeControl = "600+5"
	rapidMistake.TimeControlType = domain.TimeControlRapid

	bulletError := testPuzzle(user.ID, "game-3", 7)
	bulletError.TimeControl = "60+0"
	bulletError.TimeControlType = domain.TimeControlBullet
	bulletError.Tag = domain.SeverityError

	for _, p := range []*domain.Puzzle{blitzBlunder, rapidMistake, bulletError} {
		if _, err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter trainer.Filter
		want   int
	}{
		{"no filter", trainer.Filter{}, 3},
		{"blitz only", trainer.Filter{PerfTypes: []domain.TimeControlType{domain.TimeControlBlitz}}, 1},
		{"blitz and rapid", trainer.Filter{PerfTypes: []domain.TimeControlType{domain.TimeControlBlitz, domain.TimeControlRapid}}, 2},
		{"blunders only", trainer.Filter{Tags: []domain.Severity{domain.SeverityBlunder}}, 1},
		{"rapid blunders", trainer.Filter{
			PerfTypes: []domain.TimeControlType{domain.TimeControlRapid},
			Tags:      []domain.Severity{domain.SeverityBlunder},
		}, 0},
		{"recent window", trainer.Filter{Days: 30}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListCandidates(ctx, user.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListCandidates() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListCandidates() = %d puzzles, want %d", len(got), tt.want)
			}
		})
	}
}

func TestPuzzleStore_Count(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	blitz := testPuzzle(user.ID, "game-1", 4)
	rapid := testPuzzle(user.ID, "game-2", 9)
	rapid.TimeControlType = domain.TimeControlRapid
	for _, p := range []*domain.Puzzle{blitz, rapid} {
		if _, err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	available, total, err := store.Count(ctx, user.ID, trainer.Filter{
		PerfTypes: []domain.TimeControlType{domain.TimeControlBlitz},
	})
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if available != 1 || total != 2 {
		t.Errorf("Count() = (%d, %d), want (1, 2)", available, total)
	}
}

func TestPuzzleStore_PruneOldest(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	dates := []string{"2024.01.03", "2024.01.01", "2024.01.05", "2024.01.02", "2024.01.04"}
	for i, date := range dates {
		p := testPuzzle(user.ID, "game", i)
		p.Date = date
		if _, err := store.Upsert(ctx, p); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}

	removed, err := store.PruneOldest(ctx, user.ID, 3)
	if err != nil {
		t.Fatalf("PruneOldest() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("PruneOldest() removed = %d, want 2", removed)
	}

	remaining, err := store.ListCandidates(ctx, user.ID, trainer.Filter{})
	if err != nil {
		t.Fatalf("ListCandidates() error = %v", err)
	}
	for _, p := range remaining {
		if p.Date == "2024.01.01" || p.Date == "2024.01.02" {
			t.Errorf("oldest puzzle %s survived the prune", p.Date)
		}
	}

	// Unlimited cap prunes nothing.
	removed, err = store.PruneOldest(ctx, user.ID, 0)
	if err != nil {
		t.Fatalf("PruneOldest(0) error = %v", err)
	}
	if removed != 0 {
		t.Errorf("PruneOldest(0) removed = %d, want 0", removed)
	}
}

func TestPuzzleStore_CommitAnswer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	p := testPuzzle(user.ID, "game-1", 4)
	if _, err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	now := time.Now()
	next := now.AddDate(0, 0, 6)
	p.Weight = 4.5
	p.Successes = 1
	p.Repetitions = 1
	p.IntervalDays = 6
	p.NextReview = &next
	p.LastReviewed = &now
	user.XP = 2
	user.CorrectCount = 1
	user.ConsecutiveCorrect = 1

	badge := domain.NewBadge(user.ID, "First Win", "first.svg", "Solve your first puzzle", now)
	if err := store.CommitAnswer(ctx, user, p, []*domain.Badge{badge}); err != nil {
		t.Fatalf("CommitAnswer() error = %v", err)
	}
	if user.Version != 2 || p.Version != 2 {
		t.Errorf("versions after commit = (%d, %d), want (2, 2)", user.Version, p.Version)
	}

	gotPuzzle, err := store.Get(ctx, p.ID, user.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotPuzzle.Weight != 4.5 || gotPuzzle.Successes != 1 || gotPuzzle.IntervalDays != 6 {
		t.Errorf("puzzle state = (%v, %d, %d), want (4.5, 1, 6)", gotPuzzle.Weight, gotPuzzle.Successes, gotPuzzle.IntervalDays)
	}
	if gotPuzzle.NextReview == nil || gotPuzzle.LastReviewed == nil {
		t.Fatal("expected review timestamps to be set")
	}

	gotUser, err := NewUserStore(db).Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("Get() user error = %v", err)
	}
	if gotUser.XP != 2 || gotUser.CorrectCount != 1 {
		t.Errorf("user state = (xp %d, correct %d), want (2, 1)", gotUser.XP, gotUser.CorrectCount)
	}

	badges, err := NewUserStore(db).ListBadges(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListBadges() error = %v", err)
	}
	if len(badges) != 1 || badges[0].Name != "First Win" {
		t.Fatalf("ListBadges() = %v, want the one awarded badge", badges)
	}

	// Awarding the same badge again is a no-op.
	dup := domain.NewBadge(user.ID, "First Win", "first.svg", "Solve your first puzzle", now)
	if err := store.CommitAnswer(ctx, user, p, []*domain.Badge{dup}); err != nil {
		t.Fatalf("CommitAnswer() with duplicate badge error = %v", err)
	}
	badges, _ = NewUserStore(db).ListBadges(ctx, user.ID)
	if len(badges) != 1 {
		t.Errorf("ListBadges() after duplicate award = %d badges, want 1", len(badges))
	}
}

func TestPuzzleStore_CommitAnswerStaleVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	user := seedUser(t, db, "alice")
	store := NewPuzzleStore(db)

	p := testPuzzle(user.ID, "game-1", 4)
	if _, err := store.Upsert(ctx, p); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	stale := *p
	staleUser := *user

	if err := store.CommitAnswer(ctx, user, p, nil); err != nil {
		t.Fatalf("CommitAnswer() error = %v", err)
	}

	// A second writer holding the pre-commit snapshot must lose.
	if err := store.CommitAnswer(ctx, &staleUser, &stale, nil); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("CommitAnswer() with stale versions error = %v, want ErrConflict", err)
	}
}
