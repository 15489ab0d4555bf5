package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/hone/internal/domain"
)

func TestUserStore_GetOrCreate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewUserStore(db)

	u, err := store.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if u.Username != "alice" {
		t.Errorf("Username = %q, want alice", u.Username)
	}
	if u.Settings.MaxAttempts != 3 || !u.Settings.UseSpacedRepetition {
		t.Errorf("fresh user settings = %+v, want defaults", u.Settings)
	}
	if u.ImportStatus != domain.ImportStatusIdle {
		t.Errorf("ImportStatus = %q, want idle", u.ImportStatus)
	}

	again, err := store.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("second GetOrCreate() error = %v", err)
	}
	if again.ID != u.ID {
		t.Errorf("GetOrCreate() returned a new user %v, want existing %v", again.ID, u.ID)
	}
}

func TestUserStore_GetByUsernameNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := NewUserStore(db).GetByUsername(context.Background(), "ghost")
	if !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("GetByUsername() error = %v, want ErrUserNotFound", err)
	}
}

func TestUserStore_Update(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewUserStore(db)

	u, err := store.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	u.XP = 120
	u.XPToday = 15
	u.XPTodayDate = "2024-03-17"
	u.ConsecutiveCorrect = 4
	u.Settings.MaxAttempts = 1
	u.Settings.Tags = []domain.Severity{domain.SeverityBlunder}

	if err := store.Update(ctx, u); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if u.Version != 2 {
		t.Errorf("Version after update = %d, want 2", u.Version)
	}

	got, err := store.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.XP != 120 || got.XPToday != 15 || got.XPTodayDate != "2024-03-17" {
		t.Errorf("experience = (%d, %d, %q)", got.XP, got.XPToday, got.XPTodayDate)
	}
	if got.Settings.MaxAttempts != 1 || len(got.Settings.Tags) != 1 {
		t.Errorf("settings did not round-trip: %+v", got.Settings)
	}
}

func TestUserStore_UpdateStaleVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewUserStore(db)

	u, err := store.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}

	stale := *u
	if err := store.Update(ctx, u); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if err := store.Update(ctx, &stale); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Update() with stale version error = %v, want ErrConflict", err)
	}
}

func TestUserStore_Leaderboard(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	store := NewUserStore(db)

	for _, seed := range []struct {
		username string
		xp       int
	}{
		{"alice", 30},
		{"bob", 10},
		{"carol", 20},
	} {
		u, err := store.GetOrCreate(ctx, seed.username)
		if err != nil {
			t.Fatalf("GetOrCreate(%s) error = %v", seed.username, err)
		}
		u.XP = seed.xp
		if err := store.Update(ctx, u); err != nil {
			t.Fatalf("Update(%s) error = %v", seed.username, err)
		}
	}

	page1, err := store.Leaderboard(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Leaderboard() error = %v", err)
	}
	if len(page1) != 2 || page1[0].Username != "alice" || page1[1].Username != "carol" {
		t.Errorf("page 1 = %v, want [alice carol]", usernames(page1))
	}

	page2, err := store.Leaderboard(ctx, 2, 2)
	if err != nil {
		t.Fatalf("Leaderboard() page 2 error = %v", err)
	}
	if len(page2) != 1 || page2[0].Username != "bob" {
		t.Errorf("page 2 = %v, want [bob]", usernames(page2))
	}
}

func usernames(users []*domain.User) []string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	return names
}
