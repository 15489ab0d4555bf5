package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"

	"github.com/felixgeelhaar/hone/internal/domain"
)

// cmdStats shows the user's training state
func cmdStats() error {
	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.cleanup()

	report, err := app.svc.Progress(ctx, app.user.ID)
	if err != nil {
		return err
	}

	fmt.Println("Training Statistics")
	fmt.Println("===================")
	fmt.Printf("Player:           %s\n", report.Username)
	fmt.Printf("Experience:       %d XP (today %d, this week %d)\n", report.XP, report.XPToday, report.XPWeek)
	fmt.Printf("Correct answers:  %d\n", report.CorrectCount)
	fmt.Printf("Answer streak:    %d (best %d)\n", report.ConsecutiveCorrect, report.BestPuzzleStreak)
	fmt.Printf("Day streak:       %d (best %d)\n", report.StreakDays, report.BestStreakDays)
	if report.HintsUsed > 0 {
		fmt.Printf("Hints used:       %d\n", report.HintsUsed)
	}
	fmt.Printf("Puzzles:          %d available under current filters, %d total\n",
		report.AvailablePuzzles, report.TotalPuzzles)

	if report.BestPuzzleStreak > 0 {
		progress := float64(report.ConsecutiveCorrect) / float64(report.BestPuzzleStreak)
		fmt.Printf("\nStreak vs best    %s %d/%d\n",
			renderProgressBar(progress, 20), report.ConsecutiveCorrect, report.BestPuzzleStreak)
	}

	status, err := app.svc.ImportStatus(ctx, app.user.ID)
	if err != nil {
		return err
	}
	if status.Status == domain.ImportStatusInProgress && status.Total > 0 {
		progress := float64(status.Done) / float64(status.Total)
		fmt.Printf("\nImport running    %s %d/%d puzzles\n",
			renderProgressBar(progress, 20), status.Done, status.Total)
	}
	if status.Status == domain.ImportStatusError && status.Error != "" {
		fmt.Printf("\nLast import failed: %s\n", status.Error)
	}

	events, err := app.svc.RecentActivity(ctx, app.user.ID, domain.HistoryAnswer, 5)
	if err == nil && len(events) > 0 {
		fmt.Println("\nRecent answers")
		for _, e := range events {
			var a struct {
				Correct bool `json:"correct"`
				Attempt int  `json:"attempt"`
				XP      int  `json:"xp"`
			}
			if json.Unmarshal([]byte(e.Data), &a) != nil {
				continue
			}
			verdict := "✗"
			if a.Correct {
				verdict = "✓"
			}
			fmt.Printf("  %s  %s attempt %d, +%d XP\n",
				e.CreatedAt.Format("2006-01-02 15:04"), verdict, a.Attempt, a.XP)
		}
	}

	return nil
}

// cmdBadges lists earned badges
func cmdBadges() error {
	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.cleanup()

	report, err := app.svc.Progress(ctx, app.user.ID)
	if err != nil {
		return err
	}

	fmt.Println("Badges")
	fmt.Println("======")

	if len(report.Badges) == 0 {
		fmt.Println("No badges yet. Solve puzzles to earn them!")
		return nil
	}

	for _, b := range report.Badges {
		fmt.Printf("  ★ %-16s %s (%s)\n", b.Name, b.Description, b.AwardedAt.Format("2006-01-02"))
	}
	return nil
}

// cmdLeaderboard shows users ranked by experience
func cmdLeaderboard(args []string) error {
	fs := flag.NewFlagSet("leaderboard", flag.ContinueOnError)
	page := fs.Int("page", 1, "result page")
	perPage := fs.Int("per-page", 10, "entries per page")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.cleanup()

	entries, err := app.svc.Leaderboard(ctx, *page, *perPage)
	if err != nil {
		return err
	}

	fmt.Println("Leaderboard")
	fmt.Println("===========")

	if len(entries) == 0 {
		fmt.Println("No players yet.")
		return nil
	}

	for _, e := range entries {
		marker := "  "
		if e.Username == app.user.Username {
			marker = "→ "
		}
		fmt.Printf("%s%3d. %-20s %6d XP  %4d correct  %3d day streak\n",
			marker, e.Rank, e.Username, e.XP, e.CorrectCount, e.StreakDays)
	}
	return nil
}
