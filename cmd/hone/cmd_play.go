package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/hone/internal/domain"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// cmdPlay runs an interactive training session. Attempt sessions live in
// this process, so one sitting is one `hone play` run.
func cmdPlay() error {
	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.cleanup()

	fmt.Printf("Training as %s. Evaluate your move with an engine and enter\n", app.user.Username)
	fmt.Println("the centipawn scores before and after it (White's perspective).")
	fmt.Println("Commands: <initialCp> <moveCp> | hint | skip | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		p, err := app.svc.SelectPuzzle(ctx, app.user.ID)
		if errors.Is(err, domain.ErrNoPuzzles) {
			fmt.Println()
			fmt.Println("No puzzles match your current filters.")
			fmt.Println("Import more games with 'hone import' or widen the filters with 'hone settings'.")
			return nil
		}
		if err != nil {
			return err
		}

		printPuzzle(p)

		done, quit := solvePuzzle(ctx, app, p, scanner)
		if quit {
			return nil
		}
		if !done {
			// skip: the next SelectPuzzle replaces the session.
			continue
		}
	}
}

func printPuzzle(p *trainer.PuzzlePresentation) {
	fmt.Println()
	fmt.Printf("%s - %s", p.White, p.Black)
	if p.Date != "" {
		fmt.Printf(" (%s)", p.Date)
	}
	fmt.Println()

	details := []string{}
	if p.TimeControlType != "" {
		details = append(details, string(p.TimeControlType))
	}
	if p.TimeControl != "" {
		details = append(details, p.TimeControl)
	}
	details = append(details, string(p.Tag))
	fmt.Printf("  %s\n", strings.Join(details, " · "))

	fmt.Printf("  FEN: %s\n", p.FEN)
	fmt.Printf("  %s to move. Find the best move (%d attempt(s)).\n", p.SideToMove, p.MaxAttempts)
}

// solvePuzzle drives one puzzle to resolution. It reports whether the puzzle
// finished (correct or exhausted) and whether the player quit.
func solvePuzzle(ctx context.Context, app *app, p *trainer.PuzzlePresentation, scanner *bufio.Scanner) (done, quit bool) {
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return false, true
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "quit" || line == "q":
			return false, true
		case line == "skip" || line == "s":
			return false, false
		case line == "hint" || line == "h":
			square, err := app.svc.RequestHint(ctx, app.user.ID, p.PuzzleID)
			if err != nil {
				fmt.Printf("Hint unavailable: %v\n", err)
				continue
			}
			fmt.Printf("The best move starts from %s. (Hinted answers earn at most 1 XP.)\n", square)
		default:
			fields := strings.Fields(line)
			if len(fields) != 2 {
				fmt.Println("Enter two centipawn values, 'hint', 'skip' or 'quit'.")
				continue
			}
			initialCp, err1 := strconv.ParseFloat(fields[0], 64)
			moveCp, err2 := strconv.ParseFloat(fields[1], 64)
			if err1 != nil || err2 != nil {
				fmt.Println("Evaluations must be numbers, e.g. '35 -120'.")
				continue
			}

			res, err := app.svc.CheckAnswer(ctx, app.user.ID, p.PuzzleID, initialCp, moveCp)
			if err != nil {
				fmt.Printf("Check failed: %v\n", err)
				continue
			}
			if finished := printVerdict(res); finished {
				return true, false
			}
		}
	}
}

// printVerdict renders one judged attempt and reports whether the puzzle is
// resolved.
func printVerdict(res *trainer.CheckAnswerResult) bool {
	switch {
	case res.Correct:
		fmt.Printf("✓ Correct! +%d XP (total %d)\n", res.ExperienceDelta, res.NewExperienceTotal)
		for _, b := range res.NewBadges {
			fmt.Printf("  ★ New badge: %s\n", b.Name)
		}
		return true
	case res.MaxAttemptsReached:
		fmt.Printf("✗ Out of attempts. The best move was %s.\n", res.RevealedSolutionSAN)
		if res.RevealedPlayedSAN != "" && res.RevealedPlayedSAN != res.RevealedSolutionSAN {
			fmt.Printf("  In the game you played %s.\n", res.RevealedPlayedSAN)
		}
		return true
	default:
		fmt.Printf("✗ Not the best move (Δ %.1f win%%). %d attempt(s) left; position reset.\n",
			res.Delta, res.AttemptsRemaining)
		return false
	}
}
