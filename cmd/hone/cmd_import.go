package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/felixgeelhaar/hone/internal/queue"
	"github.com/felixgeelhaar/hone/internal/trainer"
)

// cmdImport imports annotated games from a PGN file. With a RabbitMQ URL
// configured the job goes to the honed worker; otherwise the import runs
// inline.
func cmdImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	anySide := fs.Bool("any-side", false, "keep mistakes by both players, not only your own")
	inline := fs.Bool("inline", false, "import in this process even when a worker queue is configured")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: hone import [-any-side] [-inline] <pgn-file>")
	}

	pgn, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("read pgn file: %w", err)
	}

	ctx := context.Background()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.cleanup()

	if app.cfg.RabbitMQURL != "" && !*inline {
		return enqueueImport(ctx, app, string(pgn), *anySide)
	}

	res, err := app.svc.ImportAnnotatedGames(ctx, app.user.ID, trainer.ImportRequest{
		PGN:     string(pgn),
		AnySide: *anySide,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d game(s)\n", res.Games)
	fmt.Printf("  Puzzles created: %d\n", res.Created)
	fmt.Printf("  Puzzles updated: %d\n", res.Updated)
	fmt.Printf("  Moves skipped:   %d\n", res.Skipped)
	return nil
}

// enqueueImport hands the PGN to the honed worker over RabbitMQ.
func enqueueImport(ctx context.Context, app *app, pgn string, anySide bool) error {
	conn, err := queue.NewConnection(app.cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("connect to worker queue: %w", err)
	}
	defer conn.Close()

	job := queue.NewImportJob(app.user.ID, app.user.Username, pgn, anySide)
	if err := queue.NewProducer(conn).PublishJob(ctx, job); err != nil {
		return err
	}

	fmt.Printf("Import queued (job %s)\n", job.ID)
	fmt.Println("Check progress with 'hone stats' or the worker logs with 'hone daemon logs'.")
	return nil
}
