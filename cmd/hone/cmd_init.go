package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/hone/internal/config"
)

// cmdInit initializes Hone for first-time use
func cmdInit(args []string) error {
	fmt.Println("Hone - First-Time Setup")
	fmt.Println("=======================")
	fmt.Println()

	// 1. Create directory structure
	fmt.Print("Creating ~/.hone directory structure... ")
	honeDir, err := config.EnsureHoneDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Println("✓")

	// 2. Resolve the username
	username := ""
	if len(args) > 0 {
		username = strings.TrimSpace(args[0])
	}
	if username == "" {
		fmt.Print("Enter your player name (as it appears in your PGN files): ")
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return fmt.Errorf("a username is required")
	}

	// 3. Write the config, preserving anything already there
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Username = username

	configPath := filepath.Join(honeDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Print("Creating configuration... ")
	} else {
		fmt.Print("Updating configuration... ")
	}
	if err := config.SaveLocalConfig(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Println("✓")

	// 4. Open the database and create the user
	fmt.Print("Preparing database... ")
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	svc, cleanup, err := buildTrainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := svc.User(ctx, username); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	fmt.Println("✓")

	// 5. Summary
	fmt.Println()
	fmt.Println("Setup Complete!")
	fmt.Println("===============")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. hone import games.pgn   # Import annotated games")
	fmt.Println("  2. hone play               # Start training")
	fmt.Println("  3. hone stats              # Track your progress")
	fmt.Println()
	fmt.Println("For editor integration:")
	fmt.Println("  Configure MCP with the 'hone mcp' command")

	return nil
}
