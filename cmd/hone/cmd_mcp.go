package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/hone/internal/config"
	mcpserver "github.com/felixgeelhaar/hone/internal/mcp"
)

// cmdMCP starts the MCP server for editor and assistant integration
func cmdMCP() error {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Stdout carries the MCP protocol; logs go to stderr only
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc, cleanup, err := buildTrainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := mcpserver.NewServer(mcpserver.Config{
		Trainer:     svc,
		DefaultUser: cfg.Username,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return srv.ServeStdio(ctx)
}
