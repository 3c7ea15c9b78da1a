// labmate-mcp serves the lab assistant as an MCP server over stdio.
//
// Logs go to stderr (and LOG_DIR when set) so they never mix with the
// protocol on stdout. Checkpoints default to SQLite.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"

	"labmate/internal/app"
	"labmate/internal/config"
	"labmate/internal/mcptools"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	out, closeLog, err := config.LogWriter(cfg, os.Stderr, "mcp")
	if err != nil {
		return fmt.Errorf("setting up log file: %w", err)
	}
	defer closeLog()
	logger := config.NewLogger(cfg, out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building application: %w", err)
	}
	defer application.Close()

	return server.ServeStdio(mcptools.NewServer(application.Orchestrator))
}
