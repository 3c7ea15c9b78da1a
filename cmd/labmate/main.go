// labmate is a terminal client for the lab assistant.
//
// Usage:
//
//	labmate chat "why does my centrifuge vibrate?"
//	labmate chat                      # interactive session
//	labmate resume --thread ID --answer q1=... --answer symptom=2
//	labmate show --thread ID
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"labmate/internal/app"
	"labmate/internal/config"
)

var (
	threadID string
	backend  string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "labmate",
	Short: "Lab assistant that routes questions to specialist workers",
	Long: `labmate answers lab questions by planning which specialist workers to use
(research, tutor, troubleshooting, summarizer, chat) and combining their answers.

Conversations are checkpointed, so a thread waiting for clarification can be
resumed later with "labmate resume".`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&threadID, "thread", "t", "", "thread id to use")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "checkpoint backend override (postgres, sqlite, memory)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print orchestration progress")

	rootCmd.AddCommand(chatCmd, resumeCmd, showCmd, listCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// buildApp loads configuration and wires the orchestrator. Logs go to
// stderr only with --verbose, otherwise to LOG_DIR or nowhere.
func buildApp(ctx context.Context) (*app.App, func(), error) {
	_ = godotenv.Load()

	cfg := config.Load()
	if backend != "" {
		cfg.CheckpointBackend = backend
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	var logOut io.Writer = io.Discard
	if verbose {
		logOut = os.Stderr
	}
	out, closeLog, err := config.LogWriter(cfg, logOut, "cli")
	if err != nil {
		return nil, nil, fmt.Errorf("setting up log file: %w", err)
	}
	logger := config.NewLogger(cfg, out)

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	return application, func() {
		application.Close()
		closeLog()
	}, nil
}
