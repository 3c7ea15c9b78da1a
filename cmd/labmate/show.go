package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a thread's messages and status",
	RunE: func(cmd *cobra.Command, args []string) error {
		if threadID == "" {
			return fmt.Errorf("--thread is required")
		}
		ctx := cmd.Context()
		application, cleanup, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		state, err := application.Orchestrator.GetThread(ctx, threadID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if showJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(state)
		}

		fmt.Fprintf(out, "thread %s  phase=%s  turns=%d\n", state.ThreadID, state.Phase, state.WindowCount)
		if state.RollingSummary != "" {
			fmt.Fprintf(out, "summary: %s\n", state.RollingSummary)
		}
		for _, m := range state.Messages {
			fmt.Fprintf(out, "\n%s: %s\n", m.Role, m.Content)
		}
		if state.AwaitingHuman() {
			fmt.Fprintln(out, "\nwaiting for answers:")
			for i, q := range state.ClarificationQuestions {
				printQuestion(out, q, i+1, len(state.ClarificationQuestions))
			}
		}
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the raw checkpoint")
}
