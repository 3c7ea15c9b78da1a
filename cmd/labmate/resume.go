package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	orch "labmate/internal/service/orchestration"
)

var answerFlags []string

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Answer the pending questions of a thread",
	Long: `Answer the clarification questions a thread is waiting on and continue it.

Pass answers as --answer id=value. Without --answer the questions are asked
interactively.`,
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringArrayVarP(&answerFlags, "answer", "a", nil, "answer as question_id=value (repeatable)")
}

func runResume(cmd *cobra.Command, args []string) error {
	if threadID == "" {
		return fmt.Errorf("--thread is required")
	}
	ctx := cmd.Context()
	application, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	s := &session{
		threads: application.Orchestrator,
		in:      bufio.NewReader(cmd.InOrStdin()),
		out:     cmd.OutOrStdout(),
	}

	if len(answerFlags) == 0 {
		state, err := s.threads.GetThread(ctx, threadID)
		if err != nil {
			return err
		}
		if !state.AwaitingHuman() {
			return fmt.Errorf("thread %s is not waiting for answers", threadID)
		}
		return s.settle(ctx, &orch.TurnResult{
			ThreadID:      state.ThreadID,
			AwaitingHuman: true,
			Reason:        state.Interrupt.Reason,
			Questions:     state.ClarificationQuestions,
		})
	}

	answers, err := parseAnswers(answerFlags)
	if err != nil {
		return err
	}
	res, err := s.threads.Resume(ctx, &orch.ResumeRequest{ThreadID: threadID, Answers: answers}, progressSink{out: s.out})
	if err != nil {
		return err
	}
	return s.settle(ctx, res)
}

func parseAnswers(flags []string) (map[string]string, error) {
	answers := make(map[string]string, len(flags))
	for _, f := range flags {
		id, value, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("invalid --answer %q, expected id=value", f)
		}
		answers[strings.TrimSpace(id)] = value
	}
	return answers, nil
}
