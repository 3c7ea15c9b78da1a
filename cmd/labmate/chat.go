package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"labmate/internal/domain/models/orchestration"
	"labmate/internal/service/clarify"
	orch "labmate/internal/service/orchestration"
)

var learningStyle string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message, or start an interactive session",
	Long: `Send a message to the assistant. Without a message argument an interactive
session starts; type "exit" to leave.

When the assistant asks clarification questions they are asked one at a time.
Type :back, :skip, :restart or :cancel to navigate.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&learningStyle, "style", "", "learning style for explanations")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, cleanup, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if threadID == "" {
		threadID = uuid.NewString()
	}
	out := cmd.OutOrStdout()
	in := bufio.NewReader(cmd.InOrStdin())
	s := &session{threads: application.Orchestrator, in: in, out: out}

	if len(args) > 0 {
		return s.send(ctx, strings.Join(args, " "))
	}

	fmt.Fprintf(out, "thread %s (type \"exit\" to leave)\n", threadID)
	for {
		fmt.Fprint(out, "> ")
		line, err := readLine(in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		if err := s.send(ctx, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

type session struct {
	threads *orch.Orchestrator
	in      *bufio.Reader
	out     io.Writer
}

func (s *session) send(ctx context.Context, message string) error {
	res, err := s.threads.Run(ctx, &orch.RunRequest{
		ThreadID:   threadID,
		Message:    message,
		ThreadMeta: orch.ThreadMeta{LearningStyle: learningStyle},
	}, progressSink{out: s.out})
	if err != nil {
		return err
	}
	return s.settle(ctx, res)
}

// settle asks pending questions until the turn completes.
func (s *session) settle(ctx context.Context, res *orch.TurnResult) error {
	for res.AwaitingHuman {
		var err error
		res, err = s.askQuestions(ctx, res)
		if err != nil {
			return err
		}
	}
	printTurn(s.out, res)
	return nil
}

// askQuestions walks the user through the questions with a local wizard and
// submits the answers in one batch. Cancelling is forwarded to the thread.
func (s *session) askQuestions(ctx context.Context, res *orch.TurnResult) (*orch.TurnResult, error) {
	if res.Reason != "" {
		fmt.Fprintf(s.out, "\n%s\n", res.Reason)
	}
	wiz := clarify.NewWizard(orchestration.NewWizardState(res.Questions))

	for !wiz.Finished() {
		q, _ := wiz.Current()
		pos, total := wiz.Progress()
		printQuestion(s.out, q, pos, total)
		fmt.Fprint(s.out, "? ")

		line, err := readLine(s.in)
		if err != nil {
			return nil, err
		}
		action, answer := parseWizardInput(line)
		if err := wiz.Apply(action, answer); err != nil {
			fmt.Fprintf(s.out, "  %v\n", err)
		}
	}

	if wiz.State().Cancelled {
		step, err := s.threads.WizardStep(ctx, &orch.WizardRequest{
			ThreadID: res.ThreadID,
			Action:   clarify.ActionCancel,
		}, progressSink{out: s.out})
		if err != nil {
			return nil, err
		}
		return step.Turn, nil
	}

	return s.threads.Resume(ctx, &orch.ResumeRequest{
		ThreadID: res.ThreadID,
		Answers:  wiz.State().Answers,
	}, progressSink{out: s.out})
}

func parseWizardInput(line string) (clarify.Action, string) {
	switch strings.ToLower(line) {
	case ":back":
		return clarify.ActionBack, ""
	case ":skip":
		return clarify.ActionSkip, ""
	case ":cancel":
		return clarify.ActionCancel, ""
	case ":restart":
		return clarify.ActionRestart, ""
	default:
		return clarify.ActionAnswer, line
	}
}
