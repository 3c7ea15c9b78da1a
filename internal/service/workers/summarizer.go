package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

const summarizerInstructions = `Summarize the conversation below in at most eight bullet points.
Keep names, instruments, settings and open questions. Reply with the bullets only.`

// maxTopicWords bounds each topic line in the built-in summary.
const maxTopicWords = 12

// SummarizerWorker condenses the conversation into a rolling summary.
type SummarizerWorker struct {
	completer services.Completer
	logger    *slog.Logger
}

// NewSummarizerWorker creates a summarizer. completer may be nil.
func NewSummarizerWorker(completer services.Completer, logger *slog.Logger) *SummarizerWorker {
	return &SummarizerWorker{completer: completer, logger: logger}
}

// Name implements services.Worker.
func (w *SummarizerWorker) Name() orchestration.WorkerName { return orchestration.WorkerSummarizer }

// Handle implements services.Worker.
func (w *SummarizerWorker) Handle(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error) {
	var (
		summary string
		model   string
	)
	if w.completer != nil {
		msgs := in.State.Messages
		if prev := in.State.RollingSummary; prev != "" {
			msgs = append([]orchestration.Message{{Role: orchestration.RoleSystem, Content: orchestration.SummaryPrefix + prev}}, msgs...)
		}
		text, err := w.completer.Complete(ctx, summarizerInstructions, msgs)
		if err != nil {
			return services.WorkerResult{}, fmt.Errorf("summarize conversation: %w", err)
		}
		summary = strings.TrimSpace(text)
		model = modelOf(w.completer)
	} else {
		summary = Outline(in.State.RollingSummary, in.State.Messages)
	}

	out := orchestration.NewOutput(w.Name(), "Conversation summarized", summary, 0.9)
	out.Metadata.Model = model
	return services.WorkerResult{
		Output: out,
		Patch: orchestration.StatePatch{
			RollingSummary: orchestration.Set(summary),
		},
	}, nil
}

// Outline builds a summary without a language model: the previous summary
// followed by one line per user message.
func Outline(previous string, messages []orchestration.Message) string {
	var lines []string
	if previous = strings.TrimSpace(previous); previous != "" {
		lines = append(lines, previous)
	}
	for _, m := range messages {
		if m.Role != orchestration.RoleUser {
			continue
		}
		words := strings.Fields(m.Content)
		if len(words) == 0 {
			continue
		}
		if len(words) > maxTopicWords {
			words = append(words[:maxTopicWords], "…")
		}
		lines = append(lines, "- "+strings.Join(words, " "))
	}
	if len(lines) == 0 {
		return "No conversation to summarize yet."
	}
	return strings.Join(lines, "\n")
}
