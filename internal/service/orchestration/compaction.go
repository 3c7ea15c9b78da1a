package orchestration

import (
	"strings"
	"time"

	"labmate/internal/domain/models/orchestration"
)

// CompactionPolicy forces a summarizer pass once the conversation window grows
// past Threshold turns.
type CompactionPolicy struct {
	Threshold    int
	KeepMessages int
}

// Due reports whether the next plan must start with the summarizer.
func (p CompactionPolicy) Due(state *orchestration.ConversationState) bool {
	return p.Threshold > 0 && state.WindowCount >= p.Threshold
}

// Apply puts the summarizer first and removes any later occurrence.
func (p CompactionPolicy) Apply(plan []orchestration.WorkerName) []orchestration.WorkerName {
	out := make([]orchestration.WorkerName, 0, len(plan)+1)
	out = append(out, orchestration.WorkerSummarizer)
	for _, w := range plan {
		if w != orchestration.WorkerSummarizer {
			out = append(out, w)
		}
	}
	return out
}

// AfterSummarizer records the summary, restarts the window and replaces all
// but the last KeepMessages messages with a single summary pointer. The
// summarizer's content becomes the rolling summary unless its patch set one.
func (p CompactionPolicy) AfterSummarizer(state *orchestration.ConversationState, out *orchestration.WorkerOutput, patched bool, now time.Time) {
	summary := strings.TrimSpace(out.Content)
	if patched || summary == "" {
		summary = strings.TrimSpace(state.RollingSummary)
	}
	state.RollingSummary = summary
	state.WindowCount = 1

	keep := p.KeepMessages
	if keep < 0 {
		keep = 0
	}
	if summary == "" || len(state.Messages) <= keep+1 {
		return
	}
	recent := state.Messages[len(state.Messages)-keep:]
	compacted := make([]orchestration.Message, 0, keep+1)
	compacted = append(compacted, orchestration.Message{
		Role:      orchestration.RoleSystem,
		Content:   orchestration.SummaryPrefix + summary,
		CreatedAt: now,
	})
	compacted = append(compacted, recent...)
	state.Messages = compacted
}
