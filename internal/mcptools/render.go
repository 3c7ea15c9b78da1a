package mcptools

import (
	"fmt"
	"strings"

	"labmate/internal/domain/models/orchestration"
	orch "labmate/internal/service/orchestration"
)

func renderTurn(res *orch.TurnResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "thread_id: %s\n\n", res.ThreadID)

	if !res.AwaitingHuman {
		sb.WriteString(res.Message)
		return sb.String()
	}

	sb.WriteString("The assistant needs more information before it can continue")
	if res.Reason != "" {
		fmt.Fprintf(&sb, " (%s)", res.Reason)
	}
	sb.WriteString(".\nAnswer with answer_questions using these ids:\n\n")
	for _, q := range res.Questions {
		sb.WriteString(renderQuestion(q))
		sb.WriteString("\n")
	}
	return sb.String()
}

func renderQuestion(q orchestration.Question) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "- %s: %s", q.ID, q.Text)
	switch q.Type {
	case orchestration.QuestionChoice:
		opts := make([]string, len(q.Options))
		for i, o := range q.Options {
			opts[i] = fmt.Sprintf("%d) %s", i+1, o)
		}
		fmt.Fprintf(&sb, " [%s]", strings.Join(opts, ", "))
	case orchestration.QuestionBoolean, orchestration.QuestionConfirm:
		sb.WriteString(" [yes/no]")
	case orchestration.QuestionNumber:
		sb.WriteString(" [number]")
	}
	if !q.Required {
		sb.WriteString(" (optional)")
	}
	return sb.String()
}

func renderThread(state *orchestration.ConversationState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Thread %s\n\n", state.ThreadID)
	fmt.Fprintf(&sb, "**Phase:** %s", state.Phase)
	if state.AwaitingHuman() {
		sb.WriteString(" (waiting for answers)")
	}
	sb.WriteString("\n")
	if state.RollingSummary != "" {
		fmt.Fprintf(&sb, "\n**Summary:** %s\n", state.RollingSummary)
	}
	sb.WriteString("\n## Messages\n\n")
	for _, m := range state.Messages {
		fmt.Fprintf(&sb, "**%s:** %s\n\n", m.Role, m.Content)
	}
	if state.AwaitingHuman() {
		sb.WriteString("## Pending questions\n\n")
		for _, q := range state.ClarificationQuestions {
			sb.WriteString(renderQuestion(q))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
