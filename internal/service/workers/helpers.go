package workers

import (
	"fmt"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// recentWindow is how many messages LLM-backed workers see.
const recentWindow = 10

// modelNamer is implemented by completers that know their model.
type modelNamer interface {
	Model() string
}

func modelOf(c services.Completer) string {
	if m, ok := c.(modelNamer); ok {
		return m.Model()
	}
	return ""
}

func recentMessages(state *orchestration.ConversationState) []orchestration.Message {
	msgs := state.Messages
	if len(msgs) > recentWindow {
		msgs = msgs[len(msgs)-recentWindow:]
	}
	return msgs
}

// request is the text a worker works on: the message that started the turn
// plus any clarification answers collected since.
func request(in services.WorkerInput) string {
	msg := orchestration.ContextString(in.PendingContext, orchestration.ContextKeyRequest)
	if msg == "" {
		msg = in.State.LastUserMessage()
	}
	answers := orchestration.ContextClarifications(in.PendingContext)
	if len(answers) == 0 {
		return msg
	}
	parts := []string{msg}
	for _, a := range answers {
		parts = append(parts, a.Answer)
	}
	return strings.Join(parts, "\n")
}

// citations renders evidence as a numbered source list.
func citations(evidence []orchestration.EvidenceItem) string {
	var b strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&b, "[%d] %s", i+1, e.Title)
		if e.Page != "" {
			fmt.Fprintf(&b, ", p. %s", e.Page)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// evidenceBrief renders evidence for an LLM prompt.
func evidenceBrief(evidence []orchestration.EvidenceItem) string {
	var b strings.Builder
	for i, e := range evidence {
		fmt.Fprintf(&b, "[%d] %s", i+1, e.Title)
		if e.Page != "" {
			fmt.Fprintf(&b, " (p. %s)", e.Page)
		}
		fmt.Fprintf(&b, ": %s\n", truncate(e.Chunk, 600))
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// firstSentence returns a short summary line for content.
func firstSentence(s string, max int) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		s = s[:i+1]
	}
	return truncate(strings.TrimSpace(s), max)
}
