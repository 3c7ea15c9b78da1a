package orchestration

import (
	"fmt"
	"strings"

	"labmate/internal/domain/models/orchestration"
)

// FallbackAnswer is returned when no worker produced anything usable.
const FallbackAnswer = "I'm sorry, I couldn't put an answer together this time. Could you rephrase or add a little more detail?"

// Synthesize combines the outputs of one turn into the final answer.
//
// A lone successful output without evidence is returned verbatim. Otherwise
// each output becomes a section, failed steps become a short apology and
// evidence is listed once at the end.
func Synthesize(outputs []orchestration.WorkerOutput) string {
	contributing := contributingOutputs(outputs)
	if len(contributing) == 0 {
		return FallbackAnswer
	}

	var evidence []orchestration.EvidenceItem
	for _, out := range contributing {
		evidence = orchestration.AppendEvidence(evidence, out.Evidence)
	}

	if len(contributing) == 1 && len(evidence) == 0 {
		out := contributing[0]
		if out.Status == orchestration.StatusError {
			return apology(out)
		}
		if text := body(out); text != "" {
			return text
		}
		return FallbackAnswer
	}

	var sections []string
	for _, out := range contributing {
		var text string
		if out.Status == orchestration.StatusError {
			text = apology(out)
		} else {
			text = body(out)
		}
		if text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("**%s**\n%s", out.Worker.Title(), text))
	}
	if len(sections) == 0 {
		return FallbackAnswer
	}

	if len(evidence) > 0 {
		var b strings.Builder
		b.WriteString("Sources:")
		for i, e := range evidence {
			b.WriteString("\n")
			b.WriteString(citation(i+1, e))
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n\n")
}

// contributingOutputs drops summarizer outputs when any other worker ran,
// since the rolling summary is not an answer to the user. A needs_context
// output counts only when it carries partial content and the same worker did
// not answer again later in the turn.
func contributingOutputs(outputs []orchestration.WorkerOutput) []orchestration.WorkerOutput {
	lastIndex := make(map[orchestration.WorkerName]int, len(outputs))
	for i, out := range outputs {
		lastIndex[out.Worker] = i
	}

	var others []orchestration.WorkerOutput
	for i, out := range outputs {
		if out.Worker == orchestration.WorkerSummarizer {
			continue
		}
		if out.Status == orchestration.StatusNeedsContext &&
			(lastIndex[out.Worker] != i || strings.TrimSpace(out.Content) == "") {
			continue
		}
		others = append(others, out)
	}
	if len(others) > 0 {
		return others
	}
	return outputs
}

// body is the user-facing text of an output. The summary stands in for empty
// content except on needs_context outputs, whose summary is bookkeeping.
func body(out orchestration.WorkerOutput) string {
	if text := strings.TrimSpace(out.Content); text != "" {
		return text
	}
	if out.Status == orchestration.StatusNeedsContext {
		return ""
	}
	return strings.TrimSpace(out.Summary)
}

func apology(out orchestration.WorkerOutput) string {
	return fmt.Sprintf("I'm sorry, the %s step ran into a problem and could not finish.", strings.ToLower(out.Worker.Title()))
}

func citation(n int, e orchestration.EvidenceItem) string {
	title := e.Title
	if title == "" {
		title = e.SourceID
	}
	if e.Page != "" {
		return fmt.Sprintf("[%d] %s, p. %s", n, title, e.Page)
	}
	return fmt.Sprintf("[%d] %s", n, title)
}
