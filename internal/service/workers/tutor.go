package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// Learning styles understood by the tutor.
const (
	StyleVisual      = "visual"
	StyleStepByStep  = "step_by_step"
	StyleConceptual  = "conceptual"
	StyleHandsOn     = "hands_on"
	defaultStyleHint = "Explain clearly with one short example."
)

var styleHints = map[string]string{
	StyleVisual:     "Describe what the learner would see, using diagrams in words and analogies.",
	StyleStepByStep: "Break the explanation into numbered steps.",
	StyleConceptual: "Focus on the underlying principles before the procedure.",
	StyleHandsOn:    "Anchor the explanation in a concrete bench exercise.",
}

const tutorInstructions = `You are a patient laboratory tutor. Explain the topic in the user's request.
Use the evidence passages when they are relevant and cite them as [n].`

// TutorWorker explains concepts, citing evidence gathered earlier in the plan.
type TutorWorker struct {
	completer services.Completer
	logger    *slog.Logger
}

// NewTutorWorker creates a tutor. completer may be nil.
func NewTutorWorker(completer services.Completer, logger *slog.Logger) *TutorWorker {
	return &TutorWorker{completer: completer, logger: logger}
}

// Name implements services.Worker.
func (w *TutorWorker) Name() orchestration.WorkerName { return orchestration.WorkerTutor }

// Handle implements services.Worker.
func (w *TutorWorker) Handle(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error) {
	topic := request(in)
	evidence := orchestration.ContextEvidence(in.PendingContext)
	hint := styleHint(in.State.LearningStyle)

	var (
		body  string
		model string
	)
	if w.completer != nil {
		system := tutorInstructions + "\n\n" + hint
		if len(evidence) > 0 {
			system += "\n\nEvidence:\n" + evidenceBrief(evidence)
		}
		msgs := []orchestration.Message{{Role: orchestration.RoleUser, Content: topic}}
		text, err := w.completer.Complete(ctx, system, msgs)
		if err != nil {
			return services.WorkerResult{}, fmt.Errorf("tutor completion: %w", err)
		}
		body = text
		model = modelOf(w.completer)
	} else {
		body = w.outline(topic, in.State.LearningStyle, evidence)
	}

	if len(evidence) > 0 && !strings.Contains(body, evidence[0].Title) {
		body += "\n\nSources:\n" + citations(evidence)
	}

	confidence := 0.6
	if len(evidence) > 0 {
		confidence = 0.8
	}
	out := orchestration.NewOutput(w.Name(), "Explained: "+truncate(topic, 80), body, confidence)
	out.Metadata.Model = model
	return services.WorkerResult{Output: out}, nil
}

// outline is the explanation produced without a language model.
func (w *TutorWorker) outline(topic, style string, evidence []orchestration.EvidenceItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Let's work through this: %s\n\n", strings.TrimSpace(topic))
	b.WriteString(hintFor(style))
	if len(evidence) > 0 {
		b.WriteString("\n\nWhat the lab documents say:")
		for i, e := range evidence {
			fmt.Fprintf(&b, "\n%d. %s", i+1, truncate(e.Chunk, 240))
			fmt.Fprintf(&b, " [%d]", i+1)
		}
		b.WriteString("\n\nSources:\n")
		b.WriteString(citations(evidence))
	}
	return b.String()
}

func styleHint(style string) string {
	if h, ok := styleHints[style]; ok {
		return h
	}
	return defaultStyleHint
}

func hintFor(style string) string {
	switch style {
	case StyleStepByStep:
		return "1. Identify the quantity you want to control.\n2. Change one parameter at a time.\n3. Observe and record the response before the next change."
	case StyleVisual:
		return "Picture the system's response as a curve over time and watch how each change reshapes it."
	case StyleHandsOn:
		return "Try it on the bench: make one small adjustment, note the result, then repeat."
	default:
		return "Start from the underlying principle, then connect it to what you observe in the lab."
	}
}
