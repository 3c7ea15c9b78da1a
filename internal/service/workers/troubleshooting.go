package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// minSymptomWords is the shortest description worth diagnosing without asking.
const minSymptomWords = 6

const troubleshootingInstructions = `You are a laboratory equipment troubleshooter. Given the user's description,
list the most likely causes and concrete checks in order, safest first.
Cite evidence passages as [n] when they apply.`

// symptomQuestions are asked when the description is too thin to diagnose.
var symptomQuestions = []orchestration.Question{
	{
		ID:       "equipment",
		Text:     "Which instrument or setup is affected?",
		Type:     orchestration.QuestionText,
		Required: true,
	},
	{
		ID:   "symptom",
		Text: "What best describes the problem?",
		Type: orchestration.QuestionChoice,
		Options: []string{
			"No power or won't start",
			"Error code or alarm",
			"Unexpected or drifting readings",
			"Mechanical noise or leak",
			"Other",
		},
		Required: true,
	},
	{
		ID:   "recent_change",
		Text: "Did anything change recently (new sample, settings or maintenance)?",
		Type: orchestration.QuestionConfirm,
	},
}

// checklist maps symptom keywords to first checks.
var checklist = []struct {
	keywords []string
	steps    []string
}{
	{
		keywords: []string{"power", "start", "dead", "won't"},
		steps: []string{
			"Confirm the unit is plugged in and the outlet works.",
			"Check the fuse and the main switch on the back panel.",
		},
	},
	{
		keywords: []string{"error", "alarm", "code"},
		steps: []string{
			"Write down the exact error code and look it up in the instrument manual.",
			"Power-cycle the instrument once and check whether the alarm returns.",
		},
	},
	{
		keywords: []string{"reading", "readings", "drift", "drifting", "unstable", "oscillating", "oscillates"},
		steps: []string{
			"Recalibrate against a known reference.",
			"Check sensor connections and shielding for loose contacts.",
			"Let the instrument warm up fully before measuring.",
		},
	},
	{
		keywords: []string{"noise", "noisy", "leak", "leaking", "vibration"},
		steps: []string{
			"Stop the run and isolate the unit if liquid is leaking.",
			"Inspect seals, tubing and fittings for wear.",
		},
	},
}

// TroubleshootingWorker diagnoses equipment problems and asks for missing symptoms.
type TroubleshootingWorker struct {
	completer services.Completer
	logger    *slog.Logger
}

// NewTroubleshootingWorker creates a troubleshooting worker. completer may be nil.
func NewTroubleshootingWorker(completer services.Completer, logger *slog.Logger) *TroubleshootingWorker {
	return &TroubleshootingWorker{completer: completer, logger: logger}
}

// Name implements services.Worker.
func (w *TroubleshootingWorker) Name() orchestration.WorkerName {
	return orchestration.WorkerTroubleshooting
}

// Handle implements services.Worker.
func (w *TroubleshootingWorker) Handle(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error) {
	description := request(in)
	answered := len(orchestration.ContextClarifications(in.PendingContext)) > 0
	cancelled, _ := in.PendingContext[orchestration.ContextKeyClarifyCancelled].(bool)
	evidence := orchestration.ContextEvidence(in.PendingContext)

	if !answered && !cancelled && len(strings.Fields(description)) < minSymptomWords {
		return w.askForSymptoms(description), nil
	}

	var (
		body  string
		model string
	)
	if w.completer != nil {
		system := troubleshootingInstructions
		if len(evidence) > 0 {
			system += "\n\nEvidence:\n" + evidenceBrief(evidence)
		}
		msgs := []orchestration.Message{{Role: orchestration.RoleUser, Content: description}}
		text, err := w.completer.Complete(ctx, system, msgs)
		if err != nil {
			return services.WorkerResult{}, fmt.Errorf("troubleshooting completion: %w", err)
		}
		body = text
		model = modelOf(w.completer)
	} else {
		body = diagnose(description)
	}

	if customer := orchestration.ContextString(in.PendingContext, orchestration.ContextKeyVerifiedCustomer); customer != "" {
		body += fmt.Sprintf("\n\nService record: customer %s is verified, so a technician visit can be booked if these checks fail.", customer)
	}
	if len(evidence) > 0 && !strings.Contains(body, evidence[0].Title) {
		body += "\n\nSources:\n" + citations(evidence)
	}

	out := orchestration.NewOutput(w.Name(), "Diagnosed: "+truncate(description, 80), body, 0.7)
	out.Metadata.Model = model
	if cancelled {
		out.Status = orchestration.StatusPartial
		out.Confidence = 0.4
	}
	return services.WorkerResult{Output: out}, nil
}

func (w *TroubleshootingWorker) askForSymptoms(description string) services.WorkerResult {
	texts := make([]string, len(symptomQuestions))
	for i, q := range symptomQuestions {
		texts[i] = q.Text
	}
	partial := "Until I know more, start with the basics:\n" + diagnose(description)
	out := orchestration.NeedsContextOutput(orchestration.WorkerTroubleshooting, texts, partial)
	out.NextActions[0].Payload = map[string]any{"questions": symptomQuestions}
	out.NextActions[0].Reason = "symptom description too short to diagnose"

	return services.WorkerResult{
		Output: out,
		Patch: orchestration.StatePatch{
			NeedsHumanInput: orchestration.Set(true),
		},
	}
}

// diagnose builds an ordered checklist from symptom keywords.
func diagnose(description string) string {
	words := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(description)) {
		words[strings.Trim(f, ".,;:!?()\"")] = true
	}

	var steps []string
	for _, entry := range checklist {
		for _, kw := range entry.keywords {
			if words[kw] {
				steps = append(steps, entry.steps...)
				break
			}
		}
	}
	if len(steps) == 0 {
		steps = []string{
			"Note exactly when the problem started and what changed just before.",
			"Check power, cables and consumables.",
			"Compare settings against the last known good run.",
		}
	}

	var b strings.Builder
	for i, s := range steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s)
	}
	return strings.TrimRight(b.String(), "\n")
}
