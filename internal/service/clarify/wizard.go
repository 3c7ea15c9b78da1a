package clarify

import (
	"errors"
	"fmt"

	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
)

// Action is a wizard navigation command.
type Action string

const (
	ActionAnswer  Action = "answer"
	ActionBack    Action = "back"
	ActionSkip    Action = "skip"
	ActionCancel  Action = "cancel"
	ActionRestart Action = "restart"
)

var (
	// ErrWizardFinished is returned for navigation after completion or cancellation.
	ErrWizardFinished = fmt.Errorf("wizard already finished: %w", domain.ErrValidation)
	// ErrAtFirstQuestion is returned by Back on the first question.
	ErrAtFirstQuestion = fmt.Errorf("already at the first question: %w", domain.ErrValidation)
)

// Wizard asks questions one at a time over a WizardState.
// Every failed operation leaves the state exactly as it was.
type Wizard struct {
	state *orchestration.WizardState
}

// NewWizard wraps state, filling nil collections.
func NewWizard(state *orchestration.WizardState) *Wizard {
	if state.Answers == nil {
		state.Answers = map[string]string{}
	}
	if state.History == nil {
		state.History = []int{}
	}
	return &Wizard{state: state}
}

// State returns the underlying persisted state.
func (w *Wizard) State() *orchestration.WizardState { return w.state }

// Finished reports whether the wizard completed or was cancelled.
func (w *Wizard) Finished() bool { return w.state.Completed || w.state.Cancelled }

// Current returns the question awaiting an answer.
func (w *Wizard) Current() (orchestration.Question, bool) {
	if w.Finished() || w.state.Index < 0 || w.state.Index >= len(w.state.Questions) {
		return orchestration.Question{}, false
	}
	return w.state.Questions[w.state.Index], true
}

// Progress returns the 1-based position of the current question and the total.
func (w *Wizard) Progress() (position, total int) {
	total = len(w.state.Questions)
	if w.state.Completed {
		return total, total
	}
	return w.state.Index + 1, total
}

// Submit validates answer for the current question and advances.
// An invalid answer returns *AnswerError and does not advance.
func (w *Wizard) Submit(answer string) error {
	q, ok := w.Current()
	if !ok {
		return ErrWizardFinished
	}
	normalized, err := ValidateAnswer(q, answer)
	if err != nil {
		return err
	}
	if normalized == "" {
		delete(w.state.Answers, q.ID)
	} else {
		w.state.Answers[q.ID] = normalized
	}
	w.advance()
	return nil
}

// Skip moves past an optional question without answering it.
func (w *Wizard) Skip() error {
	q, ok := w.Current()
	if !ok {
		return ErrWizardFinished
	}
	if q.Required {
		return &AnswerError{QuestionID: q.ID, Message: "this question cannot be skipped"}
	}
	delete(w.state.Answers, q.ID)
	w.advance()
	return nil
}

// Back returns to the previously visited question. Its answer is kept until replaced.
func (w *Wizard) Back() error {
	if w.state.Cancelled {
		return ErrWizardFinished
	}
	n := len(w.state.History)
	if n == 0 {
		return ErrAtFirstQuestion
	}
	w.state.Index = w.state.History[n-1]
	w.state.History = w.state.History[:n-1]
	w.state.Completed = false
	return nil
}

// Cancel abandons the wizard. Collected answers are kept.
func (w *Wizard) Cancel() error {
	if w.Finished() {
		return ErrWizardFinished
	}
	w.state.Cancelled = true
	return nil
}

// Restart clears all answers and returns to the first question.
func (w *Wizard) Restart() {
	w.state.Index = 0
	w.state.Answers = map[string]string{}
	w.state.History = []int{}
	w.state.Cancelled = false
	w.state.Completed = len(w.state.Questions) == 0
}

// Apply runs one navigation command.
func (w *Wizard) Apply(action Action, answer string) error {
	switch action {
	case ActionAnswer:
		return w.Submit(answer)
	case ActionBack:
		return w.Back()
	case ActionSkip:
		return w.Skip()
	case ActionCancel:
		return w.Cancel()
	case ActionRestart:
		w.Restart()
		return nil
	default:
		return &domain.ValidationError{Message: fmt.Sprintf("unknown wizard action %q", action)}
	}
}

func (w *Wizard) advance() {
	w.state.History = append(w.state.History, w.state.Index)
	w.state.Index++
	if w.state.Index >= len(w.state.Questions) {
		w.state.Completed = true
	}
}

// IsAnswerError reports whether err is a rejected answer.
func IsAnswerError(err error) bool {
	var ae *AnswerError
	return errors.As(err, &ae)
}
