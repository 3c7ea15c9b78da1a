package orchestration

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// QuestionType declares how an answer is validated.
type QuestionType string

const (
	QuestionChoice  QuestionType = "choice"
	QuestionText    QuestionType = "text"
	QuestionBoolean QuestionType = "boolean"
	QuestionNumber  QuestionType = "number"
	QuestionConfirm QuestionType = "confirm"
)

// Question is one clarification prompt handed to the user on interrupt.
type Question struct {
	ID       string       `json:"id"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Required bool         `json:"required"`
	Min      *float64     `json:"min,omitempty"`
	Max      *float64     `json:"max,omitempty"`
}

// Validate implements validation.Validatable.
func (q Question) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.ID, validation.Required),
		validation.Field(&q.Text, validation.Required),
		validation.Field(&q.Type, validation.Required,
			validation.In(QuestionChoice, QuestionText, QuestionBoolean, QuestionNumber, QuestionConfirm)),
		validation.Field(&q.Options, validation.When(q.Type == QuestionChoice, validation.Required)),
	)
}

// TextQuestion builds a required free-text question.
func TextQuestion(id, text string) Question {
	return Question{ID: id, Text: text, Type: QuestionText, Required: true}
}

// QuestionsFromText turns plain clarification strings into required text
// questions with positional ids (q1, q2, ...).
func QuestionsFromText(texts []string) []Question {
	qs := make([]Question, 0, len(texts))
	for i, t := range texts {
		qs = append(qs, TextQuestion(fmt.Sprintf("q%d", i+1), t))
	}
	return qs
}

// WizardState is the persisted progress of a stepwise clarification.
// It is plain data so it survives the same checkpoint as the rest of the state.
type WizardState struct {
	Questions []Question        `json:"questions"`
	Index     int               `json:"index"`
	Answers   map[string]string `json:"answers"`
	Cancelled bool              `json:"cancelled"`
	Completed bool              `json:"completed"`
	// History is the stack of indexes visited, used by Back.
	History []int `json:"history"`
}

// NewWizardState starts a wizard at the first question.
func NewWizardState(questions []Question) *WizardState {
	return &WizardState{
		Questions: questions,
		Answers:   map[string]string{},
		History:   []int{},
		Completed: len(questions) == 0,
	}
}
