// Package clarify validates clarification answers and drives the stepwise
// question wizard. Wizard progress lives in orchestration.WizardState so it
// can be checkpointed with the rest of the conversation.
package clarify

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"labmate/internal/config"
	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
)

// AnswerError reports an answer that does not fit its question.
// It matches domain.ErrValidation with errors.Is.
type AnswerError struct {
	QuestionID string
	Message    string
}

func (e *AnswerError) Error() string {
	return fmt.Sprintf("question %s: %s", e.QuestionID, e.Message)
}

// Is lets handlers map answer errors to 400 responses.
func (e *AnswerError) Is(target error) bool { return target == domain.ErrValidation }

var (
	yesWords = map[string]bool{"yes": true, "y": true, "true": true}
	noWords  = map[string]bool{"no": true, "n": true, "false": true}
)

// ValidateAnswer checks raw against q and returns the normalized answer.
// Choice answers normalize to the option text (a 1-based option number is
// accepted too), boolean and confirm answers to "yes" or "no".
func ValidateAnswer(q orchestration.Question, raw string) (string, error) {
	answer := strings.TrimSpace(raw)
	if answer == "" {
		if q.Required {
			return "", &AnswerError{QuestionID: q.ID, Message: "an answer is required"}
		}
		return "", nil
	}

	var (
		normalized string
		err        error
	)
	switch q.Type {
	case orchestration.QuestionChoice:
		normalized, err = validateChoice(q, answer)
	case orchestration.QuestionBoolean:
		normalized, err = validateYesNo(answer, true)
	case orchestration.QuestionConfirm:
		normalized, err = validateYesNo(answer, false)
	case orchestration.QuestionNumber:
		normalized, err = validateNumber(q, answer)
	case orchestration.QuestionText, "":
		normalized = answer
		err = validation.Validate(answer, validation.Length(1, config.MaxAnswerLength))
	default:
		err = fmt.Errorf("unsupported question type %q", q.Type)
	}
	if err != nil {
		return "", &AnswerError{QuestionID: q.ID, Message: err.Error()}
	}
	return normalized, nil
}

func validateChoice(q orchestration.Question, answer string) (string, error) {
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(q.Options) {
		return q.Options[n-1], nil
	}
	for _, opt := range q.Options {
		if strings.EqualFold(opt, answer) {
			answer = opt
			break
		}
	}
	options := make([]interface{}, len(q.Options))
	for i, opt := range q.Options {
		options[i] = opt
	}
	if err := validation.Validate(answer, validation.In(options...).Error("must be one of: "+strings.Join(q.Options, ", "))); err != nil {
		return "", err
	}
	return answer, nil
}

func validateYesNo(answer string, acceptBoolWords bool) (string, error) {
	lower := strings.ToLower(answer)
	isBoolWord := lower == "true" || lower == "false"
	switch {
	case isBoolWord && !acceptBoolWords:
		return "", errors.New("please answer yes or no")
	case yesWords[lower]:
		return "yes", nil
	case noWords[lower]:
		return "no", nil
	default:
		return "", errors.New("please answer yes or no")
	}
}

func validateNumber(q orchestration.Question, answer string) (string, error) {
	f, err := strconv.ParseFloat(answer, 64)
	if err != nil {
		return "", errors.New("must be a number")
	}
	var rules []validation.Rule
	if q.Min != nil {
		rules = append(rules, validation.Min(*q.Min))
	}
	if q.Max != nil {
		rules = append(rules, validation.Max(*q.Max))
	}
	if err := validation.Validate(f, rules...); err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// ValidateBatch checks a single-shot answer payload against questions.
// Answers for unknown question ids are ignored. The returned map holds the
// normalized answers keyed by question id.
func ValidateBatch(questions []orchestration.Question, answers map[string]string) (map[string]string, error) {
	normalized := make(map[string]string, len(questions))
	errs := validation.Errors{}
	for _, q := range questions {
		raw, ok := answers[q.ID]
		if !ok && !q.Required {
			continue
		}
		v, err := ValidateAnswer(q, raw)
		if err != nil {
			var ae *AnswerError
			if errors.As(err, &ae) {
				errs[q.ID] = errors.New(ae.Message)
			} else {
				errs[q.ID] = err
			}
			continue
		}
		if v != "" {
			normalized[q.ID] = v
		}
	}
	if len(errs) > 0 {
		return nil, &domain.ValidationError{Message: errs.Error()}
	}
	return normalized, nil
}

// ToContext converts answers into the entries folded into pending context,
// in question order.
func ToContext(questions []orchestration.Question, answers map[string]string) []orchestration.ClarificationAnswer {
	out := make([]orchestration.ClarificationAnswer, 0, len(answers))
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
		if a, ok := answers[q.ID]; ok {
			out = append(out, orchestration.ClarificationAnswer{QuestionID: q.ID, Question: q.Text, Answer: a})
		}
	}
	// Answers without a matching question keep a stable order.
	var extra []string
	for id := range answers {
		if !known[id] {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		out = append(out, orchestration.ClarificationAnswer{QuestionID: id, Answer: answers[id]})
	}
	return out
}

// Transcript renders answers as the user message appended on resume.
func Transcript(items []orchestration.ClarificationAnswer) string {
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		if it.Question != "" {
			fmt.Fprintf(&b, "%s %s", it.Question, it.Answer)
		} else {
			b.WriteString(it.Answer)
		}
	}
	return b.String()
}
