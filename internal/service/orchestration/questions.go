package orchestration

import (
	"encoding/json"
	"fmt"

	"labmate/internal/domain/models/orchestration"
)

// genericQuestion is asked when a worker wants input but said nothing usable.
var genericQuestion = orchestration.TextQuestion("q1", "Could you tell me a bit more about what you need?")

// BuildQuestions extracts the questions to ask from an output requesting
// clarification. Typed questions attached to ask_user actions win over plain
// clarification strings. The result is capped at max and never empty.
func BuildQuestions(out *orchestration.WorkerOutput, max int) []orchestration.Question {
	var qs []orchestration.Question
	if out != nil {
		for _, a := range out.NextActions {
			if a.Type != orchestration.ActionAskUser || a.Payload == nil {
				continue
			}
			qs = append(qs, payloadQuestions(a.Payload["questions"])...)
		}
		if len(qs) == 0 {
			qs = orchestration.QuestionsFromText(out.ClarificationQuestions)
		}
	}

	valid := make([]orchestration.Question, 0, len(qs))
	seen := make(map[string]bool, len(qs))
	for _, q := range qs {
		if q.Type == "" {
			q.Type = orchestration.QuestionText
		}
		if q.ID == "" || seen[q.ID] {
			q.ID = fmt.Sprintf("q%d", len(valid)+1)
		}
		if q.Validate() != nil {
			continue
		}
		seen[q.ID] = true
		valid = append(valid, q)
	}
	if max > 0 && len(valid) > max {
		valid = valid[:max]
	}
	if len(valid) == 0 {
		valid = []orchestration.Question{genericQuestion}
	}
	return valid
}

func payloadQuestions(raw any) []orchestration.Question {
	switch v := raw.(type) {
	case nil:
		return nil
	case []orchestration.Question:
		out := make([]orchestration.Question, len(v))
		copy(out, v)
		return out
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		var out []orchestration.Question
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
}

func interruptReason(out *orchestration.WorkerOutput) string {
	if out == nil {
		return "more information needed"
	}
	for _, a := range out.NextActions {
		if a.Type == orchestration.ActionAskUser && a.Reason != "" {
			return a.Reason
		}
	}
	if out.Summary != "" {
		return out.Summary
	}
	return "more information needed"
}
