package orchestration

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labmate/internal/domain/models/orchestration"
)

func TestBuildQuestions(t *testing.T) {
	typed := []orchestration.Question{
		{ID: "symptom", Text: "What happens?", Type: orchestration.QuestionChoice, Options: []string{"noise", "leak"}, Required: true},
		{ID: "recent_change", Text: "Anything changed?", Type: orchestration.QuestionConfirm},
	}
	withPayload := func(payload any) *orchestration.WorkerOutput {
		out := orchestration.NeedsContextOutput(troubleshooting, []string{"ignored text question"}, "")
		out.NextActions[0].Payload = map[string]any{"questions": payload}
		return out
	}
	decoded := func() any {
		data, err := json.Marshal(typed)
		require.NoError(t, err)
		var generic any
		require.NoError(t, json.Unmarshal(data, &generic))
		return generic
	}()

	tests := []struct {
		name    string
		out     *orchestration.WorkerOutput
		max     int
		wantIDs []string
	}{
		{name: "nil output", out: nil, max: 3, wantIDs: []string{"q1"}},
		{name: "text questions", out: orchestration.NeedsContextOutput(tutor, []string{"A?", "B?"}, ""), max: 3, wantIDs: []string{"q1", "q2"}},
		{name: "capped", out: orchestration.NeedsContextOutput(tutor, []string{"A?", "B?", "C?", "D?"}, ""), max: 3, wantIDs: []string{"q1", "q2", "q3"}},
		{name: "typed payload wins", out: withPayload(typed), max: 3, wantIDs: []string{"symptom", "recent_change"}},
		{name: "payload restored from checkpoint", out: withPayload(decoded), max: 3, wantIDs: []string{"symptom", "recent_change"}},
		{name: "invalid typed question dropped", out: withPayload([]orchestration.Question{{ID: "c", Text: "Pick", Type: orchestration.QuestionChoice}}), max: 3, wantIDs: []string{"q1"}},
		{name: "no questions at all", out: orchestration.NeedsContextOutput(tutor, nil, ""), max: 3, wantIDs: []string{"q1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildQuestions(tt.out, tt.max)
			var ids []string
			for _, q := range got {
				ids = append(ids, q.ID)
				assert.NoError(t, q.Validate())
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestInterruptReason(t *testing.T) {
	assert.Equal(t, "more information needed", interruptReason(nil))
	assert.Equal(t, "missing context", interruptReason(orchestration.NeedsContextOutput(tutor, nil, "")))
}
