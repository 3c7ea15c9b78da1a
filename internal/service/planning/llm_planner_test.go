package planning

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labmate/internal/domain/models/orchestration"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type mockCompleter struct {
	reply  string
	err    error
	system string
	seen   []orchestration.Message
}

func (m *mockCompleter) Complete(_ context.Context, system string, messages []orchestration.Message) (string, error) {
	m.system = system
	m.seen = messages
	return m.reply, m.err
}

func TestParsePlan(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    []orchestration.WorkerName
		wantErr bool
	}{
		{name: "bare json", text: `{"plan":["research","tutor"]}`, want: []orchestration.WorkerName{"research", "tutor"}},
		{name: "code fence", text: "```json\n{\"plan\": [\"Chat\"], \"reason\": \"greeting\"}\n```", want: []orchestration.WorkerName{"chat"}},
		{name: "prose around", text: `Sure! {"plan":["troubleshooting"]} hope that helps`, want: []orchestration.WorkerName{"troubleshooting"}},
		{name: "no json", text: "research then tutor", wantErr: true},
		{name: "empty plan", text: `{"plan":[]}`, wantErr: true},
		{name: "unknown worker", text: `{"plan":["oracle"]}`, wantErr: true},
		{name: "broken json", text: `{"plan":["chat"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlan(tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLLMPlanner_Plan(t *testing.T) {
	rules, err := LoadDefaultRules()
	require.NoError(t, err)
	fallback := NewRulePlanner(rules, discardLogger())

	state := orchestration.NewConversationState("t", testTime)
	for i := 0; i < 10; i++ {
		state.Messages = append(state.Messages, orchestration.Message{Role: orchestration.RoleUser, Content: "hello"})
	}
	state.Messages = append(state.Messages, orchestration.Message{Role: orchestration.RoleUser, Content: "explain osmosis"})

	tests := []struct {
		name string
		llm  *mockCompleter
		want []orchestration.WorkerName
	}{
		{name: "model plan", llm: &mockCompleter{reply: `{"plan":["research","tutor"]}`}, want: []orchestration.WorkerName{"research", "tutor"}},
		{name: "model error falls back", llm: &mockCompleter{err: errors.New("rate limited")}, want: []orchestration.WorkerName{"tutor"}},
		{name: "unusable reply falls back", llm: &mockCompleter{reply: "I think tutor"}, want: []orchestration.WorkerName{"tutor"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewLLMPlanner(tt.llm, rules, fallback, discardLogger())
			got, err := p.Plan(context.Background(), state)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Len(t, tt.llm.seen, historyWindow)
			assert.Contains(t, tt.llm.system, "troubleshooting:")
		})
	}
}
