package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"labmate/internal/domain/models/orchestration"
)

func TestRoute(t *testing.T) {
	end := orchestration.NewOutput(chat, "bye", "bye", 0.9)
	end.NextActions = []orchestration.ActionItem{{Type: orchestration.ActionEnd, Priority: 1}}
	lowEnd := orchestration.NewOutput(chat, "hi", "hi", 0.9)
	lowEnd.NextActions = []orchestration.ActionItem{{Type: orchestration.ActionEnd, Priority: 0}}
	askingWithError := orchestration.NeedsContextOutput(troubleshooting, []string{"Which one?"}, "")
	askingWithError.Errors = []orchestration.ErrorItem{{Code: "x", Severity: orchestration.SeverityWarning}}

	tests := []struct {
		name     string
		plan     []orchestration.WorkerName
		step     int
		needs    bool
		last     *orchestration.WorkerOutput
		want     Decision
		wantNext string
	}{
		{name: "first step", plan: plan(research, tutor), step: 0, want: DecisionContinue, wantNext: "research"},
		{name: "next step", plan: plan(research, tutor), step: 1, last: orchestration.NewOutput(research, "ok", "ok", 0.9), want: DecisionContinue, wantNext: "tutor"},
		{name: "plan exhausted", plan: plan(research), step: 1, last: orchestration.NewOutput(research, "ok", "ok", 0.9), want: DecisionSynthesize, wantNext: orchestration.NextSynthesize},
		{name: "needs context", plan: plan(troubleshooting, tutor), step: 1, last: orchestration.NeedsContextOutput(troubleshooting, nil, ""), want: DecisionAskHuman, wantNext: orchestration.NextHuman},
		{name: "needs context beats error", plan: plan(troubleshooting, tutor), step: 1, last: askingWithError, want: DecisionAskHuman, wantNext: orchestration.NextHuman},
		{name: "needs human flag set by patch", plan: plan(research, tutor), step: 1, needs: true, last: orchestration.NewOutput(research, "ok", "ok", 0.9), want: DecisionAskHuman, wantNext: orchestration.NextHuman},
		{name: "error ends the plan", plan: plan(research, tutor), step: 1, last: orchestration.ErrorOutput(research, "x", "failed"), want: DecisionSynthesize, wantNext: orchestration.NextSynthesize},
		{name: "end suggestion", plan: plan(chat, tutor), step: 1, last: end, want: DecisionSynthesize, wantNext: orchestration.NextSynthesize},
		{name: "end with zero priority is ignored", plan: plan(chat, tutor), step: 1, last: lowEnd, want: DecisionContinue, wantNext: "tutor"},
		{name: "empty plan", plan: nil, step: 0, want: DecisionSynthesize, wantNext: orchestration.NextSynthesize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := orchestration.NewConversationState("t", testNow)
			state.OrchestrationPlan = tt.plan
			state.CurrentStep = tt.step
			state.NeedsHumanInput = tt.needs

			got := Route(state, tt.last)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantNext, state.Next)
			assert.Equal(t, tt.want, Decide(state))
			assert.Equal(t, tt.plan, state.OrchestrationPlan)
			assert.Equal(t, tt.step, state.CurrentStep)
		})
	}
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		next string
		step int
		want Decision
	}{
		{name: "worker at pointer", next: "tutor", step: 1, want: DecisionContinue},
		{name: "worker not at pointer", next: "research", step: 1, want: DecisionSynthesize},
		{name: "worker outside plan", next: "summarizer", step: 0, want: DecisionSynthesize},
		{name: "garbage", next: "rm -rf", step: 0, want: DecisionSynthesize},
		{name: "empty", next: "", step: 0, want: DecisionSynthesize},
		{name: "human", next: orchestration.NextHuman, want: DecisionAskHuman},
		{name: "synthesize", next: orchestration.NextSynthesize, want: DecisionSynthesize},
		{name: "end", next: orchestration.NextEnd, want: DecisionTerminate},
		{name: "pointer past plan", next: "tutor", step: 2, want: DecisionSynthesize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := orchestration.NewConversationState("t", testNow)
			state.OrchestrationPlan = plan(research, tutor)
			state.CurrentStep = tt.step
			state.Next = tt.next
			assert.Equal(t, tt.want, Decide(state))
		})
	}
}

func TestAdvisoryActions(t *testing.T) {
	state := orchestration.NewConversationState("t", testNow)
	state.OrchestrationPlan = plan(research, tutor)
	state.CurrentStep = 1

	out := orchestration.NewOutput(research, "ok", "ok", 0.9)
	out.NextActions = []orchestration.ActionItem{
		{Type: orchestration.ActionCallWorker, Target: "tutor", Priority: 2},
		{Type: orchestration.ActionCallWorker, Target: "troubleshooting", Priority: 1},
		{Type: orchestration.ActionCallTool, Target: "search", Priority: 1},
	}

	got := advisoryActions(state, out)
	assert.Equal(t, map[string]bool{"tutor": true, "troubleshooting": false}, got)
	assert.Equal(t, plan(research, tutor), state.OrchestrationPlan)
}
