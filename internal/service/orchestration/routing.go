package orchestration

import (
	"labmate/internal/domain/models/orchestration"
)

// Decision is the outcome of routing.
type Decision string

const (
	DecisionContinue   Decision = "continue"
	DecisionAskHuman   Decision = "ask_human"
	DecisionSynthesize Decision = "synthesize"
	DecisionTerminate  Decision = "terminate"
)

// Route decides what follows a finished step and stores the choice in
// state.Next. It is also the re-entry point after a resume, with last == nil.
//
// Priority: a clarification request, then a failed step (treated as the end
// of the plan), then an end suggestion, then the next planned step, then
// synthesis.
func Route(state *orchestration.ConversationState, last *orchestration.WorkerOutput) Decision {
	switch {
	case (last != nil && last.Status == orchestration.StatusNeedsContext) || state.NeedsHumanInput:
		state.Next = orchestration.NextHuman
		return DecisionAskHuman
	case last != nil && last.Status == orchestration.StatusError:
		state.Next = orchestration.NextSynthesize
		return DecisionSynthesize
	case last != nil && last.WantsEnd():
		state.Next = orchestration.NextSynthesize
		return DecisionSynthesize
	case state.CurrentStep < len(state.OrchestrationPlan):
		state.Next = string(state.OrchestrationPlan[state.CurrentStep])
		return DecisionContinue
	default:
		state.Next = orchestration.NextSynthesize
		return DecisionSynthesize
	}
}

// Decide maps state.Next to a decision. Only the worker at the step pointer
// may run; anything else that is not a terminal marker synthesizes.
func Decide(state *orchestration.ConversationState) Decision {
	switch state.Next {
	case orchestration.NextHuman:
		return DecisionAskHuman
	case orchestration.NextSynthesize:
		return DecisionSynthesize
	case orchestration.NextEnd:
		return DecisionTerminate
	}
	if state.CurrentStep < len(state.OrchestrationPlan) &&
		state.Next == string(state.OrchestrationPlan[state.CurrentStep]) {
		return DecisionContinue
	}
	return DecisionSynthesize
}

// advisoryActions returns call_worker suggestions and whether each names a
// worker still ahead in the plan. The plan never grows from them.
func advisoryActions(state *orchestration.ConversationState, out *orchestration.WorkerOutput) map[string]bool {
	remaining := make(map[orchestration.WorkerName]bool)
	for _, w := range state.RemainingPlan() {
		remaining[w] = true
	}
	actions := make(map[string]bool)
	for _, a := range out.NextActions {
		if a.Type != orchestration.ActionCallWorker {
			continue
		}
		actions[a.Target] = remaining[orchestration.WorkerName(a.Target)]
	}
	return actions
}
