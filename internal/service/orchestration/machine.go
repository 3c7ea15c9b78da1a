package orchestration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
	"labmate/internal/service/clarify"
)

// startTurn resets the per-turn fields and records the user message.
func (o *Orchestrator) startTurn(state *orchestration.ConversationState, message string) {
	now := o.now()

	state.OrchestrationPlan = nil
	state.CurrentStep = 0
	state.Next = ""
	state.Done = false
	state.FinalMessage = ""
	state.NeedsHumanInput = false
	state.ClarificationQuestions = nil
	state.Interrupt = nil
	state.Phase = orchestration.PhasePlanning

	orchestration.Apply(state, orchestration.StatePatch{
		WorkerOutputs:  orchestration.ResetList[orchestration.WorkerOutput](),
		PendingContext: orchestration.ResetMap(),
	})
	orchestration.Apply(state, orchestration.StatePatch{
		Messages: orchestration.MergeList(orchestration.Message{
			Role:      orchestration.RoleUser,
			Content:   message,
			CreatedAt: now,
		}),
		PendingContext: orchestration.MergeMap(map[string]any{orchestration.ContextKeyRequest: message}),
		WindowCount:    orchestration.Set(state.WindowCount + 1),
	})
	state.Record("turn_started", "", "", now)
}

// plan asks the planner for a worker list, sanitizes it and points the
// router at the first step. Planner failures fall back to a chat step.
func (o *Orchestrator) plan(ctx context.Context, state *orchestration.ConversationState, em *emitter) {
	raw, err := o.planner.Plan(ctx, state)
	if err != nil {
		o.logger.Warn("planner failed, using fallback plan",
			"thread_id", state.ThreadID,
			"error", err,
		)
		raw = nil
	}

	// The summarizer takes a slot on top of MaxPlanSteps so compaction never
	// displaces the worker the user asked for.
	plan := SanitizePlan(raw, o.opts.MaxPlanSteps)
	if o.opts.Compaction.Due(state) {
		plan = o.opts.Compaction.Apply(plan)
	}

	state.OrchestrationPlan = plan
	state.CurrentStep = 0
	state.Phase = orchestration.PhaseRouting

	steps := strings.Join(planStrings(plan), ",")
	state.Record("plan", "", steps, o.now())
	o.logger.Debug("plan ready", "thread_id", state.ThreadID, "plan", steps)
	em.log("planning", "", 0, "plan: "+strings.Join(planStrings(plan), " -> "))

	Route(state, nil)
}

// drive executes steps until the run suspends or synthesizes. Every continue
// advances the step pointer, so the loop runs at most len(plan) workers.
func (o *Orchestrator) drive(ctx context.Context, state *orchestration.ConversationState, last *orchestration.WorkerOutput, em *emitter) (*TurnResult, error) {
	for executed := 0; ; executed++ {
		if executed > len(state.OrchestrationPlan) {
			o.logger.Error("routing did not converge, synthesizing",
				"thread_id", state.ThreadID,
				"next", state.Next,
				"step", state.CurrentStep,
			)
			state.Next = orchestration.NextSynthesize
		}

		switch Decide(state) {
		case DecisionContinue:
			worker := state.OrchestrationPlan[state.CurrentStep]
			if o.verification != nil && o.verification.Required(state, worker) {
				return o.suspendForVerification(ctx, state, worker, em)
			}
			last = o.execute(ctx, state, worker, em)
			Route(state, last)
		case DecisionAskHuman:
			return o.suspend(ctx, state, last, em)
		default:
			return o.synthesize(ctx, state, em)
		}
	}
}

// execute dispatches one worker against a snapshot of the state and folds its
// result back in.
func (o *Orchestrator) execute(ctx context.Context, state *orchestration.ConversationState, worker orchestration.WorkerName, em *emitter) *orchestration.WorkerOutput {
	step := state.CurrentStep
	state.Phase = orchestration.PhaseExecuting
	em.log("executing", worker, step, worker.Title()+" started")

	out := o.dispatch(ctx, state, worker, step, em)
	o.recordOutput(state, out, em)
	o.advance(state, out, step, em)
	return out
}

// dispatch runs worker against a snapshot and applies its patch. A successful
// summarizer step compacts the history.
func (o *Orchestrator) dispatch(ctx context.Context, state *orchestration.ConversationState, worker orchestration.WorkerName, step int, em *emitter) *orchestration.WorkerOutput {
	snapshot := state.Clone()
	res := o.dispatcher.Dispatch(ctx, worker, services.WorkerInput{
		State:          snapshot,
		PendingContext: snapshot.PendingContext,
		Plan:           append([]orchestration.WorkerName(nil), state.OrchestrationPlan...),
		Step:           step,
	})
	orchestration.Apply(state, res.Patch)

	if worker == orchestration.WorkerSummarizer && res.Output.Status != orchestration.StatusError {
		o.opts.Compaction.AfterSummarizer(state, res.Output, res.Patch.RollingSummary.IsSet(), o.now())
		em.log("compaction", worker, step, "conversation history summarized")
	}
	return res.Output
}

func (o *Orchestrator) advance(state *orchestration.ConversationState, out *orchestration.WorkerOutput, step int, em *emitter) {
	state.CurrentStep++
	state.Phase = orchestration.PhaseRouting
	em.log("worker_finished", out.Worker, step, fmt.Sprintf("%s finished with status %s", out.Worker.Title(), out.Status))
}

// followUp runs the worker that asked once more after its answers arrive,
// when its step closed the plan and no later worker would read them. The
// step pointer stays at the end of the plan. Only one follow-up runs per turn.
func (o *Orchestrator) followUp(ctx context.Context, state *orchestration.ConversationState, worker orchestration.WorkerName, em *emitter) (*TurnResult, error) {
	step := state.CurrentStep
	orchestration.Apply(state, orchestration.StatePatch{
		PendingContext: orchestration.MergeMap(map[string]any{orchestration.ContextKeyFollowUp: string(worker)}),
	})
	state.Phase = orchestration.PhaseExecuting
	em.log("executing", worker, step, worker.Title()+" continuing with your answers")

	out := o.dispatch(ctx, state, worker, step, em)
	o.recordOutput(state, out, em)
	state.Phase = orchestration.PhaseRouting
	em.log("worker_finished", worker, step, fmt.Sprintf("%s finished with status %s", worker.Title(), out.Status))

	Route(state, out)
	return o.drive(ctx, state, out, em)
}

// needsFollowUp reports whether the worker behind it asked from the last
// planned step and has not been followed up this turn.
func needsFollowUp(state *orchestration.ConversationState, it *orchestration.InterruptInfo) bool {
	n := len(state.OrchestrationPlan)
	if it.ResumeTo != orchestration.ResumePlan || it.Worker == "" || n == 0 {
		return false
	}
	if state.CurrentStep < n || state.OrchestrationPlan[n-1] != it.Worker {
		return false
	}
	return orchestration.ContextString(state.PendingContext, orchestration.ContextKeyFollowUp) == ""
}

// recordOutput stores a step's output and accumulates its evidence and
// summary in pending context.
func (o *Orchestrator) recordOutput(state *orchestration.ConversationState, out *orchestration.WorkerOutput, em *emitter) {
	now := o.now()
	pc := state.PendingContext

	values := map[string]any{}
	if len(out.Evidence) > 0 {
		values[orchestration.ContextKeyEvidence] = orchestration.AppendEvidence(orchestration.ContextEvidence(pc), out.Evidence)
	}
	if summary := strings.TrimSpace(out.Summary); summary != "" && out.Status != orchestration.StatusError {
		values[orchestration.ContextKeyPriorSummaries] = append(orchestration.ContextSummaries(pc),
			orchestration.PriorSummary{Worker: out.Worker, Summary: summary})
	}
	orchestration.Apply(state, orchestration.StatePatch{
		WorkerOutputs:  orchestration.MergeList(*out),
		PendingContext: orchestration.MergeMap(values),
	})

	if legacy, err := orchestration.Serialize(out); err == nil {
		state.LegacyResults[out.Worker] = legacy
	}

	advice := advisoryActions(state, out)
	targets := make([]string, 0, len(advice))
	for t := range advice {
		targets = append(targets, t)
	}
	sort.Strings(targets)
	for _, t := range targets {
		state.Record("advisory_action", out.Worker, fmt.Sprintf("call_worker=%s planned=%t", t, advice[t]), now)
	}

	state.Record("worker_finished", out.Worker,
		fmt.Sprintf("status=%s confidence=%.2f", out.Status, out.Confidence), now)
	if out.Status == orchestration.StatusError {
		o.logger.Warn("worker failed",
			"thread_id", state.ThreadID,
			"worker", out.Worker,
			"error", out.FirstError(),
		)
	}
}

// suspend pauses the run on the questions of the last output.
func (o *Orchestrator) suspend(ctx context.Context, state *orchestration.ConversationState, last *orchestration.WorkerOutput, em *emitter) (*TurnResult, error) {
	it := &orchestration.InterruptInfo{
		Reason:    interruptReason(last),
		ResumeTo:  orchestration.ResumePlan,
		Mode:      o.opts.QuestionMode,
		CreatedAt: o.now(),
	}
	if last != nil {
		it.Worker = last.Worker
	}
	return o.interrupt(ctx, state, it, BuildQuestions(last, o.opts.MaxQuestions), em)
}

func (o *Orchestrator) suspendForVerification(ctx context.Context, state *orchestration.ConversationState, worker orchestration.WorkerName, em *emitter) (*TurnResult, error) {
	it := &orchestration.InterruptInfo{
		Reason:    "identity verification required",
		Worker:    worker,
		ResumeTo:  orchestration.ResumeVerification,
		Mode:      o.opts.QuestionMode,
		CreatedAt: o.now(),
	}
	return o.interrupt(ctx, state, it, []orchestration.Question{o.verification.Question()}, em)
}

func (o *Orchestrator) interrupt(ctx context.Context, state *orchestration.ConversationState, it *orchestration.InterruptInfo, questions []orchestration.Question, em *emitter) (*TurnResult, error) {
	it.Wizard = nil
	if it.Mode == orchestration.QuestionModeWizard {
		it.Wizard = orchestration.NewWizardState(questions)
	}

	state.Phase = orchestration.PhaseAwaitingHuman
	state.NeedsHumanInput = true
	state.ClarificationQuestions = questions
	state.Interrupt = it
	state.Next = orchestration.NextHuman
	state.Done = false
	state.Record("interrupt", it.Worker,
		fmt.Sprintf("resume_to=%s questions=%d", it.ResumeTo, len(questions)), o.now())

	if err := o.save(ctx, state, em); err != nil {
		return nil, err
	}

	o.logger.Info("run suspended for clarification",
		"thread_id", state.ThreadID,
		"worker", it.Worker,
		"resume_to", it.ResumeTo,
		"questions", len(questions),
	)
	em.questions(orchestration.QuestionsData{
		Reason:    it.Reason,
		Worker:    it.Worker,
		Mode:      it.Mode,
		Questions: questions,
	})
	em.done(state)
	return resultFrom(state), nil
}

// resumeWith folds validated answers into the state and re-enters routing.
func (o *Orchestrator) resumeWith(ctx context.Context, state *orchestration.ConversationState, answers map[string]string, em *emitter) (*TurnResult, error) {
	it := state.Interrupt
	if it.ResumeTo == orchestration.ResumeVerification && o.verification != nil {
		return o.resumeVerification(ctx, state, answers, em)
	}

	now := o.now()
	items := clarify.ToContext(state.ClarificationQuestions, answers)
	all := append(orchestration.ContextClarifications(state.PendingContext), items...)

	patch := orchestration.StatePatch{}
	if len(all) > 0 {
		patch.PendingContext = orchestration.MergeMap(map[string]any{orchestration.ContextKeyClarification: all})
	}
	if transcript := clarify.Transcript(items); transcript != "" {
		patch.Messages = orchestration.MergeList(orchestration.Message{
			Role:      orchestration.RoleUser,
			Content:   transcript,
			CreatedAt: now,
		})
	}
	orchestration.Apply(state, patch)

	clearInterrupt(state)
	state.Record("resumed", it.Worker, fmt.Sprintf("answers=%d", len(items)), now)
	em.log("resumed", it.Worker, state.CurrentStep, "continuing with your answers")

	if needsFollowUp(state, it) {
		return o.followUp(ctx, state, it.Worker, em)
	}
	Route(state, nil)
	return o.drive(ctx, state, nil, em)
}

func (o *Orchestrator) resumeVerification(ctx context.Context, state *orchestration.ConversationState, answers map[string]string, em *emitter) (*TurnResult, error) {
	it := state.Interrupt
	now := o.now()

	id, err := o.verification.Verify(ctx, answers[o.verification.Question().ID])
	if err != nil {
		it.Attempts++
		state.Record("verification_failed", it.Worker, fmt.Sprintf("attempt=%d", it.Attempts), now)
		if it.Attempts < o.verification.MaxAttempts() {
			it.Reason = err.Error()
			return o.interrupt(ctx, state, it, state.ClarificationQuestions, em)
		}

		o.logger.Warn("verification failed, skipping worker",
			"thread_id", state.ThreadID,
			"worker", it.Worker,
			"attempts", it.Attempts,
		)
		clearInterrupt(state)
		out := orchestration.ErrorOutput(it.Worker, "verification_failed", "the customer ID could not be verified")
		out.Errors[0].Recoverable = false
		o.recordOutput(state, out, em)
		o.advance(state, out, state.CurrentStep, em)
		Route(state, out)
		return o.drive(ctx, state, out, em)
	}

	orchestration.Apply(state, orchestration.StatePatch{
		Messages: orchestration.MergeList(orchestration.Message{
			Role:      orchestration.RoleUser,
			Content:   "Customer ID: " + id,
			CreatedAt: now,
		}),
		PendingContext: orchestration.MergeMap(map[string]any{orchestration.ContextKeyVerifiedCustomer: id}),
	})
	clearInterrupt(state)
	state.Record("verified", it.Worker, "", now)
	em.log("verified", it.Worker, state.CurrentStep, "customer verified")

	Route(state, nil)
	return o.drive(ctx, state, nil, em)
}

// cancelClarification abandons the questions and answers with what is available.
func (o *Orchestrator) cancelClarification(ctx context.Context, state *orchestration.ConversationState, em *emitter) (*TurnResult, error) {
	it := state.Interrupt
	orchestration.Apply(state, orchestration.StatePatch{
		PendingContext: orchestration.MergeMap(map[string]any{orchestration.ContextKeyClarifyCancelled: true}),
	})
	clearInterrupt(state)
	state.Record("clarification_cancelled", it.Worker, "", o.now())
	em.log("cancelled", it.Worker, state.CurrentStep, "clarification cancelled")

	state.Next = orchestration.NextSynthesize
	return o.drive(ctx, state, nil, em)
}

func clearInterrupt(state *orchestration.ConversationState) {
	state.NeedsHumanInput = false
	state.ClarificationQuestions = nil
	state.Interrupt = nil
	state.Phase = orchestration.PhaseRouting
}

func (o *Orchestrator) synthesize(ctx context.Context, state *orchestration.ConversationState, em *emitter) (*TurnResult, error) {
	state.Phase = orchestration.PhaseSynthesizing
	em.log("synthesizing", "", state.CurrentStep, "combining results")

	text := Synthesize(state.WorkerOutputs)
	if o.polisher != nil {
		polished, err := o.polisher.Polish(ctx, state.Clone(), text)
		switch {
		case err != nil:
			o.logger.Warn("polish failed, using draft", "thread_id", state.ThreadID, "error", err)
		case strings.TrimSpace(polished) == "":
			o.logger.Warn("polish returned nothing, using draft", "thread_id", state.ThreadID)
		default:
			text = polished
		}
	}
	return o.finish(ctx, state, text, em)
}

// finish records the answer, marks the run done and persists it.
func (o *Orchestrator) finish(ctx context.Context, state *orchestration.ConversationState, text string, em *emitter) (*TurnResult, error) {
	now := o.now()
	orchestration.Apply(state, orchestration.StatePatch{
		Messages: orchestration.MergeList(orchestration.Message{
			Role:      orchestration.RoleAssistant,
			Content:   text,
			CreatedAt: now,
		}),
	})
	state.FinalMessage = text
	state.Done = true
	state.Phase = orchestration.PhaseDone
	state.Next = orchestration.NextEnd
	state.NeedsHumanInput = false
	state.ClarificationQuestions = nil
	state.Interrupt = nil
	state.Record("turn_finished", "", fmt.Sprintf("outputs=%d", len(state.WorkerOutputs)), now)

	if err := o.save(ctx, state, em); err != nil {
		return nil, err
	}

	o.logger.Info("turn finished",
		"thread_id", state.ThreadID,
		"plan", strings.Join(planStrings(state.OrchestrationPlan), ","),
		"outputs", len(state.WorkerOutputs),
	)
	em.message(text)
	em.done(state)
	return resultFrom(state), nil
}

func (o *Orchestrator) save(ctx context.Context, state *orchestration.ConversationState, em *emitter) error {
	state.UpdatedAt = o.now()
	if err := o.store.Save(ctx, state); err != nil {
		o.logger.Error("checkpoint save failed", "thread_id", state.ThreadID, "error", err)
		em.error("", "checkpoint_failed", "the conversation could not be saved")
		em.done(state)
		return fmt.Errorf("save checkpoint for thread %s: %w", state.ThreadID, err)
	}
	return nil
}
