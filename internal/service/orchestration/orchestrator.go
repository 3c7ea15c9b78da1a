package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"labmate/internal/config"
	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
	"labmate/internal/domain/repositories"
	services "labmate/internal/domain/services/orchestration"
	"labmate/internal/service/clarify"
)

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Store   repositories.CheckpointRepository
	Planner services.Planner
	Workers services.WorkerRegistry

	// Verification and Polisher are optional.
	Verification services.VerificationFlow
	Polisher     services.Polisher

	Options Options
	Logger  *slog.Logger
}

// Orchestrator runs conversation turns: plan, execute workers one at a time,
// route after every step, suspend for clarification and synthesize the answer.
type Orchestrator struct {
	store        repositories.CheckpointRepository
	planner      services.Planner
	dispatcher   *Dispatcher
	verification services.VerificationFlow
	polisher     services.Polisher
	locks        *ThreadLocks
	opts         Options
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an Orchestrator.
func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.New("orchestrator: checkpoint store is required")
	}
	if deps.Planner == nil {
		return nil, errors.New("orchestrator: planner is required")
	}
	if deps.Workers == nil {
		return nil, errors.New("orchestrator: worker registry is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := deps.Options.withDefaults()

	return &Orchestrator{
		store:        deps.Store,
		planner:      deps.Planner,
		dispatcher:   NewDispatcher(deps.Workers, opts.WorkerTimeout, opts.MaxRetries, logger),
		verification: deps.Verification,
		polisher:     deps.Polisher,
		locks:        NewThreadLocks(),
		opts:         opts,
		logger:       logger,
		now:          time.Now,
	}, nil
}

// SetClock replaces the time source. Used by tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
	o.dispatcher.now = now
}

// ThreadMeta is caller-supplied metadata copied onto the state.
// Empty fields leave the stored value untouched.
type ThreadMeta struct {
	UserName      string `json:"user_name,omitempty"`
	CustomerID    string `json:"customer_id,omitempty"`
	LearningStyle string `json:"learning_style,omitempty"`
	TaskType      string `json:"task_type,omitempty"`
}

func (m ThreadMeta) apply(state *orchestration.ConversationState) {
	if m.UserName != "" {
		state.UserName = m.UserName
	}
	if m.CustomerID != "" {
		state.CustomerID = m.CustomerID
	}
	if m.LearningStyle != "" {
		state.LearningStyle = m.LearningStyle
	}
	if m.TaskType != "" {
		state.TaskType = m.TaskType
	}
}

// RunRequest starts a new turn.
type RunRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	ThreadMeta
}

// Validate implements validation.Validatable.
func (r RunRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ThreadID, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Message, validation.Required, validation.Length(1, config.MaxMessageLength)),
	)
}

// ResumeRequest answers a pending interrupt in one shot.
type ResumeRequest struct {
	ThreadID string            `json:"thread_id"`
	Answers  map[string]string `json:"answers"`
}

// WizardRequest is one step of a stepwise clarification.
type WizardRequest struct {
	ThreadID string         `json:"thread_id"`
	Action   clarify.Action `json:"action"`
	Answer   string         `json:"answer,omitempty"`
}

// Validate implements validation.Validatable.
func (r WizardRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ThreadID, validation.Required),
		validation.Field(&r.Action, validation.Required, validation.In(
			clarify.ActionAnswer, clarify.ActionBack, clarify.ActionSkip, clarify.ActionCancel, clarify.ActionRestart)),
		validation.Field(&r.Answer, validation.Length(0, config.MaxAnswerLength)),
	)
}

// TurnResult is what a caller sees once a turn completes or suspends.
type TurnResult struct {
	ThreadID      string                       `json:"thread_id"`
	Phase         orchestration.Phase          `json:"phase"`
	Done          bool                         `json:"done"`
	AwaitingHuman bool                         `json:"awaiting_human"`
	Message       string                       `json:"message,omitempty"`
	Reason        string                       `json:"reason,omitempty"`
	Mode          orchestration.QuestionMode   `json:"mode,omitempty"`
	Questions     []orchestration.Question     `json:"questions,omitempty"`
	Plan          []orchestration.WorkerName   `json:"plan"`
	CurrentStep   int                          `json:"current_step"`
	Outputs       []orchestration.WorkerOutput `json:"outputs"`
	Version       int                          `json:"version"`
}

// WizardResult is the outcome of one wizard step. When the wizard finishes,
// Turn holds the result of the resumed run.
type WizardResult struct {
	ThreadID string                  `json:"thread_id"`
	Question *orchestration.Question `json:"question,omitempty"`
	Position int                     `json:"position"`
	Total    int                     `json:"total"`
	Rejected string                  `json:"rejected,omitempty"`
	Finished bool                    `json:"finished"`
	Turn     *TurnResult             `json:"turn,omitempty"`
}

// CreateThread persists an empty thread and returns it.
func (o *Orchestrator) CreateThread(ctx context.Context, meta ThreadMeta) (*orchestration.ConversationState, error) {
	state := orchestration.NewConversationState(uuid.NewString(), o.now())
	meta.apply(state)
	if err := o.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	o.logger.Info("thread created", "thread_id", state.ThreadID)
	return state, nil
}

// GetThread returns the stored state of a thread.
func (o *Orchestrator) GetThread(ctx context.Context, threadID string) (*orchestration.ConversationState, error) {
	state, err := o.store.Load(ctx, threadID)
	if err != nil {
		return nil, err
	}
	state.EnsureDefaults()
	return state, nil
}

// DeleteThread removes a thread and its checkpoint history.
func (o *Orchestrator) DeleteThread(ctx context.Context, threadID string) error {
	unlock := o.locks.Lock(threadID)
	defer unlock()
	if err := o.store.Delete(ctx, threadID); err != nil {
		return err
	}
	o.logger.Info("thread deleted", "thread_id", threadID)
	return nil
}

// Run processes a new user message on a thread, creating the thread on first use.
// It returns domain.ErrInterruptPending while the thread waits for answers.
func (o *Orchestrator) Run(ctx context.Context, req *RunRequest, sink services.EventSink) (*TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	unlock := o.locks.Lock(req.ThreadID)
	defer unlock()

	state, err := o.loadOrCreate(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	if state.AwaitingHuman() {
		return nil, fmt.Errorf("thread %s: %w", req.ThreadID, domain.ErrInterruptPending)
	}

	em := newEmitter(state.ThreadID, sink, o.now)
	req.ThreadMeta.apply(state)
	o.startTurn(state, req.Message)
	o.plan(ctx, state, em)
	return o.drive(ctx, state, nil, em)
}

// Resume answers the pending interrupt and continues the run where it stopped.
// It returns domain.ErrNoPendingInterrupt when the thread is not suspended.
func (o *Orchestrator) Resume(ctx context.Context, req *ResumeRequest, sink services.EventSink) (*TurnResult, error) {
	if req.ThreadID == "" {
		return nil, &domain.ValidationError{Message: "thread_id: cannot be blank."}
	}

	unlock := o.locks.Lock(req.ThreadID)
	defer unlock()

	state, err := o.store.Load(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	state.EnsureDefaults()
	if !state.AwaitingHuman() {
		return nil, fmt.Errorf("thread %s: %w", req.ThreadID, domain.ErrNoPendingInterrupt)
	}

	answers, err := clarify.ValidateBatch(state.ClarificationQuestions, req.Answers)
	if err != nil {
		return nil, err
	}
	return o.resumeWith(ctx, state, answers, newEmitter(state.ThreadID, sink, o.now))
}

// WizardStep applies one wizard action to the pending interrupt. Invalid
// answers are reported in WizardResult.Rejected and change nothing.
func (o *Orchestrator) WizardStep(ctx context.Context, req *WizardRequest, sink services.EventSink) (*WizardResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &domain.ValidationError{Message: err.Error()}
	}

	unlock := o.locks.Lock(req.ThreadID)
	defer unlock()

	state, err := o.store.Load(ctx, req.ThreadID)
	if err != nil {
		return nil, err
	}
	state.EnsureDefaults()
	if !state.AwaitingHuman() {
		return nil, fmt.Errorf("thread %s: %w", req.ThreadID, domain.ErrNoPendingInterrupt)
	}

	it := state.Interrupt
	if it.Wizard == nil {
		it.Wizard = orchestration.NewWizardState(state.ClarificationQuestions)
	}
	wiz := clarify.NewWizard(it.Wizard)

	if err := wiz.Apply(req.Action, req.Answer); err != nil {
		if !clarify.IsAnswerError(err) {
			return nil, err
		}
		res := wizardResult(state.ThreadID, wiz)
		res.Rejected = err.Error()
		return res, nil
	}

	em := newEmitter(state.ThreadID, sink, o.now)
	ws := wiz.State()
	switch {
	case ws.Cancelled:
		turn, err := o.cancelClarification(ctx, state, em)
		if err != nil {
			return nil, err
		}
		return &WizardResult{ThreadID: state.ThreadID, Finished: true, Turn: turn}, nil
	case ws.Completed:
		answers := make(map[string]string, len(ws.Answers))
		for k, v := range ws.Answers {
			answers[k] = v
		}
		turn, err := o.resumeWith(ctx, state, answers, em)
		if err != nil {
			return nil, err
		}
		return &WizardResult{ThreadID: state.ThreadID, Finished: true, Turn: turn}, nil
	}

	if err := o.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("save wizard progress: %w", err)
	}
	return wizardResult(state.ThreadID, wiz), nil
}

func wizardResult(threadID string, wiz *clarify.Wizard) *WizardResult {
	res := &WizardResult{ThreadID: threadID, Finished: wiz.Finished()}
	if q, ok := wiz.Current(); ok {
		res.Question = &q
	}
	res.Position, res.Total = wiz.Progress()
	return res
}

func (o *Orchestrator) loadOrCreate(ctx context.Context, threadID string) (*orchestration.ConversationState, error) {
	state, err := o.store.Load(ctx, threadID)
	if errors.Is(err, domain.ErrNotFound) {
		return orchestration.NewConversationState(threadID, o.now()), nil
	}
	if err != nil {
		return nil, err
	}
	state.EnsureDefaults()
	return state, nil
}

func resultFrom(state *orchestration.ConversationState) *TurnResult {
	res := &TurnResult{
		ThreadID:      state.ThreadID,
		Phase:         state.Phase,
		Done:          state.Done,
		AwaitingHuman: state.AwaitingHuman(),
		Plan:          state.OrchestrationPlan,
		CurrentStep:   state.CurrentStep,
		Outputs:       state.WorkerOutputs,
		Version:       state.Version,
	}
	if state.Done {
		res.Message = state.FinalMessage
	}
	if res.AwaitingHuman {
		res.Reason = state.Interrupt.Reason
		res.Mode = state.Interrupt.Mode
		res.Questions = state.ClarificationQuestions
	}
	return res
}
