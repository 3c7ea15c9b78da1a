package orchestration

import (
	"encoding/json"
	"time"
)

// Phase is the state machine position persisted with every checkpoint.
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseExecuting     Phase = "executing"
	PhaseRouting       Phase = "routing"
	PhaseAwaitingHuman Phase = "awaiting_human"
	PhaseSynthesizing  Phase = "synthesizing"
	PhaseDone          Phase = "done"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// SummaryPrefix marks the pointer message that replaces compacted history.
const SummaryPrefix = "[summary] "

// Stable pending_context keys shared between workers and the orchestrator.
const (
	ContextKeyRequest          = "request"
	ContextKeyEvidence         = "evidence"
	ContextKeyPriorSummaries   = "prior_summaries"
	ContextKeyClarification    = "user_clarification"
	ContextKeyVerifiedCustomer = "verified_customer_id"
	ContextKeyClarifyCancelled = "clarification_cancelled"
	ContextKeyRetrievalSummary = "retrieval_summary"
	ContextKeyFollowUp         = "follow_up_worker"
)

// ResumeTarget says where execution continues once the user answers.
type ResumeTarget string

const (
	ResumePlan         ResumeTarget = "plan"
	ResumeVerification ResumeTarget = "verification"
)

// QuestionMode selects how clarification questions are delivered.
type QuestionMode string

const (
	QuestionModeBatch  QuestionMode = "batch"
	QuestionModeWizard QuestionMode = "wizard"
)

// Message is one conversation turn.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEvent is an entry of the observability log kept in state.
// The orchestrator never reads it for control flow.
type AuditEvent struct {
	Type   string    `json:"type"`
	Worker string    `json:"worker,omitempty"`
	Detail string    `json:"detail,omitempty"`
	Step   int       `json:"step"`
	At     time.Time `json:"at"`
}

// InterruptInfo records why a run suspended and where it resumes.
type InterruptInfo struct {
	Reason    string       `json:"reason"`
	Worker    WorkerName   `json:"worker,omitempty"`
	ResumeTo  ResumeTarget `json:"resume_to"`
	Mode      QuestionMode `json:"mode"`
	Attempts  int          `json:"attempts,omitempty"`
	Wizard    *WizardState `json:"wizard,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// ConversationState is the single record threaded through a run and
// persisted between turns. Every field has a usable zero value.
type ConversationState struct {
	ThreadID string `json:"thread_id"`

	Messages []Message    `json:"messages"`
	Events   []AuditEvent `json:"events"`

	Next  string `json:"next"`
	Done  bool   `json:"done"`
	Phase Phase  `json:"phase"`

	OrchestrationPlan []WorkerName `json:"orchestration_plan"`
	CurrentStep       int          `json:"current_step"`

	WorkerOutputs  []WorkerOutput `json:"worker_outputs"`
	PendingContext map[string]any `json:"pending_context"`

	NeedsHumanInput        bool           `json:"needs_human_input"`
	ClarificationQuestions []Question     `json:"clarification_questions"`
	Interrupt              *InterruptInfo `json:"interrupt,omitempty"`

	RollingSummary string `json:"rolling_summary"`
	WindowCount    int    `json:"window_count"`

	TaskType      string `json:"task_type"`
	UserName      string `json:"user_name"`
	CustomerID    string `json:"customer_id"`
	LearningStyle string `json:"learning_style"`

	// LegacyResults holds the last serialized output per worker,
	// independent of the WorkerOutputs history.
	LegacyResults map[WorkerName]string `json:"legacy_results"`

	FinalMessage string `json:"final_message"`

	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState returns an empty state for threadID.
func NewConversationState(threadID string, now time.Time) *ConversationState {
	return &ConversationState{
		ThreadID:       threadID,
		Messages:       []Message{},
		Events:         []AuditEvent{},
		Phase:          PhaseDone,
		WorkerOutputs:  []WorkerOutput{},
		PendingContext: map[string]any{},
		LegacyResults:  map[WorkerName]string{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// EnsureDefaults fills nil collections after decoding an older checkpoint.
func (s *ConversationState) EnsureDefaults() {
	if s.Messages == nil {
		s.Messages = []Message{}
	}
	if s.Events == nil {
		s.Events = []AuditEvent{}
	}
	if s.WorkerOutputs == nil {
		s.WorkerOutputs = []WorkerOutput{}
	}
	if s.PendingContext == nil {
		s.PendingContext = map[string]any{}
	}
	if s.LegacyResults == nil {
		s.LegacyResults = map[WorkerName]string{}
	}
	if s.Phase == "" {
		s.Phase = PhaseDone
	}
}

// Clone returns a deep copy made through the persisted JSON form, so the copy
// looks exactly like a state reloaded from a checkpoint.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		// Only unsupported values in PendingContext can fail; fall back to a shallow copy.
		cp := *s
		return &cp
	}
	var cp ConversationState
	if err := json.Unmarshal(data, &cp); err != nil {
		c := *s
		return &c
	}
	cp.EnsureDefaults()
	return &cp
}

// RemainingPlan returns the planned workers that have not run yet.
func (s *ConversationState) RemainingPlan() []WorkerName {
	if s.CurrentStep >= len(s.OrchestrationPlan) {
		return nil
	}
	return s.OrchestrationPlan[s.CurrentStep:]
}

// LastUserMessage returns the content of the most recent user message.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// AwaitingHuman reports whether the thread is suspended on a clarification.
func (s *ConversationState) AwaitingHuman() bool {
	return s.Phase == PhaseAwaitingHuman && s.Interrupt != nil
}

// Record appends an audit event.
func (s *ConversationState) Record(eventType string, worker WorkerName, detail string, at time.Time) {
	s.Events = append(s.Events, AuditEvent{
		Type:   eventType,
		Worker: string(worker),
		Detail: detail,
		Step:   s.CurrentStep,
		At:     at,
	})
}
