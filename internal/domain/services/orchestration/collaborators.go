package orchestration

import (
	"context"

	"labmate/internal/domain/models/orchestration"
)

// Planner produces the ordered worker list for a user turn.
// Implementations may return unknown or empty plans; the orchestrator sanitizes them.
type Planner interface {
	Plan(ctx context.Context, state *orchestration.ConversationState) ([]orchestration.WorkerName, error)
}

// Retriever finds evidence for a query. It is consumed by the research worker only.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) (string, []orchestration.EvidenceItem, error)
}

// Completer is the narrow text-completion contract workers and planners use.
type Completer interface {
	Complete(ctx context.Context, system string, messages []orchestration.Message) (string, error)
}

// Polisher optionally rewrites the synthesized answer. Errors fall back to the input text.
type Polisher interface {
	Polish(ctx context.Context, state *orchestration.ConversationState, draft string) (string, error)
}

// EventSink receives orchestration events as a turn progresses.
// Emit must not block for long; transports buffer or drop as they see fit.
type EventSink interface {
	Emit(event orchestration.StreamEvent)
}

// EventSinkFunc adapts a function into an EventSink.
type EventSinkFunc func(event orchestration.StreamEvent)

// Emit implements EventSink.
func (f EventSinkFunc) Emit(event orchestration.StreamEvent) { f(event) }

// VerificationFlow is the identity verification sub-flow entered before
// workers that act on a customer's account.
type VerificationFlow interface {
	// Required reports whether worker may not run until the customer is verified.
	Required(state *orchestration.ConversationState, worker orchestration.WorkerName) bool

	// Question is the prompt asked when verification is required.
	Question() orchestration.Question

	// Verify checks the user's answer and returns the verified customer id.
	Verify(ctx context.Context, answer string) (string, error)

	// MaxAttempts bounds how often the question is re-asked.
	MaxAttempts() int
}
