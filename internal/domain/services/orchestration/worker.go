package orchestration

import (
	"context"

	"labmate/internal/domain/models/orchestration"
)

// WorkerInput is what a worker receives for one invocation.
type WorkerInput struct {
	// State is a snapshot; mutations have no effect on the run.
	State *orchestration.ConversationState

	// PendingContext is the context accumulated by earlier steps of the plan.
	PendingContext map[string]any

	Plan []orchestration.WorkerName
	Step int
}

// WorkerResult is what a worker returns: a partial state update plus its output.
// A worker may return Raw (serialized output text) instead of Output; the
// dispatcher parses it and substitutes an error output when parsing fails.
type WorkerResult struct {
	Patch  orchestration.StatePatch
	Output *orchestration.WorkerOutput
	Raw    string
}

// Worker handles one category of user intent.
type Worker interface {
	Name() orchestration.WorkerName
	Handle(ctx context.Context, in WorkerInput) (WorkerResult, error)
}

// WorkerFunc adapts a plain function into a Worker.
type WorkerFunc struct {
	WorkerName orchestration.WorkerName
	Fn         func(ctx context.Context, in WorkerInput) (WorkerResult, error)
}

// Name implements Worker.
func (f WorkerFunc) Name() orchestration.WorkerName { return f.WorkerName }

// Handle implements Worker.
func (f WorkerFunc) Handle(ctx context.Context, in WorkerInput) (WorkerResult, error) {
	return f.Fn(ctx, in)
}

// WorkerRegistry resolves worker identifiers to implementations.
type WorkerRegistry interface {
	Get(name orchestration.WorkerName) (Worker, bool)
	Names() []orchestration.WorkerName
}
