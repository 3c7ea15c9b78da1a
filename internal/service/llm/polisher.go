package llm

import (
	"context"
	"fmt"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

const polishInstructions = `You are the final editor of a lab assistant's answer.
Rewrite the draft below into one coherent reply. Keep every fact, keep the
section attributions and keep the numbered sources list exactly as written.
Do not add new facts. Reply with the rewritten answer only.`

// CompleterPolisher rewrites synthesized answers with an LLM.
type CompleterPolisher struct {
	completer services.Completer
}

var _ services.Polisher = (*CompleterPolisher)(nil)

// NewPolisher creates a polisher backed by completer
func NewPolisher(completer services.Completer) *CompleterPolisher {
	return &CompleterPolisher{completer: completer}
}

// Polish implements services.Polisher
func (p *CompleterPolisher) Polish(ctx context.Context, state *orchestration.ConversationState, draft string) (string, error) {
	msgs := []orchestration.Message{
		{Role: orchestration.RoleUser, Content: state.LastUserMessage()},
		{Role: orchestration.RoleAssistant, Content: draft},
	}
	out, err := p.completer.Complete(ctx, polishInstructions, msgs)
	if err != nil {
		return "", fmt.Errorf("polish answer: %w", err)
	}
	return out, nil
}
