package workers

import (
	"fmt"
	"log/slog"

	services "labmate/internal/domain/services/orchestration"
)

// Dependencies are the collaborators injected into the built-in workers.
// Nil collaborators switch workers to their built-in behaviour.
type Dependencies struct {
	Completer services.Completer
	Retriever services.Retriever
	TopK      int
	Logger    *slog.Logger
}

// NewDefaultRegistry registers all five built-in workers.
func NewDefaultRegistry(deps Dependencies) (*Registry, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := NewRegistry()
	for _, w := range []services.Worker{
		NewChatWorker(deps.Completer, logger.With("worker", "chat")),
		NewResearchWorker(deps.Retriever, deps.TopK, logger.With("worker", "research")),
		NewTutorWorker(deps.Completer, logger.With("worker", "tutor")),
		NewTroubleshootingWorker(deps.Completer, logger.With("worker", "troubleshooting")),
		NewSummarizerWorker(deps.Completer, logger.With("worker", "summarizer")),
	} {
		if err := r.Register(w); err != nil {
			return nil, fmt.Errorf("register worker: %w", err)
		}
	}
	return r, nil
}
