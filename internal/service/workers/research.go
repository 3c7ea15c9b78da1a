package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// ResearchWorker looks up evidence in the document library.
type ResearchWorker struct {
	retriever services.Retriever
	topK      int
	logger    *slog.Logger
}

// NewResearchWorker creates a research worker. retriever may be nil, in which
// case every lookup is reported as partial.
func NewResearchWorker(retriever services.Retriever, topK int, logger *slog.Logger) *ResearchWorker {
	return &ResearchWorker{retriever: retriever, topK: topK, logger: logger}
}

// Name implements services.Worker.
func (w *ResearchWorker) Name() orchestration.WorkerName { return orchestration.WorkerResearch }

// Handle implements services.Worker.
func (w *ResearchWorker) Handle(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error) {
	query := request(in)
	if strings.TrimSpace(query) == "" {
		out := orchestration.NeedsContextOutput(w.Name(),
			[]string{"What topic or document should I look up?"}, "")
		return services.WorkerResult{Output: out}, nil
	}

	if w.retriever == nil {
		out := orchestration.NewOutput(w.Name(), "Document library unavailable",
			"The document library is not available right now, so this answer is not backed by lab documents.", 0.1)
		out.Status = orchestration.StatusPartial
		return services.WorkerResult{Output: out}, nil
	}

	summary, items, err := w.retriever.Retrieve(ctx, query, w.topK)
	if err != nil {
		return services.WorkerResult{}, fmt.Errorf("retrieve evidence: %w", err)
	}

	if len(items) == 0 {
		out := orchestration.NewOutput(w.Name(), "No matching documents",
			"I could not find lab documents matching this request.", 0.2)
		out.Status = orchestration.StatusPartial
		return services.WorkerResult{Output: out}, nil
	}

	if summary == "" {
		summary = fmt.Sprintf("Found %d relevant passage(s).", len(items))
	}
	var content strings.Builder
	content.WriteString(summary)
	content.WriteString("\n")
	best := 0.0
	for _, it := range items {
		fmt.Fprintf(&content, "\n- %s", it.Title)
		if it.Page != "" {
			fmt.Fprintf(&content, " (p. %s)", it.Page)
		}
		fmt.Fprintf(&content, ": %s", truncate(it.Chunk, 280))
		if it.Score > best {
			best = it.Score
		}
	}

	out := orchestration.NewOutput(w.Name(), summary, content.String(), best)
	out.Evidence = items

	w.logger.Debug("research complete", "thread_id", in.State.ThreadID, "results", len(items))
	return services.WorkerResult{
		Output: out,
		Patch: orchestration.StatePatch{
			PendingContext: orchestration.MergeMap(map[string]any{
				orchestration.ContextKeyRetrievalSummary: summary,
			}),
		},
	}, nil
}
