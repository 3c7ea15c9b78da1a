package planning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// historyWindow is how many recent messages the LLM planner sees.
const historyWindow = 6

// LLMPlanner asks a language model for the plan and falls back to another
// planner when the model fails or answers with something unusable.
type LLMPlanner struct {
	completer services.Completer
	rules     *RuleSet
	fallback  services.Planner
	logger    *slog.Logger
}

var _ services.Planner = (*LLMPlanner)(nil)

// NewLLMPlanner creates an LLM planner. rules supplies the worker catalogue.
func NewLLMPlanner(completer services.Completer, rules *RuleSet, fallback services.Planner, logger *slog.Logger) *LLMPlanner {
	return &LLMPlanner{
		completer: completer,
		rules:     rules,
		fallback:  fallback,
		logger:    logger,
	}
}

type llmPlan struct {
	Plan   []string `json:"plan"`
	Reason string   `json:"reason"`
}

// Plan implements services.Planner.
func (p *LLMPlanner) Plan(ctx context.Context, state *orchestration.ConversationState) ([]orchestration.WorkerName, error) {
	history := state.Messages
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	text, err := p.completer.Complete(ctx, p.instructions(), history)
	if err != nil {
		p.logger.Warn("llm planner failed, using fallback", "thread_id", state.ThreadID, "error", err)
		return p.fallback.Plan(ctx, state)
	}

	plan, err := ParsePlan(text)
	if err != nil {
		p.logger.Warn("llm planner returned an unusable plan, using fallback",
			"thread_id", state.ThreadID,
			"error", err,
		)
		return p.fallback.Plan(ctx, state)
	}

	p.logger.Debug("llm plan", "thread_id", state.ThreadID, "plan", plan)
	return plan, nil
}

func (p *LLMPlanner) instructions() string {
	var b strings.Builder
	b.WriteString("You route requests in a laboratory assistant. Choose the workers that should handle the latest user message, in execution order.\n\nWorkers:\n")
	for _, w := range orchestration.AllWorkers() {
		fmt.Fprintf(&b, "- %s: %s\n", w, p.rules.Describe(w))
	}
	b.WriteString("\nUse research before tutor or troubleshooting when the answer should cite lab documents. ")
	b.WriteString("Use a single worker for simple requests.\n")
	b.WriteString(`Answer with JSON only, for example {"plan": ["research", "tutor"], "reason": "needs citations"}.`)
	return b.String()
}

// ParsePlan extracts a plan from model output. The JSON object may be wrapped
// in prose or a code fence. Unknown workers are an error, as is an empty plan.
func ParsePlan(text string) ([]orchestration.WorkerName, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in planner output")
	}

	var raw llmPlan
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("decode planner output: %w", err)
	}
	if len(raw.Plan) == 0 {
		return nil, fmt.Errorf("planner returned an empty plan")
	}

	plan := make([]orchestration.WorkerName, 0, len(raw.Plan))
	for _, s := range raw.Plan {
		w, ok := orchestration.ParseWorkerName(strings.ToLower(strings.TrimSpace(s)))
		if !ok {
			return nil, fmt.Errorf("planner returned unknown worker %q", s)
		}
		plan = append(plan, w)
	}
	return plan, nil
}
