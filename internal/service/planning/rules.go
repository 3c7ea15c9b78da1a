// Package planning turns a user message into an ordered worker plan.
package planning

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

//go:embed rules/*.yaml
var ruleFiles embed.FS

// Intent maps keywords to a worker.
type Intent struct {
	Name     string                   `yaml:"name"`
	Worker   orchestration.WorkerName `yaml:"worker"`
	Keywords []string                 `yaml:"keywords"`
}

// WorkerInfo describes a worker for planners that need a catalogue.
type WorkerInfo struct {
	Description string `yaml:"description"`
}

// RuleSet is the parsed content of an intents file.
type RuleSet struct {
	Workers          map[orchestration.WorkerName]WorkerInfo `yaml:"workers"`
	Intents          []Intent                                `yaml:"intents"`
	EvidenceKeywords []string                                `yaml:"evidence_keywords"`
	DefaultWorker    orchestration.WorkerName                `yaml:"default_worker"`
}

// LoadDefaultRules parses the embedded intents file.
func LoadDefaultRules() (*RuleSet, error) {
	data, err := ruleFiles.ReadFile("rules/intents.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read rules/intents.yaml: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses and checks an intents document.
func ParseRules(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intents: %w", err)
	}
	for _, in := range rs.Intents {
		if !in.Worker.IsValid() {
			return nil, fmt.Errorf("intent %q: unknown worker %q", in.Name, in.Worker)
		}
		if len(in.Keywords) == 0 {
			return nil, fmt.Errorf("intent %q: no keywords", in.Name)
		}
	}
	if rs.DefaultWorker == "" {
		rs.DefaultWorker = orchestration.WorkerChat
	}
	if !rs.DefaultWorker.IsValid() {
		return nil, fmt.Errorf("unknown default worker %q", rs.DefaultWorker)
	}
	return &rs, nil
}

// Describe returns the catalogue description of a worker.
func (rs *RuleSet) Describe(w orchestration.WorkerName) string {
	if info, ok := rs.Workers[w]; ok {
		return info.Description
	}
	return ""
}

// RulePlanner classifies messages with keyword rules.
type RulePlanner struct {
	rules  *RuleSet
	logger *slog.Logger
}

var _ services.Planner = (*RulePlanner)(nil)

// NewRulePlanner creates a planner over rules.
func NewRulePlanner(rules *RuleSet, logger *slog.Logger) *RulePlanner {
	return &RulePlanner{rules: rules, logger: logger}
}

// Plan implements services.Planner.
func (p *RulePlanner) Plan(_ context.Context, state *orchestration.ConversationState) ([]orchestration.WorkerName, error) {
	plan, matched := p.Classify(state.LastUserMessage())
	p.logger.Debug("rule plan",
		"thread_id", state.ThreadID,
		"intents", matched,
		"plan", plan,
	)
	return plan, nil
}

// Classify returns the plan for message and the names of matched intents.
func (p *RulePlanner) Classify(message string) ([]orchestration.WorkerName, []string) {
	text := newMatchText(message)

	selected := make(map[orchestration.WorkerName]bool)
	var matched []string
	for _, in := range p.rules.Intents {
		if text.matchesAny(in.Keywords) {
			selected[in.Worker] = true
			matched = append(matched, in.Name)
		}
	}

	// Multi-hop: gather evidence first when a later worker should cite it.
	explainer := selected[orchestration.WorkerTutor] || selected[orchestration.WorkerTroubleshooting]
	bothExplainers := selected[orchestration.WorkerTutor] && selected[orchestration.WorkerTroubleshooting]
	if explainer && (bothExplainers || text.matchesAny(p.rules.EvidenceKeywords)) {
		selected[orchestration.WorkerResearch] = true
		matched = append(matched, "evidence")
	}

	plan := make([]orchestration.WorkerName, 0, len(selected))
	for _, w := range orchestration.AllWorkers() {
		if selected[w] {
			plan = append(plan, w)
		}
	}
	if len(plan) == 0 {
		plan = append(plan, p.rules.DefaultWorker)
	}
	return plan, matched
}

// matchText is a normalized message ready for keyword matching.
type matchText struct {
	tokens map[string]bool
	joined string
}

func newMatchText(message string) matchText {
	fields := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'')
	})
	tokens := make(map[string]bool, len(fields))
	for _, f := range fields {
		tokens[f] = true
	}
	return matchText{tokens: tokens, joined: " " + strings.Join(fields, " ") + " "}
}

func (m matchText) matchesAny(keywords []string) bool {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(kw, " ") {
			if strings.Contains(m.joined, " "+kw+" ") {
				return true
			}
			continue
		}
		if m.tokens[kw] {
			return true
		}
	}
	return false
}
