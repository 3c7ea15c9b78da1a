package orchestration

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MergeOp is the tagged merge operation carried by an accumulating patch field.
type MergeOp uint8

const (
	// OpKeep leaves the state field untouched. It is the zero value.
	OpKeep MergeOp = iota
	// OpReset clears the state field.
	OpReset
	// OpMerge appends (lists) or shallow-merges (maps) the carried value.
	OpMerge
)

func (op MergeOp) String() string {
	switch op {
	case OpReset:
		return "reset"
	case OpMerge:
		return "merge"
	default:
		return "keep"
	}
}

// ListField is a patch field for an accumulating list.
// JSON form follows the checkpoint wire convention:
//   - absent or null: Keep
//   - []: Reset
//   - non-empty array: Merge
type ListField[T any] struct {
	Op    MergeOp
	Items []T
}

// ResetList returns a field that clears the list.
func ResetList[T any]() ListField[T] {
	return ListField[T]{Op: OpReset}
}

// MergeList returns a field that appends items. Merging nothing is a Keep.
func MergeList[T any](items ...T) ListField[T] {
	if len(items) == 0 {
		return ListField[T]{}
	}
	return ListField[T]{Op: OpMerge, Items: items}
}

// MarshalJSON implements json.Marshaler.
func (f ListField[T]) MarshalJSON() ([]byte, error) {
	switch f.Op {
	case OpReset:
		return []byte("[]"), nil
	case OpMerge:
		return json.Marshal(f.Items)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
// It is only called when the key is present in the JSON document.
func (f *ListField[T]) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*f = ListField[T]{}
		return nil
	}
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		*f = ResetList[T]()
		return nil
	}
	*f = ListField[T]{Op: OpMerge, Items: items}
	return nil
}

// MapField is a patch field for pending_context.
// JSON form: absent or null is Keep, {} is Reset, a non-empty object is a shallow Merge.
type MapField struct {
	Op     MergeOp
	Values map[string]any
}

// ResetMap returns a field that clears the map.
func ResetMap() MapField {
	return MapField{Op: OpReset}
}

// MergeMap returns a field that shallow-merges values. Merging nothing is a Keep.
func MergeMap(values map[string]any) MapField {
	if len(values) == 0 {
		return MapField{}
	}
	return MapField{Op: OpMerge, Values: values}
}

// MarshalJSON implements json.Marshaler.
func (f MapField) MarshalJSON() ([]byte, error) {
	switch f.Op {
	case OpReset:
		return []byte("{}"), nil
	case OpMerge:
		return json.Marshal(f.Values)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *MapField) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*f = MapField{}
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	if len(values) == 0 {
		*f = ResetMap()
		return nil
	}
	*f = MapField{Op: OpMerge, Values: values}
	return nil
}

// Value is an optional scalar patch field: set or keep.
type Value[T any] struct {
	set bool
	v   T
}

// Set returns a field that overwrites the state value with v.
func Set[T any](v T) Value[T] {
	return Value[T]{set: true, v: v}
}

// IsSet reports whether the field carries a value.
func (f Value[T]) IsSet() bool { return f.set }

// Get returns the carried value and whether it is set.
func (f Value[T]) Get() (T, bool) { return f.v, f.set }

// MarshalJSON implements json.Marshaler.
func (f Value[T]) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.v)
}

// UnmarshalJSON implements json.Unmarshaler. JSON null keeps the state value.
func (f *Value[T]) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*f = Value[T]{}
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Set(v)
	return nil
}

// StatePatch is a partial update returned by a worker.
//
// Plan, step pointer, routing and terminal fields are absent:
// only the orchestrator moves those.
type StatePatch struct {
	Messages       ListField[Message]      `json:"messages"`
	Events         ListField[AuditEvent]   `json:"events"`
	WorkerOutputs  ListField[WorkerOutput] `json:"worker_outputs"`
	PendingContext MapField                `json:"pending_context"`

	NeedsHumanInput        Value[bool]       `json:"needs_human_input"`
	ClarificationQuestions Value[[]Question] `json:"clarification_questions"`
	RollingSummary         Value[string]     `json:"rolling_summary"`
	WindowCount            Value[int]        `json:"window_count"`
}

// IsEmpty reports whether applying the patch would change nothing.
func (p StatePatch) IsEmpty() bool {
	return p.Messages.Op == OpKeep &&
		p.Events.Op == OpKeep &&
		p.WorkerOutputs.Op == OpKeep &&
		p.PendingContext.Op == OpKeep &&
		!p.NeedsHumanInput.IsSet() &&
		!p.ClarificationQuestions.IsSet() &&
		!p.RollingSummary.IsSet() &&
		!p.WindowCount.IsSet()
}

// DecodePatch parses a JSON patch document.
func DecodePatch(data []byte) (StatePatch, error) {
	var p StatePatch
	if err := json.Unmarshal(data, &p); err != nil {
		return StatePatch{}, fmt.Errorf("decode state patch: %w", err)
	}
	return p, nil
}

// Apply merges patch into state. It is the only place where patch semantics live.
// Messages and Events are append-only, so a Reset on them is ignored.
func Apply(state *ConversationState, patch StatePatch) {
	state.EnsureDefaults()

	if patch.Messages.Op == OpMerge {
		state.Messages = append(state.Messages, patch.Messages.Items...)
	}
	if patch.Events.Op == OpMerge {
		state.Events = append(state.Events, patch.Events.Items...)
	}

	switch patch.WorkerOutputs.Op {
	case OpReset:
		state.WorkerOutputs = []WorkerOutput{}
	case OpMerge:
		state.WorkerOutputs = MergeWorkerOutputs(state.WorkerOutputs, patch.WorkerOutputs.Items)
	}

	switch patch.PendingContext.Op {
	case OpReset:
		state.PendingContext = map[string]any{}
	case OpMerge:
		for k, v := range patch.PendingContext.Values {
			state.PendingContext[k] = v
		}
	}

	if v, ok := patch.NeedsHumanInput.Get(); ok {
		state.NeedsHumanInput = v
	}
	if v, ok := patch.ClarificationQuestions.Get(); ok {
		state.ClarificationQuestions = v
	}
	if v, ok := patch.RollingSummary.Get(); ok {
		state.RollingSummary = v
	}
	if v, ok := patch.WindowCount.Get(); ok {
		state.WindowCount = v
	}
}

// MergeWorkerOutputs appends incoming outputs to existing, keeping only the
// first output seen for each task id.
func MergeWorkerOutputs(existing, incoming []WorkerOutput) []WorkerOutput {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]WorkerOutput, 0, len(existing)+len(incoming))
	for _, list := range [][]WorkerOutput{existing, incoming} {
		for _, out := range list {
			if _, dup := seen[out.TaskID]; dup {
				continue
			}
			seen[out.TaskID] = struct{}{}
			merged = append(merged, out)
		}
	}
	return merged
}

// PriorSummary is one entry of pending_context["prior_summaries"].
type PriorSummary struct {
	Worker  WorkerName `json:"worker"`
	Summary string     `json:"summary"`
}

// ClarificationAnswer is one entry of pending_context["user_clarification"].
type ClarificationAnswer struct {
	QuestionID string `json:"question_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
}

// ContextEvidence returns the cumulative evidence stored in pending context.
func ContextEvidence(pc map[string]any) []EvidenceItem {
	return contextList[EvidenceItem](pc, ContextKeyEvidence)
}

// ContextSummaries returns the cumulative worker summaries stored in pending context.
func ContextSummaries(pc map[string]any) []PriorSummary {
	return contextList[PriorSummary](pc, ContextKeyPriorSummaries)
}

// ContextClarifications returns every answer the user gave during this turn.
func ContextClarifications(pc map[string]any) []ClarificationAnswer {
	return contextList[ClarificationAnswer](pc, ContextKeyClarification)
}

// ContextString returns a string value from pending context.
func ContextString(pc map[string]any, key string) string {
	s, _ := pc[key].(string)
	return s
}

// contextList reads a typed list from pending context. Values put there in
// process keep their Go type; values restored from a checkpoint come back as
// generic JSON and are re-decoded.
func contextList[T any](pc map[string]any, key string) []T {
	raw, ok := pc[key]
	if !ok || raw == nil {
		return nil
	}
	if typed, ok := raw.([]T); ok {
		out := make([]T, len(typed))
		copy(out, typed)
		return out
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// AppendEvidence adds items to existing, skipping items already cited
// (same source id, title and page).
func AppendEvidence(existing, items []EvidenceItem) []EvidenceItem {
	key := func(e EvidenceItem) string {
		return e.SourceID + "\x00" + e.Title + "\x00" + e.Page
	}
	seen := make(map[string]struct{}, len(existing)+len(items))
	out := make([]EvidenceItem, 0, len(existing)+len(items))
	for _, list := range [][]EvidenceItem{existing, items} {
		for _, e := range list {
			k := key(e)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}
