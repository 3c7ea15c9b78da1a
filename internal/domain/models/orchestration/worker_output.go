package orchestration

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// OutputStatus drives orchestrator routing after a worker returns.
type OutputStatus string

const (
	StatusOK           OutputStatus = "ok"
	StatusNeedsContext OutputStatus = "needs_context"
	StatusPartial      OutputStatus = "partial"
	StatusError        OutputStatus = "error"
)

// ActionType is the kind of follow-up a worker suggests.
type ActionType string

const (
	ActionAskUser    ActionType = "ask_user"
	ActionCallWorker ActionType = "call_worker"
	ActionCallTool   ActionType = "call_tool"
	ActionEnd        ActionType = "end"
)

// Severity classifies an ErrorItem.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// EvidenceItem is a cited fragment of retrieved source material.
type EvidenceItem struct {
	SourceID string  `json:"source_id"`
	Title    string  `json:"title"`
	Chunk    string  `json:"chunk"`
	Page     string  `json:"page,omitempty"`
	Score    float64 `json:"score"`
}

// ActionItem is an advisory suggestion from a worker to the orchestrator.
type ActionItem struct {
	Type     ActionType     `json:"type"`
	Target   string         `json:"target,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Priority int            `json:"priority"`
}

// ErrorItem describes a problem a worker ran into.
type ErrorItem struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Recoverable bool     `json:"recoverable"`
}

// OutputMetadata is execution bookkeeping. It is never read for control flow.
type OutputMetadata struct {
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
	Model        string    `json:"model,omitempty"`
	ProcessingMS int64     `json:"processing_ms,omitempty"`
	Retries      int       `json:"retries,omitempty"`
}

// WorkerOutput is the result every worker produces for a single invocation.
// It is treated as immutable once returned by the dispatcher.
type WorkerOutput struct {
	Worker                 WorkerName     `json:"worker"`
	TaskID                 string         `json:"task_id"`
	Status                 OutputStatus   `json:"status"`
	Summary                string         `json:"summary"`
	Content                string         `json:"content"`
	Evidence               []EvidenceItem `json:"evidence"`
	NextActions            []ActionItem   `json:"next_actions"`
	ClarificationQuestions []string       `json:"clarification_questions"`
	Errors                 []ErrorItem    `json:"errors"`
	Confidence             float64        `json:"confidence"`
	Metadata               OutputMetadata `json:"metadata"`
}

// Validate implements validation.Validatable for EvidenceItem.
func (e EvidenceItem) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Score, validation.Min(0.0), validation.Max(1.0)),
	)
}

// Validate implements validation.Validatable for ActionItem.
func (a ActionItem) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Type, validation.Required,
			validation.In(ActionAskUser, ActionCallWorker, ActionCallTool, ActionEnd)),
	)
}

// Validate implements validation.Validatable for ErrorItem.
func (e ErrorItem) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Code, validation.Required),
		validation.Field(&e.Severity, validation.Required,
			validation.In(SeverityWarning, SeverityError, SeverityCritical)),
	)
}

// Validate checks the output against the worker contract schema.
func (o *WorkerOutput) Validate() error {
	return validation.ValidateStruct(o,
		validation.Field(&o.Worker, validation.Required, validation.By(validWorker)),
		validation.Field(&o.TaskID, validation.Required),
		validation.Field(&o.Status, validation.Required,
			validation.In(StatusOK, StatusNeedsContext, StatusPartial, StatusError)),
		validation.Field(&o.Confidence, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&o.Evidence),
		validation.Field(&o.NextActions),
		validation.Field(&o.Errors),
	)
}

func validWorker(value interface{}) error {
	w, _ := value.(WorkerName)
	if !w.IsValid() {
		return fmt.Errorf("unknown worker %q", w)
	}
	return nil
}

// Serialize converts an output to its transport-safe JSON text form.
func Serialize(o *WorkerOutput) (string, error) {
	if o == nil {
		return "", fmt.Errorf("serialize worker output: nil output")
	}
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("serialize worker output: %w", err)
	}
	return string(data), nil
}

// Parse converts serialized text back into a WorkerOutput.
// It never fails loudly: invalid JSON or a schema violation yields (nil, false),
// and callers must substitute an error output.
func Parse(text string) (*WorkerOutput, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	var out WorkerOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, false
	}
	if err := out.Validate(); err != nil {
		return nil, false
	}
	out.normalize()
	return &out, true
}

// normalize replaces nil slices with empty ones so serialized outputs are stable.
func (o *WorkerOutput) normalize() {
	if o.Evidence == nil {
		o.Evidence = []EvidenceItem{}
	}
	if o.NextActions == nil {
		o.NextActions = []ActionItem{}
	}
	if o.ClarificationQuestions == nil {
		o.ClarificationQuestions = []string{}
	}
	if o.Errors == nil {
		o.Errors = []ErrorItem{}
	}
}

// NewTaskID returns a unique task identifier for one worker invocation.
func NewTaskID(worker WorkerName) string {
	return fmt.Sprintf("%s-%s", worker, uuid.NewString())
}

// NewOutput builds an ok output with a fresh task id.
func NewOutput(worker WorkerName, summary, content string, confidence float64) *WorkerOutput {
	out := &WorkerOutput{
		Worker:     worker,
		TaskID:     NewTaskID(worker),
		Status:     StatusOK,
		Summary:    summary,
		Content:    content,
		Confidence: confidence,
	}
	out.normalize()
	return out
}

// ErrorOutput builds a well-formed error output for worker.
func ErrorOutput(worker WorkerName, code, message string) *WorkerOutput {
	out := &WorkerOutput{
		Worker:  worker,
		TaskID:  NewTaskID(worker),
		Status:  StatusError,
		Summary: message,
		Errors: []ErrorItem{{
			Code:        code,
			Message:     message,
			Severity:    SeverityError,
			Recoverable: true,
		}},
		Confidence: 0,
	}
	out.normalize()
	return out
}

// NeedsContextOutput builds an output asking the orchestrator to pause for user input.
func NeedsContextOutput(worker WorkerName, questions []string, partialContent string) *WorkerOutput {
	qs := make([]string, 0, len(questions))
	for _, q := range questions {
		if q = strings.TrimSpace(q); q != "" {
			qs = append(qs, q)
		}
	}

	out := &WorkerOutput{
		Worker:                 worker,
		TaskID:                 NewTaskID(worker),
		Status:                 StatusNeedsContext,
		Summary:                fmt.Sprintf("%s needs more information", worker),
		Content:                partialContent,
		ClarificationQuestions: qs,
		NextActions: []ActionItem{{
			Type:     ActionAskUser,
			Reason:   "missing context",
			Priority: 1,
		}},
		Confidence: 0.3,
	}
	out.normalize()
	return out
}

// HasErrors reports whether the output carries any error item.
func (o *WorkerOutput) HasErrors() bool {
	return len(o.Errors) > 0
}

// FirstError returns the first error message or an empty string.
func (o *WorkerOutput) FirstError() string {
	if len(o.Errors) == 0 {
		return ""
	}
	return o.Errors[0].Message
}

// WantsEnd reports whether the worker suggested ending the plan with a non-zero priority.
func (o *WorkerOutput) WantsEnd() bool {
	for _, a := range o.NextActions {
		if a.Type == ActionEnd && a.Priority >= 1 {
			return true
		}
	}
	return false
}
