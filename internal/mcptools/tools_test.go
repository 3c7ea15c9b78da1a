package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
	orch "labmate/internal/service/orchestration"
)

// fakeThreads records requests and returns canned results.
type fakeThreads struct {
	runReq    *orch.RunRequest
	resumeReq *orch.ResumeRequest
	result    *orch.TurnResult
	state     *orchestration.ConversationState
	err       error
}

func (f *fakeThreads) GetThread(_ context.Context, threadID string) (*orchestration.ConversationState, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func (f *fakeThreads) Run(_ context.Context, req *orch.RunRequest, _ services.EventSink) (*orch.TurnResult, error) {
	f.runReq = req
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.ThreadID = req.ThreadID
	return &res, nil
}

func (f *fakeThreads) Resume(_ context.Context, req *orch.ResumeRequest, _ services.EventSink) (*orch.TurnResult, error) {
	f.resumeReq = req
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.ThreadID = req.ThreadID
	return &res, nil
}

func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustNotError(t *testing.T, r *mcp.CallToolResult, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
}

func mustBeToolError(t *testing.T, r *mcp.CallToolResult, err error, wantSubstr string) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !r.IsError {
		t.Fatalf("expected tool error containing %q, got success: %s", wantSubstr, resultText(r))
	}
	if wantSubstr != "" && !strings.Contains(resultText(r), wantSubstr) {
		t.Errorf("error text %q does not contain %q", resultText(r), wantSubstr)
	}
}

var testTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

var troubleshootingQuestions = []orchestration.Question{
	{ID: "equipment", Text: "Which instrument?", Type: orchestration.QuestionText, Required: true},
	{ID: "symptom", Text: "What happens?", Type: orchestration.QuestionChoice, Options: []string{"No power", "Alarm"}, Required: true},
	{ID: "recent_change", Text: "Anything changed?", Type: orchestration.QuestionConfirm},
}

func TestSendMessageTool_Definition(t *testing.T) {
	def := NewSendMessageTool(&fakeThreads{}).Definition()
	if def.Name != "send_message" {
		t.Errorf("Name = %q", def.Name)
	}
	if len(def.InputSchema.Required) != 1 || def.InputSchema.Required[0] != "message" {
		t.Errorf("Required = %v, want [message]", def.InputSchema.Required)
	}
}

func TestSendMessageTool_Handle(t *testing.T) {
	t.Run("answer", func(t *testing.T) {
		threads := &fakeThreads{result: &orch.TurnResult{Done: true, Message: "Centrifuges separate by density."}}
		tool := NewSendMessageTool(threads)

		r, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
			"message":        "  explain centrifuges  ",
			"thread_id":      "t1",
			"learning_style": "visual",
		}))
		mustNotError(t, r, err)

		if threads.runReq.Message != "explain centrifuges" {
			t.Errorf("message = %q, want trimmed", threads.runReq.Message)
		}
		if threads.runReq.LearningStyle != "visual" {
			t.Errorf("learning style = %q", threads.runReq.LearningStyle)
		}
		text := resultText(r)
		if !strings.Contains(text, "thread_id: t1") || !strings.Contains(text, "Centrifuges separate by density.") {
			t.Errorf("unexpected text: %s", text)
		}
	})

	t.Run("new thread id when omitted", func(t *testing.T) {
		threads := &fakeThreads{result: &orch.TurnResult{Done: true, Message: "hi"}}
		r, err := NewSendMessageTool(threads).Handle(context.Background(), makeReq(map[string]interface{}{"message": "hello"}))
		mustNotError(t, r, err)
		if threads.runReq.ThreadID == "" {
			t.Fatal("expected a generated thread id")
		}
	})

	t.Run("questions", func(t *testing.T) {
		threads := &fakeThreads{result: &orch.TurnResult{
			AwaitingHuman: true,
			Reason:        "symptom description too short to diagnose",
			Questions:     troubleshootingQuestions,
		}}
		r, err := NewSendMessageTool(threads).Handle(context.Background(), makeReq(map[string]interface{}{
			"message": "it is broken", "thread_id": "t1",
		}))
		mustNotError(t, r, err)

		text := resultText(r)
		for _, want := range []string{
			"answer_questions",
			"(symptom description too short to diagnose)",
			"- equipment: Which instrument?",
			"[1) No power, 2) Alarm]",
			"[yes/no] (optional)",
		} {
			if !strings.Contains(text, want) {
				t.Errorf("text missing %q:\n%s", want, text)
			}
		}
	})

	t.Run("missing message", func(t *testing.T) {
		r, err := NewSendMessageTool(&fakeThreads{}).Handle(context.Background(), makeReq(map[string]interface{}{}))
		mustBeToolError(t, r, err, "message is required")
	})

	t.Run("pending interrupt", func(t *testing.T) {
		threads := &fakeThreads{err: fmt.Errorf("thread t1: %w", domain.ErrInterruptPending)}
		r, err := NewSendMessageTool(threads).Handle(context.Background(), makeReq(map[string]interface{}{
			"message": "hello", "thread_id": "t1",
		}))
		mustBeToolError(t, r, err, "waiting for clarification")
	})

	t.Run("internal failure is a Go error", func(t *testing.T) {
		threads := &fakeThreads{err: errors.New("disk full")}
		_, err := NewSendMessageTool(threads).Handle(context.Background(), makeReq(map[string]interface{}{
			"message": "hello", "thread_id": "t1",
		}))
		if err == nil {
			t.Fatal("expected Go error")
		}
	})
}

func TestAnswerQuestionsTool_Handle(t *testing.T) {
	t.Run("decodes answers", func(t *testing.T) {
		threads := &fakeThreads{result: &orch.TurnResult{Done: true, Message: "Check the rotor."}}
		r, err := NewAnswerQuestionsTool(threads).Handle(context.Background(), makeReq(map[string]interface{}{
			"thread_id": "t1",
			"answers":   `{"equipment":"centrifuge","symptom":"2"}`,
		}))
		mustNotError(t, r, err)

		if got := threads.resumeReq.Answers["symptom"]; got != "2" {
			t.Errorf("symptom = %q", got)
		}
		if !strings.Contains(resultText(r), "Check the rotor.") {
			t.Errorf("unexpected text: %s", resultText(r))
		}
	})

	tests := []struct {
		name string
		args map[string]interface{}
		err  error
		want string
	}{
		{name: "missing thread", args: map[string]interface{}{"answers": "{}"}, want: "thread_id is required"},
		{name: "bad JSON", args: map[string]interface{}{"thread_id": "t1", "answers": "centrifuge"}, want: "JSON object"},
		{name: "not a string map", args: map[string]interface{}{"thread_id": "t1", "answers": `{"q1": 3}`}, want: "JSON object"},
		{
			name: "no pending interrupt",
			args: map[string]interface{}{"thread_id": "t1", "answers": "{}"},
			err:  fmt.Errorf("thread t1: %w", domain.ErrNoPendingInterrupt),
			want: "no pending",
		},
		{
			name: "invalid answer",
			args: map[string]interface{}{"thread_id": "t1", "answers": `{"symptom":"smoke"}`},
			err:  &domain.ValidationError{Message: "symptom: must be one of the options"},
			want: "symptom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threads := &fakeThreads{err: tt.err, result: &orch.TurnResult{}}
			r, err := NewAnswerQuestionsTool(threads).Handle(context.Background(), makeReq(tt.args))
			mustBeToolError(t, r, err, tt.want)
		})
	}
}

func TestGetThreadTool_Handle(t *testing.T) {
	state := orchestration.NewConversationState("t1", testTime)
	state.Messages = append(state.Messages, orchestration.Message{Role: orchestration.RoleUser, Content: "it is broken"})
	state.Phase = orchestration.PhaseAwaitingHuman
	state.Interrupt = &orchestration.InterruptInfo{Reason: "symptoms"}
	state.ClarificationQuestions = troubleshootingQuestions
	state.RollingSummary = "User reported a broken centrifuge."

	r, err := NewGetThreadTool(&fakeThreads{state: state}).Handle(context.Background(), makeReq(map[string]interface{}{"thread_id": "t1"}))
	mustNotError(t, r, err)

	text := resultText(r)
	for _, want := range []string{
		"# Thread t1",
		"(waiting for answers)",
		"**Summary:** User reported a broken centrifuge.",
		"**user:** it is broken",
		"## Pending questions",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text missing %q:\n%s", want, text)
		}
	}

	r, err = NewGetThreadTool(&fakeThreads{err: &domain.NotFoundError{Message: "thread nope not found"}}).
		Handle(context.Background(), makeReq(map[string]interface{}{"thread_id": "nope"}))
	mustBeToolError(t, r, err, "not found")
}

func TestNewServer(t *testing.T) {
	if s := NewServer(&fakeThreads{}); s == nil {
		t.Fatal("NewServer returned nil")
	}
}
