package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"labmate/internal/domain"
	orch "labmate/internal/service/orchestration"
)

// SendMessageTool handles the send_message MCP tool.
type SendMessageTool struct {
	threads Threads
}

// NewSendMessageTool creates a SendMessageTool.
func NewSendMessageTool(threads Threads) *SendMessageTool {
	return &SendMessageTool{threads: threads}
}

// Definition returns the MCP tool definition for registration.
func (t *SendMessageTool) Definition() mcp.Tool {
	return mcp.NewTool("send_message",
		mcp.WithDescription(
			"Send a message to the lab assistant and get its answer. "+
				"Omit thread_id to start a new conversation; the reply includes the id to continue it. "+
				"The reply may instead contain clarification questions, which must be answered with answer_questions.",
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("The user's message."),
		),
		mcp.WithString("thread_id",
			mcp.Description("Conversation to continue. Leave empty to start a new one."),
		),
		mcp.WithString("learning_style",
			mcp.Description("Optional explanation style for tutoring, e.g. 'visual', 'step-by-step', 'concise'."),
		),
	)
}

// Handle processes the send_message tool call.
func (t *SendMessageTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message := strings.TrimSpace(req.GetString("message", ""))
	if message == "" {
		return mcp.NewToolResultError("message is required"), nil
	}
	threadID := strings.TrimSpace(req.GetString("thread_id", ""))
	if threadID == "" {
		threadID = uuid.NewString()
	}

	res, err := t.threads.Run(ctx, &orch.RunRequest{
		ThreadID: threadID,
		Message:  message,
		ThreadMeta: orch.ThreadMeta{
			LearningStyle: req.GetString("learning_style", ""),
		},
	}, nil)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderTurn(res)), nil
}

// AnswerQuestionsTool handles the answer_questions MCP tool.
type AnswerQuestionsTool struct {
	threads Threads
}

// NewAnswerQuestionsTool creates an AnswerQuestionsTool.
func NewAnswerQuestionsTool(threads Threads) *AnswerQuestionsTool {
	return &AnswerQuestionsTool{threads: threads}
}

// Definition returns the MCP tool definition for registration.
func (t *AnswerQuestionsTool) Definition() mcp.Tool {
	return mcp.NewTool("answer_questions",
		mcp.WithDescription(
			"Answer the clarification questions of a thread that is waiting for input. "+
				"The conversation then continues from where it paused.",
		),
		mcp.WithString("thread_id",
			mcp.Required(),
			mcp.Description("The thread waiting for answers."),
		),
		mcp.WithString("answers",
			mcp.Required(),
			mcp.Description(`JSON object mapping question ids to answers, e.g. {"q1": "the centrifuge", "symptom": "2"}.`),
		),
	)
}

// Handle processes the answer_questions tool call.
func (t *AnswerQuestionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := strings.TrimSpace(req.GetString("thread_id", ""))
	if threadID == "" {
		return mcp.NewToolResultError("thread_id is required"), nil
	}

	var answers map[string]string
	if err := json.Unmarshal([]byte(req.GetString("answers", "")), &answers); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answers must be a JSON object of strings: %v", err)), nil
	}

	res, err := t.threads.Resume(ctx, &orch.ResumeRequest{ThreadID: threadID, Answers: answers}, nil)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderTurn(res)), nil
}

// GetThreadTool handles the get_thread MCP tool.
type GetThreadTool struct {
	threads Threads
}

// NewGetThreadTool creates a GetThreadTool.
func NewGetThreadTool(threads Threads) *GetThreadTool {
	return &GetThreadTool{threads: threads}
}

// Definition returns the MCP tool definition for registration.
func (t *GetThreadTool) Definition() mcp.Tool {
	return mcp.NewTool("get_thread",
		mcp.WithDescription("Show the messages and status of a conversation thread."),
		mcp.WithString("thread_id",
			mcp.Required(),
			mcp.Description("The thread to show."),
		),
	)
}

// Handle processes the get_thread tool call.
func (t *GetThreadTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID := strings.TrimSpace(req.GetString("thread_id", ""))
	if threadID == "" {
		return mcp.NewToolResultError("thread_id is required"), nil
	}
	state, err := t.threads.GetThread(ctx, threadID)
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(renderThread(state)), nil
}

// toolError reports caller mistakes as tool errors and everything else as a
// protocol error.
func toolError(err error) (*mcp.CallToolResult, error) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrNoPendingInterrupt),
		errors.Is(err, domain.ErrInterruptPending),
		errors.Is(err, domain.ErrConflict):
		return mcp.NewToolResultError(err.Error()), nil
	default:
		return nil, err
	}
}
