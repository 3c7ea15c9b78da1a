// Package mcptools exposes conversation threads as MCP tools.
package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
	orch "labmate/internal/service/orchestration"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Threads is the orchestration surface the tools call.
type Threads interface {
	GetThread(ctx context.Context, threadID string) (*orchestration.ConversationState, error)
	Run(ctx context.Context, req *orch.RunRequest, sink services.EventSink) (*orch.TurnResult, error)
	Resume(ctx context.Context, req *orch.ResumeRequest, sink services.EventSink) (*orch.TurnResult, error)
}

// NewServer creates the MCP server with every tool registered.
func NewServer(threads Threads) *server.MCPServer {
	s := server.NewMCPServer(
		"labmate",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	send := NewSendMessageTool(threads)
	s.AddTool(send.Definition(), send.Handle)

	answer := NewAnswerQuestionsTool(threads)
	s.AddTool(answer.Definition(), answer.Handle)

	get := NewGetThreadTool(threads)
	s.AddTool(get.Definition(), get.Handle)

	return s
}

const instructions = `labmate is a lab assistant that routes each request to specialist workers
(research, tutor, troubleshooting, summarizer, chat) and combines their answers.

Use send_message to ask something. When the reply says the thread is waiting for
answers, collect them from the user and call answer_questions with the same thread_id.
A thread waiting for answers rejects new messages until they are given.`
