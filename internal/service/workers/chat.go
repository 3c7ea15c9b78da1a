package workers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

const chatInstructions = `You are a friendly laboratory assistant. Answer the latest user message
briefly and helpfully. If the user needs an explanation, troubleshooting or
literature, say you can help with that and ask what they need.`

// ChatWorker handles general conversation. Without a completer it answers
// with a canned greeting that lists what the assistant can do.
type ChatWorker struct {
	completer services.Completer
	logger    *slog.Logger
}

// NewChatWorker creates a chat worker. completer may be nil.
func NewChatWorker(completer services.Completer, logger *slog.Logger) *ChatWorker {
	return &ChatWorker{completer: completer, logger: logger}
}

// Name implements services.Worker.
func (w *ChatWorker) Name() orchestration.WorkerName { return orchestration.WorkerChat }

// Handle implements services.Worker.
func (w *ChatWorker) Handle(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error) {
	if w.completer == nil {
		content := cannedReply(in.State.UserName, request(in))
		out := orchestration.NewOutput(w.Name(), "Answered with the built-in reply", content, 0.5)
		return services.WorkerResult{Output: out}, nil
	}

	system := chatInstructions
	if in.State.RollingSummary != "" {
		system += "\n\nEarlier conversation summary:\n" + in.State.RollingSummary
	}
	if in.State.UserName != "" {
		system += "\n\nThe user's name is " + in.State.UserName + "."
	}

	text, err := w.completer.Complete(ctx, system, recentMessages(in.State))
	if err != nil {
		return services.WorkerResult{}, fmt.Errorf("chat completion: %w", err)
	}

	out := orchestration.NewOutput(w.Name(), firstSentence(text, 160), text, 0.7)
	out.Metadata.Model = modelOf(w.completer)
	return services.WorkerResult{Output: out}, nil
}

func cannedReply(userName, message string) string {
	greeting := "Hello"
	if userName != "" {
		greeting += " " + userName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s! I can explain lab concepts, help troubleshoot equipment and look things up in the lab documents.", greeting)
	if strings.TrimSpace(message) != "" {
		b.WriteString(" Tell me a bit more about what you need and I will route it to the right specialist.")
	}
	return b.String()
}
