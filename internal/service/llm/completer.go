package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	llmprovider "github.com/haowjy/meridian-llm-go"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

const blockTypeText = "text"

// ProviderCompleter implements the Completer contract on top of a
// meridian-llm-go provider.
type ProviderCompleter struct {
	provider llmprovider.Provider
	model    string
	logger   *slog.Logger
}

var _ services.Completer = (*ProviderCompleter)(nil)

// NewProviderCompleter creates a completer for provider and model
func NewProviderCompleter(provider llmprovider.Provider, model string, logger *slog.Logger) (*ProviderCompleter, error) {
	if !provider.SupportsModel(model) {
		return nil, fmt.Errorf("provider %s does not support model %s", provider.Name(), model)
	}
	return &ProviderCompleter{provider: provider, model: model, logger: logger}, nil
}

// Model returns the configured model name
func (c *ProviderCompleter) Model() string {
	return c.model
}

// Complete sends the conversation as a single user message with the system
// instructions on top and returns the concatenated text blocks.
//
// The transcript is flattened so summary pointer messages (role system) and
// consecutive same-role messages never violate provider role ordering.
func (c *ProviderCompleter) Complete(ctx context.Context, system string, messages []orchestration.Message) (string, error) {
	prompt := BuildPrompt(system, messages)
	req := &llmprovider.GenerateRequest{
		Model: c.model,
		Messages: []llmprovider.Message{{
			Role: orchestration.RoleUser,
			Blocks: []*llmprovider.Block{{
				BlockType:   blockTypeText,
				Sequence:    0,
				TextContent: &prompt,
			}},
		}},
	}

	start := time.Now()
	resp, err := c.provider.GenerateResponse(ctx, req)
	if err != nil {
		return "", fmt.Errorf("generate response (%s): %w", c.provider.Name(), err)
	}

	text := ExtractText(resp)
	c.logger.Debug("completion finished",
		"provider", c.provider.Name(),
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"stop_reason", resp.StopReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("provider %s returned no text", c.provider.Name())
	}
	return text, nil
}

// BuildPrompt renders system instructions and a transcript into one prompt.
func BuildPrompt(system string, messages []orchestration.Message) string {
	var b strings.Builder
	if system = strings.TrimSpace(system); system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	if len(messages) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range messages {
			fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractText concatenates the text blocks of a provider response.
func ExtractText(resp *llmprovider.GenerateResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Blocks {
		if block == nil || block.BlockType != blockTypeText || block.TextContent == nil {
			continue
		}
		parts = append(parts, *block.TextContent)
	}
	return strings.TrimSpace(strings.Join(parts, ""))
}
