package llm

import (
	"fmt"
	"strings"

	"labmate/internal/config"
)

// ModelInfo contains parsed provider and model information
type ModelInfo struct {
	Provider string // Provider name: "anthropic", "lorem"
	Model    string // Model identifier for that provider
}

// ParseModel extracts provider information from a model string
//
// Supported formats:
//   - "claude-haiku-4-5" → {Provider: "anthropic", Model: "claude-haiku-4-5"}
//   - "lorem-fast" → {Provider: "lorem", Model: "lorem-fast"}
//   - "anthropic/claude-haiku-4-5" → {Provider: "anthropic", Model: "claude-haiku-4-5"}
func ParseModel(modelStr string) (*ModelInfo, error) {
	modelStr = strings.TrimSpace(modelStr)
	if modelStr == "" {
		return nil, fmt.Errorf("model string cannot be empty")
	}

	if provider, model, ok := strings.Cut(modelStr, "/"); ok {
		if provider == "" {
			return nil, fmt.Errorf("provider cannot be empty in model string: %s", modelStr)
		}
		if model == "" {
			return nil, fmt.Errorf("model cannot be empty in model string: %s", modelStr)
		}
		return &ModelInfo{Provider: provider, Model: model}, nil
	}

	provider := inferProvider(modelStr)
	if provider == "" {
		return nil, fmt.Errorf("unable to infer provider from model: %s", modelStr)
	}
	return &ModelInfo{Provider: provider, Model: modelStr}, nil
}

// inferProvider infers the provider from model name prefix
func inferProvider(model string) string {
	modelLower := strings.ToLower(model)

	switch {
	case strings.HasPrefix(modelLower, "claude-"):
		return config.ProviderAnthropic
	case strings.HasPrefix(modelLower, "lorem-"):
		return config.ProviderLorem
	default:
		return ""
	}
}
