package llm

import (
	"fmt"

	llmprovider "github.com/haowjy/meridian-llm-go"
	"github.com/haowjy/meridian-llm-go/providers/anthropic"
	"github.com/haowjy/meridian-llm-go/providers/lorem"

	"labmate/internal/config"
)

// ProviderFactory creates LLM provider instances from configuration
type ProviderFactory struct {
	config *config.Config
}

// NewProviderFactory creates a new provider factory
func NewProviderFactory(cfg *config.Config) *ProviderFactory {
	return &ProviderFactory{
		config: cfg,
	}
}

// GetProvider returns a provider instance for the given provider name
//
// Supported providers:
//   - "anthropic" - Claude models via Anthropic API
//   - "lorem" - Mock provider for testing (no API key required)
func (f *ProviderFactory) GetProvider(providerName string) (llmprovider.Provider, error) {
	switch providerName {
	case config.ProviderAnthropic:
		return f.createAnthropicProvider()
	case config.ProviderLorem:
		return f.createLoremProvider()
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}

// ModelFor returns the model used with the given provider. DEFAULT_MODEL
// applies when it names that provider, explicitly or by prefix.
func (f *ProviderFactory) ModelFor(providerName string) string {
	if info, err := ParseModel(f.config.DefaultModel); err == nil && info.Provider == providerName {
		return info.Model
	}
	if providerName == config.ProviderLorem {
		return "lorem-fast"
	}
	return f.config.DefaultModel
}

// createAnthropicProvider creates an Anthropic provider instance
func (f *ProviderFactory) createAnthropicProvider() (llmprovider.Provider, error) {
	if f.config.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	provider, err := anthropic.NewProvider(f.config.AnthropicAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}

	return provider, nil
}

// createLoremProvider creates a Lorem mock provider instance
// Lorem requires no API key - it's a testing provider that generates lorem ipsum text
func (f *ProviderFactory) createLoremProvider() (llmprovider.Provider, error) {
	return lorem.NewProvider(), nil
}
