package llm

import (
	"testing"

	"labmate/internal/config"
)

func TestParseModel(t *testing.T) {
	tests := []struct {
		name         string
		modelStr     string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{
			name:         "claude-haiku with version",
			modelStr:     "claude-haiku-4-5",
			wantProvider: "anthropic",
			wantModel:    "claude-haiku-4-5",
		},
		{
			name:         "claude-sonnet with full version",
			modelStr:     "claude-sonnet-4-5-20251001",
			wantProvider: "anthropic",
			wantModel:    "claude-sonnet-4-5-20251001",
		},
		{
			name:         "explicit provider",
			modelStr:     "anthropic/claude-haiku-4-5",
			wantProvider: "anthropic",
			wantModel:    "claude-haiku-4-5",
		},
		{
			name:         "lorem-fast model",
			modelStr:     "lorem-fast",
			wantProvider: "lorem",
			wantModel:    "lorem-fast",
		},
		{
			name:         "case insensitive prefix",
			modelStr:     "Claude-Opus",
			wantProvider: "anthropic",
			wantModel:    "Claude-Opus",
		},
		{
			name:     "empty string",
			modelStr: "",
			wantErr:  true,
		},
		{
			name:     "unknown model",
			modelStr: "gpt-4",
			wantErr:  true,
		},
		{
			name:     "empty provider",
			modelStr: "/claude-haiku-4-5",
			wantErr:  true,
		},
		{
			name:     "empty model",
			modelStr: "anthropic/",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseModel(tt.modelStr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseModel() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if got.Provider != tt.wantProvider {
				t.Errorf("ParseModel() provider = %v, want %v", got.Provider, tt.wantProvider)
			}
			if got.Model != tt.wantModel {
				t.Errorf("ParseModel() model = %v, want %v", got.Model, tt.wantModel)
			}
		})
	}
}

func TestProviderFactory_ModelFor(t *testing.T) {
	tests := []struct {
		name         string
		defaultModel string
		provider     string
		want         string
	}{
		{name: "anthropic default", defaultModel: "claude-haiku-4-5", provider: config.ProviderAnthropic, want: "claude-haiku-4-5"},
		{name: "prefixed default", defaultModel: "anthropic/claude-haiku-4-5", provider: config.ProviderAnthropic, want: "claude-haiku-4-5"},
		{name: "lorem ignores claude default", defaultModel: "claude-haiku-4-5", provider: config.ProviderLorem, want: "lorem-fast"},
		{name: "lorem model configured", defaultModel: "lorem-slow", provider: config.ProviderLorem, want: "lorem-slow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewProviderFactory(&config.Config{DefaultModel: tt.defaultModel})
			if got := f.ModelFor(tt.provider); got != tt.want {
				t.Errorf("ModelFor(%q) = %q, want %q", tt.provider, got, tt.want)
			}
		})
	}
}

func TestProviderFactory_GetProvider(t *testing.T) {
	f := NewProviderFactory(&config.Config{})
	if _, err := f.GetProvider(config.ProviderAnthropic); err == nil {
		t.Error("anthropic without API key should fail")
	}
	if _, err := f.GetProvider("openrouter"); err == nil {
		t.Error("unsupported provider should fail")
	}
	p, err := f.GetProvider(config.ProviderLorem)
	if err != nil || p == nil {
		t.Fatalf("lorem provider: %v", err)
	}
}
