package perception

import (
	"context"
	"fmt"

	"dossier/internal/config"
	"dossier/internal/types"
	"dossier/internal/usage"
)

// NewClient creates a client for the configured provider. Token usage is
// recorded into tracker when it is non-nil.
func NewClient(ctx context.Context, cfg config.LLMConfig, tracker *usage.Tracker) (types.LLMClient, error) {
	// Retries belong to the calling stage, which backs off across
	// attempts and stops early on errors that are not Temporary.
	cc := ClientConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.GetTimeout(),
		Usage:   tracker,
	}

	switch Provider(cfg.Provider) {
	case ProviderAnthropic:
		return NewAnthropicClient(cc), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cc), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cc)
	default:
		return nil, fmt.Errorf("unknown provider: %s (valid: %v)", cfg.Provider, config.ValidProviders)
	}
}

// StageClients builds one client per stage. Stages whose effective
// settings match an earlier stage share its client, and so its rate limit.
func StageClients(ctx context.Context, cfg *config.Config, tracker *usage.Tracker, stages ...string) (map[string]types.LLMClient, error) {
	out := make(map[string]types.LLMClient, len(stages))
	built := make(map[config.LLMConfig]types.LLMClient)
	for _, stage := range stages {
		eff := cfg.ForStage(stage)
		if c, ok := built[eff]; ok {
			out[stage] = c
			continue
		}
		c, err := NewClient(ctx, eff, tracker)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		built[eff] = c
		out[stage] = c
	}
	return out, nil
}
