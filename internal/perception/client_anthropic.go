package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dossier/internal/logging"
)

// AnthropicClient implements types.LLMClient for the Anthropic messages API.
type AnthropicClient struct {
	t *httpTransport
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg ClientConfig) *AnthropicClient {
	cfg = cfg.withDefaults("https://api.anthropic.com/v1", "claude-sonnet-4-5")
	return &AnthropicClient{t: newHTTPTransport("Anthropic", cfg)}
}

// Model returns the configured model.
func (c *AnthropicClient) Model() string { return c.t.cfg.Model }

// Complete sends a prompt and returns the completion.
func (c *AnthropicClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *AnthropicClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.t.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	start := time.Now()
	logging.APIDebug("[Anthropic] model=%s system_len=%d user_len=%d", c.t.cfg.Model, len(systemPrompt), len(userPrompt))

	req := AnthropicRequest{
		Model:       c.t.cfg.Model,
		MaxTokens:   8192,
		System:      systemPrompt,
		Messages:    []AnthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: 0.1,
	}
	headers := map[string]string{
		"x-api-key":         c.t.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}

	var resp AnthropicResponse
	if err := c.t.post(ctx, c.t.cfg.BaseURL+"/messages", headers, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	c.t.cfg.Usage.Track(ctx, string(ProviderAnthropic), c.t.cfg.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if sb.Len() == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	out := strings.TrimSpace(sb.String())
	logging.API("[Anthropic] completed in %v response_len=%d", time.Since(start), len(out))
	return out, nil
}
