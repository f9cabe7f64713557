package perception

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dossier/internal/logging"
)

// OpenAIClient implements types.LLMClient for OpenAI-compatible chat APIs.
type OpenAIClient struct {
	t *httpTransport
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	cfg = cfg.withDefaults("https://api.openai.com/v1", "gpt-4o")
	return &OpenAIClient{t: newHTTPTransport("OpenAI", cfg)}
}

// Model returns the configured model.
func (c *OpenAIClient) Model() string { return c.t.cfg.Model }

// Complete sends a prompt and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.t.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	start := time.Now()
	logging.APIDebug("[OpenAI] model=%s system_len=%d user_len=%d", c.t.cfg.Model, len(systemPrompt), len(userPrompt))

	req := OpenAIRequest{
		Model: c.t.cfg.Model,
		Messages: []OpenAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   4096,
		Temperature: 0.1,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.t.cfg.APIKey}

	var resp OpenAIResponse
	if err := c.t.post(ctx, c.t.cfg.BaseURL+"/chat/completions", headers, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", fmt.Errorf("API error: %s", resp.Error.Message)
	}
	c.t.cfg.Usage.Track(ctx, string(ProviderOpenAI), c.t.cfg.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	logging.API("[OpenAI] completed in %v response_len=%d", time.Since(start), len(out))
	return out, nil
}
