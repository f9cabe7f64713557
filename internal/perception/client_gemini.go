package perception

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"dossier/internal/logging"
)

// GeminiClient implements types.LLMClient on the Google GenAI SDK.
type GeminiClient struct {
	client *genai.Client
	cfg    ClientConfig

	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg ClientConfig) (*GeminiClient, error) {
	cfg = cfg.withDefaults("", "gemini-2.5-flash")
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GeminiClient{client: client, cfg: cfg}, nil
}

// Model returns the configured model.
func (c *GeminiClient) Model() string { return c.cfg.Model }

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system instruction.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}

	start := time.Now()
	logging.APIDebug("[Gemini] model=%s system_len=%d user_len=%d", c.cfg.Model, len(systemPrompt), len(userPrompt))

	temperature := float32(0.2)
	gcfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   8192,
	}
	contents := []*genai.Content{genai.NewContentFromText(userPrompt, genai.RoleUser)}

	var lastErr error
	for i := 0; i <= c.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(c.cfg.RetryBackoff << (i - 1)):
			}
		}
		if err := c.throttle(ctx); err != nil {
			return "", err
		}

		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, gcfg)
		if err != nil {
			if !retryableGenAI(err) || ctx.Err() != nil {
				logging.APIError("[Gemini] %v", err)
				if !retryableGenAI(err) {
					err = permanentError{err}
				}
				return "", fmt.Errorf("GenAI generate failed: %w", err)
			}
			lastErr = err
			logging.APIDebug("[Gemini] attempt %d failed: %v", i+1, err)
			continue
		}

		if md := resp.UsageMetadata; md != nil {
			c.cfg.Usage.Track(ctx, string(ProviderGemini), c.cfg.Model, int(md.PromptTokenCount), int(md.CandidatesTokenCount))
		}
		out := strings.TrimSpace(resp.Text())
		if out == "" {
			return "", fmt.Errorf("no completion returned")
		}
		logging.API("[Gemini] completed in %v response_len=%d", time.Since(start), len(out))
		return out, nil
	}
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *GeminiClient) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := c.cfg.RateLimitDelay - time.Since(c.lastRequest)
	c.lastRequest = time.Now().Add(max(wait, 0))
	c.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// retryableGenAI reports whether err is a rate limit or server failure.
// Errors that are not API errors are treated as transport failures.
func retryableGenAI(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return apiErrPtr.Code == http.StatusTooManyRequests || apiErrPtr.Code >= 500
	}
	return true
}
