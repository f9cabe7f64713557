// Package perception provides the language-model backends the reasoning
// stages talk to.
package perception

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"dossier/internal/logging"
)

// ErrNoAPIKey is returned by clients built without credentials.
var ErrNoAPIKey = errors.New("API key not configured")

// StatusError is a non-200 reply from a provider.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.Code, e.Body)
}

// Temporary reports whether sending the request again may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// permanentError marks a provider failure that no retry will fix.
type permanentError struct{ err error }

func (e permanentError) Error() string   { return e.err.Error() }
func (e permanentError) Unwrap() error   { return e.err }
func (e permanentError) Temporary() bool { return false }

// httpTransport is the request loop shared by the JSON-over-HTTP clients:
// rate limiting, a default deadline, and retries on 429, 5xx and transport
// errors.
type httpTransport struct {
	name   string
	cfg    ClientConfig
	client *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

func newHTTPTransport(name string, cfg ClientConfig) *httpTransport {
	return &httpTransport{
		name:   name,
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (t *httpTransport) throttle(ctx context.Context) error {
	t.mu.Lock()
	wait := t.cfg.RateLimitDelay - time.Since(t.lastRequest)
	t.lastRequest = time.Now().Add(max(wait, 0))
	t.mu.Unlock()

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

// post sends body to url and decodes a 200 reply into out.
func (t *httpTransport) post(ctx context.Context, url string, headers map[string]string, body, out any) error {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= t.cfg.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.cfg.RetryBackoff << (i - 1)):
			}
		}
		if err := t.throttle(ctx); err != nil {
			return err
		}

		raw, err := t.do(ctx, url, headers, payload)
		if err == nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Code != http.StatusTooManyRequests && se.Code < 500 {
			logging.APIError("[%s] %v", t.name, err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		logging.APIDebug("[%s] attempt %d failed: %v", t.name, i+1, err)
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (t *httpTransport) do(ctx context.Context, url string, headers map[string]string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
