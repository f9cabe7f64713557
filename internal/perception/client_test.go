package perception

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/config"
	"dossier/internal/usage"
)

func fastConfig(url string) ClientConfig {
	return ClientConfig{
		APIKey:         "test-key",
		BaseURL:        url,
		Timeout:        5 * time.Second,
		MaxRetries:     2,
		RetryBackoff:   time.Millisecond,
		RateLimitDelay: time.Millisecond,
	}
}

func TestAnthropicClient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req AnthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "be terse", req.System)
		assert.Equal(t, "hello", req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"content": [{"type": "text", "text": "  {\"ok\": true}  "}], "usage": {"input_tokens": 12, "output_tokens": 4}}`))
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Usage = usage.NewTracker()
	c := NewAnthropicClient(cfg)
	ctx := usage.WithRun(usage.WithStage(context.Background(), "writer"), "run-1")
	out, err := c.CompleteWithSystem(ctx, "be terse", "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, int32(2), calls.Load())

	stats := cfg.Usage.Stats()
	assert.Equal(t, usage.TokenCounts{Calls: 1, Input: 12, Output: 4, Total: 16}, stats.ByStage["writer"])
	assert.Equal(t, int64(16), stats.ByProvider["anthropic"].Total)
	assert.Equal(t, int64(16), cfg.Usage.Run("run-1").Total)
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req OpenAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, defaultSystemPrompt, req.Messages[0].Content)

		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "done"}}]}`))
	}))
	defer srv.Close()

	out, err := NewOpenAIClient(fastConfig(srv.URL)).Complete(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
}

func TestClientErrors(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIClient(ClientConfig{}).Complete(context.Background(), "hi")
		assert.ErrorIs(t, err, ErrNoAPIKey)
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "bad model", http.StatusBadRequest)
		}))
		defer srv.Close()

		_, err := NewAnthropicClient(fastConfig(srv.URL)).Complete(context.Background(), "hi")
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusBadRequest, se.Code)
		assert.False(t, se.Temporary())
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("server errors exhaust retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := NewOpenAIClient(fastConfig(srv.URL)).Complete(context.Background(), "hi")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("empty completion", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices": []}`))
		}))
		defer srv.Close()

		_, err := NewOpenAIClient(fastConfig(srv.URL)).Complete(context.Background(), "hi")
		assert.EqualError(t, err, "no completion returned")
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		cfg := fastConfig(srv.URL)
		cfg.RetryBackoff = time.Hour
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := NewOpenAIClient(cfg).Complete(ctx, "hi")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestGeminiClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"role": "model", "parts": [{"text": "from gemini"}]}}], "usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3}}`))
	}))
	defer srv.Close()

	cfg := fastConfig(srv.URL)
	cfg.Model = "gemini-test"
	cfg.Usage = usage.NewTracker()
	c, err := NewGeminiClient(context.Background(), cfg)
	require.NoError(t, err)

	out, err := c.CompleteWithSystem(context.Background(), "sys", "hi")
	require.NoError(t, err)
	assert.Equal(t, "from gemini", out)
	assert.Equal(t, int64(10), cfg.Usage.Stats().ByModel["gemini-test"].Total)
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), config.LLMConfig{Provider: "anthropic", APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
	assert.Equal(t, "claude-sonnet-4-5", c.(*AnthropicClient).Model())

	c, err = NewClient(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "k", Model: "gpt-x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-x", c.(*OpenAIClient).Model())

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "mystery", APIKey: "k"}, nil)
	assert.ErrorContains(t, err, "unknown provider")

	_, err = NewClient(context.Background(), config.LLMConfig{Provider: "gemini"}, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestFactoryClientsMakeOneAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: srv.URL}, nil)
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "hi")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.True(t, se.Temporary())
	assert.Equal(t, int32(1), calls.Load())
}

func TestStageClientsShareIdenticalBackends(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LLM = config.LLMConfig{Provider: "anthropic", APIKey: "k"}
	cfg.Stages.Judge = config.StageLLMConfig{Provider: "openai", Model: "gpt-judge"}

	clients, err := StageClients(context.Background(), cfg, nil, "orchestrator", "writer", "judge")
	require.NoError(t, err)
	assert.Same(t, clients["orchestrator"], clients["writer"])
	assert.IsType(t, &OpenAIClient{}, clients["judge"])
}
