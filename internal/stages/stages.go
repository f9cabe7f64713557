// Package stages implements the reasoning stages of an investigation on top
// of a language model. Each stage builds a prompt, asks its backend, and
// parses a JSON reply; replies that cannot be parsed are re-asked with the
// parse error before the stage gives up.
package stages

import (
	"context"
	"fmt"
	"time"

	"dossier/internal/logging"
	"dossier/internal/pipeline"
	"dossier/internal/types"
	"dossier/internal/usage"
)

// Clients assigns a backend to each stage. Nil entries fall back to Default.
type Clients struct {
	Default      types.LLMClient
	Orchestrator types.LLMClient
	Pivot        types.LLMClient
	Resolver     types.LLMClient
	Writer       types.LLMClient
	Judge        types.LLMClient
}

func (c Clients) pick(specific types.LLMClient) types.LLMClient {
	if specific != nil {
		return specific
	}
	return c.Default
}

// Options tunes stage behavior.
type Options struct {
	// ParseRetries is how many times an unparseable reply is re-asked.
	ParseRetries int
	// MaxFollowUps caps the refined queries kept from a pivot review.
	MaxFollowUps int
	Retry        RetryConfig
}

// DefaultOptions returns the default stage options.
func DefaultOptions() Options {
	return Options{ParseRetries: 1, MaxFollowUps: 3, Retry: DefaultRetryConfig()}
}

// New builds the full set of language-model-backed stages.
func New(clients Clients, opts Options) pipeline.Stages {
	mk := func(name string, c types.LLMClient) base {
		return base{name: name, client: clients.pick(c), opts: opts}
	}
	return pipeline.Stages{
		Orchestrator: &Orchestrator{base: mk(pipeline.StageOrchestrator, clients.Orchestrator)},
		Pivot:        &Pivot{base: mk(pipeline.StagePivot, clients.Pivot)},
		Resolver:     &Resolver{base: mk(pipeline.StageResolver, clients.Resolver)},
		Writer:       &Writer{base: mk(pipeline.StageWriter, clients.Writer)},
		Judge:        &Judge{base: mk(pipeline.StageJudge, clients.Judge)},
	}
}

type base struct {
	name   string
	client types.LLMClient
	opts   Options
}

// complete calls the backend with transport retries.
func (b *base) complete(ctx context.Context, system, user string) (string, error) {
	if b.client == nil {
		return "", fmt.Errorf("%s: no language model configured", b.name)
	}
	ctx = usage.WithStage(ctx, b.name)
	return withRetry(ctx, b.opts.Retry, b.name, func(ctx context.Context) (string, error) {
		return b.client.CompleteWithSystem(ctx, system, user)
	})
}

// ask completes and decodes the reply into T, re-asking up to
// ParseRetries times when the reply cannot be parsed.
func ask[T any](ctx context.Context, b *base, system, user string, parse func(reply string) (T, error)) (T, error) {
	var zero T
	start := time.Now()
	prompt := user

	for attempt := 0; ; attempt++ {
		reply, err := b.complete(ctx, system, prompt)
		if err != nil {
			return zero, err
		}

		out, perr := parse(reply)
		if perr == nil {
			logging.StagesDebug("%s answered in %v (attempt %d)", b.name, time.Since(start), attempt+1)
			return out, nil
		}
		if attempt >= b.opts.ParseRetries {
			return zero, fmt.Errorf("unparseable %s output after %d attempt(s): %w", b.name, attempt+1, perr)
		}

		logging.StagesWarn("%s reply unparseable (%v); asking again", b.name, perr)
		prompt = user + "\n\nYour previous reply could not be used: " + perr.Error() +
			"\nReply with ONLY the JSON object described above, no other text.\n\nPrevious reply:\n" +
			truncateString(reply, 2000)
	}
}
