package types

import "context"

// LLMClient is the language model seam shared by every stage. The
// perception package provides the hosted backends and tests script
// replies through the same two calls.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, system, user string) (string, error)
}
