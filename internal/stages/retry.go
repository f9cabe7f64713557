package stages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dossier/internal/logging"
)

// RetryConfig bounds how hard a stage leans on a flaky backend.
type RetryConfig struct {
	MaxRetries     int           // extra attempts after the first
	InitialBackoff time.Duration // doubled after every failure
	MaxBackoff     time.Duration // zero means uncapped
}

// DefaultRetryConfig allows three attempts spaced 1s then 2s apart.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Second,
		MaxBackoff:     8 * time.Second,
	}
}

// ErrMaxRetriesExceeded wraps the last backend error once attempts run out.
var ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")

// delay is the pause before attempt n+1.
func (rc RetryConfig) delay(n int) time.Duration {
	d := rc.InitialBackoff
	for i := 0; i < n; i++ {
		d *= 2
		if rc.MaxBackoff > 0 && d >= rc.MaxBackoff {
			return rc.MaxBackoff
		}
	}
	if rc.MaxBackoff > 0 && d > rc.MaxBackoff {
		return rc.MaxBackoff
	}
	return d
}

// withRetry runs fn until it succeeds or attempts run out. A context error
// or an error whose Temporary method reports false ends the loop at once.
func withRetry[T any](ctx context.Context, rc RetryConfig, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := rc.MaxRetries + 1
	var last error

	for n := 0; n < attempts; n++ {
		if n > 0 {
			t := time.NewTimer(rc.delay(n - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return zero, ctx.Err()
			case <-t.C:
			}
		}

		out, err := fn(ctx)
		if err == nil {
			if n > 0 {
				logging.Stages("%s recovered on attempt %d", op, n+1)
			}
			return out, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		var tmp interface{ Temporary() bool }
		if errors.As(err, &tmp) && !tmp.Temporary() {
			logging.StagesWarn("%s failed permanently: %v", op, err)
			return zero, err
		}
		last = err
		logging.StagesWarn("%s attempt %d/%d failed: %v", op, n+1, attempts, err)
	}

	return zero, fmt.Errorf("%w for %s: %w", ErrMaxRetriesExceeded, op, last)
}
