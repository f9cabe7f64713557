// Package usage counts language-model tokens per provider, model, stage and run.
package usage

import (
	"context"
	"sync"
)

type stageKey struct{}
type runKey struct{}

// Tracker aggregates token usage. A nil Tracker records nothing.
type Tracker struct {
	mu    sync.Mutex
	stats Stats
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{stats: Stats{
		ByProvider: make(map[string]TokenCounts),
		ByModel:    make(map[string]TokenCounts),
		ByStage:    make(map[string]TokenCounts),
		ByRun:      make(map[string]TokenCounts),
	}}
}

// WithStage tags ctx with the stage making the call.
func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, stageKey{}, stage)
}

// WithRun tags ctx with the run making the call.
func WithRun(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runKey{}, runID)
}

func valueOr(ctx context.Context, key any, fallback string) string {
	if v, ok := ctx.Value(key).(string); ok && v != "" {
		return v
	}
	return fallback
}

// Track records one completed call. Stage and run come from ctx.
func (t *Tracker) Track(ctx context.Context, provider, model string, input, output int) {
	if t == nil {
		return
	}
	stage := valueOr(ctx, stageKey{}, "unknown")
	run := valueOr(ctx, runKey{}, "")

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Total.Add(input, output)
	addToMap(t.stats.ByProvider, provider, input, output)
	addToMap(t.stats.ByModel, model, input, output)
	addToMap(t.stats.ByStage, stage, input, output)
	if run != "" {
		addToMap(t.stats.ByRun, run, input, output)
	}
}

// Stats returns a copy of the aggregated stats.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.ByProvider = copyTokenCountsMap(s.ByProvider)
	s.ByModel = copyTokenCountsMap(s.ByModel)
	s.ByStage = copyTokenCountsMap(s.ByStage)
	s.ByRun = copyTokenCountsMap(s.ByRun)
	return s
}

// Run returns the counters of one run.
func (t *Tracker) Run(runID string) TokenCounts {
	if t == nil {
		return TokenCounts{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.ByRun[runID]
}

// Forget drops a run's counters once it is no longer interesting.
func (t *Tracker) Forget(runID string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stats.ByRun, runID)
}

func copyTokenCountsMap(src map[string]TokenCounts) map[string]TokenCounts {
	dst := make(map[string]TokenCounts, len(src))
	for key, counts := range src {
		dst[key] = counts
	}
	return dst
}

func addToMap(m map[string]TokenCounts, key string, input, output int) {
	entry := m[key]
	entry.Add(input, output)
	m[key] = entry
}
