package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dossier/internal/logging"
)

// Bus owns the event logs of all runs in the process.
type Bus struct {
	retention time.Duration
	ackGrace  time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	logs map[string]*Log
}

// NewBus creates a bus. Finished runs are kept for retention, or for
// ackGrace once a subscriber has received done, whichever comes first.
func NewBus(retention, ackGrace time.Duration) *Bus {
	return &Bus{
		retention: retention,
		ackGrace:  ackGrace,
		now:       time.Now,
		logs:      make(map[string]*Log),
	}
}

// Open creates the log for a new run.
func (b *Bus) Open(runID string) (*Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.logs[runID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}
	l := newLog(runID, b.now)
	b.logs[runID] = l
	return l, nil
}

// Get returns the log for a run, if it is still retained.
func (b *Bus) Get(runID string) (*Log, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.logs[runID]
	return l, ok
}

// Len returns the number of retained logs.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.logs)
}

// Sweep drops expired logs and returns how many were removed.
// Logs of runs that have not emitted done are never dropped.
func (b *Bus) Sweep() int {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, l := range b.logs {
		if l.expired(now, b.retention, b.ackGrace) {
			delete(b.logs, id)
			removed++
		}
	}
	if removed > 0 {
		logging.EventsDebug("swept %d finished run(s), %d retained", removed, len(b.logs))
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (b *Bus) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			b.Sweep()
		}
	}
}
