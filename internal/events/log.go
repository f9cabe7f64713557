package events

import (
	"context"
	"sync"
	"time"

	"dossier/internal/logging"
	"dossier/internal/types"
)

// Log is the retained event history of one run. The run's controller is
// the only publisher; any number of subscribers may read it.
type Log struct {
	runID string
	now   func() time.Time

	mu      sync.Mutex
	events  []Event
	notify  chan struct{} // closed and replaced on every append
	closed  bool
	doneAt  time.Time
	ackedAt time.Time
}

func newLog(runID string, now func() time.Time) *Log {
	return &Log{runID: runID, now: now, notify: make(chan struct{})}
}

// RunID returns the run this log belongs to.
func (l *Log) RunID() string {
	return l.runID
}

// Publish appends an event and wakes subscribers.
func (l *Log) Publish(kind Kind, payload any) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return Event{}, ErrClosed
	}

	ev := Event{
		RunID:   l.runID,
		Seq:     int64(len(l.events)) + 1,
		Kind:    kind,
		Payload: payload,
		Time:    l.now(),
	}
	l.events = append(l.events, ev)
	if kind == KindDone {
		l.closed = true
		l.doneAt = ev.Time
	}

	close(l.notify)
	l.notify = make(chan struct{})

	logging.EventsDebug("run=%s seq=%d kind=%s", l.runID, ev.Seq, kind)
	return ev, nil
}

// Done publishes the terminal event. No event can follow it.
func (l *Log) Done(status types.Status) (Event, error) {
	return l.Publish(KindDone, DonePayload{Status: status})
}

// Closed reports whether done has been published.
func (l *Log) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Len returns the number of events published so far.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Events returns a copy of the events with Seq > after.
func (l *Log) Events(after int64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since(after)
}

func (l *Log) since(after int64) []Event {
	if after < 0 {
		after = 0
	}
	if after >= int64(len(l.events)) {
		return nil
	}
	out := make([]Event, int64(len(l.events))-after)
	copy(out, l.events[after:])
	return out
}

// Subscribe streams every event with Seq > after: first the retained
// backlog, then live events as they are published. The channel is closed
// after done is delivered or when ctx ends. Delivering done marks the log
// acknowledged.
func (l *Log) Subscribe(ctx context.Context, after int64) <-chan Event {
	ch := make(chan Event)

	go func() {
		defer close(ch)
		next := after

		for {
			l.mu.Lock()
			pending := l.since(next)
			wake := l.notify
			closed := l.closed
			l.mu.Unlock()

			for _, ev := range pending {
				select {
				case ch <- ev:
					next = ev.Seq
				case <-ctx.Done():
					return
				}
				if ev.Kind == KindDone {
					l.ack()
					return
				}
			}

			if closed {
				// Caller resumed past done.
				return
			}

			if len(pending) > 0 {
				continue
			}
			select {
			case <-wake:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

func (l *Log) ack() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ackedAt.IsZero() {
		l.ackedAt = l.now()
	}
}

// expired reports whether a finished log may be dropped at now.
func (l *Log) expired(now time.Time, retention, ackGrace time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		return false
	}
	if !l.ackedAt.IsZero() && now.Sub(l.ackedAt) >= ackGrace {
		return true
	}
	return now.Sub(l.doneAt) >= retention
}
