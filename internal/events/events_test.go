package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"dossier/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("subscription did not close; got %d events", len(out))
		}
	}
}

func assertOrdered(t *testing.T, evs []Event) {
	t.Helper()
	doneCount := 0
	for i, ev := range evs {
		if i > 0 {
			assert.Greater(t, ev.Seq, evs[i-1].Seq, "seq must strictly increase")
		}
		if ev.Kind == KindDone {
			doneCount++
			assert.Equal(t, len(evs)-1, i, "done must be last")
		}
	}
	assert.Equal(t, 1, doneCount, "done must be delivered exactly once")
}

func TestPublishAssignsSequence(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	l, err := bus.Open("r1")
	require.NoError(t, err)

	a, err := l.Publish(KindLog, LogPayload{Message: "hello"})
	require.NoError(t, err)
	b, err := l.Publish(KindStageChange, StageChangePayload{From: types.StatusPending, To: types.StatusGathering})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
	assert.Equal(t, "r1", b.RunID)
}

func TestPublishAfterDoneFails(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	l, _ := bus.Open("r1")

	_, err := l.Done(types.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, l.Closed())

	_, err = l.Publish(KindLog, LogPayload{Message: "late"})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = l.Done(types.StatusCompleted)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestOpenDuplicate(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	_, err := bus.Open("r1")
	require.NoError(t, err)
	_, err = bus.Open("r1")
	assert.ErrorIs(t, err, ErrRunExists)
}

func TestLateSubscriberGetsFullBacklog(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	l, _ := bus.Open("r1")

	for i := 0; i < 5; i++ {
		_, err := l.Publish(KindLog, LogPayload{Message: "step"})
		require.NoError(t, err)
	}
	_, err := l.Done(types.StatusCompleted)
	require.NoError(t, err)

	evs := collect(t, l.Subscribe(context.Background(), 0))
	require.Len(t, evs, 6)
	assertOrdered(t, evs)
	assert.Equal(t, int64(1), evs[0].Seq)
}

func TestLiveSubscriberSeesEveryEventOnce(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	l, _ := bus.Open("r1")
	_, _ = l.Publish(KindLog, LogPayload{Message: "before subscribe"})

	ch := l.Subscribe(context.Background(), 0)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = l.Publish(KindToolCall, ToolCallPayload{Seq: i + 1, Tool: "web_search"})
		}
		_, _ = l.Done(types.StatusCompleted)
	}()

	evs := collect(t, ch)
	wg.Wait()

	require.Len(t, evs, 52)
	assertOrdered(t, evs)
	for i, ev := range evs {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestSubscribeResumesAfterSeq(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	l, _ := bus.Open("r1")
	for i := 0; i < 4; i++ {
		_, _ = l.Publish(KindLog, LogPayload{Message: "x"})
	}
	_, _ = l.Done(types.StatusFailed)

	evs := collect(t, l.Subscribe(context.Background(), 3))
	require.Len(t, evs, 2)
	assert.Equal(t, int64(4), evs[0].Seq)
	assert.Equal(t, KindDone, evs[1].Kind)

	// Resuming past done yields nothing and closes.
	assert.Empty(t, collect(t, l.Subscribe(context.Background(), 5)))
}

func TestSubscriberCancelDoesNotAffectLog(t *testing.T) {
	bus := NewBus(time.Minute, time.Second)
	l, _ := bus.Open("r1")

	ctx, cancel := context.WithCancel(context.Background())
	ch := l.Subscribe(ctx, 0)
	_, _ = l.Publish(KindLog, LogPayload{Message: "one"})
	first := <-ch
	assert.Equal(t, int64(1), first.Seq)
	cancel()
	for range ch {
	}

	_, err := l.Publish(KindLog, LogPayload{Message: "two"})
	require.NoError(t, err)
	_, err = l.Done(types.StatusCompleted)
	require.NoError(t, err)

	// A reconnecting subscriber still observes the outcome.
	evs := collect(t, l.Subscribe(context.Background(), first.Seq))
	require.Len(t, evs, 2)
	assert.Equal(t, KindDone, evs[1].Kind)
}

func TestSweep(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	bus := NewBus(10*time.Minute, 30*time.Second)
	bus.now = func() time.Time { return now }

	active, _ := bus.Open("active")
	_, _ = active.Publish(KindLog, LogPayload{Message: "still going"})

	unacked, _ := bus.Open("unacked")
	_, _ = unacked.Done(types.StatusCompleted)

	acked, _ := bus.Open("acked")
	_, _ = acked.Done(types.StatusCompleted)
	collect(t, acked.Subscribe(context.Background(), 0))

	now = now.Add(time.Minute)
	assert.Equal(t, 1, bus.Sweep())
	_, ok := bus.Get("acked")
	assert.False(t, ok, "acknowledged run should go after the grace period")
	_, ok = bus.Get("unacked")
	assert.True(t, ok)

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, bus.Sweep())
	_, ok = bus.Get("unacked")
	assert.False(t, ok, "finished run should go after retention")

	now = now.Add(24 * time.Hour)
	assert.Zero(t, bus.Sweep())
	_, ok = bus.Get("active")
	assert.True(t, ok, "runs without done are never swept")
}

func TestBusRunStopsOnCancel(t *testing.T) {
	bus := NewBus(time.Millisecond, time.Millisecond)
	l, _ := bus.Open("r1")
	_, _ = l.Done(types.StatusCompleted)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- bus.Run(ctx, 5*time.Millisecond) }()

	require.Eventually(t, func() bool { return bus.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-errc)
}
