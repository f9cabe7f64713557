package usage

import (
	"context"
	"testing"
)

func TestTracker_TrackAggregates(t *testing.T) {
	tracker := NewTracker()

	ctx := WithRun(WithStage(context.Background(), "judge"), "run-1")
	tracker.Track(ctx, "anthropic", "claude-sonnet-4-5", 10, 5)
	tracker.Track(ctx, "anthropic", "claude-sonnet-4-5", 2, 3)
	tracker.Track(context.Background(), "openai", "gpt-4o", 1, 1)

	stats := tracker.Stats()
	if stats.Total.Input != 13 || stats.Total.Output != 9 || stats.Total.Total != 22 || stats.Total.Calls != 3 {
		t.Fatalf("Total=%+v, want input=13 output=9 total=22 calls=3", stats.Total)
	}
	if got := stats.ByProvider["anthropic"]; got.Total != 20 {
		t.Fatalf("ByProvider[anthropic]=%+v, want total=20", got)
	}
	if got := stats.ByModel["gpt-4o"]; got.Total != 2 {
		t.Fatalf("ByModel[gpt-4o]=%+v, want total=2", got)
	}
	if got := stats.ByStage["judge"]; got.Calls != 2 {
		t.Fatalf("ByStage[judge]=%+v, want calls=2", got)
	}
	if got := stats.ByStage["unknown"]; got.Calls != 1 {
		t.Fatalf("ByStage[unknown]=%+v, want calls=1", got)
	}
	if got := tracker.Run("run-1"); got.Total != 20 {
		t.Fatalf("Run(run-1)=%+v, want total=20", got)
	}
	if _, ok := stats.ByRun[""]; ok {
		t.Fatal("untagged calls must not be attributed to a run")
	}
}

func TestTracker_StatsIsACopy(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(context.Background(), "gemini", "gemini-2.5-flash", 1, 1)

	stats := tracker.Stats()
	stats.ByProvider["gemini"] = TokenCounts{}

	if got := tracker.Stats().ByProvider["gemini"]; got.Total != 2 {
		t.Fatalf("mutating a snapshot changed the tracker: %+v", got)
	}
}

func TestTracker_Forget(t *testing.T) {
	tracker := NewTracker()
	tracker.Track(WithRun(context.Background(), "run-1"), "openai", "gpt-4o", 4, 4)
	tracker.Forget("run-1")

	if got := tracker.Run("run-1"); got.Calls != 0 {
		t.Fatalf("Run after Forget=%+v, want zero", got)
	}
	if got := tracker.Stats().Total.Total; got != 8 {
		t.Fatalf("Total after Forget=%d, want 8", got)
	}
}

func TestTracker_NilIsNoop(t *testing.T) {
	var tracker *Tracker
	tracker.Track(context.Background(), "openai", "gpt-4o", 1, 1)
	tracker.Forget("run-1")
	if got := tracker.Run("run-1"); got.Calls != 0 {
		t.Fatalf("nil tracker Run=%+v, want zero", got)
	}
}
