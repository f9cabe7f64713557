package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/types"
)

func TestTransitionHappyPath(t *testing.T) {
	path := []struct {
		sig  Signal
		want types.Status
	}{
		{SignalStart, types.StatusGathering},
		{SignalGathered, types.StatusResolving},
		{SignalResolved, types.StatusDrafting},
		{SignalDrafted, types.StatusJudging},
		{SignalRejected, types.StatusDrafting},
		{SignalDrafted, types.StatusJudging},
		{SignalApproved, types.StatusCompleted},
	}

	s := types.StatusPending
	for _, step := range path {
		next, err := Transition(s, step.sig)
		require.NoError(t, err, "%s on %s", s, step.sig)
		assert.Equal(t, step.want, next)
		s = next
	}
}

func TestTransitionRejectsUnknownEdges(t *testing.T) {
	tests := []struct {
		from types.Status
		sig  Signal
	}{
		{types.StatusPending, SignalDrafted},
		{types.StatusGathering, SignalApproved},
		{types.StatusDrafting, SignalRejected},
		{types.StatusCompleted, SignalStart},
		{types.StatusFailed, SignalCrash},
		{types.StatusCompleted, SignalCrash},
		{types.Status("bogus"), SignalStart},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.sig), func(t *testing.T) {
			got, err := Transition(tt.from, tt.sig)
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, tt.from, got)
		})
	}
}

func TestCrashFromEveryActiveStatus(t *testing.T) {
	for _, s := range []types.Status{
		types.StatusPending, types.StatusGathering, types.StatusResolving,
		types.StatusDrafting, types.StatusJudging,
	} {
		got, err := Transition(s, SignalCrash)
		require.NoError(t, err)
		assert.Equal(t, types.StatusFailed, got)
	}
}

func TestJudgingIsTheOnlyBackEdge(t *testing.T) {
	order := map[types.Status]int{
		types.StatusPending: 0, types.StatusGathering: 1, types.StatusResolving: 2,
		types.StatusDrafting: 3, types.StatusJudging: 4, types.StatusCompleted: 5, types.StatusFailed: 5,
	}
	for from, edges := range transitions {
		for sig, to := range edges {
			if order[to] < order[from] {
				assert.Equal(t, types.StatusJudging, from, "unexpected back-edge %s -%s-> %s", from, sig, to)
				assert.Equal(t, types.StatusDrafting, to)
			}
		}
	}
}

func TestJudgeSignal(t *testing.T) {
	assert.Equal(t, SignalApproved, JudgeSignal(types.Approve("ok"), 0, 3))
	assert.Equal(t, SignalApproved, JudgeSignal(types.Approve("ok"), 2, 3))
	assert.Equal(t, SignalRejected, JudgeSignal(types.Reject("no"), 1, 3))
	assert.Equal(t, SignalRejected, JudgeSignal(types.Reject("no"), 2, 3))
	assert.Equal(t, SignalExhausted, JudgeSignal(types.Reject("no"), 3, 3))
	assert.Equal(t, SignalExhausted, JudgeSignal(types.Reject("no"), 1, 1))
}
