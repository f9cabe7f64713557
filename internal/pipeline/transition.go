package pipeline

import (
	"fmt"

	"dossier/internal/types"
)

// Signal is an input to the run state machine.
type Signal string

const (
	SignalStart     Signal = "start"
	SignalGathered  Signal = "gathered"
	SignalResolved  Signal = "resolved"
	SignalDrafted   Signal = "drafted"
	SignalApproved  Signal = "approved"
	SignalRejected  Signal = "rejected"
	SignalExhausted Signal = "exhausted" // redraft ceiling reached without approval
	SignalCrash     Signal = "crash"
)

var transitions = map[types.Status]map[Signal]types.Status{
	types.StatusPending: {
		SignalStart: types.StatusGathering,
	},
	types.StatusGathering: {
		SignalGathered: types.StatusResolving,
	},
	types.StatusResolving: {
		SignalResolved: types.StatusDrafting,
	},
	types.StatusDrafting: {
		SignalDrafted: types.StatusJudging,
	},
	types.StatusJudging: {
		SignalApproved:  types.StatusCompleted,
		SignalRejected:  types.StatusDrafting,
		SignalExhausted: types.StatusCompleted,
	},
	types.StatusCompleted: {},
	types.StatusFailed:    {},
}

// Transition returns the status reached from from on sig.
// Crash moves any non-terminal status to failed.
func Transition(from types.Status, sig Signal) (types.Status, error) {
	edges, ok := transitions[from]
	if !ok {
		return from, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if sig == SignalCrash && !from.Terminal() {
		return types.StatusFailed, nil
	}
	to, ok := edges[sig]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, sig)
	}
	return to, nil
}

// JudgeSignal picks the signal that follows a verdict. rejections counts the
// rejections so far including this verdict; ceiling is the most the run
// tolerates before releasing the draft labeled as failing quality control.
func JudgeSignal(v types.Verdict, rejections, ceiling int) Signal {
	switch {
	case v.Approved:
		return SignalApproved
	case rejections >= ceiling:
		return SignalExhausted
	default:
		return SignalRejected
	}
}
