package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dossier/internal/events"
	"dossier/internal/evidence"
	"dossier/internal/tools"
	"dossier/internal/types"
)

type orchestratorFunc func(context.Context, DecideInput) (types.Action, error)

func (f orchestratorFunc) Decide(ctx context.Context, in DecideInput) (types.Action, error) {
	return f(ctx, in)
}

// analyzingOrchestrator also names the query's subjects up front.
type analyzingOrchestrator struct {
	orchestratorFunc
	analyze func(ctx context.Context, query string) ([]string, error)
}

func (a analyzingOrchestrator) AnalyzeQuery(ctx context.Context, query string) ([]string, error) {
	return a.analyze(ctx, query)
}

type pivotFunc func(context.Context, ReviewInput) (types.Review, error)

func (f pivotFunc) Review(ctx context.Context, in ReviewInput) (types.Review, error) {
	return f(ctx, in)
}

type resolverFunc func(context.Context, ResolveInput) ([]types.EntityProfile, error)

func (f resolverFunc) Resolve(ctx context.Context, in ResolveInput) ([]types.EntityProfile, error) {
	return f(ctx, in)
}

type writerFunc func(context.Context, DraftInput) (types.Draft, error)

func (f writerFunc) Draft(ctx context.Context, in DraftInput) (types.Draft, error) {
	return f(ctx, in)
}

type judgeFunc func(context.Context, VerifyInput) (types.Verdict, error)

func (f judgeFunc) Verify(ctx context.Context, in VerifyInput) (types.Verdict, error) {
	return f(ctx, in)
}

// script returns the actions in order, then Stop.
func script(actions ...types.Action) orchestratorFunc {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, in DecideInput) (types.Action, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(actions) {
			return types.Stop("script exhausted"), nil
		}
		a := actions[i]
		i++
		return a, nil
	}
}

func search(q string) types.Action {
	return types.CallTool("web_search", map[string]any{"query": q})
}

// namesakeFindings describes two different people called Jane Doe.
var namesakeFindings = []evidence.Finding{
	{Source: "web_search", Title: "Dr. Jane Doe", URL: "https://example.org/surgeon", Content: "Jane Doe is a cardiac surgeon in Boston."},
	{Source: "web_search", Title: "Capt. Jane Doe", URL: "https://example.com/pilot", Content: "Jane Doe is an airline pilot in Seattle."},
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(&tools.Tool{
		Name:     "web_search",
		Category: tools.CategoryWeb,
		Schema: tools.ToolSchema{
			Required:   []string{"query"},
			Properties: map[string]tools.Property{"query": {Type: "string"}},
		},
		Execute: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			q, _ := args["query"].(string)
			if strings.Contains(q, "nothing") {
				return tools.NoData("No results found for: " + q), nil
			}
			return &tools.Result{Data: namesakeFindings}, nil
		},
	})
	reg.MustRegister(&tools.Tool{
		Name:     "hang",
		Category: tools.CategoryWeb,
		Execute: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})
	return reg
}

func testLimits() Limits {
	return Limits{
		StepCeiling:    5,
		PivotInterval:  100,
		RedraftCeiling: 3,
		MaxFollowUps:   3,
		GatherBudget:   time.Minute,
		RunTimeout:     time.Minute,
	}
}

func defaultStages() Stages {
	return Stages{
		Orchestrator: script(),
		Pivot: pivotFunc(func(ctx context.Context, in ReviewInput) (types.Review, error) {
			return types.Review{NoGaps: true}, nil
		}),
		Resolver: resolverFunc(func(ctx context.Context, in ResolveInput) ([]types.EntityProfile, error) {
			return nil, nil
		}),
		Writer: writerFunc(func(ctx context.Context, in DraftInput) (types.Draft, error) {
			if in.NoData {
				return types.Draft{Text: "No verifiable subject data was found."}, nil
			}
			ids := make([]string, 0, len(in.Profiles))
			for _, p := range in.Profiles {
				ids = append(ids, p.ID)
			}
			return types.Draft{Text: "Report on " + in.Query, ProfileIDs: ids}, nil
		}),
		Judge: judgeFunc(func(ctx context.Context, in VerifyInput) (types.Verdict, error) {
			return types.Approve("all claims traceable"), nil
		}),
	}
}

type outcome struct {
	ctrl   *Controller
	report *types.Report
	err    error
	events []events.Event
}

func (o outcome) run() Run {
	return o.ctrl.Snapshot()
}

func execute(t *testing.T, stages Stages, limits Limits, toolTimeout time.Duration) outcome {
	t.Helper()
	bus := events.NewBus(time.Minute, time.Second)
	log, err := bus.Open("run-1")
	require.NoError(t, err)

	if toolTimeout == 0 {
		toolTimeout = time.Second
	}
	ctrl := NewController("run-1", "Jane Doe", stages, tools.NewInvoker(testRegistry(t), toolTimeout), limits, log)
	report, err := ctrl.Execute(context.Background())

	return outcome{ctrl: ctrl, report: report, err: err, events: log.Events(0)}
}

// stageChanges renders stage-change events as "from->to".
func stageChanges(evs []events.Event) []string {
	var out []string
	for _, ev := range evs {
		if p, ok := ev.Payload.(events.StageChangePayload); ok {
			out = append(out, fmt.Sprintf("%s->%s", p.From, p.To))
		}
	}
	return out
}

func logMessages(evs []events.Event, level events.Level) []string {
	var out []string
	for _, ev := range evs {
		if p, ok := ev.Payload.(events.LogPayload); ok && p.Level == level {
			out = append(out, p.Message)
		}
	}
	return out
}

func kinds(evs []events.Event) []events.Kind {
	out := make([]events.Kind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}
