package stages

import (
	"context"
	"fmt"
	"strings"

	"dossier/internal/pipeline"
	"dossier/internal/types"
)

// Orchestrator picks the next tool call.
type Orchestrator struct {
	base
}

var _ pipeline.EntityAnalyzer = (*Orchestrator)(nil)

type analysisReply struct {
	Entities []string `json:"entities"`
}

// AnalyzeQuery names the people, organisations, places or events the
// query is about.
func (o *Orchestrator) AnalyzeQuery(ctx context.Context, query string) ([]string, error) {
	user := fmt.Sprintf("User query: %q", query)
	return ask(ctx, &o.base, analysisSystem, user, func(reply string) ([]string, error) {
		var r analysisReply
		if err := decodeJSON(reply, &r); err != nil {
			return nil, err
		}
		entities := nonBlank(r.Entities)
		if len(entities) == 0 {
			return nil, fmt.Errorf("no entities named")
		}
		return entities, nil
	})
}

type orchestratorReply struct {
	Action    string         `json:"action"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
	Query     string         `json:"query"`
	Reason    string         `json:"reason"`
}

// Decide returns Stop without consulting the backend once the step
// ceiling is reached.
func (o *Orchestrator) Decide(ctx context.Context, in pipeline.DecideInput) (types.Action, error) {
	if in.StepCeiling > 0 && in.Step >= in.StepCeiling {
		return types.Stop("step ceiling reached"), nil
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Initial query: %s\n", in.Query)
	if len(in.Entities) > 0 {
		fmt.Fprintf(&user, "Subject entities: %s\n", strings.Join(in.Entities, "; "))
	}
	fmt.Fprintf(&user, "Step: %d of %d\n\n", in.Step+1, in.StepCeiling)
	if in.Review != nil && in.Review.Analysis != "" {
		fmt.Fprintf(&user, "High-level analysis:\n%s\n\n", in.Review.Analysis)
	}
	if in.Review != nil && len(in.Review.Gaps) > 0 {
		fmt.Fprintf(&user, "Known gaps:\n%s\n", bulletList(in.Review.Gaps))
	}
	fmt.Fprintf(&user, "Suggested follow-up queries:\n%s\n", bulletList(in.FollowUps))
	fmt.Fprintf(&user, "Available tools:\n%s\n", renderCatalog(in.Catalog))
	fmt.Fprintf(&user, "Calls already made:\n%s\n", renderCalls(in.Calls))
	fmt.Fprintf(&user, "Evidence so far:\n%s", renderEvidence(in.Evidence, true))

	return ask(ctx, &o.base, orchestratorSystem, user.String(), func(reply string) (types.Action, error) {
		var r orchestratorReply
		if err := decodeJSON(reply, &r); err != nil {
			return types.Action{}, err
		}
		return r.action(in)
	})
}

func (r orchestratorReply) action(in pipeline.DecideInput) (types.Action, error) {
	if strings.EqualFold(r.Action, "stop") {
		return types.Stop(r.Reason), nil
	}
	if r.ToolName == "" {
		return types.Action{}, fmt.Errorf("tool_name is required when action is %q", r.Action)
	}

	args := r.Arguments
	if args == nil {
		args = map[string]any{}
	}
	// Some models answer with the older {"tool_name", "query"} shape.
	if r.Query != "" {
		for _, spec := range in.Catalog {
			if spec.Name != r.ToolName || len(spec.Schema.Required) == 0 {
				continue
			}
			if _, ok := args[spec.Schema.Required[0]]; !ok {
				args[spec.Schema.Required[0]] = r.Query
			}
		}
	}

	a := types.CallTool(r.ToolName, args)
	a.Reason = r.Reason
	return a, nil
}
