package stages

import (
	"context"
	"fmt"
	"strings"

	"dossier/internal/pipeline"
	"dossier/internal/types"
)

// Pivot reviews evidence and proposes follow-up queries.
type Pivot struct {
	base
}

type pivotReply struct {
	Analysis        string   `json:"analysis"`
	Gaps            []string `json:"gaps"`
	FollowUpQueries []string `json:"follow_up_queries"`
}

// Review reports NoGaps when the backend proposes no follow-up queries.
func (p *Pivot) Review(ctx context.Context, in pipeline.ReviewInput) (types.Review, error) {
	limit := p.opts.MaxFollowUps
	if limit <= 0 {
		limit = 3
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Initial query: %s\n", in.Query)
	if len(in.Entities) > 0 {
		fmt.Fprintf(&user, "Subject entities: %s\n", strings.Join(in.Entities, "; "))
	}
	existing := "(none yet)"
	if in.Previous != nil && in.Previous.Analysis != "" {
		existing = in.Previous.Analysis
	}
	fmt.Fprintf(&user, "Existing analysis: %s\n", existing)
	if in.Previous != nil && len(in.Previous.Gaps) > 0 {
		fmt.Fprintf(&user, "Gaps named last time:\n%s", bulletList(in.Previous.Gaps))
	}
	user.WriteString("\n")
	fmt.Fprintf(&user, "Calls made:\n%s\n", renderCalls(in.Calls))
	fmt.Fprintf(&user, "All collected data:\n---\n%s---\n", renderEvidence(in.Evidence, true))

	system := fmt.Sprintf(pivotSystem, limit)
	return ask(ctx, &p.base, system, user.String(), func(reply string) (types.Review, error) {
		var r pivotReply
		if err := decodeJSON(reply, &r); err != nil {
			return types.Review{}, err
		}

		queries := nonBlank(r.FollowUpQueries)
		if len(queries) > limit {
			queries = queries[:limit]
		}
		return types.Review{
			NoGaps:         len(queries) == 0,
			Analysis:       strings.TrimSpace(r.Analysis),
			Gaps:           nonBlank(r.Gaps),
			RefinedQueries: queries,
		}, nil
	})
}

func nonBlank(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
