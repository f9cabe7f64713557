package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dossier/internal/pipeline"
	"dossier/internal/types"
)

// Judge verifies a brief against its sources.
type Judge struct {
	base
}

type judgeReply struct {
	IsAccurate        *bool    `json:"is_accurate"`
	UnsupportedClaims []string `json:"unsupported_claims"`
	Reasoning         string   `json:"reasoning"`
}

// Verify asks the backend whether every claim in the draft is traceable.
func (j *Judge) Verify(ctx context.Context, in pipeline.VerifyInput) (types.Verdict, error) {
	var user strings.Builder
	fmt.Fprintf(&user, "Subject: %s\n\n", in.Query)
	fmt.Fprintf(&user, "Source profiles:\n---\n%s\n---\n\n", renderProfiles(in.Profiles))
	fmt.Fprintf(&user, "Source evidence:\n---\n%s---\n\n", renderEvidence(in.Evidence, true))
	fmt.Fprintf(&user, "Generated brief (draft %d):\n---\n%s\n---\n", in.Draft.Generation, in.Draft.Text)

	return ask(ctx, &j.base, judgeSystem, user.String(), func(reply string) (types.Verdict, error) {
		var r judgeReply
		if err := decodeJSON(reply, &r); err != nil {
			return types.Verdict{}, err
		}
		if r.IsAccurate == nil {
			return types.Verdict{}, errors.New(`"is_accurate" is required`)
		}
		reasoning := strings.TrimSpace(r.Reasoning)
		if *r.IsAccurate {
			return types.Approve(reasoning), nil
		}
		return types.Reject(reasoning, nonBlank(r.UnsupportedClaims)...), nil
	})
}
