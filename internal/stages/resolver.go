package stages

import (
	"context"
	"fmt"
	"strings"

	"dossier/internal/pipeline"
	"dossier/internal/types"
)

// Resolver separates evidence into distinct subject profiles.
type Resolver struct {
	base
}

type resolverReply struct {
	Profiles []struct {
		ProfileName         string            `json:"profile_name"`
		Summary             string            `json:"summary"`
		ConfidenceScore     float64           `json:"confidence_score"`
		Attributes          map[string]string `json:"attributes"`
		SupportingEvidence  []string          `json:"supporting_evidence"`
		ConflictingEvidence []string          `json:"conflicting_evidence"`
	} `json:"profiles"`
}

// Resolve returns no profiles, without consulting the backend, when no
// evidence carries data. Reference and range checks happen in the pipeline.
func (r *Resolver) Resolve(ctx context.Context, in pipeline.ResolveInput) ([]types.EntityProfile, error) {
	usable := 0
	for _, e := range in.Evidence {
		if !e.NoData {
			usable++
		}
	}
	if usable == 0 {
		return nil, nil
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Target: %s\n\n", in.Query)
	fmt.Fprintf(&user, "---RAW EVIDENCE---\n%s---\n", renderEvidence(in.Evidence, false))

	return ask(ctx, &r.base, resolverSystem, user.String(), func(reply string) ([]types.EntityProfile, error) {
		var rr resolverReply
		if err := decodeJSON(reply, &rr); err != nil {
			return nil, err
		}
		profiles := make([]types.EntityProfile, 0, len(rr.Profiles))
		for i, p := range rr.Profiles {
			profiles = append(profiles, types.EntityProfile{
				ID:          fmt.Sprintf("P%d", i+1),
				Name:        strings.TrimSpace(p.ProfileName),
				Summary:     strings.TrimSpace(p.Summary),
				Attributes:  p.Attributes,
				Confidence:  p.ConfidenceScore,
				Supporting:  p.SupportingEvidence,
				Conflicting: p.ConflictingEvidence,
			})
		}
		return profiles, nil
	})
}
