package pipeline

import (
	"fmt"
	"math"

	"dossier/internal/types"
)

// EvidenceIndex answers whether an evidence ID exists in a run.
type EvidenceIndex interface {
	Has(id string) bool
}

// SanitizeProfiles enforces the resolver invariants regardless of what the
// backend produced: references to missing evidence are dropped, duplicates
// collapse, confidence is clamped to [0,1], and profiles are renumbered
// P1..Pn. A profile left with no supporting evidence is dropped.
func SanitizeProfiles(raw []types.EntityProfile, idx EvidenceIndex) ([]types.EntityProfile, []ReferenceFault) {
	var out []types.EntityProfile
	var faults []ReferenceFault

	for i, p := range raw {
		label := p.ID
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
		}

		supporting, bad := keepKnown(p.Supporting, idx)
		for _, id := range bad {
			faults = append(faults, ReferenceFault{ProfileID: label, EvidenceID: id, Field: "supporting"})
		}
		conflicting, bad := keepKnown(p.Conflicting, idx)
		for _, id := range bad {
			faults = append(faults, ReferenceFault{ProfileID: label, EvidenceID: id, Field: "conflicting"})
		}

		if len(supporting) == 0 {
			faults = append(faults, ReferenceFault{ProfileID: label, Field: "no supporting evidence remains"})
			continue
		}

		p.Supporting = supporting
		p.Conflicting = conflicting
		p.Confidence = clamp01(p.Confidence)
		p.ID = fmt.Sprintf("P%d", len(out)+1)
		out = append(out, p)
	}
	return out, faults
}

func keepKnown(ids []string, idx EvidenceIndex) (kept, dropped []string) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if idx.Has(id) {
			kept = append(kept, id)
		} else {
			dropped = append(dropped, id)
		}
	}
	return kept, dropped
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// CheckDisclosure runs the deterministic part of judging. A draft is
// rejected without consulting the judge backend when it cites profiles that
// do not exist, or when the profiles carry a conflated-identity flag and
// the draft leaves any of them out.
func CheckDisclosure(d types.Draft, profiles []types.EntityProfile) types.Verdict {
	known := make(map[string]bool, len(profiles))
	ambiguous := false
	for _, p := range profiles {
		known[p.ID] = true
		if p.Ambiguous() {
			ambiguous = true
		}
	}

	cited := make(map[string]bool, len(d.ProfileIDs))
	var claims []string
	for _, id := range d.ProfileIDs {
		if !known[id] {
			claims = append(claims, fmt.Sprintf("draft cites unknown profile %s", id))
			continue
		}
		cited[id] = true
	}

	if ambiguous {
		for _, p := range profiles {
			if !cited[p.ID] {
				claims = append(claims, fmt.Sprintf("flagged ambiguity omitted: profile %s (%s) is not covered", p.ID, p.Name))
			}
		}
	}

	if len(claims) > 0 {
		return types.Reject("draft failed the disclosure check", claims...)
	}
	return types.Approve("")
}
