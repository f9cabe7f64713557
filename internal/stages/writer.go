package stages

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"dossier/internal/evidence"
	"dossier/internal/pipeline"
	"dossier/internal/types"
)

// Writer drafts the brief.
type Writer struct {
	base
}

var profileTag = regexp.MustCompile(`\[(P\d+)\]`)

// Draft writes the no-data brief itself; everything else goes to the backend.
func (w *Writer) Draft(ctx context.Context, in pipeline.DraftInput) (types.Draft, error) {
	if in.NoData || len(in.Profiles) == 0 {
		return types.Draft{
			Generation: in.Generation,
			Text:       noDataBrief(in.Query, in.Evidence),
			NoData:     true,
		}, nil
	}

	var user strings.Builder
	fmt.Fprintf(&user, "Subject: %s\n\n", in.Query)
	fmt.Fprintf(&user, "---STRUCTURED PROFILES---\n%s\n---\n\n", renderProfiles(in.Profiles))
	fmt.Fprintf(&user, "---EVIDENCE CITED BY THE PROFILES---\n%s---\n", renderEvidence(cited(in.Evidence, in.Profiles), false))
	if len(in.Profiles) > 1 {
		fmt.Fprintf(&user, "\nThere are %d profiles. Cover every one of them under its own [P#] heading.\n", len(in.Profiles))
	}
	if in.Generation > 0 && len(in.PriorRejections) > 0 {
		fmt.Fprintf(&user, "\nYour previous draft was rejected by quality control. Remove or explicitly qualify these unsupported claims:\n%s",
			bulletList(in.PriorRejections))
	}

	known := make(map[string]bool, len(in.Profiles))
	for _, p := range in.Profiles {
		known[p.ID] = true
	}

	return ask(ctx, &w.base, writerSystem, user.String(), func(reply string) (types.Draft, error) {
		text := stripFence(strings.TrimSpace(reply))
		if text == "" {
			return types.Draft{}, errors.New("empty brief")
		}
		return types.Draft{
			Generation: in.Generation,
			Text:       text,
			ProfileIDs: taggedProfiles(text, known),
		}, nil
	})
}

func taggedProfiles(text string, known map[string]bool) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range profileTag.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if known[id] && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}

// cited keeps only the evidence some profile refers to.
func cited(items []evidence.Evidence, profiles []types.EntityProfile) []evidence.Evidence {
	want := make(map[string]bool)
	for _, p := range profiles {
		for _, id := range p.Supporting {
			want[id] = true
		}
		for _, id := range p.Conflicting {
			want[id] = true
		}
	}
	var out []evidence.Evidence
	for _, e := range items {
		if want[e.ID] {
			out = append(out, e)
		}
	}
	return out
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if block := extractJSONBlock(s); block != "" {
		return block
	}
	return s
}

func noDataBrief(query string, items []evidence.Evidence) string {
	var sb strings.Builder
	sb.WriteString("## 1. Executive Summary\n")
	fmt.Fprintf(&sb, "No verifiable subject data was found for %q. No profile could be established.\n\n", query)
	sb.WriteString("## 2. Detailed Findings\n- None.\n\n")
	sb.WriteString("## 3. Risk Assessment\n- **Risk Score:** Not assessable\n- **Justification:** No evidence was collected.\n\n")
	sb.WriteString("## 4. Information Gaps & Recommendations\n")

	seen := make(map[string]bool)
	for _, e := range items {
		if !e.NoData || e.Note == "" || seen[e.Tool+e.Note] {
			continue
		}
		seen[e.Tool+e.Note] = true
		fmt.Fprintf(&sb, "- %s: %s\n", e.Tool, e.Note)
	}
	if len(seen) == 0 {
		sb.WriteString("- No sources were queried.\n")
	}
	sb.WriteString("- Broaden the query or configure additional sources.\n")
	return sb.String()
}
