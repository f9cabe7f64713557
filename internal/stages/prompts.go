package stages

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"dossier/internal/evidence"
	"dossier/internal/tools"
	"dossier/internal/types"
)

const orchestratorSystem = `You are a master OSINT orchestration agent. Given the state of an investigation, choose the single best next retrieval action, or decide that gathering is complete.

You never see tool output directly in this turn; you only choose.

Output ONLY a JSON object with these keys:
- "action": "call_tool" or "stop"
- "tool_name": one of the available tools (when action is call_tool)
- "arguments": an object matching the tool's parameters (when action is call_tool)
- "reason": one short sentence explaining the choice

Example:
{"action": "call_tool", "tool_name": "web_search", "arguments": {"query": "Jane Doe Boston surgeon"}, "reason": "Confirm employer."}`

const analysisSystem = `You are an OSINT query analysis agent. Parse the user's raw query and extract the primary investigative entities: the main person, organisation, location or event to be investigated.

Output ONLY a JSON object with a single key "entities", a list of strings.

Example:
User query: "Find out about Jane Doe, the Boston surgeon"
{"entities": ["Jane Doe", "Boston"]}`

const pivotSystem = `You are an expert OSINT pivot agent. Analyze all data collected so far, identify what is still missing to build a complete profile, and suggest targeted follow-up queries.

Update the existing analysis with any new key information rather than starting over.

If the investigation seems complete or has hit a dead end, return an empty follow_up_queries list.

Output ONLY a JSON object with these keys:
- "analysis": the updated analysis, a concise summary (2-3 sentences) of the investigation so far
- "gaps": a list of missing pieces of information
- "follow_up_queries": up to %d specific search queries that would close those gaps`

const resolverSystem = `You are an expert OSINT analyst specializing in entity resolution.

Rules:
1. Assume conflation. The evidence may describe SEVERAL different people or organisations sharing a name. Separate them.
2. Look for contradictions in timelines, professions and locations.
3. Create one profile per distinct subject.
4. Cite evidence only by the IDs shown in brackets, e.g. "E1.2". Never invent IDs.
5. When a piece of evidence supports one profile and contradicts another, list it as conflicting on the other profile.
6. Assign each profile a confidence_score from 0.0 to 1.0.

Output ONLY a JSON object:
{"profiles": [{"profile_name": "...", "summary": "...", "confidence_score": 0.9, "attributes": {"occupation": "..."}, "supporting_evidence": ["E1.1"], "conflicting_evidence": ["E1.2"]}]}

Return {"profiles": []} when no evidence is usable.`

const writerSystem = `You are an intelligence analyst writing a concise, fact-based brief. Report with accuracy and state uncertainty clearly. Use only facts present in the profiles you are given.

Follow this structure precisely, in markdown:

## 1. Executive Summary
If there is more than one profile, the primary finding MUST be that the data is likely conflated and a definitive assessment cannot be made.

## 2. Detailed Findings
One subsection per profile. Start each subsection heading with the profile ID in brackets, e.g. "### [P1] Cardiac surgeon". Facts as bullet points.

## 3. Risk Assessment
Risk Score and 1-3 bullet justification. If conflated, the score MUST be MEDIUM or HIGH.

## 4. Information Gaps & Recommendations
List what is missing. If conflated, the first recommendation is identity verification to de-conflict the data.

Output only the brief.`

const judgeSystem = `You are the Judge, a meticulous quality control reviewer. Decide whether an intelligence brief is factually consistent with its source profiles and evidence and free of speculation.

Approve only if every factual claim in the brief is traceable to at least one evidence item. Any unsupported or speculative claim means rejection, and you must quote that claim.

Output ONLY a JSON object:
{"is_accurate": true or false, "unsupported_claims": ["quoted claim", ...], "reasoning": "brief explanation"}`

// renderCatalog lists tools with their parameters.
func renderCatalog(specs []tools.Spec) string {
	var sb strings.Builder
	for _, s := range specs {
		fmt.Fprintf(&sb, "- %s: %s", s.Name, s.Description)
		if s.Placeholder {
			sb.WriteString(" (source not configured; returns no data)")
		}
		sb.WriteString("\n")

		names := make([]string, 0, len(s.Schema.Properties))
		for name := range s.Schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p := s.Schema.Properties[name]
			req := ""
			for _, r := range s.Schema.Required {
				if r == name {
					req = ", required"
				}
			}
			fmt.Fprintf(&sb, "    %s (%s%s): %s\n", name, p.Type, req, p.Description)
		}
	}
	return sb.String()
}

// renderEvidence lists evidence as "[ID] (tool) title <url>: content".
func renderEvidence(items []evidence.Evidence, withNoData bool) string {
	var sb strings.Builder
	for _, e := range items {
		if e.NoData {
			if withNoData {
				fmt.Fprintf(&sb, "[%s] (%s) no data: %s\n", e.ID, e.Tool, e.Note)
			}
			continue
		}
		fmt.Fprintf(&sb, "[%s] (%s)", e.ID, e.Tool)
		if e.Data.Title != "" {
			fmt.Fprintf(&sb, " %s", e.Data.Title)
		}
		if e.Data.URL != "" {
			fmt.Fprintf(&sb, " <%s>", e.Data.URL)
		}
		fmt.Fprintf(&sb, ": %s\n", truncateString(e.Data.Content, 1200))
	}
	if sb.Len() == 0 {
		return "(none)\n"
	}
	return sb.String()
}

// renderCalls lists what has already been tried.
func renderCalls(calls []evidence.ToolCall) string {
	if len(calls) == 0 {
		return "(none)\n"
	}
	var sb strings.Builder
	for _, c := range calls {
		args, _ := json.Marshal(c.Args)
		fmt.Fprintf(&sb, "%d. %s %s\n", c.Seq, c.Tool, args)
	}
	return sb.String()
}

// renderProfiles renders profiles as indented JSON for the writer and judge.
func renderProfiles(profiles []types.EntityProfile) string {
	data, err := json.MarshalIndent(profiles, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "(none)\n"
	}
	var sb strings.Builder
	for _, it := range items {
		fmt.Fprintf(&sb, "- %s\n", it)
	}
	return sb.String()
}
