// Package types provides shared type definitions used across dossier packages.
// This package exists to break import cycles between pipeline, stages, and the
// adapters that render run results. Types here must stay free of behavior that
// depends on other dossier packages.
package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// RUN STATUS
// =============================================================================

// Status is the lifecycle state of an investigation run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusGathering Status = "gathering"
	StatusResolving Status = "resolving"
	StatusDrafting  Status = "drafting"
	StatusJudging   Status = "judging"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// =============================================================================
// STAGE OUTPUTS
// =============================================================================

// ActionKind distinguishes the two orchestrator decisions.
type ActionKind string

const (
	ActionCallTool ActionKind = "call_tool"
	ActionStop     ActionKind = "stop"
)

// Action is what the orchestrator wants to happen next.
type Action struct {
	Kind   ActionKind     `json:"kind"`
	Tool   string         `json:"tool,omitempty"`
	Args   map[string]any `json:"args,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// CallTool builds an action that invokes the named tool.
func CallTool(name string, args map[string]any) Action {
	return Action{Kind: ActionCallTool, Tool: name, Args: args}
}

// Stop builds an action that ends gathering.
func Stop(reason string) Action {
	return Action{Kind: ActionStop, Reason: reason}
}

// IsStop reports whether the action ends gathering.
func (a Action) IsStop() bool {
	return a.Kind == ActionStop
}

func (a Action) String() string {
	if a.IsStop() {
		return fmt.Sprintf("stop(%s)", a.Reason)
	}
	return fmt.Sprintf("%s(%v)", a.Tool, a.Args)
}

// Review is the pivot stage's assessment of the evidence so far.
// NoGaps set means the pivot found nothing worth following up.
type Review struct {
	NoGaps         bool     `json:"no_gaps"`
	Analysis       string   `json:"analysis,omitempty"`
	Gaps           []string `json:"gaps,omitempty"`
	RefinedQueries []string `json:"refined_queries,omitempty"`
}

// EntityProfile is one disambiguated subject produced by the resolver.
// Supporting and Conflicting hold evidence IDs from the run's store.
type EntityProfile struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Summary     string            `json:"summary,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Confidence  float64           `json:"confidence"`
	Supporting  []string          `json:"supporting"`
	Conflicting []string          `json:"conflicting,omitempty"`
}

// Ambiguous reports whether the profile carries a conflated-identity flag.
func (p EntityProfile) Ambiguous() bool {
	return len(p.Conflicting) > 0
}

// Draft is one attempt by the writer. Generation starts at 0.
type Draft struct {
	Generation int      `json:"generation"`
	Text       string   `json:"text"`
	ProfileIDs []string `json:"profile_ids"`
	NoData     bool     `json:"no_data,omitempty"`
}

// Verdict is the judge's decision on a single draft.
type Verdict struct {
	Approved          bool     `json:"approved"`
	UnsupportedClaims []string `json:"unsupported_claims,omitempty"`
	Reasoning         string   `json:"reasoning,omitempty"`
}

// Approve returns an approving verdict.
func Approve(reasoning string) Verdict {
	return Verdict{Approved: true, Reasoning: reasoning}
}

// Reject returns a rejecting verdict citing claims.
func Reject(reasoning string, claims ...string) Verdict {
	return Verdict{Reasoning: reasoning, UnsupportedClaims: claims}
}

// =============================================================================
// REPORT
// =============================================================================

// QualityCheck records whether the released report passed the judge.
type QualityCheck string

const (
	QualityPassed QualityCheck = "passed"
	QualityFailed QualityCheck = "failed"
)

// FailedQualityBanner prefixes reports released without approval.
const FailedQualityBanner = "REPORT FAILED QUALITY CHECK"

// Report is the final output of a completed run.
type Report struct {
	Text         string       `json:"text"`
	QualityCheck QualityCheck `json:"quality_check"`
	Generation   int          `json:"generation"`
	Rejections   int          `json:"rejections"`
	ProfileIDs   []string     `json:"profile_ids,omitempty"`
	NoData       bool         `json:"no_data,omitempty"`
	// Reasons holds the judge's last rejection reasons when QualityCheck is failed.
	Reasons []string `json:"reasons,omitempty"`
}

// Approved reports whether the judge accepted the released draft.
func (r Report) Approved() bool {
	return r.QualityCheck == QualityPassed
}

// ApprovedReport wraps an approved draft.
func ApprovedReport(d Draft, rejections int) Report {
	return Report{
		Text:         d.Text,
		QualityCheck: QualityPassed,
		Generation:   d.Generation,
		Rejections:   rejections,
		ProfileIDs:   d.ProfileIDs,
		NoData:       d.NoData,
	}
}

// FailedReport labels the last rejected draft as failing quality control.
func FailedReport(d Draft, rejections int, last Verdict) Report {
	var b strings.Builder
	b.WriteString(FailedQualityBanner)
	b.WriteString("\n\n")
	if last.Reasoning != "" {
		b.WriteString("Judge's reasoning: ")
		b.WriteString(last.Reasoning)
		b.WriteString("\n")
	}
	for _, c := range last.UnsupportedClaims {
		b.WriteString("- unsupported: ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	b.WriteString("\n---\n\n")
	b.WriteString(d.Text)

	return Report{
		Text:         b.String(),
		QualityCheck: QualityFailed,
		Generation:   d.Generation,
		Rejections:   rejections,
		ProfileIDs:   d.ProfileIDs,
		NoData:       d.NoData,
		Reasons:      append([]string(nil), last.UnsupportedClaims...),
	}
}
