package pipeline

import (
	"time"

	"dossier/internal/evidence"
	"dossier/internal/types"
)

// Run is a point-in-time view of an investigation.
type Run struct {
	ID         string                `json:"id"`
	Query      string                `json:"query"`
	Status     types.Status          `json:"status"`
	Stage      string                `json:"stage,omitempty"`
	Step       int                   `json:"step"`
	CreatedAt  time.Time             `json:"created_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	Calls      []evidence.ToolCall   `json:"calls,omitempty"`
	Evidence   []evidence.Evidence   `json:"evidence,omitempty"`
	Profiles   []types.EntityProfile `json:"profiles,omitempty"`
	Drafts     []types.Draft         `json:"drafts,omitempty"`
	Verdicts   []types.Verdict       `json:"verdicts,omitempty"`
	Report     *types.Report         `json:"report,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Done reports whether the run reached a terminal status.
func (r Run) Done() bool {
	return r.Status.Terminal()
}
