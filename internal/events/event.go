// Package events implements the per-run progress stream: an ordered,
// retained log of what the pipeline did, replayable from any point.
package events

import (
	"time"

	"dossier/internal/types"
)

// Kind classifies an event.
type Kind string

const (
	KindLog         Kind = "log"
	KindStageChange Kind = "stage-change"
	KindToolCall    Kind = "tool-call"
	KindReport      Kind = "report"
	KindError       Kind = "error"
	KindDone        Kind = "done"
)

// Event is one entry in a run's log. Seq starts at 1 and increases by one
// for every event of the run.
type Event struct {
	RunID   string    `json:"run_id"`
	Seq     int64     `json:"seq"`
	Kind    Kind      `json:"kind"`
	Payload any       `json:"payload"`
	Time    time.Time `json:"time"`
}

// Level is the severity of a log event.
type Level string

const (
	LevelInfo Level = "info"
	LevelWarn Level = "warn"
)

// LogPayload is a narrative line, including recovered setbacks.
type LogPayload struct {
	Level   Level  `json:"level"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// StageChangePayload records a status transition.
type StageChangePayload struct {
	From types.Status `json:"from"`
	To   types.Status `json:"to"`
}

// ToolCallPayload summarizes one recorded tool call.
type ToolCallPayload struct {
	Seq        int            `json:"seq"`
	Tool       string         `json:"tool"`
	Args       map[string]any `json:"args,omitempty"`
	Items      int            `json:"items"`
	NoData     bool           `json:"no_data"`
	Note       string         `json:"note,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

// ReportPayload carries the released report.
type ReportPayload struct {
	Report types.Report `json:"report"`
}

// ErrorPayload carries the diagnostic for a failed run.
type ErrorPayload struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// DonePayload closes the stream with the run's terminal status.
type DonePayload struct {
	Status types.Status `json:"status"`
}
