package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/config"
	"dossier/internal/events"
	"dossier/internal/pipeline"
	"dossier/internal/store"
	"dossier/internal/types"
)

func init() {
	color.NoColor = true
}

func TestRenderEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   events.Event
		want string
	}{
		{
			name: "stage change",
			ev:   events.Event{Seq: 1, Kind: events.KindStageChange, Payload: events.StageChangePayload{From: types.StatusPending, To: types.StatusGathering}},
			want: "  1 stage pending -> gathering\n",
		},
		{
			name: "tool call",
			ev: events.Event{Seq: 2, Kind: events.KindToolCall, Payload: events.ToolCallPayload{
				Tool: "web_search", Args: map[string]any{"query": "Jane Doe"}, Items: 3, DurationMs: 40,
			}},
			want: `  2 call web_search(query="Jane Doe") 3 item(s) 40ms` + "\n",
		},
		{
			name: "no data tool call",
			ev: events.Event{Seq: 3, Kind: events.KindToolCall, Payload: events.ToolCallPayload{
				Tool: "academic_search", NoData: true, Note: "not configured",
			}},
			want: "  3 call academic_search() no data: not configured 0ms\n",
		},
		{
			name: "archived log",
			ev:   events.Event{Seq: 4, Kind: events.KindLog, Payload: json.RawMessage(`{"level":"warn","stage":"pivot","message":"review failed"}`)},
			want: "  4 [pivot] review failed\n",
		},
		{
			name: "error",
			ev:   events.Event{Seq: 5, Kind: events.KindError, Payload: events.ErrorPayload{Stage: "writer", Message: "boom"}},
			want: "  5 error writer: boom\n",
		},
		{
			name: "done",
			ev:   events.Event{Seq: 6, Kind: events.KindDone, Payload: events.DonePayload{Status: types.StatusCompleted}},
			want: "  6 done: completed\n",
		},
		{
			name: "report is rendered elsewhere",
			ev:   events.Event{Seq: 7, Kind: events.KindReport, Payload: events.ReportPayload{}},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			renderEvent(&buf, tt.ev)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRenderReportRaw(t *testing.T) {
	var buf bytes.Buffer
	r := types.Report{Text: "## 1. Executive Summary\nNothing found.", QualityCheck: types.QualityFailed, Rejections: 3}
	require.NoError(t, renderReport(&buf, r, true))
	assert.Contains(t, buf.String(), "QUALITY CHECK FAILED")
	assert.Contains(t, buf.String(), "## 1. Executive Summary")
}

func TestNewRegistryCatalog(t *testing.T) {
	reg, err := newRegistry(config.DefaultConfig())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"web_search", "social_media_search", "company_database_search", "academic_search"}, reg.Names())
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestToolsCommand(t *testing.T) {
	out, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "tools")
	require.NoError(t, err)
	assert.Contains(t, out, "web_search [/web]")
	assert.Contains(t, out, "academic_search (not configured)")
	assert.Contains(t, out, "query string (required)")
}

func TestRunsCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")

	c := config.DefaultConfig()
	c.Archive = config.ArchiveConfig{Enabled: true, Path: dbPath}
	cfgPath := filepath.Join(dir, "dossier.yaml")
	require.NoError(t, c.Save(cfgPath))

	archive, err := store.Open(dbPath)
	require.NoError(t, err)
	report := types.Report{Text: "Brief body", QualityCheck: types.QualityPassed}
	run := pipeline.Run{ID: "run-42", Query: "Jane Doe", Status: types.StatusCompleted, CreatedAt: time.Now(), Report: &report}
	require.NoError(t, archive.SaveRun(context.Background(), run, []events.Event{
		{RunID: "run-42", Seq: 1, Kind: events.KindDone, Payload: events.DonePayload{Status: types.StatusCompleted}, Time: time.Now()},
	}))
	require.NoError(t, archive.Close())

	out, err := execute(t, "--config", cfgPath, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "run-42")
	assert.Contains(t, out, "passed")

	out, err = execute(t, "--config", cfgPath, "show", "run-42", "--events", "--raw")
	require.NoError(t, err)
	assert.Contains(t, out, "done: completed")
	assert.Contains(t, out, "Brief body")
	showEvents, showRaw = false, false

	out, err = execute(t, "--config", cfgPath, "runs", "prune", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 0 run(s)")

	out, err = execute(t, "--config", cfgPath, "runs", "prune", "--older-than", "1ns")
	require.NoError(t, err)
	assert.Contains(t, out, "Pruned 1 run(s)")
	pruneAge = 30 * 24 * time.Hour

	_, err = execute(t, "--config", filepath.Join(dir, "nothing.yaml"), "runs")
	assert.ErrorIs(t, err, errArchiveDisabled)
}

func TestInvestigateRequiresCredentials(t *testing.T) {
	for _, k := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
		t.Setenv(k, "")
	}
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "none.yaml"), "investigate", "Jane", "Doe")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "API key"), err.Error())
}
