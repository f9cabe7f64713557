package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"dossier/internal/events"
	"dossier/internal/types"
)

var (
	stageColor = color.New(color.FgCyan, color.Bold)
	toolColor  = color.New(color.FgBlue)
	warnColor  = color.New(color.FgYellow)
	errColor   = color.New(color.FgRed, color.Bold)
	okColor    = color.New(color.FgGreen, color.Bold)
	dimColor   = color.New(color.Faint)
)

// decodePayload converts a live payload or an archived json.RawMessage
// into its typed form.
func decodePayload(p any, out any) error {
	raw, ok := p.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(p); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, out)
}

// renderEvent writes one line per event. Report events are skipped; the
// report is rendered separately.
func renderEvent(w io.Writer, ev events.Event) {
	prefix := dimColor.Sprintf("%3d", ev.Seq)

	switch ev.Kind {
	case events.KindStageChange:
		var p events.StageChangePayload
		if decodePayload(ev.Payload, &p) == nil {
			fmt.Fprintf(w, "%s %s %s -> %s\n", prefix, stageColor.Sprint("stage"), p.From, p.To)
		}
	case events.KindLog:
		var p events.LogPayload
		if decodePayload(ev.Payload, &p) == nil {
			label := "log"
			if p.Stage != "" {
				label = p.Stage
			}
			line := fmt.Sprintf("[%s] %s", label, p.Message)
			if p.Level == events.LevelWarn {
				line = warnColor.Sprint(line)
			}
			fmt.Fprintf(w, "%s %s\n", prefix, line)
		}
	case events.KindToolCall:
		var p events.ToolCallPayload
		if decodePayload(ev.Payload, &p) == nil {
			result := fmt.Sprintf("%d item(s)", p.Items)
			if p.NoData {
				result = warnColor.Sprintf("no data: %s", p.Note)
			}
			fmt.Fprintf(w, "%s %s %s(%s) %s %s\n", prefix, toolColor.Sprint("call"), p.Tool, formatArgs(p.Args),
				result, dimColor.Sprintf("%dms", p.DurationMs))
		}
	case events.KindError:
		var p events.ErrorPayload
		if decodePayload(ev.Payload, &p) == nil {
			fmt.Fprintf(w, "%s %s %s: %s\n", prefix, errColor.Sprint("error"), p.Stage, p.Message)
		}
	case events.KindDone:
		var p events.DonePayload
		if decodePayload(ev.Payload, &p) == nil {
			c := okColor
			if p.Status == types.StatusFailed {
				c = errColor
			}
			fmt.Fprintf(w, "%s %s\n", prefix, c.Sprintf("done: %s", p.Status))
		}
	case events.KindReport:
	default:
		fmt.Fprintf(w, "%s %s\n", prefix, ev.Kind)
	}
}

func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, fmt.Sprint(args[k])))
	}
	return strings.Join(parts, ", ")
}

// renderReport prints the report as terminal markdown, or verbatim when raw.
func renderReport(w io.Writer, r types.Report, raw bool) error {
	header := okColor.Sprint("QUALITY CHECK PASSED")
	if !r.Approved() {
		header = errColor.Sprint("QUALITY CHECK FAILED")
	}
	fmt.Fprintf(w, "\n%s  (draft %d, %d rejection(s))\n\n", header, r.Generation, r.Rejections)

	if raw {
		_, err := fmt.Fprintln(w, r.Text)
		return err
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		_, err = fmt.Fprintln(w, r.Text)
		return err
	}
	out, err := renderer.Render(r.Text)
	if err != nil {
		_, err = fmt.Fprintln(w, r.Text)
		return err
	}
	_, err = fmt.Fprint(w, out)
	return err
}
