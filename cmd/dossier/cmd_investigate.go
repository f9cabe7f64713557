package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dossier/internal/events"
	"dossier/internal/types"
)

var (
	investigateRaw  bool
	investigateJSON bool
)

// investigateCmd runs one investigation in-process and streams its events
var investigateCmd = &cobra.Command{
	Use:   "investigate [query]",
	Short: "Run an investigation and stream its progress",
	Long: `Runs one investigation in this process, printing every event as it
happens and rendering the released report at the end.

Example:
  dossier investigate "Jane Doe, cardiac surgeon, Boston"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInvestigate,
}

func init() {
	investigateCmd.Flags().BoolVar(&investigateRaw, "raw", false, "Print the report as plain markdown")
	investigateCmd.Flags().BoolVar(&investigateJSON, "json", false, "Print events as JSON lines")
}

func runInvestigate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A single run needs a single slot.
	cfg.Server.MaxConcurrentRuns = 1
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	svc := a.svc

	query := strings.Join(args, " ")
	id, err := svc.Submit(query)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !investigateJSON {
		fmt.Fprintf(out, "%s %s\n", dimColor.Sprint("run"), id)
	}

	ch, err := svc.Subscribe(ctx, id, 0)
	if err != nil {
		return err
	}

	var (
		report *types.Report
		status types.Status
	)
	enc := json.NewEncoder(out)
	for ev := range ch {
		if investigateJSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		} else {
			renderEvent(out, ev)
		}

		switch ev.Kind {
		case events.KindReport:
			var p events.ReportPayload
			if decodePayload(ev.Payload, &p) == nil {
				report = &p.Report
			}
		case events.KindDone:
			var p events.DonePayload
			if decodePayload(ev.Payload, &p) == nil {
				status = p.Status
			}
		}
	}

	// Let the run finish archiving; an interrupt cancels it quickly.
	drain := 30 * time.Second
	if ctx.Err() != nil {
		drain = time.Second
	}
	drainCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	_ = svc.Shutdown(drainCtx)

	if ctx.Err() != nil {
		return fmt.Errorf("interrupted; run %s abandoned", id)
	}
	if report != nil && !investigateJSON {
		if err := renderReport(out, *report, investigateRaw); err != nil {
			return err
		}
		t := a.usage.Run(id)
		fmt.Fprintf(out, "%s %d call(s), %d in / %d out\n", dimColor.Sprint("tokens"), t.Calls, t.Input, t.Output)
	}
	if status == types.StatusFailed {
		return fmt.Errorf("run %s failed", id)
	}
	return nil
}
