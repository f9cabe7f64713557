package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"dossier/internal/store"
)

var (
	runsLimit  int
	showEvents bool
	showRaw    bool
	pruneAge   time.Duration
)

// runsCmd lists archived runs
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List archived runs",
	Args:  cobra.NoArgs,
	RunE:  listRuns,
}

// showCmd prints one archived run
var showCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show an archived run's report and events",
	Args:  cobra.ExactArgs(1),
	RunE:  showRun,
}

// pruneCmd deletes old archived runs
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete archived runs older than --older-than",
	Args:  cobra.NoArgs,
	RunE:  pruneRuns,
}

func init() {
	runsCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().DurationVar(&pruneAge, "older-than", 30*24*time.Hour, "Delete runs created longer ago than this")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Maximum runs to list (0 = all)")
	showCmd.Flags().BoolVar(&showEvents, "events", false, "Replay the run's event log")
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the report as plain markdown")
}

var errArchiveDisabled = errors.New("run archive is disabled (set archive.enabled or DOSSIER_ARCHIVE)")

func requireArchive() (*store.Archive, error) {
	archive, err := openArchive(cfg)
	if err != nil {
		return nil, err
	}
	if archive == nil {
		return nil, errArchiveDisabled
	}
	return archive, nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	archive, err := requireArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	runs, err := archive.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "No archived runs.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tQUALITY\tQUERY")
	for _, r := range runs {
		quality := string(r.QualityCheck)
		if quality == "" {
			quality = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.CreatedAt.Local().Format(time.DateTime), r.Status, quality, r.Query)
	}
	return tw.Flush()
}

func pruneRuns(cmd *cobra.Command, args []string) error {
	if pruneAge <= 0 {
		return fmt.Errorf("--older-than must be positive")
	}
	archive, err := requireArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	n, err := archive.DeleteBefore(cmd.Context(), time.Now().Add(-pruneAge))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s) from %s\n", n, archive.Path())
	return nil
}

func showRun(cmd *cobra.Command, args []string) error {
	archive, err := requireArchive()
	if err != nil {
		return err
	}
	defer archive.Close()

	ctx := cmd.Context()
	run, err := archive.LoadRun(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n%s %q\n%s %s\n", dimColor.Sprint("run"), run.ID, dimColor.Sprint("query"), run.Query,
		dimColor.Sprint("status"), run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "%s %s\n", errColor.Sprint("error"), run.Error)
	}

	if showEvents {
		evs, err := archive.LoadEvents(ctx, run.ID, 0)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		for _, ev := range evs {
			renderEvent(out, ev)
		}
	}

	if run.Report != nil {
		return renderReport(out, *run.Report, showRaw)
	}
	return nil
}
