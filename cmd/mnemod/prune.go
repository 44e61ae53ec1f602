package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	pruneOlderThan time.Duration
	pruneDryRun    bool
	pruneStats     bool
)

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete data that has not been accessed recently",
	Long: `Delete data items in the acting user's delete-permitted datasets that
were last accessed more than --older-than ago. Items never accessed count
once their creation predates the cutoff.

Pruning requires access tracking (maintenance.track_access) and refuses to
run before any access has been recorded. Deletions use hard mode, so each
document's orphaned graph neighbors are removed with it.

Examples:
  # Preview a 30-day prune
  mnemod prune --older-than 720h --dry-run

  # Inspect access-pattern counts before picking a window
  mnemod prune --older-than 720h --stats

  # Delete
  mnemod prune --older-than 720h`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "retention window; data untouched for longer is pruned")
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report candidates without deleting")
	pruneCmd.Flags().BoolVar(&pruneStats, "stats", false, "print access-pattern counts instead of pruning")
}

func runPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	out := cmd.OutOrStdout()
	if pruneStats {
		stats, err := app.pruner.Statistics(ctx, pruneOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Total data:    %d\n", stats.TotalData)
		fmt.Fprintf(out, "Tracked:       %d\n", stats.Tracked)
		fmt.Fprintf(out, "Untracked:     %d\n", stats.Untracked)
		fmt.Fprintf(out, "Unused (%s): %d\n", pruneOlderThan, stats.Unused)
		fmt.Fprintf(out, "Active:        %d\n", stats.Active)
		return nil
	}

	user, err := app.resolveUser(ctx)
	if err != nil {
		return err
	}

	report, err := app.pruner.PruneUnused(ctx, user, pruneOlderThan, pruneDryRun)
	if err != nil {
		return err
	}

	if pruneDryRun {
		fmt.Fprintf(out, "Dry run: %d unused item(s) would be deleted.\n", report.UnusedCount)
		for _, id := range report.UnusedDataIDs {
			fmt.Fprintf(out, "  %s\n", id)
		}
		return nil
	}

	fmt.Fprintf(out, "Pruned %d of %d unused item(s)", report.Deleted, report.UnusedCount)
	if report.Failed > 0 {
		fmt.Fprintf(out, ", %d failed", report.Failed)
	}
	fmt.Fprintln(out, ".")
	for _, msg := range report.Errors {
		fmt.Fprintf(out, "  %s\n", msg)
	}
	return nil
}
