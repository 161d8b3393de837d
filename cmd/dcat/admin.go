package main

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/history"
	"github.com/dogcat/dogcat/internal/rewrite"
)

var olderThanPattern = regexp.MustCompile(`^(\d+)d$`)

// parseOlderThan accepts "Nd" (days) or any time.ParseDuration value.
func parseOlderThan(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if m := olderThanPattern.FindStringSubmatch(s); m != nil {
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, err
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("--older-than must be Nd (e.g. 30d) or a duration: %w", err)
	}
	return d, nil
}

// confirmed reports whether a destructive command should write. Without
// --yes it runs as a dry run and says how to apply.
func confirmed(cmd *cobra.Command) bool {
	yes, _ := cmd.Flags().GetBool("yes")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	return yes && !dryRun
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Move closed issues into .dogcats/archive/",
	Long: `Move closed issues, with their dependencies, links and events, out of
issues.jsonl into archive/closed-<timestamp>.jsonl.

An issue stays when it has an open child, a parent that stays, or a
dependency or link to an issue that stays. Without --yes nothing is
written.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		namespace, _ := cmd.Flags().GetString("namespace")
		olderThanFlag, _ := cmd.Flags().GetString("older-than")
		olderThan, err := parseOlderThan(olderThanFlag)
		if err != nil {
			fatal(err)
		}
		apply := confirmed(cmd)

		res, err := rewrite.Archive(rootCtx, dogcatsDir, rewrite.ArchiveOptions{
			Namespace: namespace,
			OlderThan: olderThan,
			DryRun:    !apply,
		})
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"dry_run": !apply,
				"result":  res,
			})
			return
		}
		if len(res.Archived) == 0 {
			fmt.Println("No issues can be archived.")
		} else if apply {
			fmt.Printf("✓ Archived %d issue(s) to %s\n", res.Issues, res.Path)
			if res.Dependencies > 0 {
				fmt.Printf("  Including %d dependency record(s)\n", res.Dependencies)
			}
			if res.Links > 0 {
				fmt.Printf("  Including %d link record(s)\n", res.Links)
			}
		} else {
			fmt.Printf("Will archive %d issue(s):\n", len(res.Archived))
			for _, id := range res.Archived {
				fmt.Printf("  %s\n", id)
			}
		}
		if len(res.Skipped) > 0 {
			fmt.Printf("\nSkipping %d issue(s):\n", len(res.Skipped))
			for _, s := range res.Skipped {
				fmt.Printf("  %s: %s\n", s.ID, s.Reason)
			}
		}
		if !apply && len(res.Archived) > 0 {
			fmt.Println("\n(dry run - no changes made; re-run with --yes to archive)")
		}
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Permanently remove deleted issues and proposals",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		apply := confirmed(cmd)
		res, err := rewrite.Prune(rootCtx, dogcatsDir, !apply)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"dry_run":   !apply,
				"pruned":    res.Issues,
				"proposals": res.Proposals,
				"lines":     res.Lines,
			})
			return
		}
		if len(res.Issues)+len(res.Proposals) == 0 {
			fmt.Println("No tombstoned issues to prune")
			return
		}
		if !apply {
			fmt.Printf("Would prune %d tombstoned issue(s) and %d proposal(s):\n", len(res.Issues), len(res.Proposals))
			for _, id := range append(res.Issues, res.Proposals...) {
				fmt.Printf("  %s\n", id)
			}
			fmt.Println("\n(dry run - no changes made; re-run with --yes to prune)")
			return
		}
		fmt.Printf("✓ Pruned %d tombstoned issue(s)\n", len(res.Issues))
		if len(res.Proposals) > 0 {
			fmt.Printf("✓ Pruned %d tombstoned proposal(s)\n", len(res.Proposals))
		}
	},
}

var renameNamespaceCmd = &cobra.Command{
	Use:   "rename-namespace <old> <new>",
	Short: "Move every issue in a namespace to a new one",
	Long: `Rename a namespace across the log: issue ids, parents, duplicates,
comments, dependencies, links and events, then inbox proposals and the
project config.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		res, err := rewrite.RenameNamespace(rootCtx, dogcatsDir, args[0], args[1], rewrite.RenameOptions{By: actor})
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(res)
			return
		}
		fmt.Printf("✓ Renamed namespace '%s' → '%s'\n", res.From, res.To)
		fmt.Printf("  %d issue(s) renamed\n", len(res.Issues))
		if res.Proposals > 0 {
			fmt.Printf("  %d proposal(s) renamed\n", res.Proposals)
		}
		if res.ConfigUpdated {
			fmt.Println("  config.yaml updated")
		}
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite issues.jsonl keeping only current state and events",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := store.Compact(rootCtx); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"status": "compacted", "path": store.Path()})
			return
		}
		fmt.Printf("%s Compacted %s\n", color.GreenString("✓"), store.Path())
	},
}

var backfillHistoryCmd = &cobra.Command{
	Use:   "backfill-history",
	Short: "Synthesize history events from the snapshots already in the log",
	Long: `Replay successive issue snapshots and append the created, updated,
closed and deleted events they imply. Refuses to run when the log already
holds events, except with --dry-run.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		events, err := history.Backfill(rootCtx, dogcatsDir, dryRun)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"dry_run": dryRun,
				"events":  events,
			})
			return
		}
		if dryRun {
			fmt.Printf("Would backfill %d event(s)\n", len(events))
			for _, e := range events {
				fmt.Printf("  %s %s %s\n", e.Timestamp, e.EventType, e.IssueID)
			}
			return
		}
		fmt.Printf("✓ Backfilled %d event(s)\n", len(events))
	},
}

func init() {
	archiveCmd.Flags().String("namespace", "", "Only archive issues in this namespace")
	archiveCmd.Flags().String("older-than", "", "Only archive issues closed at least this long ago (e.g. 30d)")
	archiveCmd.Flags().BoolP("yes", "y", false, "Write the archive")
	archiveCmd.Flags().Bool("dry-run", false, "Show what would be archived")

	pruneCmd.Flags().BoolP("yes", "y", false, "Remove the tombstones")
	pruneCmd.Flags().Bool("dry-run", false, "Show what would be pruned")

	backfillHistoryCmd.Flags().Bool("dry-run", false, "Show the events without writing them")

	rootCmd.AddCommand(archiveCmd, pruneCmd, renameNamespaceCmd, compactCmd, backfillHistoryCmd)
}
