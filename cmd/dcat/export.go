package main

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/storage/sqlite"
	"github.com/dogcat/dogcat/internal/types"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current state to SQLite or compacted JSONL",
	Long: `Export the current issue state.

  --sqlite out.db   write a read-only SQLite snapshot (issues, dependencies,
                    links, labels, comments, events, proposals and a
                    ready_issues view) for ad-hoc SQL
  --jsonl [file]    write the compacted log: one line per issue, the live
                    dependencies and links, then events in order. Without
                    a file the log goes to stdout.

The JSONL log remains the source of truth; exports are disposable.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		sqlitePath, _ := cmd.Flags().GetString("sqlite")
		jsonlPath, _ := cmd.Flags().GetString("jsonl")
		toJSONL := cmd.Flags().Changed("jsonl")

		switch {
		case sqlitePath != "" && toJSONL:
			fatalf("--sqlite and --jsonl are mutually exclusive")
		case sqlitePath != "":
			exportSQLite(sqlitePath)
		case toJSONL:
			exportJSONL(jsonlPath)
		default:
			fatalf("choose an export format: --sqlite <file> or --jsonl [file]")
		}
	},
}

func exportSQLite(path string) {
	ctx := rootCtx
	issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeClosed: true, IncludeTombstones: true})
	if err != nil {
		fatal(err)
	}
	events, err := store.ReadEvents(ctx, "", 0)
	if err != nil {
		fatal(err)
	}
	proposals := openInbox(dogcatsDir).List(true, "")

	stats, err := sqlite.Export(ctx, path, sqlite.Snapshot{
		Issues:       issues,
		Dependencies: store.AllDependencies(),
		Links:        store.AllLinks(),
		Events:       events,
		Proposals:    proposals,
	})
	if err != nil {
		fatal(err)
	}
	if err := sqlite.Verify(ctx, stats); err != nil {
		fatal(err)
	}
	if jsonOutput {
		outputJSON(stats)
		return
	}
	fmt.Printf("✓ Exported to %s\n", stats.Path)
	fmt.Printf("  %d issue(s), %d dependency(ies), %d link(s), %d event(s), %d proposal(s)\n",
		stats.Issues, stats.Dependencies, stats.Links, stats.Events, stats.Proposals)
}

func exportJSONL(path string) {
	ctx := rootCtx
	var buf bytes.Buffer
	write := func(data []byte, err error) {
		if err != nil {
			fatal(err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeClosed: true, IncludeTombstones: true})
	if err != nil {
		fatal(err)
	}
	for _, issue := range issues {
		write(record.EncodeIssue(issue))
	}
	for _, dep := range store.AllDependencies() {
		write(record.EncodeDependency(dep, types.OpAdd))
	}
	for _, link := range store.AllLinks() {
		write(record.EncodeLink(link, types.OpAdd))
	}
	events, err := store.ReadEvents(ctx, "", 0)
	if err != nil {
		fatal(err)
	}
	// ReadEvents is newest first; the log is chronological.
	slices.Reverse(events)
	for _, e := range events {
		write(record.EncodeEvent(e))
	}

	if path == "" || path == "-" {
		_, _ = os.Stdout.Write(buf.Bytes())
		return
	}
	if err := jsonlfile.WriteAtomic(path, buf.Bytes()); err != nil {
		fatal(err)
	}
	if jsonOutput {
		outputJSON(map[string]interface{}{"path": path, "issues": len(issues), "events": len(events)})
		return
	}
	fmt.Printf("✓ Exported %d issue(s) to %s\n", len(issues), path)
}

func init() {
	exportCmd.Flags().String("sqlite", "", "Write a SQLite snapshot to this file")
	exportCmd.Flags().String("jsonl", "", "Write the compacted log to this file (default stdout)")
	exportCmd.Flags().Lookup("jsonl").NoOptDefVal = "-"
	rootCmd.AddCommand(exportCmd)
}
