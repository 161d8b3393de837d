package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/history"
	"github.com/dogcat/dogcat/internal/types"
)

var eventSymbols = map[types.EventType]string{
	types.EventCreated:  "+",
	types.EventUpdated:  "~",
	types.EventClosed:   "✓",
	types.EventReopened: "↺",
	types.EventDeleted:  "✗",
}

var eventColors = map[types.EventType]*color.Color{
	types.EventCreated:  color.New(color.FgGreen),
	types.EventUpdated:  color.New(color.FgCyan),
	types.EventClosed:   color.New(color.FgHiBlack),
	types.EventReopened: color.New(color.FgYellow),
	types.EventDeleted:  color.New(color.FgRed),
}

// printEvents renders events newest first with one line per field change.
func printEvents(events []*types.Event) {
	for _, e := range events {
		c := colorFor(eventColors, e.EventType)
		symbol := eventSymbols[e.EventType]
		if symbol == "" {
			symbol = "•"
		}
		ts := e.Timestamp
		if t := e.Time(); !t.IsZero() {
			ts = t.Local().Format("2006-01-02 15:04:05")
		}
		line := fmt.Sprintf("%s %s %s %s", c.Sprint(symbol), dim(ts), c.Sprint(e.EventType), e.IssueID)
		if e.Title != "" {
			line += ": " + e.Title
		}
		if e.By != "" {
			line += dim(" by " + e.By)
		}
		fmt.Println(line)

		fields := make([]string, 0, len(e.Changes))
		for f := range e.Changes {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			ch := e.Changes[f]
			if e.EventType == types.EventCreated || ch.Old == nil {
				fmt.Printf("    %s: %s\n", f, formatValue(ch.New))
				continue
			}
			fmt.Printf("    %s: %s → %s\n", f, formatValue(ch.Old), formatValue(ch.New))
		}
	}
}

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "Show the change history of one issue or the whole log",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		issueID := ""
		if len(args) == 1 {
			issueID = resolveIssue(rootCtx, args[0]).FullID()
		}
		events, err := store.ReadEvents(rootCtx, issueID, limit)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(events)
			return
		}
		if len(events) == 0 {
			fmt.Println("No history found")
			return
		}
		printEvents(events)
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show issue changes since the last commit",
	Long: `Compare the issue state committed at HEAD with the working tree and
report each created, updated, closed or deleted issue.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		events, err := history.Diff(rootCtx, dogcatsDir)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(events)
			return
		}
		if len(events) == 0 {
			fmt.Println("No changes")
			return
		}
		printEvents(events)
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 0, "Maximum number of events (0 = all)")
	rootCmd.AddCommand(historyCmd, diffCmd)
}
