package main

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/config"
	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/types"
)

// issueFilterFlags adds the filters shared by list and ready.
func issueFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("type", "t", "", "Filter by type")
	cmd.Flags().StringP("priority", "p", "", "Filter by priority (0-4 or a name)")
	cmd.Flags().StringSliceP("label", "l", nil, "Filter by label (any of; repeatable)")
	cmd.Flags().StringP("owner", "o", "", "Filter by owner")
	cmd.Flags().String("namespace", "", "Only show this namespace")
	cmd.Flags().Bool("all-namespaces", false, "Ignore visible_namespaces/hidden_namespaces")
	cmd.Flags().String("parent", "", "Only show children of this issue")
	cmd.Flags().IntP("limit", "n", 0, "Maximum number of issues (0 = no limit)")
}

// buildFilter reads the shared filter flags.
func buildFilter(cmd *cobra.Command) types.IssueFilter {
	var filter types.IssueFilter
	if v, _ := cmd.Flags().GetString("type"); v != "" {
		t, err := parseType(v)
		if err != nil {
			fatal(err)
		}
		filter.IssueType = &t
	}
	if v, _ := cmd.Flags().GetString("priority"); v != "" {
		p, err := parsePriority(v)
		if err != nil {
			fatal(err)
		}
		filter.Priority = &p
	}
	filter.Labels, _ = cmd.Flags().GetStringSlice("label")
	if v, _ := cmd.Flags().GetString("owner"); v != "" {
		filter.Owner = &v
	}
	if v, _ := cmd.Flags().GetString("namespace"); v != "" {
		filter.Namespace = &v
	}
	if v, _ := cmd.Flags().GetString("parent"); v != "" {
		parent := resolveIssue(rootCtx, v).FullID()
		filter.Parent = &parent
	}
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	return filter
}

// namespaceVisible applies the visible_namespaces / hidden_namespaces
// config. An explicit --namespace or --all-namespaces bypasses it.
func namespaceVisible(cmd *cobra.Command) func(*types.Issue) bool {
	all, _ := cmd.Flags().GetBool("all-namespaces")
	if ns, _ := cmd.Flags().GetString("namespace"); ns != "" || all {
		return func(*types.Issue) bool { return true }
	}
	visible := config.GetStringSlice("visible_namespaces")
	hidden := config.GetStringSlice("hidden_namespaces")
	return func(issue *types.Issue) bool {
		if len(visible) > 0 {
			return slices.Contains(visible, issue.Namespace)
		}
		return !slices.Contains(hidden, issue.Namespace)
	}
}

// blockedMap maps every blocked issue to its open blockers.
func blockedMap() map[string][]string {
	blocked, err := store.GetBlockedIssues(rootCtx)
	if err != nil {
		fatal(err)
	}
	out := make(map[string][]string, len(blocked))
	for _, b := range blocked {
		out[b.Issue.FullID()] = b.BlockedBy
	}
	return out
}

func sortIssues(issues []*types.Issue) {
	slices.SortStableFunc(issues, func(a, b *types.Issue) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), a.CreatedAt.Compare(b.CreatedAt))
	})
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long: `List issues. Closed issues are hidden unless --all or --status closed is
given; deleted issues only appear with --tombstones.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter := buildFilter(cmd)
		all, _ := cmd.Flags().GetBool("all")
		closedOnly, _ := cmd.Flags().GetBool("closed")
		filter.IncludeClosed = all
		filter.IncludeTombstones, _ = cmd.Flags().GetBool("tombstones")
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			s := types.StatusTombstone
			if v != string(types.StatusTombstone) {
				var err error
				if s, err = parseStatus(v); err != nil {
					fatal(err)
				}
			}
			filter.Status = &s
		} else if closedOnly {
			s := types.StatusClosed
			filter.Status = &s
		}

		limit := filter.Limit
		filter.Limit = 0
		issues, err := store.ListIssues(rootCtx, filter)
		if err != nil {
			fatal(err)
		}
		visible := namespaceVisible(cmd)
		shown := make([]*types.Issue, 0, len(issues))
		for _, issue := range issues {
			if visible(issue) {
				shown = append(shown, issue)
			}
		}
		sortIssues(shown)
		if limit > 0 && len(shown) > limit {
			shown = shown[:limit]
		}

		if jsonOutput {
			outputJSON(issueViews(shown))
			return
		}
		if len(shown) == 0 {
			fmt.Println("No issues found")
			return
		}
		blocked := blockedMap()
		for _, issue := range shown {
			fmt.Println(formatBrief(issue, blocked[issue.FullID()]))
		}
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Show ready work (open issues with no open blockers)",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter := buildFilter(cmd)
		limit := filter.Limit
		filter.Limit = 0
		issues, err := store.GetReadyWork(rootCtx, filter)
		if err != nil {
			fatal(err)
		}
		visible := namespaceVisible(cmd)
		ready := make([]*types.Issue, 0, len(issues))
		for _, issue := range issues {
			if visible(issue) {
				ready = append(ready, issue)
			}
		}
		if limit > 0 && len(ready) > limit {
			ready = ready[:limit]
		}

		if jsonOutput {
			outputJSON(issueViews(ready))
			return
		}
		if len(ready) == 0 {
			fmt.Printf("\n%s No ready work found\n\n", color.YellowString("✨"))
			return
		}
		fmt.Printf("\n%s Ready work (%d issues with no blockers):\n\n", color.CyanString("📋"), len(ready))
		for _, issue := range ready {
			fmt.Println(formatBrief(issue, nil))
		}
		fmt.Println()
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "Show issues held back by open dependencies",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		blocked, err := store.GetBlockedIssues(rootCtx)
		if err != nil {
			fatal(err)
		}
		slices.SortStableFunc(blocked, func(a, b *types.BlockedIssue) int {
			return cmp.Or(cmp.Compare(a.Issue.Priority, b.Issue.Priority), a.Issue.CreatedAt.Compare(b.Issue.CreatedAt))
		})

		if jsonOutput {
			out := make([]map[string]any, 0, len(blocked))
			for _, b := range blocked {
				view := issueView(b.Issue)
				view["blocked_by"] = b.BlockedBy
				view["reason"] = b.Reason
				out = append(out, view)
			}
			outputJSON(out)
			return
		}
		if len(blocked) == 0 {
			fmt.Printf("\n%s No blocked issues\n\n", color.GreenString("✨"))
			return
		}
		fmt.Printf("\n%s Blocked issues (%d):\n\n", color.RedString("🚫"), len(blocked))
		for _, b := range blocked {
			fmt.Println(formatBrief(b.Issue, b.BlockedBy))
		}
		fmt.Println()
	},
}

var namespacesCmd = &cobra.Command{
	Use:   "namespaces",
	Short: "List namespaces with their issue counts",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		counts := store.Namespaces(rootCtx)
		names := make([]string, 0, len(counts))
		for ns := range counts {
			names = append(names, ns)
		}
		slices.Sort(names)

		primary := configfile.IssuePrefix(dogcatsDir)
		visible := config.GetStringSlice("visible_namespaces")
		hidden := config.GetStringSlice("hidden_namespaces")
		visibility := func(ns string) string {
			switch {
			case len(visible) > 0 && slices.Contains(visible, ns):
				return "visible"
			case len(visible) > 0 || slices.Contains(hidden, ns):
				return "hidden"
			}
			return ""
		}

		if jsonOutput {
			out := make([]map[string]any, 0, len(names))
			for _, ns := range names {
				entry := map[string]any{"namespace": ns, "count": counts[ns]}
				if v := visibility(ns); v != "" {
					entry["visibility"] = v
				}
				out = append(out, entry)
			}
			outputJSON(out)
			return
		}
		if len(names) == 0 {
			fmt.Println("No namespaces found")
			return
		}
		for _, ns := range names {
			line := fmt.Sprintf("  %s (%d)", ns, counts[ns])
			var notes []string
			if ns == primary {
				notes = append(notes, "primary")
			}
			if v := visibility(ns); v != "" {
				notes = append(notes, v)
			}
			for _, n := range notes {
				line += " " + dim("("+n+")")
			}
			fmt.Println(line)
		}
	},
}

func init() {
	issueFilterFlags(listCmd)
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().BoolP("all", "a", false, "Include closed issues")
	listCmd.Flags().Bool("closed", false, "Only show closed issues")
	listCmd.Flags().Bool("tombstones", false, "Include deleted issues")
	issueFilterFlags(readyCmd)
	rootCmd.AddCommand(listCmd, readyCmd, blockedCmd, namespacesCmd)
}
