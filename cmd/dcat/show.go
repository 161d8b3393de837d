package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show [id...]",
	Short: "Show issue details",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx

		allDetails := []interface{}{}
		for idx, id := range args {
			issue := resolveIssue(ctx, id)
			fullID := issue.FullID()

			deps, err := store.GetDependencies(ctx, fullID)
			if err != nil {
				fatal(err)
			}
			dependents, err := store.GetDependents(ctx, fullID)
			if err != nil {
				fatal(err)
			}
			links, err := store.GetLinks(ctx, fullID)
			if err != nil {
				fatal(err)
			}
			incoming, err := store.GetIncomingLinks(ctx, fullID)
			if err != nil {
				fatal(err)
			}
			children, err := store.GetChildren(ctx, fullID)
			if err != nil {
				fatal(err)
			}

			if jsonOutput {
				details := issueView(issue)
				details["dependencies"] = deps
				details["dependents"] = dependents
				details["links"] = links
				details["incoming_links"] = incoming
				details["children"] = issueViews(children)
				allDetails = append(allDetails, details)
				continue
			}

			if idx > 0 {
				fmt.Println("\n" + strings.Repeat("─", 60))
			}
			parentTitle := ""
			if issue.Parent != "" {
				if parent, err := store.GetIssue(ctx, issue.Parent); err == nil {
					parentTitle = parent.Title
				}
			}
			fmt.Println(formatFull(issue, parentTitle))

			if len(deps) > 0 {
				fmt.Printf("\n%s\n", fieldKey(fmt.Sprintf("Depends on (%d):", len(deps))))
				for _, dep := range deps {
					fmt.Printf("  → %s\n", describeRef(dep.DependsOnID, string(dep.Type)))
				}
			}
			if len(dependents) > 0 {
				fmt.Printf("\n%s\n", fieldKey(fmt.Sprintf("Blocks (%d):", len(dependents))))
				for _, dep := range dependents {
					fmt.Printf("  ← %s\n", describeRef(dep.IssueID, string(dep.Type)))
				}
			}
			if len(links)+len(incoming) > 0 {
				fmt.Printf("\n%s\n", fieldKey(fmt.Sprintf("Links (%d):", len(links)+len(incoming))))
				for _, l := range links {
					fmt.Printf("  → %s\n", describeRef(l.ToID, l.LinkType))
				}
				for _, l := range incoming {
					fmt.Printf("  ← %s\n", describeRef(l.FromID, l.LinkType))
				}
			}
			if len(children) > 0 {
				fmt.Printf("\n%s\n", fieldKey(fmt.Sprintf("Children (%d):", len(children))))
				for _, child := range children {
					fmt.Printf("  %s\n", formatBrief(child, nil))
				}
			}
		}

		if jsonOutput {
			if len(allDetails) == 1 {
				outputJSON(allDetails[0])
			} else {
				outputJSON(allDetails)
			}
		}
	},
}

// describeRef renders "id: title [kind]", falling back to the bare id for
// references the log no longer holds.
func describeRef(id, kind string) string {
	issue, err := store.GetIssue(rootCtx, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s: %v\n", id, err)
		return fmt.Sprintf("%s [%s]", id, kind)
	}
	return fmt.Sprintf("%s: %s [%s] (%s)", id, issue.Title, kind, statusLabel(issue))
}

func statusLabel(issue *types.Issue) string {
	return colorFor(statusColors, issue.Status).Sprint(issue.Status)
}

func init() {
	rootCmd.AddCommand(showCmd)
}
