package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <issue-id> <depends-on-id>",
	Short: "Record that an issue is blocked by another",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		depType, _ := cmd.Flags().GetString("type")
		dep, err := store.AddDependency(rootCtx, args[0], args[1], types.DependencyType(depType), actor)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(dep)
			return
		}
		fmt.Printf("✓ Added dependency: %s depends on %s (%s)\n", dep.IssueID, dep.DependsOnID, dep.Type)
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove <issue-id> <depends-on-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := store.RemoveDependency(rootCtx, args[0], args[1]); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"status": "removed", "issue_id": args[0], "depends_on_id": args[1]})
			return
		}
		fmt.Printf("✓ Removed dependency: %s %s\n", args[0], args[1])
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <issue-id>",
	Short: "List what an issue depends on and what depends on it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		issue := resolveIssue(ctx, args[0])
		deps, err := store.GetDependencies(ctx, issue.FullID())
		if err != nil {
			fatal(err)
		}
		dependents, err := store.GetDependents(ctx, issue.FullID())
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{
				"issue_id":     issue.FullID(),
				"dependencies": deps,
				"dependents":   dependents,
			})
			return
		}
		if len(deps)+len(dependents) == 0 {
			fmt.Printf("%s has no dependencies\n", issue.FullID())
			return
		}
		if len(deps) > 0 {
			fmt.Printf("%s depends on:\n", cyan(issue.FullID()))
			for _, dep := range deps {
				fmt.Printf("  → %s\n", describeRef(dep.DependsOnID, string(dep.Type)))
			}
		}
		if len(dependents) > 0 {
			fmt.Printf("%s blocks:\n", cyan(issue.FullID()))
			for _, dep := range dependents {
				fmt.Printf("  ← %s\n", describeRef(dep.IssueID, string(dep.Type)))
			}
		}
	},
}

var depChainCmd = &cobra.Command{
	Use:   "chain <issue-id>",
	Short: "Show everything an issue transitively depends on",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		chain, err := store.GetDependencyChain(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(chain)
			return
		}
		for i, id := range chain {
			if i == 0 {
				fmt.Println(id)
				continue
			}
			fmt.Printf("  → %s\n", id)
		}
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage non-blocking links between issues",
}

var linkAddCmd = &cobra.Command{
	Use:   "add <from-id> <to-id>",
	Short: "Link two issues",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		linkType, _ := cmd.Flags().GetString("type")
		link, err := store.AddLink(rootCtx, args[0], args[1], linkType, actor)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(link)
			return
		}
		fmt.Printf("✓ Added link: %s %s %s\n", link.FromID, link.LinkType, link.ToID)
	},
}

var linkRemoveCmd = &cobra.Command{
	Use:     "remove <from-id> <to-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a link",
	Args:    cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if err := store.RemoveLink(rootCtx, args[0], args[1]); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"status": "removed", "from_id": args[0], "to_id": args[1]})
			return
		}
		fmt.Printf("✓ Removed link: %s %s\n", args[0], args[1])
	},
}

func init() {
	depAddCmd.Flags().StringP("type", "t", string(types.DepBlocks), "Dependency type (blocks, parent-child, related)")
	depCmd.AddCommand(depAddCmd, depRemoveCmd, depListCmd, depChainCmd)

	linkAddCmd.Flags().StringP("type", "t", types.DefaultLinkType, "Link type")
	linkCmd.AddCommand(linkAddCmd, linkRemoveCmd)

	rootCmd.AddCommand(depCmd, linkCmd)
}
