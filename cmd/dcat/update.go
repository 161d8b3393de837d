package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update an issue's fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx
		issue := resolveIssue(ctx, args[0])
		flags := cmd.Flags()

		var update types.IssueUpdate
		str := func(name string, field *types.Field[string]) {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				*field = types.Value(v)
			}
		}
		str("title", &update.Title)
		str("description", &update.Description)
		str("owner", &update.Owner)
		str("external-ref", &update.ExternalRef)
		str("design", &update.Design)
		str("acceptance", &update.Acceptance)
		str("notes", &update.Notes)

		if flags.Changed("status") {
			v, _ := flags.GetString("status")
			s, err := parseStatus(v)
			if err != nil {
				fatal(err)
			}
			update.Status = types.Value(s)
		}
		if flags.Changed("priority") {
			v, _ := flags.GetString("priority")
			p, err := parsePriority(v)
			if err != nil {
				fatal(err)
			}
			update.Priority = types.Value(p)
		}
		if flags.Changed("type") {
			v, _ := flags.GetString("type")
			t, err := parseType(v)
			if err != nil {
				fatal(err)
			}
			update.IssueType = types.Value(t)
		}
		if flags.Changed("parent") {
			v, _ := flags.GetString("parent")
			if v != "" {
				v = resolveIssue(ctx, v).FullID()
			}
			update.Parent = types.Value(v)
		}
		if flags.Changed("duplicate-of") {
			v, _ := flags.GetString("duplicate-of")
			if v != "" {
				v = resolveIssue(ctx, v).FullID()
			}
			update.DuplicateOf = types.Value(v)
		}

		labels := slices.Clone(issue.Labels)
		labelsChanged := false
		if flags.Changed("labels") {
			v, _ := flags.GetString("labels")
			labels = splitLabels(v)
			labelsChanged = true
		}
		if add, _ := flags.GetStringSlice("add-label"); len(add) > 0 {
			labels = append(labels, add...)
			labelsChanged = true
		}
		if remove, _ := flags.GetStringSlice("remove-label"); len(remove) > 0 {
			labels = slices.DeleteFunc(labels, func(l string) bool { return slices.Contains(remove, l) })
			labelsChanged = true
		}
		if labelsChanged {
			update.Labels = types.Value(labels)
		}

		if flags.Changed("manual") {
			manual, _ := flags.GetBool("manual")
			metadata := make(map[string]any, len(issue.Metadata)+1)
			for k, v := range issue.Metadata {
				metadata[k] = v
			}
			if manual {
				metadata["manual"] = true
			} else {
				delete(metadata, "manual")
			}
			update.Metadata = types.Value(metadata)
		}

		if update.IsEmpty() {
			fatalf("no fields to update")
		}
		update.UpdatedBy = types.Value(actor)

		updated, err := store.UpdateIssue(ctx, issue.FullID(), update)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(issueView(updated))
			return
		}
		fmt.Printf("✓ Updated %s: %s\n", updated.FullID(), updated.Title)
	},
}

// transitionCmd builds close, reopen and delete, which share their shape:
// several ids, an optional reason, and a per-issue result line.
func transitionCmd(use, short, verb string, apply func(id, reason string) (*types.Issue, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			reason, _ := cmd.Flags().GetString("reason")
			// every id must resolve before any of them changes
			ids, err := store.ResolveIDs(rootCtx, args)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					fatalf("%s: nothing changed", err)
				}
				fatal(err)
			}
			results := []map[string]any{}
			failed := false
			for _, id := range ids {
				issue, err := apply(id, reason)
				if err != nil {
					failed = true
					if errors.Is(err, storage.ErrNotFound) {
						err = fmt.Errorf("issue %s not found", id)
					}
					fmt.Fprintf(os.Stderr, "Error: %s %s: %v\n", strings.ToLower(verb), id, err)
					continue
				}
				if jsonOutput {
					results = append(results, issueView(issue))
					continue
				}
				fmt.Printf("✓ %s %s: %s\n", verb, issue.FullID(), issue.Title)
			}
			if jsonOutput {
				outputJSON(results)
			}
			if failed {
				os.Exit(1)
			}
		},
	}
	cmd.Flags().StringP("reason", "r", "", "Reason recorded with the change")
	return cmd
}

var closeCmd = transitionCmd("close", "Close one or more issues", "Closed", func(id, reason string) (*types.Issue, error) {
	return store.CloseIssue(rootCtx, id, reason, actor)
})

var reopenStatus string

var reopenCmd = transitionCmd("reopen", "Reopen closed issues", "Reopened", func(id, reason string) (*types.Issue, error) {
	status := types.StatusOpen
	if reopenStatus != "" {
		s, err := parseStatus(reopenStatus)
		if err != nil {
			return nil, err
		}
		status = s
	}
	return store.ReopenIssue(rootCtx, id, reason, actor, status)
})

var deleteCmd = transitionCmd("delete", "Delete issues (kept as tombstones until pruned)", "Deleted", func(id, reason string) (*types.Issue, error) {
	return store.DeleteIssue(rootCtx, id, reason, actor)
})

var commentCmd = &cobra.Command{
	Use:   "comment <id> <text>...",
	Short: "Add a comment to an issue",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		comment, err := store.AddComment(rootCtx, args[0], actor, strings.Join(args[1:], " "))
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(comment)
			return
		}
		fmt.Printf("✓ Added comment %s\n", comment.ID)
	},
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("description", "d", "", "New description")
	updateCmd.Flags().StringP("status", "s", "", "New status")
	updateCmd.Flags().StringP("priority", "p", "", "New priority (0-4, p0-p4 or a name)")
	updateCmd.Flags().StringP("type", "t", "", "New issue type")
	updateCmd.Flags().StringP("owner", "o", "", "New owner")
	updateCmd.Flags().String("parent", "", "New parent issue ID (empty to clear)")
	updateCmd.Flags().String("labels", "", "Replace labels (comma or space separated)")
	updateCmd.Flags().StringSlice("add-label", nil, "Add a label (repeatable)")
	updateCmd.Flags().StringSlice("remove-label", nil, "Remove a label (repeatable)")
	updateCmd.Flags().String("external-ref", "", "External reference")
	updateCmd.Flags().String("design", "", "Design notes")
	updateCmd.Flags().StringP("acceptance", "a", "", "Acceptance criteria")
	updateCmd.Flags().StringP("notes", "n", "", "Notes")
	updateCmd.Flags().String("duplicate-of", "", "Original issue ID (empty to clear)")
	updateCmd.Flags().Bool("manual", false, "Mark as manual (--manual=false to clear)")

	reopenCmd.Flags().StringVarP(&reopenStatus, "status", "s", "", "Status to reopen into (default open)")
	rootCmd.AddCommand(updateCmd, closeCmd, reopenCmd, deleteCmd, commentCmd)
}
