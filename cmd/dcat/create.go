package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/types"
)

// Single-character positional shorthands accepted by create.
var (
	typeShorthands = map[string]types.IssueType{
		"b": types.TypeBug,
		"c": types.TypeChore,
		"e": types.TypeEpic,
		"f": types.TypeFeature,
		"q": types.TypeQuestion,
		"s": types.TypeStory,
		"t": types.TypeTask,
	}
	priorityNames = map[string]int{
		"critical": 0,
		"high":     1,
		"medium":   2,
		"low":      3,
		"minimal":  4,
	}
)

const (
	defaultPriority = 2
	defaultType     = types.TypeTask
)

// parsePriority accepts 0-4, p0-p4 or a priority name.
func parsePriority(value string) (int, error) {
	raw := strings.ToLower(strings.TrimSpace(value))
	if p, ok := priorityNames[raw]; ok {
		return p, nil
	}
	p, err := strconv.Atoi(strings.TrimPrefix(raw, "p"))
	if err != nil {
		return 0, fmt.Errorf("invalid priority '%s'; use 0-4, p0-p4, or a name (critical, high, medium, low, minimal)", value)
	}
	if err := types.ValidatePriority(p); err != nil {
		return 0, fmt.Errorf("invalid priority '%s': must be 0-4", value)
	}
	return p, nil
}

// parseType accepts a type name or its single-letter shorthand.
func parseType(value string) (types.IssueType, error) {
	raw := strings.ToLower(strings.TrimSpace(value))
	if t, ok := typeShorthands[raw]; ok {
		return t, nil
	}
	t := types.IssueType(raw)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid issue type '%s'", value)
	}
	return t, nil
}

// parseStatus accepts a status name or "d" for draft.
func parseStatus(value string) (types.Status, error) {
	raw := strings.ToLower(strings.TrimSpace(value))
	if raw == "d" {
		return types.StatusDraft, nil
	}
	s := types.Status(raw)
	if !s.IsValid() || s == types.StatusTombstone {
		return "", fmt.Errorf("invalid status '%s'", value)
	}
	return s, nil
}

// createArgs is the result of splitting create's positional arguments.
type createArgs struct {
	Title     string
	Priority  *int
	IssueType types.IssueType
}

// parseCreateArgs pulls single-character priority (0-4) and type
// shorthands out of args; the rest joined by spaces is the title.
func parseCreateArgs(args []string) (createArgs, error) {
	var out createArgs
	var title []string
	for _, arg := range args {
		switch {
		case len(arg) == 1 && arg >= "0" && arg <= "4" && out.Priority == nil:
			p := int(arg[0] - '0')
			out.Priority = &p
		case len(arg) == 1 && typeShorthands[strings.ToLower(arg)] != "" && out.IssueType == "":
			out.IssueType = typeShorthands[strings.ToLower(arg)]
		case len(arg) == 1 && !isShorthand(arg):
			return out, fmt.Errorf("invalid shorthand '%s'; valid priority: 0-4, valid type: %s", arg, shorthandList())
		default:
			title = append(title, arg)
		}
	}
	out.Title = strings.Join(title, " ")
	if len(out.Title) == 1 && isShorthand(out.Title) {
		return out, fmt.Errorf("ambiguous arguments: '%s' looks like a shorthand but was used as title; use a longer title or --type/--priority", out.Title)
	}
	return out, nil
}

func isShorthand(s string) bool {
	if len(s) != 1 {
		return false
	}
	if s >= "0" && s <= "4" {
		return true
	}
	_, ok := typeShorthands[strings.ToLower(s)]
	return ok
}

func shorthandList() string {
	keys := make([]string, 0, len(typeShorthands))
	for k := range typeShorthands {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// splitLabels splits a comma or space separated label list.
func splitLabels(s string) []string {
	return types.NormalizeLabels(strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	}))
}

var createCmd = &cobra.Command{
	Use:     "create [title] [priority] [type]",
	Aliases: []string{"c", "new"},
	Short:   "Create a new issue",
	Long: `Create a new issue.

Single characters before or after the title are shorthands: 0-4 set the
priority and b/c/e/f/q/s/t set the type (bug, chore, epic, feature,
question, story, task).

Examples:
  dcat create "Fix login bug"           # priority 2, type task
  dcat create "Fix login bug" 1         # priority 1
  dcat create 0 b "Critical bug"        # priority 0, type bug
  dcat create "Add feature" -t feature -p high
  dcat create -- "--flag is not a flag"`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := rootCtx

		parsed, err := parseCreateArgs(args)
		if err != nil {
			fatal(err)
		}
		title := parsed.Title
		if titleFlag, _ := cmd.Flags().GetString("title"); titleFlag != "" {
			if title != "" {
				fatalf("cannot use both positional title and --title flag")
			}
			title = titleFlag
		}
		if title == "" {
			fatalf("title is required")
		}

		priority := defaultPriority
		if parsed.Priority != nil {
			priority = *parsed.Priority
		}
		if cmd.Flags().Changed("priority") {
			if parsed.Priority != nil {
				fatalf("cannot use both priority shorthand (0-4) and --priority flag together")
			}
			value, _ := cmd.Flags().GetString("priority")
			if priority, err = parsePriority(value); err != nil {
				fatal(err)
			}
		}

		issueType := defaultType
		if parsed.IssueType != "" {
			issueType = parsed.IssueType
		}
		if cmd.Flags().Changed("type") {
			if parsed.IssueType != "" {
				fatalf("cannot use both type shorthand and --type flag together")
			}
			value, _ := cmd.Flags().GetString("type")
			if issueType, err = parseType(value); err != nil {
				fatal(err)
			}
		}

		status := types.StatusOpen
		if cmd.Flags().Changed("status") {
			value, _ := cmd.Flags().GetString("status")
			if status, err = parseStatus(value); err != nil {
				fatal(err)
			}
		}

		description, _ := cmd.Flags().GetString("description")
		owner, _ := cmd.Flags().GetString("owner")
		labels, _ := cmd.Flags().GetString("labels")
		acceptance, _ := cmd.Flags().GetString("acceptance")
		notes, _ := cmd.Flags().GetString("notes")
		design, _ := cmd.Flags().GetString("design")
		externalRef, _ := cmd.Flags().GetString("external-ref")
		parent, _ := cmd.Flags().GetString("parent")
		duplicateOf, _ := cmd.Flags().GetString("duplicate-of")
		dependsOn, _ := cmd.Flags().GetString("depends-on")
		blocks, _ := cmd.Flags().GetString("blocks")
		manual, _ := cmd.Flags().GetBool("manual")

		// Validate every reference before writing anything.
		if parent != "" {
			parent = resolveIssue(ctx, parent).FullID()
		}
		if duplicateOf != "" {
			duplicateOf = resolveIssue(ctx, duplicateOf).FullID()
		}
		if dependsOn != "" {
			dependsOn = resolveIssue(ctx, dependsOn).FullID()
		}
		if blocks != "" {
			blocks = resolveIssue(ctx, blocks).FullID()
		}
		if owner == "" {
			owner = actor
		}

		issue := &types.Issue{
			Namespace:   configfile.IssuePrefix(dogcatsDir),
			Title:       title,
			Description: description,
			Status:      status,
			Priority:    priority,
			IssueType:   issueType,
			Owner:       owner,
			Parent:      parent,
			Labels:      splitLabels(labels),
			ExternalRef: externalRef,
			Design:      design,
			Acceptance:  acceptance,
			Notes:       notes,
			DuplicateOf: duplicateOf,
			CreatedBy:   actor,
			UpdatedBy:   actor,
		}
		if manual {
			issue.Metadata = map[string]any{"manual": true}
		}
		if err := store.CreateIssue(ctx, issue); err != nil {
			fatal(err)
		}

		if dependsOn != "" {
			if _, err := store.AddDependency(ctx, issue.FullID(), dependsOn, types.DepBlocks, actor); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to add dependency: %v\n", err)
			}
		}
		if blocks != "" {
			if _, err := store.AddDependency(ctx, blocks, issue.FullID(), types.DepBlocks, actor); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to add dependency: %v\n", err)
			}
		}

		if jsonOutput {
			outputJSON(issueView(issue))
			return
		}
		fmt.Printf("✓ Created %s: %s [%s, pri %d]\n", issue.FullID(), issue.Title, issue.IssueType, issue.Priority)
	},
}

func init() {
	createCmd.Flags().String("title", "", "Issue title (alternative to the positional argument)")
	createCmd.Flags().StringP("description", "d", "", "Issue description")
	createCmd.Flags().StringP("priority", "p", "", "Priority (0-4, p0-p4, or critical/high/medium/low/minimal)")
	createCmd.Flags().StringP("type", "t", "", "Issue type (task, bug, feature, story, chore, epic, subtask, question, draft)")
	createCmd.Flags().StringP("status", "s", "", "Initial status (default open)")
	createCmd.Flags().StringP("owner", "o", "", "Issue owner (default: the actor)")
	createCmd.Flags().StringP("labels", "l", "", "Labels (comma or space separated)")
	createCmd.Flags().StringP("acceptance", "a", "", "Acceptance criteria")
	createCmd.Flags().StringP("notes", "n", "", "Notes")
	createCmd.Flags().String("design", "", "Design notes")
	createCmd.Flags().String("external-ref", "", "External reference URL or ID")
	createCmd.Flags().String("parent", "", "Parent issue ID")
	createCmd.Flags().String("duplicate-of", "", "Original issue ID if this is a duplicate")
	createCmd.Flags().String("depends-on", "", "Issue ID this one is blocked by")
	createCmd.Flags().String("blocks", "", "Issue ID this one blocks")
	createCmd.Flags().Bool("manual", false, "Mark the issue as manual (not for agents)")
	rootCmd.AddCommand(createCmd)
}
