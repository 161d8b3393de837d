package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dogcat/dogcat/internal/types"
)

var statusSymbols = map[types.Status]string{
	types.StatusDraft:      "✎",
	types.StatusOpen:       "●",
	types.StatusInProgress: "◐",
	types.StatusInReview:   "?",
	types.StatusBlocked:    "■",
	types.StatusDeferred:   "◇",
	types.StatusClosed:     "✓",
	types.StatusTombstone:  "☠",
}

var statusColors = map[types.Status]*color.Color{
	types.StatusDraft:      color.New(color.FgHiBlack),
	types.StatusOpen:       color.New(color.FgHiGreen),
	types.StatusInProgress: color.New(color.FgHiBlue),
	types.StatusInReview:   color.New(color.FgHiYellow),
	types.StatusBlocked:    color.New(color.FgHiRed),
	types.StatusDeferred:   color.New(color.FgHiBlack),
	types.StatusClosed:     color.New(color.FgWhite),
	types.StatusTombstone:  color.New(color.FgHiBlack),
}

var priorityColors = []*color.Color{
	color.New(color.FgHiRed, color.Bold),
	color.New(color.FgYellow, color.Bold),
	color.New(color.FgWhite, color.Bold),
	color.New(color.FgCyan, color.Bold),
	color.New(color.FgHiBlack, color.Bold),
}

var typeColors = map[types.IssueType]*color.Color{
	types.TypeBug:      color.New(color.FgHiRed),
	types.TypeFeature:  color.New(color.FgHiGreen),
	types.TypeStory:    color.New(color.FgHiBlue),
	types.TypeChore:    color.New(color.FgHiBlack),
	types.TypeEpic:     color.New(color.FgHiMagenta),
	types.TypeQuestion: color.New(color.FgHiYellow),
}

var (
	dim      = color.New(color.FgHiBlack).SprintFunc()
	cyan     = color.New(color.FgCyan).SprintFunc()
	fieldKey = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func colorFor[K comparable](m map[K]*color.Color, k K) *color.Color {
	if c, ok := m[k]; ok {
		return c
	}
	return color.New(color.FgWhite)
}

// formatBrief renders one issue per line:
//
//	● [1] dc-a3f2: Fix login [bug] [parent: dc-9x1c] [backend] [blocked by: dc-77aa]
//
// blockedBy marks the issue as blocked with the given blocker ids.
func formatBrief(issue *types.Issue, blockedBy []string) string {
	closed := issue.ClosedAt != nil || issue.IsTombstone()

	symbol := statusSymbols[issue.Status]
	statusColor := colorFor(statusColors, issue.Status)
	if len(blockedBy) > 0 {
		symbol = statusSymbols[types.StatusBlocked]
		statusColor = statusColors[types.StatusBlocked]
	}
	pri := fmt.Sprintf("[%d]", issue.Priority)
	typ := fmt.Sprintf("[%s]", issue.IssueType)
	idTitle := fmt.Sprintf("%s: %s", issue.FullID(), issue.Title)

	var b strings.Builder
	if closed {
		b.WriteString(dim(symbol) + " " + dim(pri) + " " + dim(idTitle) + " " + dim(typ))
	} else {
		priColor := color.New(color.FgWhite)
		if issue.Priority >= 0 && issue.Priority < len(priorityColors) {
			priColor = priorityColors[issue.Priority]
		}
		b.WriteString(statusColor.Sprint(symbol) + " " + priColor.Sprint(pri) + " " + idTitle + " " + colorFor(typeColors, issue.IssueType).Sprint(typ))
	}
	if issue.Parent != "" {
		b.WriteString(dim(fmt.Sprintf(" [parent: %s]", issue.Parent)))
	}
	if len(issue.Labels) > 0 {
		b.WriteString(" " + cyan(fmt.Sprintf("[%s]", strings.Join(issue.Labels, ", "))))
	}
	if manual, _ := issue.Metadata["manual"].(bool); manual {
		b.WriteString(" " + color.YellowString("[manual]"))
	}
	if len(blockedBy) > 0 {
		b.WriteString(" " + color.RedString("[blocked by: %s]", strings.Join(blockedBy, ", ")))
	}
	if issue.ExternalRef != "" {
		b.WriteString(dim(fmt.Sprintf(" [extref: %s]", issue.ExternalRef)))
	}
	if issue.ClosedAt != nil {
		b.WriteString(dim(fmt.Sprintf(" [closed %s]", issue.ClosedAt.Local().Format("2006-01-02 15:04"))))
	}
	return b.String()
}

// formatFull renders every populated field of an issue.
func formatFull(issue *types.Issue, parentTitle string) string {
	const dt = "2006-01-02 15:04:05"
	lines := []string{
		fmt.Sprintf("%s %s", fieldKey("ID:"), issue.FullID()),
		fmt.Sprintf("%s %s", fieldKey("Title:"), issue.Title),
		"",
		fmt.Sprintf("%s %s", fieldKey("Status:"), colorFor(statusColors, issue.Status).Sprint(issue.Status)),
		fmt.Sprintf("%s %d", fieldKey("Priority:"), issue.Priority),
		fmt.Sprintf("%s %s", fieldKey("Type:"), issue.IssueType),
		"",
	}
	if issue.Parent != "" {
		line := fmt.Sprintf("%s %s", fieldKey("Parent:"), issue.Parent)
		if parentTitle != "" {
			line += fmt.Sprintf(" (%s)", parentTitle)
		}
		lines = append(lines, line)
	}
	if issue.Owner != "" {
		lines = append(lines, fmt.Sprintf("%s %s", fieldKey("Owner:"), issue.Owner))
	}
	if len(issue.Labels) > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", fieldKey("Labels:"), strings.Join(issue.Labels, ", ")))
	}
	if issue.ExternalRef != "" {
		lines = append(lines, fmt.Sprintf("%s %s", fieldKey("External ref:"), issue.ExternalRef))
	}
	if issue.DuplicateOf != "" {
		lines = append(lines, fmt.Sprintf("%s %s", fieldKey("Duplicate of:"), issue.DuplicateOf))
	}
	lines = append(lines, fmt.Sprintf("%s %s", fieldKey("Created:"), issue.CreatedAt.Local().Format(dt)))
	if issue.ClosedAt != nil {
		line := fmt.Sprintf("%s %s", fieldKey("Closed:"), issue.ClosedAt.Local().Format(dt))
		if issue.CloseReason != "" {
			line += fmt.Sprintf(" (%s)", issue.CloseReason)
		}
		lines = append(lines, line)
	}
	if issue.DeletedAt != nil {
		line := fmt.Sprintf("%s %s", fieldKey("Deleted:"), issue.DeletedAt.Local().Format(dt))
		if issue.DeleteReason != "" {
			line += fmt.Sprintf(" (%s)", issue.DeleteReason)
		}
		lines = append(lines, line)
	}
	for _, section := range []struct{ label, text string }{
		{"Description:", issue.Description},
		{"Notes:", issue.Notes},
		{"Acceptance criteria:", issue.Acceptance},
		{"Design:", issue.Design},
	} {
		if section.text != "" {
			lines = append(lines, "", fieldKey(section.label), section.text)
		}
	}
	if len(issue.Comments) > 0 {
		lines = append(lines, "", fieldKey("Comments:"))
		for _, c := range issue.Comments {
			lines = append(lines, fmt.Sprintf("  [%s] %s", c.ID, c.Author), "  "+c.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// formatValue renders an event field value for display.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "(none)"
	case []string:
		return strings.Join(x, ", ")
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, ", ")
	case string:
		if r := []rune(x); len(r) > 60 {
			return string(r[:57]) + "..."
		}
		return x
	default:
		return fmt.Sprint(x)
	}
}
