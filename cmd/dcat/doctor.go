package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/conflict"
	"github.com/dogcat/dogcat/internal/dogcat"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/merge"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/types"
	"github.com/dogcat/dogcat/internal/validation"
)

// Status constants for doctor checks
const (
	statusOK      = "ok"
	statusWarning = "warning"
	statusError   = "error"
)

// Check names, also used to route --fix.
const (
	checkIssuesLog    = "Issue log"
	checkInbox        = "Inbox"
	checkConfig       = "Config"
	checkGitignore    = "Gitignore"
	checkMergeDriver  = "Merge driver"
	checkDangling     = "Dependencies"
	checkConcurrent   = "Concurrent edits"
	maxFindingDetails = 5
)

type doctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // statusOK, statusWarning, or statusError
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Fix     string `json:"fix,omitempty"`
}

type doctorResult struct {
	Path       string        `json:"path"`
	Checks     []doctorCheck `json:"checks"`
	OverallOK  bool          `json:"overall_ok"`
	CLIVersion string        `json:"cli_version"`
}

var (
	doctorFix       bool
	doctorPostMerge bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the health of the .dogcats directory",
	Long: `Sanity check the store for the current project.

This command checks:
  - issues.jsonl passes validation (fields, references, cycles, versions)
  - no git conflict markers are left in the logs
  - inbox.jsonl records parse
  - config.yaml exists and sets issue_prefix
  - .gitignore keeps the lock file out of git
  - the git merge driver is configured (inside a git repository)
  - no dependency points at a missing issue
  - with --post-merge: issues edited on both sides of the last merge

Exits 1 when any check reports an error.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result := runDiagnostics()
		if doctorFix {
			applyFixes(result)
			_ = store.Reload(rootCtx)
			result = runDiagnostics()
		}

		if jsonOutput {
			outputJSON(result)
		} else {
			printDiagnostics(result)
		}
		if !result.OverallOK {
			os.Exit(1)
		}
	},
}

func runDiagnostics() doctorResult {
	result := doctorResult{
		Path:       dogcatsDir,
		OverallOK:  true,
		CLIVersion: Version,
	}
	root := filepath.Dir(dogcatsDir)
	checks := []doctorCheck{
		checkIssueLog(),
		checkInboxLog(),
		checkConfigFile(),
		checkGitignoreEntry(root),
	}
	if git.IsRepo(rootCtx, root) {
		checks = append(checks, checkMergeDriverInstalled(root))
	}
	checks = append(checks, checkDanglingDependencies())
	if doctorPostMerge {
		checks = append(checks, checkConcurrentEdits(root))
	}
	for _, c := range checks {
		if c.Status == statusError {
			result.OverallOK = false
		}
	}
	result.Checks = checks
	return result
}

func checkIssueLog() doctorCheck {
	findings := validateLog(store.Path())
	c := doctorCheck{Name: checkIssuesLog, Status: statusOK, Message: "valid"}
	var errs, warns []string
	for _, f := range findings {
		if f.Level == types.LevelError {
			errs = append(errs, f.String())
		} else {
			warns = append(warns, f.String())
		}
	}
	switch {
	case len(errs) > 0:
		c.Status = statusError
		c.Message = fmt.Sprintf("%d error(s), %d warning(s)", len(errs), len(warns))
		c.Detail = summarize(append(errs, warns...))
		c.Fix = "Run 'dcat validate' for details and repair the listed lines"
	case len(warns) > 0:
		c.Status = statusWarning
		c.Message = fmt.Sprintf("%d warning(s)", len(warns))
		c.Detail = summarize(warns)
	}
	return c
}

func checkInboxLog() doctorCheck {
	c := doctorCheck{Name: checkInbox, Status: statusOK, Message: "valid"}
	path := dogcat.InboxPath(dogcatsDir)
	lines, err := jsonlfile.ReadLines(path)
	if err != nil {
		c.Status = statusError
		c.Message = fmt.Sprintf("cannot read %s", filepath.Base(path))
		c.Detail = err.Error()
		return c
	}
	data, _ := os.ReadFile(path) // #nosec G304 - log inside the store directory
	var bad []string
	for _, f := range validation.CheckConflictMarkers(data) {
		bad = append(bad, f.String())
	}
	for i, l := range lines {
		if len(strings.TrimSpace(string(l))) == 0 {
			continue
		}
		if _, err := record.Parse(l); err != nil {
			bad = append(bad, fmt.Sprintf("line %d: %v", i+1, err))
		}
	}
	if len(bad) > 0 {
		c.Status = statusError
		c.Message = fmt.Sprintf("%d malformed line(s)", len(bad))
		c.Detail = summarize(bad)
		c.Fix = "Review and fix the malformed lines in inbox.jsonl"
	}
	return c
}

func checkConfigFile() doctorCheck {
	c := doctorCheck{Name: checkConfig, Status: statusOK}
	cfg, err := configfile.Load(dogcatsDir)
	switch {
	case err != nil:
		c.Status = statusError
		c.Message = "config.yaml cannot be read"
		c.Detail = err.Error()
	case cfg == nil:
		c.Status = statusWarning
		c.Message = "config.yaml not found"
		c.Fix = "Run 'dcat doctor --fix' to create it"
	case cfg.IssuePrefix == "":
		c.Status = statusWarning
		c.Message = "issue_prefix is not set"
		c.Fix = "Run 'dcat doctor --fix' or 'dcat config set issue_prefix <prefix>'"
	default:
		c.Message = fmt.Sprintf("issue_prefix %s", cfg.IssuePrefix)
	}
	return c
}

func checkGitignoreEntry(root string) doctorCheck {
	if dogcat.GitignoreCovers(root) {
		return doctorCheck{Name: checkGitignore, Status: statusOK, Message: "lock file ignored"}
	}
	return doctorCheck{
		Name:    checkGitignore,
		Status:  statusWarning,
		Message: fmt.Sprintf(".gitignore does not list %s", dogcat.GitignoreEntry),
		Fix:     "Run 'dcat doctor --fix' to add it",
	}
}

func checkMergeDriverInstalled(root string) doctorCheck {
	repoRoot, rel, err := repoRelDir(root)
	if err == nil && merge.Installed(rootCtx, repoRoot, rel) {
		return doctorCheck{Name: checkMergeDriver, Status: statusOK, Message: "configured"}
	}
	return doctorCheck{
		Name:    checkMergeDriver,
		Status:  statusWarning,
		Message: "JSONL merge driver is not configured",
		Fix:     "Run 'dcat git setup' or 'dcat doctor --fix'",
	}
}

func checkDanglingDependencies() doctorCheck {
	dangling, err := store.FindDanglingDependencies(rootCtx)
	if err != nil {
		return doctorCheck{Name: checkDangling, Status: statusError, Message: "cannot check dependencies", Detail: err.Error()}
	}
	if len(dangling) == 0 {
		return doctorCheck{Name: checkDangling, Status: statusOK, Message: "all dependencies resolve"}
	}
	details := make([]string, 0, len(dangling))
	for _, dep := range dangling {
		details = append(details, fmt.Sprintf("%s -> %s", dep.IssueID, dep.DependsOnID))
	}
	return doctorCheck{
		Name:    checkDangling,
		Status:  statusError,
		Message: fmt.Sprintf("%d dependency(ies) reference missing issues", len(dangling)),
		Detail:  summarize(details),
		Fix:     "Run 'dcat doctor --fix' to remove them",
	}
}

func checkConcurrentEdits(root string) doctorCheck {
	repoRoot, rel, err := repoRelDir(root)
	if err != nil {
		return doctorCheck{Name: checkConcurrent, Status: statusOK, Message: "not a git repository"}
	}
	warnings := conflict.Detect(rootCtx, repoRoot, filepath.ToSlash(filepath.Join(rel, filepath.Base(store.Path()))))
	if len(warnings) == 0 {
		return doctorCheck{Name: checkConcurrent, Status: statusOK, Message: "none in the last merge"}
	}
	details := make([]string, 0, len(warnings))
	for _, w := range warnings {
		details = append(details, w.Message)
	}
	return doctorCheck{
		Name:    checkConcurrent,
		Status:  statusWarning,
		Message: fmt.Sprintf("%d issue(s) edited on both branches", len(warnings)),
		Detail:  summarize(details),
		Fix:     "Review the listed issues with 'dcat show'",
	}
}

// repoRelDir returns the repository root and the store directory relative to it.
func repoRelDir(dir string) (string, string, error) {
	repoRoot, err := git.RepoRoot(rootCtx, dir)
	if err != nil {
		return "", "", err
	}
	rel, err := filepath.Rel(repoRoot, dogcatsDir)
	if err != nil {
		return "", "", err
	}
	return repoRoot, filepath.ToSlash(rel), nil
}

func summarize(lines []string) string {
	if len(lines) > maxFindingDetails {
		more := len(lines) - maxFindingDetails
		lines = append(lines[:maxFindingDetails:maxFindingDetails], fmt.Sprintf("... and %d more", more))
	}
	return strings.Join(lines, "\n")
}

func applyFixes(result doctorResult) {
	root := filepath.Dir(dogcatsDir)
	for _, check := range result.Checks {
		if check.Status == statusOK {
			continue
		}
		switch check.Name {
		case checkConfig, checkGitignore:
			fmt.Printf("Fixing %s...\n", strings.ToLower(check.Name))
			if _, err := dogcat.Init(root, ""); err != nil {
				fmt.Fprintf(os.Stderr, "  Failed: %v\n", err)
			}
		case checkMergeDriver:
			fmt.Println("Configuring merge driver...")
			repoRoot, rel, err := repoRelDir(root)
			if err == nil {
				err = merge.Install(rootCtx, repoRoot, rel)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "  Failed: %v\n", err)
			}
		case checkDangling:
			dangling, err := store.FindDanglingDependencies(rootCtx)
			if err == nil {
				err = store.RemoveDependencies(rootCtx, dangling)
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "  Failed: %v\n", err)
				continue
			}
			fmt.Printf("Removed %d dangling dependency(ies)\n", len(dangling))
		}
	}
}

func printDiagnostics(result doctorResult) {
	fmt.Println("\nDiagnostics")

	for i, check := range result.Checks {
		prefix := "├"
		if i == len(result.Checks)-1 {
			prefix = "└"
		}

		var statusIcon string
		switch check.Status {
		case statusWarning:
			statusIcon = color.YellowString(" ⚠")
		case statusError:
			statusIcon = color.RedString(" ✗")
		}
		fmt.Printf(" %s %s: %s%s\n", prefix, check.Name, check.Message, statusIcon)

		if check.Detail != "" {
			detailPrefix := "│"
			if i == len(result.Checks)-1 {
				detailPrefix = " "
			}
			for _, line := range strings.Split(check.Detail, "\n") {
				fmt.Printf(" %s   %s\n", detailPrefix, color.New(color.Faint).Sprint(line))
			}
		}
	}

	fmt.Println()

	hasIssues := false
	for _, check := range result.Checks {
		if check.Status == statusOK || check.Fix == "" {
			continue
		}
		hasIssues = true
		switch check.Status {
		case statusWarning:
			color.Yellow("⚠ Warning: %s\n", check.Message)
		case statusError:
			color.Red("✗ Error: %s\n", check.Message)
		}
		fmt.Printf("  Fix: %s\n\n", check.Fix)
	}

	if !hasIssues {
		color.Green("✓ All checks passed\n")
	}
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Automatically fix issues where possible")
	doctorCmd.Flags().BoolVar(&doctorPostMerge, "post-merge", false, "Report issues edited on both sides of the last merge")
	rootCmd.AddCommand(doctorCmd)
}
