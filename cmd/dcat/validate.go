package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/types"
	"github.com/dogcat/dogcat/internal/validation"
)

// validateLog runs the validator and the conflict marker scan over path.
func validateLog(path string) []types.Finding {
	findings := validation.ValidateFile(path)
	data, err := os.ReadFile(path) // #nosec G304 - log inside the store directory
	if err == nil {
		findings = append(findings, validation.CheckConflictMarkers(data)...)
	}
	return findings
}

func printFindings(findings []types.Finding) {
	for _, f := range findings {
		icon := color.YellowString("⚠")
		if f.Level == types.LevelError {
			icon = color.RedString("✗")
		}
		if f.Line > 0 {
			fmt.Printf("%s line %d: %s\n", icon, f.Line, f.Message)
		} else {
			fmt.Printf("%s %s\n", icon, f.Message)
		}
	}
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check issues.jsonl for structural and referential problems",
	Long: `Validate the issue log: JSON syntax, required fields, enum values,
timestamps, record versions, references to missing issues, dependency
cycles and leftover git conflict markers.

validate only reports; use 'dcat doctor' for a pass/fail check.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := store.Path()
		if len(args) == 1 {
			path = args[0]
		}
		findings := validateLog(path)

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"path":     path,
				"valid":    !validation.HasErrors(findings),
				"findings": findings,
			})
			return
		}
		if len(findings) == 0 {
			color.Green("✓ %s is valid\n", path)
			return
		}
		printFindings(findings)
		errs := 0
		for _, f := range findings {
			if f.Level == types.LevelError {
				errs++
			}
		}
		fmt.Printf("\n%d error(s), %d warning(s)\n", errs, len(findings)-errs)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
