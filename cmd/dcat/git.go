package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/conflict"
	"github.com/dogcat/dogcat/internal/merge"
)

var gitCmd = &cobra.Command{
	Use:   "git",
	Short: "Git integration",
}

var mergeDriverCmd = &cobra.Command{
	Use:   "merge-driver <base> <ours> <theirs>",
	Short: "Merge three versions of a dogcat log (run by git)",
	Long: `Union-merge three versions of issues.jsonl or inbox.jsonl the way git
invokes a merge driver: the result replaces <ours>. Issues keep the
version with the latest updated_at; dependency, link and event lines
are deduplicated.

Configure it with 'dcat git setup'.`,
	Args:   cobra.ExactArgs(3),
	Hidden: true,
	Run: func(cmd *cobra.Command, args []string) {
		if err := merge.Files(args[0], args[1], args[2]); err != nil {
			fatal(err)
		}
	},
}

var gitSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure the JSONL merge driver for this repository",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repoRoot, rel, err := repoRelDir(filepath.Dir(dogcatsDir))
		if err != nil {
			fatalf("not in a git repository: %v", err)
		}
		if merge.Installed(rootCtx, repoRoot, rel) {
			if jsonOutput {
				outputJSON(map[string]interface{}{"installed": true, "changed": false})
				return
			}
			fmt.Println("Merge driver already configured")
			return
		}
		if err := merge.Install(rootCtx, repoRoot, rel); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"installed": true, "changed": true, "attribute": merge.Attribute(rel)})
			return
		}
		fmt.Printf("%s Configured merge driver %q\n", color.GreenString("✓"), merge.DriverName)
		fmt.Printf("  .gitattributes: %s\n", merge.Attribute(rel))
	},
}

var gitCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report issues edited on both sides of the last merge",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		repoRoot, rel, err := repoRelDir(filepath.Dir(dogcatsDir))
		if err != nil {
			fatalf("not in a git repository: %v", err)
		}
		path := filepath.ToSlash(filepath.Join(rel, filepath.Base(store.Path())))
		warnings := conflict.Detect(rootCtx, repoRoot, path)

		if jsonOutput {
			if warnings == nil {
				warnings = []conflict.Warning{}
			}
			outputJSON(warnings)
			return
		}
		if len(warnings) == 0 {
			fmt.Println("No concurrent edits found")
			return
		}
		for _, w := range warnings {
			color.Yellow("⚠ %s\n", w.Message)
			names := make([]string, 0, len(w.Fields))
			for name := range w.Fields {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				d := w.Fields[name]
				fmt.Printf("    %s: %s | %s (base %s)\n", name,
					formatValue(d.Branch1), formatValue(d.Branch2), dim(formatValue(d.Base)))
			}
		}
	},
}

func init() {
	gitCmd.AddCommand(mergeDriverCmd, gitSetupCmd, gitCheckCmd)
	rootCmd.AddCommand(gitCmd)
}
