package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/dogcat"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/merge"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize dogcat in the current directory",
	Long: `Create .dogcats/ with an empty issue log, an empty inbox and config.yaml,
and add the lock file to .gitignore. Running init again keeps existing data.

Inside a git repository the JSONL merge driver is configured unless
--skip-merge-driver is given.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		prefix, _ := cmd.Flags().GetString("prefix")
		quiet, _ := cmd.Flags().GetBool("quiet")
		skipMergeDriver, _ := cmd.Flags().GetBool("skip-merge-driver")

		root, err := os.Getwd()
		if err != nil {
			fatalf("failed to get current directory: %w", err)
		}
		if dogcatsDir != "" {
			root = filepath.Dir(dogcatsDir)
		}

		dir, err := dogcat.Init(root, prefix)
		if err != nil {
			fatal(err)
		}
		cfg, err := configfile.Load(dir)
		if err != nil {
			fatal(err)
		}

		mergeDriver := false
		if !skipMergeDriver && git.IsRepo(rootCtx, root) {
			if repoRoot, err := git.RepoRoot(rootCtx, root); err == nil {
				rel, _ := filepath.Rel(repoRoot, dir)
				if err := merge.Install(rootCtx, repoRoot, filepath.ToSlash(rel)); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to configure merge driver: %v\n", err)
				} else {
					mergeDriver = true
				}
			}
		}

		if jsonOutput {
			outputJSON(map[string]interface{}{
				"path":         dir,
				"issue_prefix": cfg.IssuePrefix,
				"merge_driver": mergeDriver,
			})
			return
		}
		if quiet {
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("%s dogcat initialized in %s\n", green("✓"), cyan(dir))
		fmt.Printf("  Issue prefix: %s\n", cyan(cfg.IssuePrefix))
		if mergeDriver {
			fmt.Printf("  Merge driver: %s\n", cyan("configured"))
		}
	},
}

func init() {
	initCmd.Flags().StringP("prefix", "p", "", "Issue prefix (default: derived from the directory name)")
	initCmd.Flags().BoolP("quiet", "q", false, "Suppress output")
	initCmd.Flags().Bool("skip-merge-driver", false, "Do not configure the git merge driver")
	rootCmd.AddCommand(initCmd)
}
