package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/config"
	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/dogcat"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
	"github.com/dogcat/dogcat/internal/types"
)

var (
	dogcatsDir string
	actor      string
	jsonOutput bool
	store      *jsonl.Store

	// rootCtx is cancelled on SIGINT/SIGTERM.
	rootCtx = context.Background()
)

// Commands that never open the issue log. Subcommands of noStoreGroups
// inherit the exemption.
var (
	noStoreCommands = []string{
		"completion",
		"help",
		"init",
		"merge-driver",
		"propose",
		"version",
		"bash", "fish", "powershell", "zsh",
	}
	noDirGroups = []string{"config"}
)

func init() {
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dogcatsDir, "dir", "", "Path to the .dogcats directory (default: auto-discover)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for the audit trail (default: $DCAT_ACTOR, git user.email or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

var rootCmd = &cobra.Command{
	Use:   "dcat",
	Short: "dcat - file-based issue tracker",
	Long: `dogcat keeps issues, dependencies and their history in an append-only
.dogcats/issues.jsonl log that lives in your repository and merges with git.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("dcat version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Priority: flags > viper (config file + DCAT_* env) > defaults
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if !cmd.Flags().Changed("dir") && dogcatsDir == "" {
			dogcatsDir = config.GetString("dir")
		}
		if !cmd.Flags().Changed("actor") && actor == "" {
			actor = config.GetString("actor")
		}

		debug.Configure(debug.Options{
			Enabled: config.GetBool("debug"),
			File:    config.GetString("log-file"),
		})

		if slices.Contains(noStoreCommands, cmd.Name()) {
			return
		}

		dir, err := dogcat.Resolve(dogcatsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: run 'dcat init' to create .dogcats in the current directory\n")
			fmt.Fprintf(os.Stderr, "      or set DCAT_DIR to point to your .dogcats directory\n")
			os.Exit(1)
		}
		dogcatsDir = dir

		// A --dir pointing elsewhere brings its own project config.
		if cmd.Flags().Changed("dir") {
			if err := config.InitializeFrom(filepath.Dir(dir)); err != nil {
				debug.Logf("reloading config for %s: %v", dir, err)
			}
		}

		if actor == "" {
			actor = defaultActor(rootCtx, filepath.Dir(dir))
		}

		if cmd.Parent() != nil && slices.Contains(noDirGroups, cmd.Parent().Name()) {
			return
		}

		store, err = jsonl.Open(rootCtx, dogcat.IssuesPath(dir), jsonl.Options{
			AutoCompact: config.GetBool("auto-compact"),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open %s: %v\n", dogcat.IssuesPath(dir), err)
			os.Exit(1)
		}
		debug.Logf("opened %s", store.Path())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
		}
		_ = debug.Close()
	},
}

// defaultActor follows the order git user.email, $USER, "unknown".
func defaultActor(ctx context.Context, repoDir string) string {
	if email, err := git.ConfigGet(ctx, repoDir, "user.email"); err == nil && email != "" {
		return email
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// outputJSON outputs data as pretty-printed JSON
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// fatal prints err the way every command reports failure and exits 1.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// fatalf is fatal with a formatted message.
func fatalf(format string, args ...interface{}) {
	fatal(fmt.Errorf(format, args...))
}

// resolveIssue looks up a full or partial id and exits on failure.
func resolveIssue(ctx context.Context, id string) *types.Issue {
	issue, err := store.GetIssue(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			fatalf("issue %s not found", id)
		}
		fatal(err)
	}
	return issue
}

// issueView is the JSON shape of an issue on the command line: the
// stored record plus full_id, without the record tags.
func issueView(issue *types.Issue) map[string]any {
	data, err := json.Marshal(issue)
	if err != nil {
		fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		fatal(err)
	}
	delete(m, "record_type")
	delete(m, "dcat_version")
	m["full_id"] = issue.FullID()
	return m
}

func issueViews(issues []*types.Issue) []map[string]any {
	out := make([]map[string]any, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issueView(issue))
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	rootCtx = ctx
	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}
