package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/dogcat"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/inbox"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
	"github.com/dogcat/dogcat/internal/utils"
)

var proposalSymbols = map[types.ProposalStatus]string{
	types.ProposalOpen:      "◇",
	types.ProposalClosed:    "✓",
	types.ProposalTombstone: "☠",
}

// resolveTarget turns --to (a repository root or a .dogcats directory)
// into a .dogcats directory.
func resolveTarget(to string) (string, error) {
	if filepath.Base(to) == dogcat.DirName {
		if info, err := os.Stat(to); err == nil && info.IsDir() {
			return to, nil
		}
	}
	candidate := filepath.Join(to, dogcat.DirName)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate, nil
	}
	if info, err := os.Stat(to); err == nil && info.IsDir() {
		return "", fmt.Errorf("no %s directory found in %s", dogcat.DirName, to)
	}
	return "", fmt.Errorf("target directory does not exist: %s", to)
}

func openInbox(dir string) *inbox.Store {
	s, err := inbox.Open(rootCtx, dir, inbox.Options{})
	if err != nil {
		fatal(err)
	}
	return s
}

func formatProposalBrief(p *types.Proposal) string {
	return fmt.Sprintf("%s %s: %s", proposalSymbols[p.Status], p.FullID(), p.Title)
}

func printProposal(p *types.Proposal) {
	const ts = "2006-01-02 15:04:05"
	bold := color.New(color.Bold).SprintFunc()
	fmt.Printf("%s %s\n", bold("ID:"), p.FullID())
	fmt.Printf("%s %s\n\n", bold("Title:"), p.Title)
	fmt.Printf("%s %s\n", bold("Status:"), p.Status)
	if p.ProposedBy != "" {
		fmt.Printf("%s %s\n", bold("Proposed by:"), p.ProposedBy)
	}
	if p.SourceRepo != "" {
		fmt.Printf("%s %s\n", bold("Source repo:"), p.SourceRepo)
	}
	fmt.Printf("%s %s\n", bold("Created:"), p.CreatedAt.Local().Format(ts))
	if p.ClosedAt != nil {
		line := p.ClosedAt.Local().Format(ts)
		if p.CloseReason != "" {
			line += " (" + p.CloseReason + ")"
		}
		fmt.Printf("%s %s\n", bold("Closed:"), line)
	}
	if p.ClosedBy != "" {
		fmt.Printf("%s %s\n", bold("Closed by:"), p.ClosedBy)
	}
	if p.ResolvedIssue != "" {
		fmt.Printf("%s %s\n", bold("Resolved issue:"), p.ResolvedIssue)
	}
	if p.Description != "" {
		fmt.Printf("\n%s\n%s\n", bold("Description:"), p.Description)
	}
}

var proposeCmd = &cobra.Command{
	Use:   "propose <title>",
	Short: "Send a proposal to a repository's inbox",
	Long: `Create a proposal in the target repository's .dogcats/inbox.jsonl.
Without --to the current project's inbox is used.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		to, _ := cmd.Flags().GetString("to")
		description, _ := cmd.Flags().GetString("description")
		namespace, _ := cmd.Flags().GetString("namespace")

		var target string
		var err error
		if to != "" {
			target, err = resolveTarget(to)
		} else {
			target, err = dogcat.Resolve(dogcatsDir)
		}
		if err != nil {
			fatal(err)
		}
		if namespace == "" {
			namespace = configfile.IssuePrefix(target)
		}

		cwd, _ := os.Getwd()
		by := actor
		if by == "" {
			by = defaultActor(rootCtx, cwd)
		}
		source := cwd
		if root, err := git.RepoRoot(rootCtx, cwd); err == nil {
			source = root
		}

		s := openInbox(target)
		p := &types.Proposal{
			Namespace:   namespace,
			Title:       args[0],
			Description: description,
			ProposedBy:  by,
			SourceRepo:  source,
		}
		if err := s.Create(rootCtx, p); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(p)
			return
		}
		fmt.Printf("✓ Proposed %s: %s\n", p.FullID(), p.Title)
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox",
	Short: "Manage inbox proposals",
}

var inboxListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List proposals",
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		all, _ := cmd.Flags().GetBool("all")
		namespace, _ := cmd.Flags().GetString("namespace")

		proposals := openInbox(dogcatsDir).List(all, namespace)
		if !all {
			open := proposals[:0]
			for _, p := range proposals {
				if p.Status == types.ProposalOpen {
					open = append(open, p)
				}
			}
			proposals = open
		}

		if jsonOutput {
			outputJSON(proposals)
			return
		}
		if len(proposals) == 0 {
			fmt.Println("No proposals in inbox.")
			return
		}
		for _, p := range proposals {
			fmt.Println(formatProposalBrief(p))
		}
	},
}

var inboxShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a proposal",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		p, err := openInbox(dogcatsDir).Get(args[0])
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				fatalf("proposal %s not found", args[0])
			}
			fatal(err)
		}
		if jsonOutput {
			outputJSON(p)
			return
		}
		printProposal(p)
	},
}

var inboxCloseCmd = &cobra.Command{
	Use:   "close <id>...",
	Short: "Close proposals",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")
		resolved, _ := cmd.Flags().GetString("resolved-issue")
		if resolved != "" {
			if fullID, err := store.ResolveID(rootCtx, resolved); err == nil {
				resolved = fullID
			} else {
				resolved = utils.ParseIssueID(resolved, configfile.IssuePrefix(dogcatsDir))
			}
		}
		s := openInbox(dogcatsDir)

		var closed []*types.Proposal
		failed := false
		for _, id := range args {
			p, err := s.Close(rootCtx, id, reason, actor, resolved)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error closing %s: %v\n", id, err)
				failed = true
				continue
			}
			closed = append(closed, p)
			if !jsonOutput {
				fmt.Printf("✓ Closed %s: %s\n", p.FullID(), p.Title)
			}
		}
		if jsonOutput {
			outputJSON(closed)
		}
		if failed {
			os.Exit(1)
		}
	},
}

var inboxDeleteCmd = &cobra.Command{
	Use:     "delete <id>...",
	Aliases: []string{"rm"},
	Short:   "Delete proposals",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		s := openInbox(dogcatsDir)
		var deleted []*types.Proposal
		failed := false
		for _, id := range args {
			p, err := s.Delete(rootCtx, id, actor)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error deleting %s: %v\n", id, err)
				failed = true
				continue
			}
			deleted = append(deleted, p)
			if !jsonOutput {
				fmt.Printf("✓ Deleted %s: %s\n", p.FullID(), p.Title)
			}
		}
		if jsonOutput {
			outputJSON(deleted)
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	proposeCmd.Flags().String("to", "", "Target repository root or .dogcats directory")
	proposeCmd.Flags().StringP("description", "d", "", "Proposal description")
	proposeCmd.Flags().StringP("namespace", "n", "", "Namespace for the proposal (default: target's issue prefix)")

	inboxListCmd.Flags().BoolP("all", "a", false, "Include closed and deleted proposals")
	inboxListCmd.Flags().StringP("namespace", "n", "", "Only list this namespace")

	inboxCloseCmd.Flags().StringP("reason", "r", "", "Reason for closing")
	inboxCloseCmd.Flags().String("resolved-issue", "", "Issue created from the proposal")

	inboxCmd.AddCommand(inboxListCmd, inboxShowCmd, inboxCloseCmd, inboxDeleteCmd)
	rootCmd.AddCommand(proposeCmd, inboxCmd)
}
