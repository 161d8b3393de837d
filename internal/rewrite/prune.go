package rewrite

import (
	"context"
	"fmt"

	"github.com/dogcat/dogcat/internal/inbox"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
)

// PruneResult lists what Prune removed, or would remove on a dry run.
type PruneResult struct {
	Issues    []string `json:"issues"`
	Proposals []string `json:"proposals"`
	Lines     int      `json:"lines"`
}

// Prune permanently removes tombstoned issues: their snapshots, the
// dependencies and links touching them, and their events. Events whose
// issue no longer exists at all are dropped too. Tombstoned inbox
// proposals are pruned afterwards.
func Prune(ctx context.Context, dir string, dryRun bool) (*PruneResult, error) {
	res := &PruneResult{Issues: []string{}, Proposals: []string{}}

	err := lockfile.With(ctx, lockPath(dir), func() error {
		lines, state, err := readLog(dir)
		if err != nil {
			return err
		}

		dead := map[string]bool{}
		for _, issue := range state.Issues() {
			if issue.IsTombstone() {
				dead[issue.FullID()] = true
				res.Issues = append(res.Issues, issue.FullID())
			}
		}

		kept := make([][]byte, 0, len(lines))
		for _, l := range lines {
			drop := false
			if l.rec != nil {
				switch l.rec.Kind {
				case record.KindDependency, record.KindLink:
					from, to := l.rec.Endpoints()
					drop = dead[from] || dead[to]
				case record.KindEvent:
					id := l.rec.Str("issue_id")
					drop = id != "" && (dead[id] || !state.HasIssue(id))
				case record.KindProposal:
				default:
					drop = dead[l.rec.FullID()]
				}
			}
			if drop {
				res.Lines++
				continue
			}
			kept = append(kept, l.raw)
		}

		if dryRun || res.Lines == 0 {
			return nil
		}
		if err := writeLines(issuesPath(dir), kept); err != nil {
			return fmt.Errorf("failed to write storage file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// the inbox takes the same lock, so it runs after ours is released
	box, err := inbox.Open(ctx, dir, inbox.Options{})
	if err != nil {
		return nil, err
	}
	proposals, err := box.Prune(ctx, dryRun)
	if err != nil {
		return nil, fmt.Errorf("failed to prune inbox: %w", err)
	}
	if proposals != nil {
		res.Proposals = proposals
	}
	return res, nil
}
