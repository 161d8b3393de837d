package rewrite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/types"
)

// ArchiveDirName is the subdirectory of .dogcats holding archive files.
const ArchiveDirName = "archive"

// maxListed caps the ids quoted in a skip reason.
const maxListed = 3

// ArchiveOptions selects which closed issues to archive.
type ArchiveOptions struct {
	// Namespace restricts archiving to one namespace when set.
	Namespace string
	// OlderThan only archives issues closed at least this long ago.
	OlderThan time.Duration
	DryRun    bool
	Now       func() time.Time
}

// Skipped is a candidate that could not be archived.
type Skipped struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// ArchiveResult describes what Archive moved, or would move on a dry run.
type ArchiveResult struct {
	Archived     []string  `json:"archived"`
	Skipped      []Skipped `json:"skipped"`
	Issues       int       `json:"issues"`
	Dependencies int       `json:"dependencies"`
	Links        int       `json:"links"`
	Events       int       `json:"events"`
	Path         string    `json:"path,omitempty"`
}

// Archive moves closed issues, with their edges and events, out of the
// issue log into archive/closed-<timestamp>.jsonl. An issue stays when it
// has an open child, a parent that stays, or any dependency or link to an
// issue that stays.
func Archive(ctx context.Context, dir string, opts ArchiveOptions) (*ArchiveResult, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	now := opts.Now().UTC()
	res := &ArchiveResult{Archived: []string{}, Skipped: []Skipped{}}

	err := lockfile.With(ctx, lockPath(dir), func() error {
		lines, state, err := readLog(dir)
		if err != nil {
			return err
		}

		candidates := archiveCandidates(state, opts, now)
		archivable := map[string]bool{}
		for _, issue := range candidates.order {
			if reason := disqualify(state, issue, candidates); reason != "" {
				res.Skipped = append(res.Skipped, Skipped{ID: issue.FullID(), Title: issue.Title, Reason: reason})
				continue
			}
			archivable[issue.FullID()] = true
			res.Archived = append(res.Archived, issue.FullID())
		}
		if len(archivable) == 0 {
			return nil
		}

		var archived, remaining [][]byte
		for _, l := range lines {
			if l.rec == nil {
				remaining = append(remaining, l.raw)
				continue
			}
			move := false
			switch l.rec.Kind {
			case record.KindDependency, record.KindLink:
				from, to := l.rec.Endpoints()
				move = archivable[from] && archivable[to]
				if move && l.rec.Kind == record.KindDependency {
					res.Dependencies++
				} else if move {
					res.Links++
				}
			case record.KindEvent:
				move = archivable[l.rec.Str("issue_id")]
				if move {
					res.Events++
				}
			case record.KindProposal:
			default:
				move = archivable[l.rec.FullID()]
			}
			if move {
				archived = append(archived, l.raw)
			} else {
				remaining = append(remaining, l.raw)
			}
		}
		res.Issues = len(res.Archived)

		archiveDir := filepath.Join(dir, ArchiveDirName)
		res.Path = filepath.Join(archiveDir, "closed-"+now.Format("2006-01-02T15-04-05")+".jsonl")
		if opts.DryRun {
			return nil
		}

		if err := os.MkdirAll(archiveDir, 0o750); err != nil {
			return fmt.Errorf("failed to create archive directory: %w", err)
		}
		if _, err := os.Stat(res.Path); err == nil {
			return fmt.Errorf("archive file %s already exists", res.Path)
		}
		// the archive is complete on disk before anything leaves the main file
		if err := writeLines(res.Path, archived); err != nil {
			return fmt.Errorf("failed to write archive file: %w", err)
		}
		if err := writeLines(issuesPath(dir), remaining); err != nil {
			return fmt.Errorf("failed to write storage file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// archiveCandidates returns closed issues matching the namespace and age
// filters, keyed by full id and in log order.
func archiveCandidates(state *replay.State, opts ArchiveOptions, now time.Time) candidateSet {
	set := candidateSet{ids: map[string]bool{}}
	for _, issue := range state.Issues() {
		if !issue.IsClosed() {
			continue
		}
		if opts.Namespace != "" && issue.Namespace != opts.Namespace {
			continue
		}
		if opts.OlderThan > 0 && (issue.ClosedAt == nil || issue.ClosedAt.After(now.Add(-opts.OlderThan))) {
			continue
		}
		set.ids[issue.FullID()] = true
		set.order = append(set.order, issue)
	}
	return set
}

type candidateSet struct {
	ids   map[string]bool
	order []*types.Issue
}

// disqualify returns why issue must stay, or "" when it can be archived.
// Every rule checks against the full candidate set, not the survivors of
// earlier rules.
func disqualify(state *replay.State, issue *types.Issue, set candidateSet) string {
	id := issue.FullID()

	var openChildren []string
	for _, child := range state.Issues() {
		if child.Parent == id && !child.IsClosed() {
			openChildren = append(openChildren, child.FullID())
		}
	}
	if len(openChildren) > 0 {
		return fmt.Sprintf("has %d open child(ren): %s", len(openChildren), listIDs(openChildren))
	}

	if issue.Parent != "" && !set.ids[issue.Parent] {
		status := "unknown"
		if parent := state.Issue(issue.Parent); parent != nil {
			status = string(parent.Status)
		}
		return fmt.Sprintf("parent %s is not being archived (status: %s)", issue.Parent, status)
	}

	var deps, dependents, out, in []string
	for _, dep := range state.Dependencies() {
		if dep.IssueID == id && !set.ids[dep.DependsOnID] {
			deps = append(deps, dep.DependsOnID)
		}
		if dep.DependsOnID == id && !set.ids[dep.IssueID] {
			dependents = append(dependents, dep.IssueID)
		}
	}
	for _, link := range state.Links() {
		if link.FromID == id && !set.ids[link.ToID] {
			out = append(out, link.ToID)
		}
		if link.ToID == id && !set.ids[link.FromID] {
			in = append(in, link.FromID)
		}
	}
	switch {
	case len(deps) > 0:
		return "depends on non-archived issue(s): " + listIDs(deps)
	case len(dependents) > 0:
		return "is depended on by non-archived issue(s): " + listIDs(dependents)
	case len(out) > 0:
		return "has links to non-archived issue(s): " + listIDs(out)
	case len(in) > 0:
		return "has incoming links from non-archived issue(s): " + listIDs(in)
	}
	return ""
}

func listIDs(ids []string) string {
	if len(ids) > maxListed {
		ids = ids[:maxListed]
	}
	return strings.Join(ids, ", ")
}
