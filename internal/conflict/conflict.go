// Package conflict finds issues that were edited on both sides of the most
// recent git merge.
package conflict

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/types"
)

// FieldDiff holds one tracked field's value at the merge base and on each
// parent.
type FieldDiff struct {
	Base    any `json:"base"`
	Branch1 any `json:"branch_1"`
	Branch2 any `json:"branch_2"`
}

// Warning describes an issue modified on both branches of a merge.
type Warning struct {
	IssueID string               `json:"issue_id"`
	Title   string               `json:"title"`
	Message string               `json:"message"`
	Fields  map[string]FieldDiff `json:"fields"`
}

// Detect compares the log at relPath (relative to the repository root) in
// the last merge's two parents against their merge base. Outside git, with
// no merge, or on any git failure it returns no warnings.
func Detect(ctx context.Context, repoDir, relPath string) []Warning {
	merge, err := git.LastMerge(ctx, repoDir)
	if err != nil {
		debug.Logf("concurrent-edit check skipped: %v", err)
		return nil
	}
	p1, p2, err := git.Parents(ctx, repoDir, merge)
	if err != nil {
		debug.Logf("concurrent-edit check skipped: %v", err)
		return nil
	}
	base, err := git.MergeBase(ctx, repoDir, p1, p2)
	if err != nil {
		debug.Logf("concurrent-edit check skipped: %v", err)
		return nil
	}
	load := func(rev string) map[string]*types.Issue {
		data, err := git.Show(ctx, repoDir, rev, relPath)
		if err != nil {
			return map[string]*types.Issue{}
		}
		state, _ := replay.ReplayBytes(data)
		return state.IssueMap()
	}
	return DetectStates(load(base), load(p1), load(p2))
}

// DetectStates reports issues that exist at the base and whose snapshot
// differs from it on both parents, restricted to tracked fields whose
// values ended up different between the parents.
func DetectStates(base, p1, p2 map[string]*types.Issue) []Warning {
	var ids []string
	for id, b := range base {
		if modified(b, p1[id]) && modified(b, p2[id]) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var warnings []Warning
	for _, id := range ids {
		b, one, two := base[id], p1[id], p2[id]
		fields := map[string]FieldDiff{}
		for _, field := range types.TrackedFields {
			bv := types.TrackedValue(b, field)
			v1 := types.TrackedValue(one, field)
			v2 := types.TrackedValue(two, field)
			if types.ValuesEqual(v1, v2) {
				continue
			}
			fields[field] = FieldDiff{Base: bv, Branch1: v1, Branch2: v2}
		}
		if len(fields) == 0 {
			continue
		}
		title := one.Title
		if title == "" {
			title = two.Title
		}
		warnings = append(warnings, Warning{
			IssueID: id,
			Title:   title,
			Message: fmt.Sprintf("Issue %s (%s) was modified on both branches (%d field(s))", id, title, len(fields)),
			Fields:  fields,
		})
	}
	return warnings
}

// modified reports whether next exists and differs from the base snapshot.
func modified(base, next *types.Issue) bool {
	if next == nil {
		return false
	}
	a, errA := record.EncodeIssue(base)
	b, errB := record.EncodeIssue(next)
	if errA != nil || errB != nil {
		return true
	}
	return !bytes.Equal(a, b)
}
