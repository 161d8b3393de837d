// Package history derives events from issue snapshots: backfilling the
// event log of an old repository, and diffing the working tree against
// the last commit.
package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
	"github.com/dogcat/dogcat/internal/types"
)

var (
	// ErrEventsExist is returned by Backfill when the log already has events.
	ErrEventsExist = errors.New("event records already exist; backfill may create duplicates")
	// ErrNotGitRepo is returned by Diff outside a git work tree.
	ErrNotGitRepo = errors.New("not in a git repository")
)

// Backfill replays every issue snapshot in dir's log and synthesizes the
// events that would have been written: created for the first snapshot of
// an issue, then updated, closed or deleted for each later snapshot that
// changes a tracked field. Description contents are not copied into the
// events. With dryRun the events are returned but not written; otherwise a
// log that already holds events is refused.
func Backfill(ctx context.Context, dir string, dryRun bool) ([]*types.Event, error) {
	path := filepath.Join(dir, jsonl.FileName)
	var events []*types.Event

	err := lockfile.With(ctx, filepath.Join(dir, jsonl.LockFileName), func() error {
		lines, err := jsonlfile.ReadLines(path)
		if err != nil {
			return fmt.Errorf("failed to read storage file: %w", err)
		}

		seen := map[string]*types.Issue{}
		hasEvents := false
		for _, line := range lines {
			rec, err := record.Parse(line)
			if err != nil || rec == nil {
				continue
			}
			if rec.Kind == record.KindEvent {
				hasEvents = true
				continue
			}
			if rec.Kind != record.KindIssue {
				continue
			}
			issue := rec.Issue()
			id := issue.FullID()
			if e := snapshotEvent(seen[id], issue); e != nil {
				events = append(events, e)
			}
			seen[id] = issue
		}
		if hasEvents && !dryRun {
			return ErrEventsExist
		}
		if dryRun || len(events) == 0 {
			return nil
		}

		encoded := make([][]byte, 0, len(events))
		for _, e := range events {
			b, err := record.EncodeEvent(e)
			if err != nil {
				return err
			}
			encoded = append(encoded, b)
		}
		return jsonlfile.Append(path, record.Lines(encoded...))
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func snapshotEvent(prev, issue *types.Issue) *types.Event {
	if prev == nil {
		changes := types.TrackedChanges(nil, issue)
		redactDescription(changes)
		return &types.Event{
			EventType: types.EventCreated,
			IssueID:   issue.FullID(),
			Timestamp: types.FormatTime(issue.CreatedAt),
			By:        issue.CreatedBy,
			Title:     issue.Title,
			Changes:   changes,
		}
	}
	changes := types.TrackedChanges(prev, issue)
	if len(changes) == 0 {
		return nil
	}
	redactDescription(changes)
	return &types.Event{
		EventType: eventType(changes),
		IssueID:   issue.FullID(),
		Timestamp: types.FormatTime(issue.UpdatedAt),
		By:        issue.UpdatedBy,
		Title:     issue.Title,
		Changes:   changes,
	}
}

func redactDescription(changes map[string]types.FieldChange) {
	ch, ok := changes["description"]
	if !ok {
		return
	}
	if ch.Old != nil {
		ch.Old = "changed"
	}
	ch.New = "changed"
	changes["description"] = ch
}

// eventType classifies a set of tracked changes by the status it ends in.
func eventType(changes map[string]types.FieldChange) types.EventType {
	ch, ok := changes["status"]
	switch {
	case ok && ch.New == string(types.StatusClosed):
		return types.EventClosed
	case ok && ch.New == string(types.StatusTombstone):
		return types.EventDeleted
	}
	return types.EventUpdated
}

// Diff compares dir's log in the working tree with its version at HEAD
// and returns one event per changed issue, newest first.
func Diff(ctx context.Context, dir string) ([]*types.Event, error) {
	if !git.IsRepo(ctx, dir) {
		return nil, ErrNotGitRepo
	}
	path := filepath.Join(dir, jsonl.FileName)
	rel, err := git.RelPath(ctx, dir, path)
	if err != nil {
		return nil, err
	}

	committed := map[string]*types.Issue{}
	if data, err := git.Show(ctx, dir, "HEAD", rel); err == nil {
		state, _ := replay.ReplayBytes(data)
		committed = state.IssueMap()
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	state, _ := replay.ReplayBytes(data)
	return DiffStates(committed, state.IssueMap()), nil
}

// DiffStates returns the events that turn the old issues into the new.
// Issues missing from new are reported as deleted with status "removed".
func DiffStates(old, current map[string]*types.Issue) []*types.Event {
	events := []*types.Event{}
	for id, issue := range current {
		prev, ok := old[id]
		if !ok {
			events = append(events, &types.Event{
				EventType: types.EventCreated,
				IssueID:   id,
				Timestamp: types.FormatTime(issue.CreatedAt),
				By:        issue.CreatedBy,
				Title:     issue.Title,
				Changes:   types.TrackedChanges(nil, issue),
			})
			continue
		}
		changes := types.TrackedChanges(prev, issue)
		if len(changes) == 0 {
			continue
		}
		events = append(events, &types.Event{
			EventType: eventType(changes),
			IssueID:   id,
			Timestamp: types.FormatTime(issue.UpdatedAt),
			By:        issue.UpdatedBy,
			Title:     issue.Title,
			Changes:   changes,
		})
	}
	for id, issue := range old {
		if _, ok := current[id]; ok {
			continue
		}
		events = append(events, &types.Event{
			EventType: types.EventDeleted,
			IssueID:   id,
			Title:     issue.Title,
			Changes:   map[string]types.FieldChange{"status": {Old: string(issue.Status), New: "removed"}},
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		ti, tj := events[i].Time(), events[j].Time()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return events[i].IssueID < events[j].IssueID
	})
	return events
}
