package jsonl

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"slices"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/types"
)

// emitEvent appends an audit event for issue. Events are informational, so
// a failure is logged and otherwise ignored. Event lines do not count
// towards the compaction threshold.
func (s *Store) emitEvent(ctx context.Context, eventType types.EventType, issue *types.Issue, changes map[string]types.FieldChange, by string) {
	if len(changes) == 0 && eventType == types.EventUpdated {
		return
	}
	e := &types.Event{
		EventType: eventType,
		IssueID:   issue.FullID(),
		Timestamp: types.FormatTime(issue.UpdatedAt),
		By:        by,
		Title:     issue.Title,
		Changes:   changes,
	}
	line, err := record.EncodeEvent(e)
	if err != nil {
		debug.Warn("failed to encode event", "issue", e.IssueID, "error", err)
		return
	}
	line = append(line, '\n')
	err = lockfile.With(ctx, s.lockPath, func() error {
		return jsonlfile.Append(s.path, line)
	})
	if err != nil {
		debug.Warn("failed to write event", "issue", e.IssueID, "error", err)
	}
}

// ReadEvents returns events newest first. An empty issueID returns events
// for every issue; a limit of zero or less means no limit.
func (s *Store) ReadEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	s.mu.Lock()
	if issueID != "" {
		if fullID, err := s.resolve(issueID); err == nil {
			issueID = fullID
		}
	}
	path := s.path
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.Event{}, nil
		}
		return nil, err
	}
	return ParseEvents(data, issueID, limit), nil
}

// ParseEvents extracts event records from log data, newest first.
func ParseEvents(data []byte, issueID string, limit int) []*types.Event {
	var events []*types.Event
	for _, line := range jsonlfile.SplitLines(data) {
		rec, err := record.Parse(line)
		if err != nil || rec == nil || rec.Kind != record.KindEvent {
			continue
		}
		if issueID != "" && rec.Str("issue_id") != issueID {
			continue
		}
		e, err := rec.Event()
		if err != nil {
			continue
		}
		events = append(events, e)
	}
	// the log is chronological; stable reversal keeps ties in reverse write order
	slices.Reverse(events)
	slices.SortStableFunc(events, func(a, b *types.Event) int {
		return b.Time().Compare(a.Time())
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	if events == nil {
		events = []*types.Event{}
	}
	return events
}

// renameEventIssue rewrites the issue_id of an event line, leaving every
// other key untouched.
func renameEventIssue(line []byte, newID string) []byte {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return line
	}
	id, err := json.Marshal(newID)
	if err != nil {
		return line
	}
	raw["issue_id"] = id
	out, err := json.Marshal(raw)
	if err != nil {
		return line
	}
	return bytes.TrimSpace(out)
}
