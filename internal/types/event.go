package types

import (
	"slices"
	"time"
)

// EventType categorizes audit trail events
type EventType string

// Event type constants
const (
	EventCreated  EventType = "created"
	EventUpdated  EventType = "updated"
	EventClosed   EventType = "closed"
	EventReopened EventType = "reopened"
	EventDeleted  EventType = "deleted"
)

// FieldChange is the before/after pair of one tracked field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Event is an informational audit record. Events never feed back into
// issue state.
type Event struct {
	EventType EventType              `json:"event_type"`
	IssueID   string                 `json:"issue_id"`
	Timestamp string                 `json:"timestamp"`
	By        string                 `json:"by,omitempty"`
	Title     string                 `json:"title,omitempty"`
	Changes   map[string]FieldChange `json:"changes"`
}

// Time parses the event timestamp, returning the zero time on failure.
func (e *Event) Time() time.Time {
	t, _ := ParseTime(e.Timestamp)
	return t
}

// FormatTime renders t the way timestamps are written to the log.
func FormatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// TrackedFields are the issue fields whose changes produce events and
// count towards concurrent-edit detection.
var TrackedFields = []string{
	"title",
	"description",
	"labels",
	"external_ref",
	"issue_type",
	"priority",
	"parent",
	"acceptance",
	"notes",
	"design",
	"status",
	"owner",
}

// TrackedValue returns the event representation of a tracked field.
// Empty strings and empty label lists are reported as nil.
func TrackedValue(issue *Issue, field string) any {
	var s string
	switch field {
	case "title":
		s = issue.Title
	case "description":
		s = issue.Description
	case "labels":
		if len(issue.Labels) == 0 {
			return nil
		}
		return slices.Clone(issue.Labels)
	case "external_ref":
		s = issue.ExternalRef
	case "issue_type":
		s = string(issue.IssueType)
	case "priority":
		return issue.Priority
	case "parent":
		s = issue.Parent
	case "acceptance":
		s = issue.Acceptance
	case "notes":
		s = issue.Notes
	case "design":
		s = issue.Design
	case "status":
		s = string(issue.Status)
	case "owner":
		s = issue.Owner
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return s
}

// ValuesEqual compares two TrackedValue results.
func ValuesEqual(a, b any) bool {
	la, aok := a.([]string)
	lb, bok := b.([]string)
	if aok || bok {
		return aok && bok && slices.Equal(la, lb)
	}
	return a == b
}

// TrackedChanges diffs two snapshots over TrackedFields. A nil old issue
// reports every non-empty field of the new one as a change from nil.
func TrackedChanges(old, updated *Issue) map[string]FieldChange {
	changes := make(map[string]FieldChange)
	for _, field := range TrackedFields {
		var before any
		if old != nil {
			before = TrackedValue(old, field)
		}
		after := TrackedValue(updated, field)
		if !ValuesEqual(before, after) {
			changes[field] = FieldChange{Old: before, New: after}
		}
	}
	return changes
}
