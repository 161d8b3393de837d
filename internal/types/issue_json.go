package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Record type tags written into every record.
const (
	RecordIssue      = "issue"
	RecordDependency = "dependency"
	RecordLink       = "link"
	RecordEvent      = "event"
	RecordProposal   = "proposal"
)

type issueAlias Issue

// knownIssueKeys are never copied into Issue.extra.
var knownIssueKeys = map[string]bool{
	"record_type": true, "dcat_version": true, "full_id": true,
	"id": true, "namespace": true, "title": true, "description": true,
	"status": true, "priority": true, "issue_type": true, "owner": true,
	"parent": true, "labels": true, "external_ref": true, "design": true,
	"acceptance": true, "notes": true, "close_reason": true,
	"created_at": true, "created_by": true, "updated_at": true,
	"updated_by": true, "closed_at": true, "closed_by": true,
	"deleted_at": true, "deleted_by": true, "delete_reason": true,
	"original_type": true, "comments": true, "duplicate_of": true,
	"metadata": true,
}

// MarshalJSON writes the issue as a tagged snapshot record. Unknown keys
// read from an earlier snapshot are appended after the known fields.
func (i Issue) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(struct {
		RecordType  string `json:"record_type"`
		DcatVersion string `json:"dcat_version"`
		*issueAlias
	}{RecordIssue, Version, (*issueAlias)(&i)})
	if err != nil || len(i.extra) == 0 {
		return data, err
	}

	keys := make([]string, 0, len(i.extra))
	for k := range i.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range keys {
		name, _ := json.Marshal(k)
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(i.extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an issue record best-effort: missing or mistyped
// fields fall back to defaults instead of failing the whole record.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = IssueFromRaw(raw)
	return nil
}

// IssueFromRaw builds an issue from a decoded record.
func IssueFromRaw(raw map[string]json.RawMessage) Issue {
	var issue Issue

	id := rawString(raw, "id")
	if _, ok := raw["namespace"]; ok {
		issue.Namespace = rawString(raw, "namespace")
		issue.ID = id
	} else {
		// legacy records carry the full id in "id"
		issue.Namespace, issue.ID = SplitFullID(id)
	}

	issue.Title = rawString(raw, "title")
	issue.Description = rawString(raw, "description")
	issue.Status = Status(rawString(raw, "status"))
	if issue.Status == "" {
		issue.Status = StatusOpen
	}
	issue.Priority = 2
	if p, ok := rawInt(raw, "priority"); ok {
		issue.Priority = p
	}
	issue.IssueType = IssueType(rawString(raw, "issue_type"))
	if issue.IssueType == "" {
		issue.IssueType = TypeTask
	}
	issue.Owner = rawString(raw, "owner")
	issue.Parent = rawString(raw, "parent")
	issue.ExternalRef = rawString(raw, "external_ref")
	issue.Design = rawString(raw, "design")
	issue.Acceptance = rawString(raw, "acceptance")
	issue.CreatedAt = rawTime(raw, "created_at")
	issue.CreatedBy = rawString(raw, "created_by")
	issue.UpdatedAt = rawTime(raw, "updated_at")
	issue.UpdatedBy = rawString(raw, "updated_by")
	issue.ClosedAt = rawTimePtr(raw, "closed_at")
	issue.ClosedBy = rawString(raw, "closed_by")
	issue.DeletedAt = rawTimePtr(raw, "deleted_at")
	issue.DeletedBy = rawString(raw, "deleted_by")
	issue.DeleteReason = rawString(raw, "delete_reason")
	issue.OriginalType = IssueType(rawString(raw, "original_type"))
	issue.DuplicateOf = rawString(raw, "duplicate_of")

	if v, ok := raw["labels"]; ok {
		_ = json.Unmarshal(v, &issue.Labels)
	}
	if v, ok := raw["metadata"]; ok {
		_ = json.Unmarshal(v, &issue.Metadata)
	}
	if v, ok := raw["comments"]; ok {
		var comments []map[string]json.RawMessage
		if json.Unmarshal(v, &comments) == nil {
			for _, c := range comments {
				issue.Comments = append(issue.Comments, Comment{
					ID:        rawString(c, "id"),
					IssueID:   rawString(c, "issue_id"),
					Author:    rawString(c, "author"),
					Text:      rawString(c, "text"),
					CreatedAt: rawTime(c, "created_at"),
				})
			}
		}
	}

	notes := rawString(raw, "notes")
	closeReason := rawString(raw, "close_reason")
	if _, ok := raw["close_reason"]; !ok && strings.Contains(notes, legacyClosedMarker) {
		idx := strings.LastIndex(notes, legacyClosedMarker)
		closeReason = strings.TrimSpace(notes[idx+len(legacyClosedMarker):])
		notes = strings.TrimSpace(notes[:idx])
	}
	issue.Notes = notes
	issue.CloseReason = closeReason

	for k, v := range raw {
		if knownIssueKeys[k] {
			continue
		}
		if issue.extra == nil {
			issue.extra = make(map[string][]byte)
		}
		issue.extra[k] = append([]byte(nil), v...)
	}
	return issue
}

// legacyClosedMarker is how close reasons were stored before close_reason existed.
const legacyClosedMarker = "\n\nClosed: "

// SplitFullID splits "ns-hash" on its last hyphen. Ids without a hyphen
// belong to DefaultNamespace.
func SplitFullID(fullID string) (namespace, id string) {
	idx := strings.LastIndex(fullID, "-")
	if idx <= 0 {
		return DefaultNamespace, fullID
	}
	return fullID[:idx], fullID[idx+1:]
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp. Values without a zone are
// read as local time.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

func rawString(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func rawInt(raw map[string]json.RawMessage, key string) (int, bool) {
	v, ok := raw[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(v, &f); err != nil {
		return 0, false
	}
	return int(f), true
}

func rawTime(raw map[string]json.RawMessage, key string) time.Time {
	s := rawString(raw, key)
	if s == "" {
		return time.Time{}
	}
	t, _ := ParseTime(s)
	return t
}

func rawTimePtr(raw map[string]json.RawMessage, key string) *time.Time {
	t := rawTime(raw, key)
	if t.IsZero() {
		return nil
	}
	return &t
}
