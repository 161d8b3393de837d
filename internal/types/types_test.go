package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestIssueFullID(t *testing.T) {
	issue := &Issue{ID: "4kzj", Namespace: "dc"}
	if got := issue.FullID(); got != "dc-4kzj" {
		t.Errorf("FullID() = %q, want %q", got, "dc-4kzj")
	}
}

func TestSplitFullID(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantNS string
		wantID string
	}{
		{"simple", "dc-4kzj", "dc", "4kzj"},
		{"multi-part namespace", "my-app-4kzj", "my-app", "4kzj"},
		{"no hyphen", "4kzj", "dc", "4kzj"},
		{"leading hyphen", "-4kzj", "dc", "-4kzj"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, id := SplitFullID(tt.input)
			if ns != tt.wantNS || id != tt.wantID {
				t.Errorf("SplitFullID(%q) = (%q, %q), want (%q, %q)", tt.input, ns, id, tt.wantNS, tt.wantID)
			}
		})
	}
}

func TestIssueJSONRoundTripKeepsUnknownFields(t *testing.T) {
	line := `{"record_type":"issue","namespace":"dc","id":"a1","title":"T","status":"open","priority":1,"issue_type":"bug","created_at":"2025-01-02T03:04:05Z","updated_at":"2025-01-02T03:04:05Z","future_field":{"x":1}}`

	var issue Issue
	if err := json.Unmarshal([]byte(line), &issue); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if issue.Priority != 1 || issue.IssueType != TypeBug {
		t.Errorf("decoded priority/type = %d/%s, want 1/bug", issue.Priority, issue.IssueType)
	}

	out, err := json.Marshal(&issue)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"future_field":{"x":1}`) {
		t.Errorf("unknown field lost on re-encode: %s", out)
	}
	if !strings.Contains(string(out), `"record_type":"issue"`) {
		t.Errorf("record_type missing: %s", out)
	}
}

func TestIssueDecodeLegacy(t *testing.T) {
	line := `{"id":"web-app-x9","title":"Old","notes":"some notes\n\nClosed: shipped","created_at":"2024-05-01T10:00:00","updated_at":"2024-05-01T10:00:00"}`

	var issue Issue
	if err := json.Unmarshal([]byte(line), &issue); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if issue.Namespace != "web-app" || issue.ID != "x9" {
		t.Errorf("namespace/id = %q/%q, want web-app/x9", issue.Namespace, issue.ID)
	}
	if issue.Status != StatusOpen || issue.Priority != 2 || issue.IssueType != TypeTask {
		t.Errorf("defaults not applied: %s/%d/%s", issue.Status, issue.Priority, issue.IssueType)
	}
	if issue.CloseReason != "shipped" || issue.Notes != "some notes" {
		t.Errorf("close reason migration: notes=%q reason=%q", issue.Notes, issue.CloseReason)
	}
	if issue.CreatedAt.IsZero() {
		t.Error("zone-less timestamp should parse")
	}
}

func TestIssueUpdateApplyIsImmutable(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	old := &Issue{ID: "a", Namespace: "dc", Title: "Old", Status: StatusOpen, Priority: 2, IssueType: TypeTask, Labels: []string{"x"}}

	next, err := IssueUpdate{
		Title:  Value("New"),
		Labels: Value([]string{"y", "y", "z"}),
	}.Apply(old, now)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if old.Title != "Old" || len(old.Labels) != 1 {
		t.Errorf("old issue mutated: %+v", old)
	}
	if diff := cmp.Diff([]string{"y", "z"}, next.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if next.Title != "New" || next.Priority != 2 || !next.UpdatedAt.Equal(now) {
		t.Errorf("unexpected snapshot: %+v", next)
	}
}

func TestIssueUpdateApplyRejectsBadValues(t *testing.T) {
	old := &Issue{ID: "a", Namespace: "dc", Title: "T", Status: StatusOpen, IssueType: TypeTask}
	tests := []struct {
		name   string
		update IssueUpdate
	}{
		{"priority", IssueUpdate{Priority: Value(7)}},
		{"status", IssueUpdate{Status: Value(Status("nope"))}},
		{"tombstone status", IssueUpdate{Status: Value(StatusTombstone)}},
		{"type", IssueUpdate{IssueType: Value(IssueType("nope"))}},
		{"empty title", IssueUpdate{Title: Value("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.update.Apply(old, time.Now()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestTrackedChanges(t *testing.T) {
	old := &Issue{Title: "A", Status: StatusOpen, Priority: 2}
	updated := &Issue{Title: "A", Status: StatusClosed, Priority: 0, Labels: []string{"x"}}

	got := TrackedChanges(old, updated)
	want := map[string]FieldChange{
		"status":   {Old: "open", New: "closed"},
		"priority": {Old: 2, New: 0},
		"labels":   {Old: nil, New: []string{"x"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("TrackedChanges mismatch (-want +got):\n%s", diff)
	}

	created := TrackedChanges(nil, updated)
	if _, ok := created["title"]; !ok {
		t.Error("creation diff should include title")
	}
	if _, ok := created["owner"]; ok {
		t.Error("creation diff should skip empty owner")
	}
}
