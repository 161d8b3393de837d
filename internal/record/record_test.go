package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dogcat/dogcat/internal/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Kind
	}{
		{"explicit issue wins over shape", `{"record_type":"issue","from_id":"a","to_id":"b"}`, KindIssue},
		{"explicit event", `{"record_type":"event","event_type":"created","issue_id":"dc-a"}`, KindEvent},
		{"explicit proposal", `{"record_type":"proposal","id":"x"}`, KindProposal},
		{"link shape", `{"from_id":"dc-a","to_id":"dc-b"}`, KindLink},
		{"dependency shape", `{"issue_id":"dc-a","depends_on_id":"dc-b"}`, KindDependency},
		{"link before dependency", `{"from_id":"a","to_id":"b","issue_id":"c","depends_on_id":"d"}`, KindLink},
		{"event shape", `{"event_type":"updated","issue_id":"dc-a"}`, KindEvent},
		{"proposal shape", `{"id":"x","proposed_by":"alice"}`, KindProposal},
		{"proposal by source_repo", `{"id":"x","source_repo":"../other"}`, KindProposal},
		{"default is issue", `{"id":"dc-a","title":"T"}`, KindIssue},
		{"unknown record_type falls back to shape", `{"record_type":"mystery","from_id":"a","to_id":"b"}`, KindLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Parse([]byte(tt.line))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if rec.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", rec.Kind, tt.want)
			}
		})
	}
}

func TestParseRejectsBadLines(t *testing.T) {
	for _, line := range []string{`{not json`, `[1,2]`, `"str"`, `{"a":`} {
		if _, err := Parse([]byte(line)); err == nil {
			t.Errorf("Parse(%q) should fail", line)
		}
	}
	rec, err := Parse([]byte("   \t"))
	if rec != nil || err != nil {
		t.Errorf("blank line = (%v, %v), want (nil, nil)", rec, err)
	}
}

func TestDependencyLegacyTypeKey(t *testing.T) {
	rec, err := Parse([]byte(`{"issue_id":"dc-a","depends_on_id":"dc-b","type":"parent-child"}`))
	if err != nil {
		t.Fatal(err)
	}
	dep := rec.Dependency()
	if dep.Type != types.DepParentChild {
		t.Errorf("dep type = %s, want parent-child", dep.Type)
	}
	if rec.Op() != types.OpAdd {
		t.Errorf("default op = %s, want add", rec.Op())
	}
}

func TestEncodeDependencyRoundTrip(t *testing.T) {
	now := time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC)
	line, err := EncodeDependency(types.Dependency{
		IssueID: "dc-a", DependsOnID: "dc-b", Type: types.DepBlocks, CreatedAt: now, CreatedBy: "me",
	}, types.OpRemove)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := Parse(line)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Kind != KindDependency || rec.Op() != types.OpRemove {
		t.Fatalf("got kind=%s op=%s", rec.Kind, rec.Op())
	}
	if got := rec.Dependency(); !got.CreatedAt.Equal(now) || got.CreatedBy != "me" {
		t.Errorf("decoded %+v", got)
	}
}

func TestEncodeEventIsClassifiedAsEvent(t *testing.T) {
	line, err := EncodeEvent(&types.Event{EventType: types.EventCreated, IssueID: "dc-a", Timestamp: "2025-01-01T00:00:00Z"})
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["changes"]; !ok {
		t.Error("event without changes should still write an empty object")
	}
	if Classify(raw) != KindEvent {
		t.Errorf("encoded event classified as %s", Classify(raw))
	}
}

func TestRecordFullID(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`{"namespace":"web","id":"a1"}`, "web-a1"},
		{`{"id":"web-a1"}`, "web-a1"},
		{`{"record_type":"proposal","id":"p1"}`, "dc-inbox-p1"},
		{`{"event_type":"created","issue_id":"dc-z"}`, "dc-z"},
		{`{"from_id":"a","to_id":"b"}`, ""},
	}
	for _, tt := range tests {
		rec, err := Parse([]byte(tt.line))
		if err != nil {
			t.Fatal(err)
		}
		if got := rec.FullID(); got != tt.want {
			t.Errorf("FullID(%s) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestLines(t *testing.T) {
	got := string(Lines([]byte(`{"a":1}`), []byte(`{"b":2}`)))
	if got != "{\"a\":1}\n{\"b\":2}\n" {
		t.Errorf("Lines = %q", got)
	}
}
