package history

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
	"github.com/dogcat/dogcat/internal/types"
)

func snapshot(id, status, title, updated string) string {
	return `{"record_type":"issue","id":"` + id + `","namespace":"dc","title":"` + title +
		`","description":"body of ` + title + `","status":"` + status + `","priority":2,"issue_type":"task",` +
		`"created_at":"2026-01-01T00:00:00Z","created_by":"alice","updated_at":"` + updated + `","updated_by":"bob"}`
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	data := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(dir, jsonl.FileName), []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return dir
}

type summary struct {
	Type types.EventType
	ID   string
	TS   string
	By   string
}

func summarize(events []*types.Event) []summary {
	out := make([]summary, 0, len(events))
	for _, e := range events {
		out = append(out, summary{e.EventType, e.IssueID, e.Timestamp, e.By})
	}
	return out
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	dir := writeLog(t,
		snapshot("a", "open", "A", "2026-01-01T00:00:00Z"),
		snapshot("b", "open", "B", "2026-01-01T00:00:00Z"),
		snapshot("a", "open", "A", "2026-01-01T01:00:00Z"),
		snapshot("a", "in_progress", "A", "2026-01-02T00:00:00Z"),
		snapshot("a", "closed", "A", "2026-01-03T00:00:00Z"),
		snapshot("b", "tombstone", "B", "2026-01-04T00:00:00Z"),
		`{"record_type":"dependency","issue_id":"dc-a","depends_on_id":"dc-b","dep_type":"blocks","op":"add"}`,
	)

	events, err := Backfill(ctx, dir, true)
	if err != nil {
		t.Fatalf("Backfill(dry run) failed: %v", err)
	}
	want := []summary{
		{types.EventCreated, "dc-a", "2026-01-01T00:00:00Z", "alice"},
		{types.EventCreated, "dc-b", "2026-01-01T00:00:00Z", "alice"},
		{types.EventUpdated, "dc-a", "2026-01-02T00:00:00Z", "bob"},
		{types.EventClosed, "dc-a", "2026-01-03T00:00:00Z", "bob"},
		{types.EventDeleted, "dc-b", "2026-01-04T00:00:00Z", "bob"},
	}
	if diff := cmp.Diff(want, summarize(events)); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	if got := events[0].Changes["description"].New; got != "changed" {
		t.Errorf("description change = %v, want redacted", got)
	}

	before, _ := os.ReadFile(filepath.Join(dir, jsonl.FileName))
	if _, err := Backfill(ctx, dir, false); err != nil {
		t.Fatalf("Backfill failed: %v", err)
	}
	lines, err := jsonlfile.ReadLines(filepath.Join(dir, jsonl.FileName))
	if err != nil {
		t.Fatal(err)
	}
	if want := strings.Count(string(before), "\n") + len(want); len(lines) != want {
		t.Errorf("log has %d lines after backfill, want %d", len(lines), want)
	}

	if _, err := Backfill(ctx, dir, false); !errors.Is(err, ErrEventsExist) {
		t.Errorf("second Backfill err = %v, want ErrEventsExist", err)
	}
	if _, err := Backfill(ctx, dir, true); err != nil {
		t.Errorf("dry run over existing events failed: %v", err)
	}
}

func TestBackfillLeavesStateUnchanged(t *testing.T) {
	dir := writeLog(t,
		snapshot("a", "open", "A", "2026-01-01T00:00:00Z"),
		snapshot("a", "closed", "A", "2026-01-02T00:00:00Z"),
	)
	path := filepath.Join(dir, jsonl.FileName)
	data, _ := os.ReadFile(path)
	before, _ := replay.ReplayBytes(data)

	if _, err := Backfill(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	after, _ := replay.ReplayBytes(data)
	if diff := cmp.Diff(before.IssueMap(), after.IssueMap(), cmpopts.IgnoreUnexported(types.Issue{})); diff != "" {
		t.Errorf("issue state changed (-before +after):\n%s", diff)
	}
}

func TestDiffStates(t *testing.T) {
	old := map[string]*types.Issue{
		"dc-a": {ID: "a", Namespace: "dc", Title: "A", Status: types.StatusOpen, Priority: 2},
		"dc-b": {ID: "b", Namespace: "dc", Title: "B", Status: types.StatusOpen, Priority: 2},
		"dc-c": {ID: "c", Namespace: "dc", Title: "C", Status: types.StatusOpen, Priority: 2},
		"dc-d": {ID: "d", Namespace: "dc", Title: "D", Status: types.StatusOpen, Priority: 2},
	}
	current := map[string]*types.Issue{
		"dc-a": {ID: "a", Namespace: "dc", Title: "A", Status: types.StatusOpen, Priority: 2},
		"dc-b": {ID: "b", Namespace: "dc", Title: "B", Status: types.StatusClosed, Priority: 2},
		"dc-c": {ID: "c", Namespace: "dc", Title: "C", Status: types.StatusTombstone, Priority: 2},
		"dc-e": {ID: "e", Namespace: "dc", Title: "E", Status: types.StatusOpen, Priority: 1},
	}

	got := map[string]types.EventType{}
	for _, e := range DiffStates(old, current) {
		got[e.IssueID] = e.EventType
		if e.IssueID == "dc-d" {
			if s := e.Changes["status"].New; s != "removed" {
				t.Errorf("removed issue status = %v", s)
			}
		}
	}
	want := map[string]types.EventType{
		"dc-b": types.EventClosed,
		"dc-c": types.EventDeleted,
		"dc-d": types.EventDeleted,
		"dc-e": types.EventCreated,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DiffStates mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	ctx := context.Background()
	root := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test"},
		{"config", "commit.gpgsign", "false"},
	} {
		if _, err := git.Run(ctx, root, args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	dir := filepath.Join(root, ".dogcats")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}

	// Nothing committed yet: everything in the working tree is new.
	path := filepath.Join(dir, jsonl.FileName)
	if err := os.WriteFile(path, []byte(snapshot("a", "open", "A", "2026-01-01T00:00:00Z")+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	events, err := Diff(ctx, dir)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != types.EventCreated {
		t.Fatalf("uncommitted diff = %+v", summarize(events))
	}

	for _, args := range [][]string{{"add", "."}, {"commit", "-q", "-m", "issues"}} {
		if _, err := git.Run(ctx, root, args...); err != nil {
			t.Fatalf("git %v: %v", args, err)
		}
	}
	if events, err := Diff(ctx, dir); err != nil || len(events) != 0 {
		t.Fatalf("clean diff = %+v, %v", events, err)
	}

	if err := jsonlfile.Append(path, []byte(snapshot("a", "in_progress", "A", "2026-01-02T00:00:00Z")+"\n")); err != nil {
		t.Fatal(err)
	}
	events, err = Diff(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].EventType != types.EventUpdated || events[0].Changes["status"].New != "in_progress" {
		t.Errorf("diff after update = %+v", events)
	}
}

func TestDiffOutsideGit(t *testing.T) {
	if _, err := Diff(context.Background(), t.TempDir()); !errors.Is(err, ErrNotGitRepo) {
		t.Errorf("Diff outside git err = %v, want ErrNotGitRepo", err)
	}
}
