package jsonl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

// clock returns a Now func that advances one second per call.
func clock() func() time.Time {
	t := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), ".dogcats")
	s, err := Open(context.Background(), filepath.Join(dir, "issues.jsonl"), Options{CreateDir: true, Now: clock()})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreate(t *testing.T, s *Store, id, title string, priority int) *types.Issue {
	t.Helper()
	issue := &types.Issue{ID: id, Namespace: "dc", Title: title, Priority: priority, IssueType: types.TypeTask, CreatedBy: "tester"}
	if err := s.CreateIssue(context.Background(), issue); err != nil {
		t.Fatalf("CreateIssue(%s) failed: %v", id, err)
	}
	return issue
}

func reopen(t *testing.T, s *Store) *Store {
	t.Helper()
	other, err := Open(context.Background(), s.Path(), Options{Now: clock()})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	return other
}

func TestOpenRequiresDirectory(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing", "issues.jsonl"), Options{})
	if err == nil || !strings.Contains(err.Error(), "dcat init") {
		t.Fatalf("Open error = %v, want hint to run dcat init", err)
	}
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	issue := &types.Issue{Title: "Write docs", Priority: 2, Labels: []string{"docs", "docs", ""}}
	if err := s.CreateIssue(ctx, issue); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}
	if issue.ID == "" || issue.Namespace != "dc" {
		t.Fatalf("generated id = %q namespace = %q", issue.ID, issue.Namespace)
	}

	got, err := s.GetIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("GetIssue by hash failed: %v", err)
	}
	if got.Title != "Write docs" || got.Status != types.StatusOpen || got.IssueType != types.TypeTask {
		t.Errorf("GetIssue = %+v", got)
	}
	if diff := cmp.Diff([]string{"docs"}, got.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}

	other := reopen(t, s)
	persisted, err := other.GetIssue(ctx, issue.FullID())
	if err != nil {
		t.Fatalf("GetIssue after reload failed: %v", err)
	}
	if persisted.Title != got.Title || !persisted.CreatedAt.Equal(got.CreatedAt) {
		t.Errorf("persisted = %+v, want %+v", persisted, got)
	}
}

func TestCreateErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "first", 1)

	tests := []struct {
		name  string
		issue *types.Issue
		want  error
	}{
		{"duplicate", &types.Issue{ID: "a1", Title: "again"}, storage.ErrAlreadyExists},
		{"empty title", &types.Issue{ID: "b2", Title: "  "}, storage.ErrInvalidInput},
		{"bad priority", &types.Issue{ID: "c3", Title: "x", Priority: 7}, storage.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateIssue(ctx, tt.issue)
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateIssue error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(s.state.Issues()); n != 1 {
		t.Errorf("issue count = %d, want 1", n)
	}
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "first", 2)

	before, _ := s.GetIssue(ctx, "a1")
	updated, err := s.UpdateIssue(ctx, "a1", types.IssueUpdate{
		Priority:  types.Value(0),
		Notes:     types.Value("remember"),
		UpdatedBy: types.Value("alice"),
	})
	if err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	if updated.Priority != 0 || updated.Notes != "remember" || updated.Title != "first" {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.UpdatedAt.After(before.UpdatedAt) {
		t.Errorf("updated_at not refreshed: %v <= %v", updated.UpdatedAt, before.UpdatedAt)
	}
	if before.Priority != 2 {
		t.Errorf("earlier snapshot was mutated: priority = %d", before.Priority)
	}

	_, err = s.UpdateIssue(ctx, "zzzz", types.IssueUpdate{Title: types.Value("x")})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("UpdateIssue(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestResolveIDs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "first", 2)
	mustCreate(t, s, "b2", "second", 2)

	got, err := s.ResolveIDs(ctx, []string{"b2", "dc-a1"})
	if err != nil {
		t.Fatalf("ResolveIDs failed: %v", err)
	}
	if diff := cmp.Diff([]string{"dc-b2", "dc-a1"}, got); diff != "" {
		t.Errorf("resolved mismatch (-want +got):\n%s", diff)
	}
	if _, err := s.ResolveIDs(ctx, []string{"a1", "zz9"}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ResolveIDs with an unknown id: error = %v, want ErrNotFound", err)
	}
}

func TestUpdateToClosedEmitsClosedEvent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "first", 2)

	updated, err := s.UpdateIssue(ctx, "a1", types.IssueUpdate{Status: types.Value(types.StatusClosed)})
	if err != nil {
		t.Fatalf("UpdateIssue failed: %v", err)
	}
	if updated.ClosedAt == nil {
		t.Error("closed_at not set when closing through update")
	}
	events, err := s.ReadEvents(ctx, "a1", 1)
	if err != nil {
		t.Fatalf("ReadEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].EventType != types.EventClosed {
		t.Fatalf("latest event = %+v, want closed", events)
	}
}

func TestUpdateRejectsTombstoneStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "first", 2)
	before, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.UpdateIssue(ctx, "a1", types.IssueUpdate{Status: types.Value(types.StatusTombstone)})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("UpdateIssue(status=tombstone) error = %v, want ErrInvalidInput", err)
	}
	after, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Errorf("rejected update was written:\n%s", after)
	}
	issue, err := s.GetIssue(ctx, "a1")
	if err != nil {
		t.Fatalf("GetIssue failed: %v", err)
	}
	if issue.Status != types.StatusOpen || issue.DeletedAt != nil {
		t.Errorf("issue after rejected update = %+v", issue)
	}
}

func TestTombstoneExclusion(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "keep", 1)
	mustCreate(t, s, "b2", "drop", 1)

	deleted, err := s.DeleteIssue(ctx, "b2", "obsolete", "bob")
	if err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}
	if deleted.Status != types.StatusTombstone || deleted.OriginalType != types.TypeTask || deleted.DeletedAt == nil {
		t.Errorf("tombstone = %+v", deleted)
	}

	list, _ := s.ListIssues(ctx, types.IssueFilter{})
	if len(list) != 1 || list[0].ID != "a1" {
		t.Errorf("default list = %v, want only dc-a1", ids(list))
	}
	all, _ := s.ListIssues(ctx, types.IssueFilter{IncludeTombstones: true})
	if len(all) != 2 || all[1].Status != types.StatusTombstone {
		t.Errorf("list with tombstones = %v", ids(all))
	}

	if _, err := s.DeleteIssue(ctx, "b2", "", ""); !errors.Is(err, storage.ErrTombstoned) {
		t.Errorf("second delete error = %v, want ErrTombstoned", err)
	}
	if _, err := s.CloseIssue(ctx, "b2", "", ""); !errors.Is(err, storage.ErrTombstoned) {
		t.Errorf("close tombstone error = %v, want ErrTombstoned", err)
	}
	_, err = s.UpdateIssue(ctx, "b2", types.IssueUpdate{Title: types.Value("x")})
	if !errors.Is(err, storage.ErrNotFound) || !errors.Is(err, storage.ErrTombstoned) {
		t.Errorf("update tombstone error = %v", err)
	}
}

func TestDeleteRemovesEdgesInOneAppend(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)
	mustCreate(t, s, "b2", "b", 1)
	mustCreate(t, s, "c3", "c", 1)
	if _, err := s.AddDependency(ctx, "a1", "b2", types.DepBlocks, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddLink(ctx, "c3", "b2", "", ""); err != nil {
		t.Fatal(err)
	}

	if _, err := s.DeleteIssue(ctx, "b2", "", ""); err != nil {
		t.Fatalf("DeleteIssue failed: %v", err)
	}
	if deps, _ := s.GetDependencies(ctx, "a1"); len(deps) != 0 {
		t.Errorf("dependencies after delete = %v", deps)
	}

	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	state, findings := replay.ReplayBytes(data)
	if len(findings) != 0 {
		t.Fatalf("findings = %v", findings)
	}
	if len(state.Dependencies()) != 0 || len(state.Links()) != 0 {
		t.Errorf("replayed edges survive delete: deps=%v links=%v", state.Dependencies(), state.Links())
	}
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)
	mustCreate(t, s, "b2", "b", 1)

	if _, err := s.ReopenIssue(ctx, "a1", "", "", ""); !errors.Is(err, storage.ErrNotClosed) {
		t.Errorf("reopen open issue error = %v, want ErrNotClosed", err)
	}

	if _, err := s.CloseIssue(ctx, "a1", "done", "alice"); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReopenIssue(ctx, "a1", "not done", "alice", "")
	if err != nil {
		t.Fatalf("ReopenIssue failed: %v", err)
	}
	if got.Status != types.StatusOpen || got.ClosedAt != nil || got.CloseReason != "" || got.ClosedBy != "" {
		t.Errorf("reopened = %+v", got)
	}
	events, _ := s.ReadEvents(ctx, "a1", 1)
	if len(events) != 1 || events[0].Changes["reopen_reason"].New != "not done" {
		t.Errorf("reopen event = %+v", events)
	}

	if _, err := s.UpdateIssue(ctx, "b2", types.IssueUpdate{IssueType: types.Value(types.TypeBug)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.DeleteIssue(ctx, "b2", "oops", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReopenIssue(ctx, "b2", "", "", types.StatusClosed); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("reopen to closed error = %v, want ErrInvalidInput", err)
	}
	restored, err := s.ReopenIssue(ctx, "b2", "", "", types.StatusInProgress)
	if err != nil {
		t.Fatalf("ReopenIssue(tombstone) failed: %v", err)
	}
	if restored.Status != types.StatusInProgress || restored.IssueType != types.TypeBug || restored.DeletedAt != nil || restored.OriginalType != "" {
		t.Errorf("restored = %+v", restored)
	}
}

func TestAddComment(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)

	c1, err := s.AddComment(ctx, "a1", "alice", "first")
	if err != nil {
		t.Fatalf("AddComment failed: %v", err)
	}
	c2, _ := s.AddComment(ctx, "a1", "bob", "second")
	if c1.ID != "dc-a1-c1" || c2.ID != "dc-a1-c2" {
		t.Errorf("comment ids = %s, %s", c1.ID, c2.ID)
	}
	if _, err := s.AddComment(ctx, "a1", "bob", " "); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty comment error = %v", err)
	}
	got, _ := reopen(t, s).GetIssue(ctx, "a1")
	if len(got.Comments) != 2 || got.Comments[1].Text != "second" {
		t.Errorf("comments after reload = %+v", got.Comments)
	}
}

func TestDependencies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)
	mustCreate(t, s, "b2", "b", 1)
	mustCreate(t, s, "c3", "c", 1)

	first, err := s.AddDependency(ctx, "a1", "b2", types.DepBlocks, "alice")
	if err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	again, err := s.AddDependency(ctx, "dc-a1", "dc-b2", "", "bob")
	if err != nil {
		t.Fatalf("duplicate AddDependency failed: %v", err)
	}
	if again.CreatedBy != first.CreatedBy {
		t.Errorf("duplicate returned a new edge: %+v", again)
	}
	if _, err := s.AddDependency(ctx, "b2", "c3", types.DepBlocks, ""); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		from, to string
		depType  types.DependencyType
		want     error
	}{
		{"self", "a1", "a1", types.DepBlocks, storage.ErrCycle},
		{"transitive cycle", "c3", "a1", types.DepBlocks, storage.ErrCycle},
		{"unknown target", "a1", "nope", types.DepBlocks, storage.ErrInvalidReference},
		{"bad type", "a1", "c3", "sometimes", storage.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddDependency(ctx, tt.from, tt.to, tt.depType, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("AddDependency(%s, %s) error = %v, want %v", tt.from, tt.to, err, tt.want)
			}
		})
	}

	dependents, _ := s.GetDependents(ctx, "b2")
	if len(dependents) != 1 || dependents[0].IssueID != "dc-a1" {
		t.Errorf("GetDependents(b2) = %v", dependents)
	}
	chain, _ := s.GetDependencyChain(ctx, "a1")
	if diff := cmp.Diff([]string{"dc-a1", "dc-b2", "dc-c3"}, chain); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}

	if err := s.RemoveDependency(ctx, "a1", "b2"); err != nil {
		t.Fatalf("RemoveDependency failed: %v", err)
	}
	deps, _ := reopen(t, s).GetDependencies(ctx, "a1")
	if len(deps) != 0 {
		t.Errorf("dependencies after remove and reload = %v", deps)
	}
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)
	mustCreate(t, s, "b2", "b", 1)

	link, err := s.AddLink(ctx, "a1", "b2", "", "")
	if err != nil {
		t.Fatalf("AddLink failed: %v", err)
	}
	if link.LinkType != types.DefaultLinkType {
		t.Errorf("link type = %q", link.LinkType)
	}
	if _, err := s.AddLink(ctx, "a1", "b2", "", ""); err != nil {
		t.Fatal(err)
	}
	out, _ := s.GetLinks(ctx, "a1")
	in, _ := s.GetIncomingLinks(ctx, "b2")
	if len(out) != 1 || len(in) != 1 {
		t.Errorf("links out=%v in=%v", out, in)
	}
	none, _ := s.GetLinks(ctx, "b2")
	if none == nil || len(none) != 0 {
		t.Errorf("GetLinks(b2) = %#v, want empty non-nil", none)
	}

	if err := s.RemoveLink(ctx, "a1", "b2"); err != nil {
		t.Fatal(err)
	}
	if out, _ := reopen(t, s).GetLinks(ctx, "a1"); len(out) != 0 {
		t.Errorf("links after remove = %v", out)
	}
}

func TestDanglingDependencies(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), ".dogcats")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "issues.jsonl")
	log := `{"record_type":"issue","id":"a1","namespace":"dc","title":"a","status":"open","priority":1,"issue_type":"task"}
{"record_type":"dependency","issue_id":"dc-a1","depends_on_id":"dc-gone","dep_type":"blocks","op":"add"}
`
	if err := os.WriteFile(path, []byte(log), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatal(err)
	}
	dangling, _ := s.FindDanglingDependencies(ctx)
	if len(dangling) != 1 || dangling[0].DependsOnID != "dc-gone" {
		t.Fatalf("dangling = %v", dangling)
	}
	if err := s.RemoveDependencies(ctx, dangling); err != nil {
		t.Fatalf("RemoveDependencies failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dc-gone") {
		t.Errorf("dangling edge still on disk:\n%s", data)
	}
}

func TestReadyAndBlocked(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "low", 3)
	mustCreate(t, s, "b2", "urgent", 0)
	mustCreate(t, s, "c3", "blocker", 2)
	draft := &types.Issue{ID: "d4", Title: "idea", Priority: 0, IssueType: types.TypeDraft}
	if err := s.CreateIssue(ctx, draft); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddDependency(ctx, "a1", "c3", types.DepBlocks, ""); err != nil {
		t.Fatal(err)
	}

	ready, _ := s.GetReadyWork(ctx, types.IssueFilter{})
	if diff := cmp.Diff([]string{"dc-b2", "dc-c3"}, ids(ready)); diff != "" {
		t.Errorf("ready mismatch (-want +got):\n%s", diff)
	}
	blocked, _ := s.GetBlockedIssues(ctx)
	if len(blocked) != 1 || blocked[0].Issue.ID != "a1" || blocked[0].Reason != "Blocked by 1 issue(s)" {
		t.Errorf("blocked = %+v", blocked)
	}
}

func TestBlockedByListsEveryOpenBlocker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, id := range []string{"a1", "b2", "c3"} {
		mustCreate(t, s, id, "blocker "+id, 1)
	}
	mustCreate(t, s, "x9", "waiting", 0)
	mustCreate(t, s, "y8", "also waiting", 0)
	for _, id := range []string{"a1", "b2", "c3"} {
		if _, err := s.AddDependency(ctx, "x9", id, types.DepBlocks, ""); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AddDependency(ctx, "y8", "b2", types.DepBlocks, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CloseIssue(ctx, "b2", "done", ""); err != nil {
		t.Fatal(err)
	}

	blocked, _ := s.GetBlockedIssues(ctx)
	if len(blocked) != 1 || blocked[0].Issue.ID != "x9" {
		t.Fatalf("blocked = %+v, want only dc-x9", blocked)
	}
	if diff := cmp.Diff([]string{"dc-a1", "dc-c3"}, blocked[0].BlockedBy); diff != "" {
		t.Errorf("blocked_by mismatch (-want +got):\n%s", diff)
	}
	ready, _ := s.GetReadyWork(ctx, types.IssueFilter{})
	if diff := cmp.Diff([]string{"dc-y8", "dc-a1", "dc-c3"}, ids(ready)); diff != "" {
		t.Errorf("ready mismatch (-want +got):\n%s", diff)
	}
}

func TestCompaction(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)
	for i := 0; i < 5; i++ {
		if _, err := s.UpdateIssue(ctx, "a1", types.IssueUpdate{Priority: types.Value(i % 4)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Compact(ctx); err != nil {
		t.Fatalf("Compact failed: %v", err)
	}
	data, _ := os.ReadFile(s.Path())
	state, _ := replay.ReplayBytes(data)
	if state.LineCount != 1+6 {
		t.Errorf("compacted line count = %d, want one snapshot plus six events", state.LineCount)
	}
	events, _ := s.ReadEvents(ctx, "a1", 0)
	if len(events) != 6 {
		t.Errorf("events after compaction = %d, want 6", len(events))
	}
	if got, _ := s.GetIssue(ctx, "a1"); got.Priority != 0 {
		t.Errorf("priority after compaction = %d", got.Priority)
	}
}

func TestTornLastLineIsCompactedOnNextAppend(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, "a1", "a", 1)

	f, err := os.OpenFile(s.Path(), os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString(`{"record_type":"issue","id":"b2"`)
	_ = f.Close()

	other := reopen(t, s)
	if len(other.Findings()) != 1 {
		t.Fatalf("findings = %v", other.Findings())
	}
	mustCreate(t, other, "c3", "c", 1)

	data, _ := os.ReadFile(s.Path())
	if strings.Contains(string(data), `"id":"b2"`) {
		t.Errorf("torn line survived:\n%s", data)
	}
	if _, findings := replay.ReplayBytes(data); len(findings) != 0 {
		t.Errorf("findings after repair = %v", findings)
	}
}

func TestChangeNamespace(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	mustCreate(t, s, "a1", "parent", 1)
	mustCreate(t, s, "b2", "child", 1)
	if _, err := s.UpdateIssue(ctx, "b2", types.IssueUpdate{Parent: types.Value("a1")}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddDependency(ctx, "b2", "a1", types.DepBlocks, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddComment(ctx, "a1", "me", "hi"); err != nil {
		t.Fatal(err)
	}

	moved, err := s.ChangeNamespace(ctx, "a1", "web", "me")
	if err != nil {
		t.Fatalf("ChangeNamespace failed: %v", err)
	}
	if moved.FullID() != "web-a1" || moved.Comments[0].ID != "web-a1-c1" {
		t.Errorf("moved = %+v", moved)
	}

	other := reopen(t, s)
	child, _ := other.GetIssue(ctx, "dc-b2")
	if child.Parent != "web-a1" {
		t.Errorf("child parent = %q", child.Parent)
	}
	deps, _ := other.GetDependencies(ctx, "dc-b2")
	if len(deps) != 1 || deps[0].DependsOnID != "web-a1" {
		t.Errorf("deps = %v", deps)
	}
	data, _ := os.ReadFile(s.Path())
	if old := ParseEvents(data, "dc-a1", 0); len(old) != 0 {
		t.Errorf("events still filed under dc-a1: %v", old)
	}
	if moved := ParseEvents(data, "web-a1", 0); len(moved) != 2 {
		t.Errorf("events under web-a1 = %d, want created and namespace change", len(moved))
	}
	if _, err := other.GetIssue(ctx, "dc-a1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetIssue(dc-a1) error = %v, want ErrNotFound", err)
	}
}

func TestScenarioCloseHidesFromOpenList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustCreate(t, s, "x1", "X", 2)

	if _, err := s.UpdateIssue(ctx, x.FullID(), types.IssueUpdate{Priority: types.Value(0)}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CloseIssue(ctx, x.FullID(), "done", ""); err != nil {
		t.Fatal(err)
	}

	list, _ := s.ListIssues(ctx, types.IssueFilter{})
	if len(list) != 0 {
		t.Errorf("default list = %v, want none", ids(list))
	}
	open := types.StatusOpen
	list, _ = s.ListIssues(ctx, types.IssueFilter{Status: &open})
	if len(list) != 0 {
		t.Errorf("open issues = %v, want none", ids(list))
	}
	list, _ = s.ListIssues(ctx, types.IssueFilter{IncludeClosed: true})
	if len(list) != 1 || list[0].ID != "x1" {
		t.Errorf("list including closed = %v, want dc-x1", ids(list))
	}
	closed := types.StatusClosed
	list, _ = s.ListIssues(ctx, types.IssueFilter{Status: &closed})
	if len(list) != 1 || list[0].CloseReason != "done" || list[0].Priority != 0 {
		t.Errorf("closed issues = %+v", list)
	}
}

func TestScenarioClosingBlockerMakesReady(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := mustCreate(t, s, "a1", "A", 2)
	b := mustCreate(t, s, "b2", "B", 2)

	if _, err := s.AddDependency(ctx, a.FullID(), b.FullID(), types.DepBlocks, ""); err != nil {
		t.Fatal(err)
	}
	deps, _ := s.GetDependencies(ctx, a.FullID())
	if len(deps) != 1 || deps[0].DependsOnID != b.FullID() {
		t.Fatalf("deps = %v", deps)
	}
	ready, _ := s.GetReadyWork(ctx, types.IssueFilter{})
	if slices.Contains(ids(ready), a.FullID()) {
		t.Fatalf("A ready while B is open: %v", ids(ready))
	}

	if _, err := s.CloseIssue(ctx, b.FullID(), "", ""); err != nil {
		t.Fatal(err)
	}
	ready, _ = s.GetReadyWork(ctx, types.IssueFilter{})
	if !slices.Contains(ids(ready), a.FullID()) {
		t.Errorf("A not ready after closing B: %v", ids(ready))
	}
}

func ids(issues []*types.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.FullID())
	}
	return out
}

