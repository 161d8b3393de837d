package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

func newTestInbox(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s, err := Open(context.Background(), dir, Options{Now: func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return s, dir
}

func propose(t *testing.T, s *Store, id, ns, title string) *types.Proposal {
	t.Helper()
	p := &types.Proposal{ID: id, Namespace: ns, Title: title, ProposedBy: "alice", SourceRepo: "../other"}
	if err := s.Create(context.Background(), p); err != nil {
		t.Fatalf("Create(%s) failed: %v", title, err)
	}
	return p
}

func TestOpenRequiresDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".dogcats")
	if _, err := Open(context.Background(), missing, Options{}); err == nil {
		t.Fatal("Open() succeeded on a missing directory")
	}
	if _, err := Open(context.Background(), missing, Options{CreateDir: true}); err != nil {
		t.Fatalf("Open(CreateDir) failed: %v", err)
	}
}

func TestCreateAndReload(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestInbox(t)

	p := propose(t, s, "", "web", "Add dark mode")
	if p.ID == "" || !strings.HasPrefix(p.FullID(), "web-inbox-") {
		t.Fatalf("generated id = %q", p.FullID())
	}
	if p.Status != types.ProposalOpen {
		t.Errorf("status = %s, want open", p.Status)
	}

	if err := s.Create(ctx, &types.Proposal{ID: p.ID, Namespace: "web", Title: "again"}); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("duplicate Create() error = %v, want ErrAlreadyExists", err)
	}
	if err := s.Create(ctx, &types.Proposal{Title: "  "}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty title error = %v, want ErrInvalidInput", err)
	}

	reopened, err := Open(ctx, dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got, err := reopened.Get(p.ID)
	if err != nil {
		t.Fatalf("Get(%s) after reload failed: %v", p.ID, err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("proposal mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve(t *testing.T) {
	s, _ := newTestInbox(t)
	propose(t, s, "ab12", "dc", "one")
	propose(t, s, "cd12", "dc", "two")

	tests := []struct {
		input   string
		want    string
		wantErr error
	}{
		{"dc-inbox-ab12", "dc-inbox-ab12", nil},
		{"ab12", "dc-inbox-ab12", nil},
		{"d12", "dc-inbox-cd12", nil},
		{"12", "", storage.ErrAmbiguousID},
		{"zz", "", storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := s.Resolve(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Resolve(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Resolve(%q) = %q, %v, want %q", tt.input, got, err, tt.want)
			}
		})
	}
}

func TestCloseDeleteAndCount(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestInbox(t)
	propose(t, s, "a1", "dc", "one")
	propose(t, s, "b2", "dc", "two")
	propose(t, s, "c3", "api", "three")

	closed, err := s.Close(ctx, "a1", "accepted", "bob", "dc-x9")
	if err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if closed.Status != types.ProposalClosed || closed.ClosedAt == nil || closed.ResolvedIssue != "dc-x9" {
		t.Errorf("closed proposal = %+v", closed)
	}

	if _, err := s.Delete(ctx, "b2", "bob"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := s.Close(ctx, "b2", "", "bob", ""); !errors.Is(err, storage.ErrTombstoned) {
		t.Errorf("Close(tombstone) error = %v, want ErrTombstoned", err)
	}

	if n := s.Count(""); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if n := s.Count(types.ProposalOpen); n != 1 {
		t.Errorf("Count(open) = %d, want 1", n)
	}
	if n := len(s.List(false, "")); n != 2 {
		t.Errorf("List() = %d proposals, want 2", n)
	}
	if n := len(s.List(true, "")); n != 3 {
		t.Errorf("List(includeTombstones) = %d proposals, want 3", n)
	}
	if got := s.List(false, "api"); len(got) != 1 || got[0].ID != "c3" {
		t.Errorf("List(api) = %v", got)
	}

	events, err := s.Events("a1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].EventType != types.EventClosed || events[1].EventType != types.EventCreated {
		t.Fatalf("events = %+v, want closed then created", events)
	}
	if ch := events[0].Changes["status"]; ch.Old != "open" || ch.New != "closed" {
		t.Errorf("status change = %+v", ch)
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestInbox(t)
	propose(t, s, "a1", "dc", "keep")
	propose(t, s, "b2", "dc", "drop")
	if _, err := s.Delete(ctx, "b2", "bob"); err != nil {
		t.Fatal(err)
	}

	pruned, err := s.Prune(ctx, true)
	if err != nil || len(pruned) != 1 {
		t.Fatalf("Prune(dryRun) = %v, %v", pruned, err)
	}
	if n := len(s.List(true, "")); n != 2 {
		t.Fatalf("dry run removed proposals: %d left", n)
	}

	if _, err := s.Prune(ctx, false); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "dc-inbox-b2") || !strings.Contains(string(data), "dc-inbox-a1") {
		t.Errorf("inbox after prune:\n%s", data)
	}
}

func TestRenameNamespace(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestInbox(t)
	propose(t, s, "a1", "old", "one")
	propose(t, s, "b2", "other", "two")

	if _, err := s.RenameNamespace(ctx, "old", "old"); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("same-namespace rename error = %v", err)
	}
	n, err := s.RenameNamespace(ctx, "old", "new")
	if err != nil || n != 1 {
		t.Fatalf("RenameNamespace() = %d, %v, want 1", n, err)
	}

	reopened, err := Open(ctx, dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reopened.Get("new-inbox-a1"); err != nil {
		t.Errorf("renamed proposal missing: %v", err)
	}
	if _, err := reopened.Get("old-inbox-a1"); err == nil {
		t.Error("old id still resolves")
	}
	events, err := reopened.Events("new-inbox-a1", 0)
	if err != nil || len(events) != 1 {
		t.Errorf("events for renamed proposal = %v, %v", events, err)
	}
}

func TestCorruptLineIsRewrittenOnNextWrite(t *testing.T) {
	ctx := context.Background()
	s, dir := newTestInbox(t)
	propose(t, s, "a1", "dc", "one")

	path := filepath.Join(dir, FileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"record_type":"proposal","id":`); err != nil {
		t.Fatal(err)
	}
	f.Close()

	if err := s.Reload(); err != nil {
		t.Fatal(err)
	}
	propose(t, s, "b2", "dc", "two")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"id":`+"\n") {
		t.Errorf("torn line survived:\n%s", data)
	}
	reopened, err := Open(ctx, dir, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if n := reopened.Count(""); n != 2 {
		t.Errorf("Count() after repair = %d, want 2", n)
	}
}
