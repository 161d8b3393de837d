package fixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dogcat/dogcat/internal/storage/jsonl"
	"github.com/dogcat/dogcat/internal/types"
)

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(SmallConfig())
	b := Generate(SmallConfig())
	if diff := cmp.Diff(a.Issues, b.Issues, cmp.AllowUnexported(types.Issue{})); diff != "" {
		t.Errorf("issues differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(a.Dependencies, b.Dependencies); diff != "" {
		t.Errorf("dependencies differ between runs (-first +second):\n%s", diff)
	}
}

func TestGenerateShape(t *testing.T) {
	cfg := SmallConfig()
	ds := Generate(cfg)
	if len(ds.Issues) != cfg.TotalIssues {
		t.Fatalf("got %d issues, want %d", len(ds.Issues), cfg.TotalIssues)
	}

	byID := make(map[string]*types.Issue, len(ds.Issues))
	for _, issue := range ds.Issues {
		if _, dup := byID[issue.FullID()]; dup {
			t.Fatalf("duplicate id %s", issue.FullID())
		}
		byID[issue.FullID()] = issue
		if err := issue.Validate(); err != nil {
			t.Errorf("%s: %v", issue.FullID(), err)
		}
		if (issue.Status == types.StatusClosed) != (issue.ClosedAt != nil) {
			t.Errorf("%s: status %s with closed_at %v", issue.FullID(), issue.Status, issue.ClosedAt)
		}
	}
	for _, issue := range ds.Issues {
		if issue.Parent == "" {
			continue
		}
		parent, ok := byID[issue.Parent]
		if !ok {
			t.Errorf("%s: parent %s not generated", issue.FullID(), issue.Parent)
			continue
		}
		if issue.IssueType == types.TypeTask && parent.IssueType != types.TypeFeature {
			t.Errorf("task %s has %s parent", issue.FullID(), parent.IssueType)
		}
	}
	if len(ds.Dependencies) == 0 {
		t.Error("expected some blocking dependencies")
	}
}

func TestPopulate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".dogcats", "issues.jsonl")
	store, err := jsonl.Open(ctx, path, jsonl.Options{CreateDir: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	ds := Generate(SmallConfig())
	if err := Populate(ctx, store, ds); err != nil {
		t.Fatalf("Populate: %v", err)
	}

	issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeClosed: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(issues) != len(ds.Issues) {
		t.Errorf("store has %d issues, want %d", len(issues), len(ds.Issues))
	}
	if got := len(store.AllDependencies()); got != len(ds.Dependencies) {
		t.Errorf("store has %d dependencies, want %d", got, len(ds.Dependencies))
	}
	if got := len(store.AllLinks()); got != len(ds.Links) {
		t.Errorf("store has %d links, want %d", got, len(ds.Links))
	}
}

func TestWriteLog(t *testing.T) {
	tests := []struct {
		name string
		cfg  DataConfig
		long bool
	}{
		{"small", SmallConfig(), false},
		{"large", LargeConfig(), true},
		{"xlarge", XLargeConfig(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.long && testing.Short() {
				t.Skip("skipping large dataset in short mode")
			}
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "issues.jsonl")
			ds := Generate(tt.cfg)
			if err := WriteLog(path, ds); err != nil {
				t.Fatalf("WriteLog: %v", err)
			}

			store, err := jsonl.Open(ctx, path, jsonl.Options{})
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer store.Close()

			issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeClosed: true})
			if err != nil {
				t.Fatal(err)
			}
			if len(issues) != tt.cfg.TotalIssues {
				t.Errorf("replayed %d issues, want %d", len(issues), tt.cfg.TotalIssues)
			}
			if got := len(store.AllDependencies()); got != len(ds.Dependencies) {
				t.Errorf("replayed %d dependencies, want %d", got, len(ds.Dependencies))
			}
			if _, err := store.GetReadyWork(ctx, types.IssueFilter{}); err != nil {
				t.Errorf("GetReadyWork: %v", err)
			}
		})
	}
}
