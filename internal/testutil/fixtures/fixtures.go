// Package fixtures provides realistic test data generation for benchmarks and tests.
package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

// labels drawn for generated issues
var commonLabels = []string{
	"cli",
	"storage",
	"merge",
	"inbox",
	"perf",
	"docs",
	"flaky",
	"regression",
	"good-first-issue",
	"needs-triage",
}

// owners assigned round the team
var commonOwners = []string{
	"alice",
	"bob",
	"carol",
	"dmitri",
	"erin",
	"farah",
}

// epic titles
var epicTitles = []string{
	"Offline Sync",
	"Archive Rotation",
	"Inbox Triage",
	"Namespace Migration",
	"Merge Driver Hardening",
	"Event Stream API",
	"Ready Queue Scheduling",
	"Snapshot Export",
	"Import From Trackers",
	"Shell Completion",
}

// feature titles, parented to epics
var featureTitles = []string{
	"Log Compaction",
	"Partial ID Lookup",
	"Conflict Report",
	"Config Layering",
	"Dependency Graph",
	"Label Filters",
	"JSON Output",
	"Git Worktree Support",
	"Proposal Workflow",
	"Audit History",
}

// task titles, parented to features
var taskTitles = []string{
	"Handle truncated last line",
	"Add table test",
	"Document flag",
	"Speed up replay",
	"Fix lock leak",
	"Tighten validation",
	"Log skipped records",
	"Split long function",
	"Cover error path",
	"Update help text",
}

// DataConfig controls the distribution and characteristics of generated test data
type DataConfig struct {
	Namespace         string    // namespace of every generated issue
	TotalIssues       int       // total number of issues to generate
	EpicRatio         float64   // share of issues that are epics (e.g., 0.1 for 10%)
	FeatureRatio      float64   // share of issues that are features (e.g., 0.3 for 30%)
	OpenRatio         float64   // share of issues that are not closed (e.g., 0.5 for 50%)
	CrossLinkRatio    float64   // share of tasks with a blocking dependency on another task
	RelatedRatio      float64   // share of tasks with a relates_to link to another task
	MaxEpicAgeDays    int       // maximum age in days for epics (e.g., 180)
	MaxFeatureAgeDays int       // maximum age in days for features (e.g., 150)
	MaxTaskAgeDays    int       // maximum age in days for tasks (e.g., 120)
	MaxClosedAgeDays  int       // maximum days since closure (e.g., 30)
	Now               time.Time // reference time; ages count back from it
	RandSeed          int64     // random seed for reproducibility
}

var referenceTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// SmallConfig returns configuration for a 200 issue dataset, cheap enough
// to build through the Storage API in unit tests.
func SmallConfig() DataConfig {
	return DataConfig{
		Namespace:         "fx",
		TotalIssues:       200,
		EpicRatio:         0.05,
		FeatureRatio:      0.2,
		OpenRatio:         0.5,
		CrossLinkRatio:    0.2,
		RelatedRatio:      0.1,
		MaxEpicAgeDays:    180,
		MaxFeatureAgeDays: 150,
		MaxTaskAgeDays:    120,
		MaxClosedAgeDays:  30,
		Now:               referenceTime,
		RandSeed:          41,
	}
}

// LargeConfig returns configuration for 10K issue dataset
func LargeConfig() DataConfig {
	cfg := SmallConfig()
	cfg.TotalIssues = 10000
	cfg.EpicRatio = 0.1
	cfg.FeatureRatio = 0.3
	cfg.RandSeed = 42
	return cfg
}

// XLargeConfig returns configuration for 20K issue dataset
func XLargeConfig() DataConfig {
	cfg := LargeConfig()
	cfg.TotalIssues = 20000
	cfg.RandSeed = 43
	return cfg
}

// Dataset is a generated issue graph.
type Dataset struct {
	Issues       []*types.Issue
	Dependencies []types.Dependency
	Links        []types.Link
}

// Generate builds an epic > feature > task hierarchy (through the parent
// field) plus blocking dependencies and links between tasks. Dependencies
// only point from a later task to an earlier one, so the graph has no
// cycles. The same config always yields the same dataset.
func Generate(cfg DataConfig) *Dataset {
	rng := rand.New(rand.NewSource(cfg.RandSeed))
	if cfg.Now.IsZero() {
		cfg.Now = referenceTime
	}

	numEpics := max(1, int(float64(cfg.TotalIssues)*cfg.EpicRatio))
	numFeatures := max(1, int(float64(cfg.TotalIssues)*cfg.FeatureRatio))
	numTasks := max(0, cfg.TotalIssues-numEpics-numFeatures)

	ds := &Dataset{Issues: make([]*types.Issue, 0, cfg.TotalIssues)}
	newIssue := func(n int, kind types.IssueType, title, description string, maxAge int, parent *types.Issue) *types.Issue {
		created := randomTime(rng, cfg.Now, maxAge)
		issue := &types.Issue{
			ID:          fmt.Sprintf("%s%05d", kind[:1], n),
			Namespace:   cfg.Namespace,
			Title:       title,
			Description: description,
			Status:      randomStatus(rng, cfg.OpenRatio),
			Priority:    randomPriority(rng),
			IssueType:   kind,
			Owner:       commonOwners[rng.Intn(len(commonOwners))],
			Labels:      randomLabels(rng),
			CreatedAt:   created,
			CreatedBy:   "fixture",
			UpdatedAt:   created,
			UpdatedBy:   "fixture",
		}
		if parent != nil {
			issue.Parent = parent.FullID()
		}
		if issue.Status == types.StatusClosed {
			closedAt := randomTime(rng, cfg.Now, cfg.MaxClosedAgeDays)
			if closedAt.Before(created) {
				closedAt = created
			}
			issue.ClosedAt = &closedAt
			issue.ClosedBy = "fixture"
			issue.UpdatedAt = closedAt
		}
		ds.Issues = append(ds.Issues, issue)
		return issue
	}

	epics := make([]*types.Issue, 0, numEpics)
	for i := 0; i < numEpics; i++ {
		title := epicTitles[i%len(epicTitles)]
		epics = append(epics, newIssue(i, types.TypeEpic,
			fmt.Sprintf("%s (Epic %d)", title, i), "Epic for "+title, cfg.MaxEpicAgeDays, nil))
	}

	features := make([]*types.Issue, 0, numFeatures)
	for i := 0; i < numFeatures; i++ {
		parent := epics[i%len(epics)]
		features = append(features, newIssue(i, types.TypeFeature,
			fmt.Sprintf("%s (Feature %d)", featureTitles[i%len(featureTitles)], i),
			"Feature under "+parent.Title, cfg.MaxFeatureAgeDays, parent))
	}

	tasks := make([]*types.Issue, 0, numTasks)
	for i := 0; i < numTasks; i++ {
		parent := features[i%len(features)]
		tasks = append(tasks, newIssue(i, types.TypeTask,
			fmt.Sprintf("%s (Task %d)", taskTitles[i%len(taskTitles)], i),
			"Task under "+parent.Title, cfg.MaxTaskAgeDays, parent))
	}

	if len(tasks) < 2 {
		return ds
	}
	seenDeps := map[types.EdgeKey]bool{}
	for i := 0; i < int(float64(numTasks)*cfg.CrossLinkRatio); i++ {
		from := 1 + rng.Intn(len(tasks)-1)
		to := rng.Intn(from)
		dep := types.Dependency{
			IssueID:     tasks[from].FullID(),
			DependsOnID: tasks[to].FullID(),
			Type:        types.DepBlocks,
			CreatedAt:   tasks[from].CreatedAt,
			CreatedBy:   "fixture",
		}
		if seenDeps[dep.Key()] {
			continue
		}
		seenDeps[dep.Key()] = true
		ds.Dependencies = append(ds.Dependencies, dep)
	}
	seenLinks := map[types.EdgeKey]bool{}
	for i := 0; i < int(float64(numTasks)*cfg.RelatedRatio); i++ {
		from, to := rng.Intn(len(tasks)), rng.Intn(len(tasks))
		if from == to {
			continue
		}
		link := types.Link{
			FromID:    tasks[from].FullID(),
			ToID:      tasks[to].FullID(),
			LinkType:  types.DefaultLinkType,
			CreatedAt: tasks[from].CreatedAt,
			CreatedBy: "fixture",
		}
		if seenLinks[link.Key()] {
			continue
		}
		seenLinks[link.Key()] = true
		ds.Links = append(ds.Links, link)
	}
	return ds
}

// WriteLog writes ds as a compacted issues.jsonl at path: issue snapshots,
// then dependencies, then links. It is much faster than Populate for
// large datasets.
func WriteLog(path string, ds *Dataset) error {
	lines := make([][]byte, 0, len(ds.Issues)+len(ds.Dependencies)+len(ds.Links))
	add := func(data []byte, err error) error {
		if err != nil {
			return err
		}
		lines = append(lines, data)
		return nil
	}
	for _, issue := range ds.Issues {
		if err := add(record.EncodeIssue(issue)); err != nil {
			return fmt.Errorf("failed to encode %s: %w", issue.FullID(), err)
		}
	}
	for _, dep := range ds.Dependencies {
		if err := add(record.EncodeDependency(dep, types.OpAdd)); err != nil {
			return fmt.Errorf("failed to encode dependency: %w", err)
		}
	}
	for _, link := range ds.Links {
		if err := add(record.EncodeLink(link, types.OpAdd)); err != nil {
			return fmt.Errorf("failed to encode link: %w", err)
		}
	}
	return jsonlfile.WriteAtomic(path, jsonlfile.Join(lines))
}

// Populate creates ds through the Storage API, one operation at a time,
// so every record and event goes through the normal write path.
func Populate(ctx context.Context, store storage.Storage, ds *Dataset) error {
	for _, issue := range ds.Issues {
		if err := store.CreateIssue(ctx, issue.Clone()); err != nil {
			return fmt.Errorf("failed to create %s: %w", issue.FullID(), err)
		}
	}
	for _, dep := range ds.Dependencies {
		if _, err := store.AddDependency(ctx, dep.IssueID, dep.DependsOnID, dep.Type, dep.CreatedBy); err != nil {
			return fmt.Errorf("failed to add dependency %s -> %s: %w", dep.IssueID, dep.DependsOnID, err)
		}
	}
	for _, link := range ds.Links {
		if _, err := store.AddLink(ctx, link.FromID, link.ToID, link.LinkType, link.CreatedBy); err != nil {
			return fmt.Errorf("failed to add link %s -> %s: %w", link.FromID, link.ToID, err)
		}
	}
	return nil
}

// randomStatus returns a random status with given open ratio
func randomStatus(rng *rand.Rand, openRatio float64) types.Status {
	if rng.Float64() < openRatio {
		statuses := []types.Status{types.StatusOpen, types.StatusInProgress, types.StatusBlocked, types.StatusInReview}
		return statuses[rng.Intn(len(statuses))]
	}
	return types.StatusClosed
}

// randomPriority returns a random priority with realistic distribution
// P0: 5%, P1: 15%, P2: 50%, P3: 25%, P4: 5%
func randomPriority(rng *rand.Rand) int {
	r := rng.Intn(100)
	switch {
	case r < 5:
		return 0
	case r < 20:
		return 1
	case r < 70:
		return 2
	case r < 95:
		return 3
	default:
		return 4
	}
}

func randomLabels(rng *rand.Rand) []string {
	n := rng.Intn(3)
	if n == 0 {
		return nil
	}
	labels := make([]string, 0, n)
	for j := 0; j < n; j++ {
		labels = append(labels, commonLabels[rng.Intn(len(commonLabels))])
	}
	return types.NormalizeLabels(labels)
}

// randomTime returns a random time up to maxDaysAgo days before now
func randomTime(rng *rand.Rand, now time.Time, maxDaysAgo int) time.Time {
	if maxDaysAgo <= 0 {
		return now
	}
	daysAgo := rng.Intn(maxDaysAgo)
	return now.Add(-time.Duration(daysAgo) * 24 * time.Hour)
}
