package jsonl

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/dogcat/dogcat/internal/types"
)

// ListIssues returns copies of the issues matching filter in log order.
// Tombstones are left out unless the filter asks for them.
func (s *Store) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(filter), nil
}

func (s *Store) list(filter types.IssueFilter) []*types.Issue {
	out := []*types.Issue{}
	for _, issue := range s.state.Issues() {
		if !matches(issue, filter) {
			continue
		}
		out = append(out, issue.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

func matches(issue *types.Issue, f types.IssueFilter) bool {
	if issue.IsTombstone() && !f.IncludeTombstones && (f.Status == nil || *f.Status != types.StatusTombstone) {
		return false
	}
	if issue.IsClosed() && !f.IncludeClosed && f.Status == nil {
		return false
	}
	if f.Status != nil && issue.Status != *f.Status {
		return false
	}
	if f.IssueType != nil && issue.IssueType != *f.IssueType {
		return false
	}
	if f.Priority != nil && issue.Priority != *f.Priority {
		return false
	}
	if f.Owner != nil && issue.Owner != *f.Owner {
		return false
	}
	if f.Namespace != nil && issue.Namespace != *f.Namespace {
		return false
	}
	if f.Parent != nil && issue.Parent != *f.Parent {
		return false
	}
	if len(f.Labels) > 0 && !slices.ContainsFunc(f.Labels, func(l string) bool {
		return slices.Contains(issue.Labels, l)
	}) {
		return false
	}
	return true
}

// GetChildren returns the non-deleted issues whose parent is id.
func (s *Store) GetChildren(ctx context.Context, id string) ([]*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	return s.list(types.IssueFilter{Parent: &fullID, IncludeClosed: true}), nil
}

// GetDependencies returns the edges where id is the blocked issue.
func (s *Store) GetDependencies(ctx context.Context, id string) ([]types.Dependency, error) {
	return s.dependencies(id, func(d types.Dependency, fullID string) bool { return d.IssueID == fullID })
}

// GetDependents returns the edges where id is the blocker.
func (s *Store) GetDependents(ctx context.Context, id string) ([]types.Dependency, error) {
	return s.dependencies(id, func(d types.Dependency, fullID string) bool { return d.DependsOnID == fullID })
}

func (s *Store) dependencies(id string, keep func(types.Dependency, string) bool) ([]types.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	out := []types.Dependency{}
	for _, dep := range s.state.Dependencies() {
		if keep(dep, fullID) {
			out = append(out, dep)
		}
	}
	return out, nil
}

// GetLinks returns the links going out of id.
func (s *Store) GetLinks(ctx context.Context, id string) ([]types.Link, error) {
	return s.links(id, func(l types.Link, fullID string) bool { return l.FromID == fullID })
}

// GetIncomingLinks returns the links pointing at id.
func (s *Store) GetIncomingLinks(ctx context.Context, id string) ([]types.Link, error) {
	return s.links(id, func(l types.Link, fullID string) bool { return l.ToID == fullID })
}

func (s *Store) links(id string, keep func(types.Link, string) bool) ([]types.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	out := []types.Link{}
	for _, link := range s.state.Links() {
		if keep(link, fullID) {
			out = append(out, link)
		}
	}
	return out, nil
}

// AllDependencies returns every live dependency.
func (s *Store) AllDependencies() []types.Dependency {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Dependencies()
}

// AllLinks returns every live link.
func (s *Store) AllLinks() []types.Link {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Links()
}

// FindDanglingDependencies returns live edges with an endpoint that is not
// a known issue.
func (s *Store) FindDanglingDependencies(ctx context.Context) ([]types.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Dependency{}
	for _, dep := range s.state.Dependencies() {
		if !s.state.HasIssue(dep.IssueID) || !s.state.HasIssue(dep.DependsOnID) {
			out = append(out, dep)
		}
	}
	return out, nil
}

// openBlockers maps each issue to the ids of the issues currently holding
// it back, in dependency order. Issues with no open blocker are absent.
func (s *Store) openBlockers() map[string][]string {
	out := map[string][]string{}
	for _, dep := range s.state.Dependencies() {
		blocker := s.state.Issue(dep.DependsOnID)
		if blocker != nil && blocker.Status.IsBlocking() {
			out[dep.IssueID] = append(out[dep.IssueID], dep.DependsOnID)
		}
	}
	return out
}

// GetReadyWork returns open or in-progress issues with no open blockers,
// highest priority first. Draft issues are never ready.
func (s *Store) GetReadyWork(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := filter.Limit
	filter.Limit = 0
	blocked := s.openBlockers()
	ready := []*types.Issue{}
	for _, issue := range s.list(filter) {
		if issue.Status != types.StatusOpen && issue.Status != types.StatusInProgress {
			continue
		}
		if issue.IssueType == types.TypeDraft {
			continue
		}
		if len(blocked[issue.FullID()]) > 0 {
			continue
		}
		ready = append(ready, issue)
	}
	slices.SortStableFunc(ready, func(a, b *types.Issue) int {
		return cmp.Or(cmp.Compare(a.Priority, b.Priority), a.CreatedAt.Compare(b.CreatedAt))
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	return ready, nil
}

// GetBlockedIssues lists the unfinished issues that have at least one open blocker.
func (s *Store) GetBlockedIssues(ctx context.Context) ([]*types.BlockedIssue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocked := s.openBlockers()
	out := []*types.BlockedIssue{}
	for _, issue := range s.state.Issues() {
		if issue.IsTombstone() || issue.IsClosed() {
			continue
		}
		ids := blocked[issue.FullID()]
		if len(ids) == 0 {
			continue
		}
		out = append(out, &types.BlockedIssue{
			Issue:     issue.Clone(),
			BlockedBy: ids,
			Reason:    fmt.Sprintf("Blocked by %d issue(s)", len(ids)),
		})
	}
	return out, nil
}

// GetDependencyChain returns id followed by everything it transitively
// depends on, each id once, in depth-first order.
func (s *Store) GetDependencyChain(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}

	out := map[string][]string{}
	for _, dep := range s.state.Dependencies() {
		out[dep.IssueID] = append(out[dep.IssueID], dep.DependsOnID)
	}
	seen := map[string]bool{}
	var chain []string
	var walk func(string)
	walk = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		chain = append(chain, n)
		for _, next := range out[n] {
			walk(next)
		}
	}
	walk(fullID)
	return chain, nil
}

// Namespaces counts non-deleted issues per namespace.
func (s *Store) Namespaces(ctx context.Context) map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, issue := range s.state.Issues() {
		if !issue.IsTombstone() {
			counts[issue.Namespace]++
		}
	}
	return counts
}
