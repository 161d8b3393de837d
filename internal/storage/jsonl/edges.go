package jsonl

import (
	"context"
	"fmt"

	"github.com/dogcat/dogcat/internal/graph"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

// AddDependency records that issueID is blocked by dependsOnID. Adding an
// edge that already exists returns it unchanged.
func (s *Store) AddDependency(ctx context.Context, issueID, dependsOnID string, depType types.DependencyType, createdBy string) (*types.Dependency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if depType == "" {
		depType = types.DepBlocks
	}
	if !depType.IsValid() {
		return nil, fmt.Errorf("%w: invalid dependency type: %s", storage.ErrInvalidInput, depType)
	}
	from, err := s.resolveRef(issueID)
	if err != nil {
		return nil, err
	}
	to, err := s.resolveRef(dependsOnID)
	if err != nil {
		return nil, err
	}

	key := types.EdgeKey{From: from, To: to, Type: string(depType)}
	for _, dep := range s.state.Dependencies() {
		if dep.Key() == key {
			return &dep, nil
		}
	}
	if from == to {
		return nil, fmt.Errorf("%w: %s cannot depend on itself", storage.ErrCycle, from)
	}
	// a new edge from -> to closes a cycle iff to already reaches from
	if s.dependencyGraph().Reaches(to, from) {
		return nil, fmt.Errorf("%w: %s -> %s", storage.ErrCycle, from, to)
	}

	dep := types.Dependency{
		IssueID:     from,
		DependsOnID: to,
		Type:        depType,
		CreatedAt:   s.now(),
		CreatedBy:   createdBy,
	}
	line, err := record.EncodeDependency(dep, types.OpAdd)
	if err != nil {
		return nil, err
	}
	if err := s.appendRecords(ctx, line); err != nil {
		return nil, err
	}
	s.state.PutDependency(dep)
	s.maybeCompact(ctx)
	return &dep, nil
}

// RemoveDependency drops every live edge from issueID to dependsOnID.
// Removing an edge that does not exist is a no-op.
func (s *Store) RemoveDependency(ctx context.Context, issueID, dependsOnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.resolveRef(issueID)
	if err != nil {
		return err
	}
	to, err := s.resolveRef(dependsOnID)
	if err != nil {
		return err
	}

	var matched []types.Dependency
	var records [][]byte
	for _, dep := range s.state.Dependencies() {
		if dep.IssueID != from || dep.DependsOnID != to {
			continue
		}
		line, err := record.EncodeDependency(dep, types.OpRemove)
		if err != nil {
			return err
		}
		matched = append(matched, dep)
		records = append(records, line)
	}
	if len(matched) == 0 {
		return nil
	}
	if err := s.appendRecords(ctx, records...); err != nil {
		return err
	}
	for _, dep := range matched {
		s.state.RemoveDependency(dep.Key())
	}
	s.maybeCompact(ctx)
	return nil
}

// RemoveDependencies deletes the given edges by rewriting the log, so the
// removed records leave no trace. Edges that are not live are ignored.
func (s *Store) RemoveDependencies(ctx context.Context, deps []types.Dependency) error {
	if len(deps) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFileLock(ctx, func() error {
		if err := s.load(); err != nil {
			return err
		}
		for _, dep := range deps {
			if dep.Type == "" {
				dep.Type = types.DepBlocks
			}
			s.state.RemoveDependency(dep.Key())
		}
		return s.rewriteLocked(nil)
	})
}

// AddLink records a relation between two issues. A duplicate returns the
// existing link.
func (s *Store) AddLink(ctx context.Context, fromID, toID, linkType, createdBy string) (*types.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if linkType == "" {
		linkType = types.DefaultLinkType
	}
	from, err := s.resolveRef(fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.resolveRef(toID)
	if err != nil {
		return nil, err
	}
	if from == to {
		return nil, fmt.Errorf("%w: cannot link %s to itself", storage.ErrInvalidInput, from)
	}

	key := types.EdgeKey{From: from, To: to, Type: linkType}
	for _, link := range s.state.Links() {
		if link.Key() == key {
			return &link, nil
		}
	}

	link := types.Link{
		FromID:    from,
		ToID:      to,
		LinkType:  linkType,
		CreatedAt: s.now(),
		CreatedBy: createdBy,
	}
	line, err := record.EncodeLink(link, types.OpAdd)
	if err != nil {
		return nil, err
	}
	if err := s.appendRecords(ctx, line); err != nil {
		return nil, err
	}
	s.state.PutLink(link)
	s.maybeCompact(ctx)
	return &link, nil
}

// RemoveLink drops every live link from fromID to toID.
func (s *Store) RemoveLink(ctx context.Context, fromID, toID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	from, err := s.resolveRef(fromID)
	if err != nil {
		return err
	}
	to, err := s.resolveRef(toID)
	if err != nil {
		return err
	}

	var matched []types.Link
	var records [][]byte
	for _, link := range s.state.Links() {
		if link.FromID != from || link.ToID != to {
			continue
		}
		line, err := record.EncodeLink(link, types.OpRemove)
		if err != nil {
			return err
		}
		matched = append(matched, link)
		records = append(records, line)
	}
	if len(matched) == 0 {
		return nil
	}
	if err := s.appendRecords(ctx, records...); err != nil {
		return err
	}
	for _, link := range matched {
		s.state.RemoveLink(link.Key())
	}
	s.maybeCompact(ctx)
	return nil
}

func (s *Store) dependencyGraph() *graph.Graph {
	g := graph.New()
	for _, dep := range s.state.Dependencies() {
		g.AddEdge(dep.IssueID, dep.DependsOnID)
	}
	return g
}

func (s *Store) withFileLock(ctx context.Context, fn func() error) error {
	if s.closed {
		return fmt.Errorf("storage is closed")
	}
	return lockfile.With(ctx, s.lockPath, fn)
}
