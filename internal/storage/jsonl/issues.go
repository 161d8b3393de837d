package jsonl

import (
	"context"
	"fmt"
	"strings"

	"github.com/dogcat/dogcat/internal/idgen"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
	"github.com/dogcat/dogcat/internal/utils"
)

// CreateIssue appends a new issue. An empty ID is filled with a fresh hash.
func (s *Store) CreateIssue(ctx context.Context, issue *types.Issue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issue.SetDefaults()
	now := s.now()
	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	if issue.UpdatedAt.IsZero() {
		issue.UpdatedAt = issue.CreatedAt
	}
	if issue.ID == "" {
		issue.ID = idgen.New(s.state.IssueIDs()).IssueID(issue.Namespace, issue.Title, issue.CreatedAt)
	}
	issue.Labels = types.NormalizeLabels(issue.Labels)

	if s.state.HasIssue(issue.FullID()) {
		return fmt.Errorf("issue with ID %s: %w", issue.FullID(), storage.ErrAlreadyExists)
	}
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w: %w", storage.ErrInvalidInput, err)
	}

	snapshot := issue.Clone()
	line, err := record.EncodeIssue(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode issue: %w", err)
	}
	if err := s.appendRecords(ctx, line); err != nil {
		return err
	}
	s.state.PutIssue(snapshot)

	s.emitEvent(ctx, types.EventCreated, snapshot, types.TrackedChanges(nil, snapshot), snapshot.CreatedBy)
	s.maybeCompact(ctx)
	return nil
}

// GetIssue returns a copy of the issue with the given full or partial id.
// Tombstoned issues are returned too; callers decide how to show them.
func (s *Store) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	return s.state.Issue(fullID).Clone(), nil
}

// ResolveID expands a partial id to the full id of a known issue.
func (s *Store) ResolveID(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id)
}

// ResolveIDs resolves several partial ids at once, failing on the first
// that does not resolve.
func (s *Store) ResolveIDs(ctx context.Context, ids []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return utils.ResolvePartialIDs(s.state.IssueIDs(), ids)
}

func (s *Store) resolve(id string) (string, error) {
	return utils.ResolvePartialID(s.state.IssueIDs(), id)
}

// resolveLive resolves id and rejects tombstones with ErrTombstoned.
func (s *Store) resolveLive(id string) (*types.Issue, error) {
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	issue := s.state.Issue(fullID)
	if issue.IsTombstone() {
		return nil, fmt.Errorf("issue %s: %w", fullID, storage.ErrTombstoned)
	}
	return issue, nil
}

// resolveRef resolves an edge endpoint. Unknown ids are reported as
// ErrInvalidReference so callers can tell them apart from a missing subject.
func (s *Store) resolveRef(id string) (string, error) {
	fullID, err := s.resolve(id)
	if err != nil {
		return "", fmt.Errorf("%w: %w", storage.ErrInvalidReference, err)
	}
	return fullID, nil
}

// UpdateIssue applies update to the issue and appends the new snapshot.
// Absent and tombstoned issues are reported as not found.
func (s *Store) UpdateIssue(ctx context.Context, id string, update types.IssueUpdate) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	old := s.state.Issue(fullID)
	if old.IsTombstone() {
		return nil, fmt.Errorf("issue %s: %w: %w", fullID, storage.ErrNotFound, storage.ErrTombstoned)
	}
	if update.Parent.Set && update.Parent.Value != "" {
		parent, err := s.resolveRef(update.Parent.Value)
		if err != nil {
			return nil, err
		}
		if parent == fullID {
			return nil, fmt.Errorf("%w: an issue cannot be its own parent", storage.ErrInvalidInput)
		}
		update.Parent.Value = parent
	}

	now := s.now()
	next, err := update.Apply(old, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidInput, err)
	}
	if next.Status == types.StatusClosed && !old.IsClosed() && next.ClosedAt == nil {
		closedAt := now
		next.ClosedAt = &closedAt
	}

	line, err := record.EncodeIssue(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issue: %w", err)
	}
	if err := s.appendRecords(ctx, line); err != nil {
		return nil, err
	}
	s.state.PutIssue(next)

	changes := types.TrackedChanges(old, next)
	eventType := types.EventUpdated
	if c, ok := changes["status"]; ok && c.New == string(types.StatusClosed) {
		eventType = types.EventClosed
	}
	by := next.UpdatedBy
	s.emitEvent(ctx, eventType, next, changes, by)
	s.maybeCompact(ctx)
	return next.Clone(), nil
}

// CloseIssue marks an issue closed.
func (s *Store) CloseIssue(ctx context.Context, id, reason, closedBy string) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.resolveLive(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	next := old.Clone()
	next.Status = types.StatusClosed
	next.ClosedAt = &now
	next.UpdatedAt = now
	if reason != "" {
		next.CloseReason = reason
	}
	if closedBy != "" {
		next.ClosedBy = closedBy
		next.UpdatedBy = closedBy
	}

	if err := s.putSnapshot(ctx, next); err != nil {
		return nil, err
	}
	s.emitEvent(ctx, types.EventClosed, next, map[string]types.FieldChange{
		"status": {Old: string(old.Status), New: string(types.StatusClosed)},
	}, closedBy)
	s.maybeCompact(ctx)
	return next.Clone(), nil
}

// ReopenIssue returns a closed or deleted issue to open. Reopening a
// tombstone restores its original issue type.
func (s *Store) ReopenIssue(ctx context.Context, id, reason, reopenedBy string, status types.Status) (*types.Issue, error) {
	if status == "" {
		status = types.StatusOpen
	}
	if !status.IsValid() || status == types.StatusClosed || status == types.StatusTombstone {
		return nil, fmt.Errorf("cannot reopen to status %q: %w", status, storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	old := s.state.Issue(fullID)
	if !old.IsClosed() && !old.IsTombstone() {
		return nil, fmt.Errorf("issue %s is %s: %w", fullID, old.Status, storage.ErrNotClosed)
	}

	now := s.now()
	next := old.Clone()
	next.Status = status
	next.UpdatedAt = now
	next.ClosedAt = nil
	next.CloseReason = ""
	next.ClosedBy = ""
	if old.IsTombstone() {
		next.DeletedAt = nil
		next.DeletedBy = ""
		next.DeleteReason = ""
		if next.OriginalType != "" {
			next.IssueType = next.OriginalType
		}
		next.OriginalType = ""
	}
	if reopenedBy != "" {
		next.UpdatedBy = reopenedBy
	}

	if err := s.putSnapshot(ctx, next); err != nil {
		return nil, err
	}
	changes := map[string]types.FieldChange{
		"status": {Old: string(old.Status), New: string(status)},
	}
	if reason != "" {
		changes["reopen_reason"] = types.FieldChange{Old: nil, New: reason}
	}
	s.emitEvent(ctx, types.EventReopened, next, changes, reopenedBy)
	s.maybeCompact(ctx)
	return next.Clone(), nil
}

// DeleteIssue turns an issue into a tombstone and removes every live
// dependency and link touching it, all in one append.
func (s *Store) DeleteIssue(ctx context.Context, id, reason, deletedBy string) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.resolveLive(id)
	if err != nil {
		return nil, err
	}
	fullID := old.FullID()

	now := s.now()
	next := old.Clone()
	next.Status = types.StatusTombstone
	next.DeletedAt = &now
	next.UpdatedAt = now
	next.DeleteReason = reason
	next.OriginalType = old.IssueType
	if deletedBy != "" {
		next.DeletedBy = deletedBy
	}

	line, err := record.EncodeIssue(next)
	if err != nil {
		return nil, fmt.Errorf("failed to encode issue: %w", err)
	}
	records := [][]byte{line}

	var removedDeps []types.Dependency
	for _, dep := range s.state.Dependencies() {
		if dep.IssueID == fullID || dep.DependsOnID == fullID {
			removedDeps = append(removedDeps, dep)
			enc, err := record.EncodeDependency(dep, types.OpRemove)
			if err != nil {
				return nil, err
			}
			records = append(records, enc)
		}
	}
	var removedLinks []types.Link
	for _, link := range s.state.Links() {
		if link.FromID == fullID || link.ToID == fullID {
			removedLinks = append(removedLinks, link)
			enc, err := record.EncodeLink(link, types.OpRemove)
			if err != nil {
				return nil, err
			}
			records = append(records, enc)
		}
	}

	if err := s.appendRecords(ctx, records...); err != nil {
		return nil, err
	}
	s.state.PutIssue(next)
	for _, dep := range removedDeps {
		s.state.RemoveDependency(dep.Key())
	}
	for _, link := range removedLinks {
		s.state.RemoveLink(link.Key())
	}

	s.emitEvent(ctx, types.EventDeleted, next, map[string]types.FieldChange{
		"status": {Old: string(old.Status), New: string(types.StatusTombstone)},
	}, deletedBy)
	s.maybeCompact(ctx)
	return next.Clone(), nil
}

// AddComment appends a comment to the issue's snapshot.
func (s *Store) AddComment(ctx context.Context, id, author, text string) (*types.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: comment text cannot be empty", storage.ErrInvalidInput)
	}
	old, err := s.resolveLive(id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fullID := old.FullID()
	taken := make(map[string]bool, len(old.Comments))
	for _, c := range old.Comments {
		taken[c.ID] = true
	}
	n := len(old.Comments) + 1
	for taken[types.CommentID(fullID, n)] {
		n++
	}
	comment := types.Comment{
		ID:        types.CommentID(fullID, n),
		IssueID:   fullID,
		Author:    author,
		Text:      text,
		CreatedAt: now,
	}

	next := old.Clone()
	next.Comments = append(next.Comments, comment)
	next.UpdatedAt = now
	if err := s.putSnapshot(ctx, next); err != nil {
		return nil, err
	}
	s.maybeCompact(ctx)
	return &comment, nil
}

// ChangeNamespace moves one issue to another namespace and repoints every
// reference to it. The old full id must vanish from the log, so this is a
// full rewrite rather than an append.
func (s *Store) ChangeNamespace(ctx context.Context, id, namespace, updatedBy string) (*types.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, err := s.resolveLive(id)
	if err != nil {
		return nil, err
	}
	if namespace == "" || strings.ContainsAny(namespace, " \t\n") {
		return nil, fmt.Errorf("%w: invalid namespace %q", storage.ErrInvalidInput, namespace)
	}
	oldID := old.FullID()
	next := old.Clone()
	next.Namespace = namespace
	newID := next.FullID()
	if newID == oldID {
		return old.Clone(), nil
	}
	if s.state.HasIssue(newID) {
		return nil, fmt.Errorf("issue with ID %s: %w", newID, storage.ErrAlreadyExists)
	}

	now := s.now()
	next.UpdatedAt = now
	if updatedBy != "" {
		next.UpdatedBy = updatedBy
	}
	renameComments(next, oldID, newID)

	err = s.withFileLock(ctx, func() error {
		s.state.DeleteIssue(oldID)
		s.state.PutIssue(next)
		for _, other := range s.state.Issues() {
			changed := false
			if other.Parent == oldID {
				other.Parent = newID
				changed = true
			}
			if other.DuplicateOf == oldID {
				other.DuplicateOf = newID
				changed = true
			}
			if changed {
				other.UpdatedAt = now
			}
		}
		for _, dep := range s.state.Dependencies() {
			if dep.IssueID != oldID && dep.DependsOnID != oldID {
				continue
			}
			s.state.RemoveDependency(dep.Key())
			dep.IssueID = swapID(dep.IssueID, oldID, newID)
			dep.DependsOnID = swapID(dep.DependsOnID, oldID, newID)
			s.state.PutDependency(dep)
		}
		for _, link := range s.state.Links() {
			if link.FromID != oldID && link.ToID != oldID {
				continue
			}
			s.state.RemoveLink(link.Key())
			link.FromID = swapID(link.FromID, oldID, newID)
			link.ToID = swapID(link.ToID, oldID, newID)
			s.state.PutLink(link)
		}
		return s.rewriteLocked(func(line []byte, issueID string) []byte {
			if issueID != oldID {
				return line
			}
			return renameEventIssue(line, newID)
		})
	})
	if err != nil {
		// the rewrite may have failed after state changed; fall back to disk
		_ = s.load()
		return nil, err
	}

	s.emitEvent(ctx, types.EventUpdated, next, map[string]types.FieldChange{
		"namespace": {Old: old.Namespace, New: namespace},
	}, updatedBy)
	return next.Clone(), nil
}

// putSnapshot appends one issue snapshot and stores it on success.
func (s *Store) putSnapshot(ctx context.Context, issue *types.Issue) error {
	line, err := record.EncodeIssue(issue)
	if err != nil {
		return fmt.Errorf("failed to encode issue: %w", err)
	}
	if err := s.appendRecords(ctx, line); err != nil {
		return err
	}
	s.state.PutIssue(issue)
	return nil
}

func swapID(id, oldID, newID string) string {
	if id == oldID {
		return newID
	}
	return id
}

func renameComments(issue *types.Issue, oldID, newID string) {
	for i := range issue.Comments {
		c := &issue.Comments[i]
		if c.IssueID == oldID {
			c.IssueID = newID
		}
		if strings.HasPrefix(c.ID, oldID+"-c") {
			c.ID = newID + strings.TrimPrefix(c.ID, oldID)
		}
	}
}
