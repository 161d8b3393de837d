// Package inbox stores cross-repository proposals in .dogcats/inbox.jsonl.
//
// The inbox shares the issue log's lock file and record format: every
// change appends a full proposal snapshot, the latest snapshot wins, and
// event lines for proposals live in the same file.
package inbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/idgen"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
	"github.com/dogcat/dogcat/internal/types"
	"github.com/dogcat/dogcat/internal/utils"
)

// FileName is the inbox log inside a .dogcats directory.
const FileName = "inbox.jsonl"

// Options configures Open.
type Options struct {
	CreateDir bool
	Now       func() time.Time
}

// Store holds the proposals of one .dogcats directory.
type Store struct {
	mu sync.Mutex

	path     string
	lockPath string
	now      func() time.Time

	state           *replay.State
	needsCompaction bool
}

// Open loads dir/inbox.jsonl. The directory must exist unless
// opts.CreateDir is set.
func Open(ctx context.Context, dir string, opts Options) (*Store, error) {
	if opts.CreateDir {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	} else if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("directory '%s' does not exist: %w", dir, err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Store{
		path:     filepath.Join(dir, FileName),
		lockPath: filepath.Join(dir, jsonl.LockFileName),
		now:      opts.Now,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	state, findings := replay.ReplayBytes(data)
	for _, f := range findings {
		debug.Warn("skipping malformed inbox record", "path", s.path, "line", f.Line, "error", f.Message)
	}
	s.state = state
	s.needsCompaction = len(findings) > 0
	return nil
}

// Path returns the inbox file path.
func (s *Store) Path() string { return s.path }

// Reload re-reads the inbox from disk.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Create stores a new proposal. An empty ID is generated from the title.
func (s *Store) Create(ctx context.Context, p *types.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", storage.ErrInvalidInput)
	}
	if p.Namespace == "" {
		p.Namespace = types.DefaultNamespace
	}
	if p.Status == "" {
		p.Status = types.ProposalOpen
	}
	if !p.Status.IsValid() {
		return fmt.Errorf("%w: invalid proposal status %q", storage.ErrInvalidInput, p.Status)
	}
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	if p.ID == "" {
		p.ID = idgen.New(s.fullIDs()).IssueID(p.Namespace+"-inbox", p.Title, p.CreatedAt)
	}
	if s.state.Proposal(p.FullID()) != nil {
		return fmt.Errorf("proposal %s: %w", p.FullID(), storage.ErrAlreadyExists)
	}

	if err := s.appendSnapshot(ctx, p); err != nil {
		return err
	}
	s.emitEvent(ctx, types.EventCreated, p, changes(nil, p), p.ProposedBy)
	return nil
}

// Resolve turns a full or partial proposal id into a full id.
func (s *Store) Resolve(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id)
}

func (s *Store) resolve(id string) (string, error) {
	fullID, err := utils.ResolvePartialID(s.fullIDs(), id)
	if err != nil {
		return "", fmt.Errorf("proposal: %w", err)
	}
	return fullID, nil
}

// Get returns a copy of the proposal identified by id.
func (s *Store) Get(id string) (*types.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	p := *s.state.Proposal(fullID)
	return &p, nil
}

// List returns proposals in creation order. An empty namespace lists all.
func (s *Store) List(includeTombstones bool, namespace string) []*types.Proposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*types.Proposal{}
	for _, p := range s.state.Proposals() {
		if !includeTombstones && p.IsTombstone() {
			continue
		}
		if namespace != "" && p.Namespace != namespace {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Count returns the number of proposals with status, or of every
// non-deleted proposal when status is empty.
func (s *Store) Count(status types.ProposalStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.state.Proposals() {
		switch {
		case status != "" && p.Status == status:
			n++
		case status == "" && !p.IsTombstone():
			n++
		}
	}
	return n
}

// Close marks a proposal closed, optionally naming the issue it became.
func (s *Store) Close(ctx context.Context, id, reason, closedBy, resolvedIssue string) (*types.Proposal, error) {
	return s.transition(ctx, id, types.EventClosed, closedBy, func(p *types.Proposal, now time.Time) {
		p.Status = types.ProposalClosed
		p.ClosedAt = &now
		p.ClosedBy = closedBy
		if reason != "" {
			p.CloseReason = reason
		}
		if resolvedIssue != "" {
			p.ResolvedIssue = resolvedIssue
		}
	})
}

// Delete tombstones a proposal.
func (s *Store) Delete(ctx context.Context, id, deletedBy string) (*types.Proposal, error) {
	return s.transition(ctx, id, types.EventDeleted, deletedBy, func(p *types.Proposal, now time.Time) {
		p.Status = types.ProposalTombstone
		p.DeletedAt = &now
		p.DeletedBy = deletedBy
	})
}

func (s *Store) transition(ctx context.Context, id string, eventType types.EventType, by string, mutate func(*types.Proposal, time.Time)) (*types.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fullID, err := s.resolve(id)
	if err != nil {
		return nil, err
	}
	old := s.state.Proposal(fullID)
	if old.IsTombstone() {
		return nil, fmt.Errorf("proposal %s: %w", fullID, storage.ErrTombstoned)
	}
	next := *old
	now := s.now().UTC()
	mutate(&next, now)
	next.UpdatedAt = now

	if err := s.appendSnapshot(ctx, &next); err != nil {
		return nil, err
	}
	s.emitEvent(ctx, eventType, &next, changes(old, &next), by)
	out := next
	return &out, nil
}

// Prune removes tombstoned proposals from the file and returns their ids.
// With dryRun nothing is written.
func (s *Store) Prune(ctx context.Context, dryRun bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned []string
	kept := replay.NewState()
	for _, p := range s.state.Proposals() {
		if p.IsTombstone() {
			pruned = append(pruned, p.FullID())
			continue
		}
		kept.PutProposal(p)
	}
	if dryRun || len(pruned) == 0 {
		return pruned, nil
	}
	return pruned, s.rewrite(ctx, kept, func(issueID string) (string, bool) {
		return issueID, kept.Proposal(issueID) != nil
	})
}

// RenameNamespace moves every proposal in from to to and returns how many
// were moved.
func (s *Store) RenameNamespace(ctx context.Context, from, to string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if from == to {
		return 0, fmt.Errorf("%w: old and new namespace are the same", storage.ErrInvalidInput)
	}
	renamed := 0
	moved := map[string]string{}
	next := replay.NewState()
	for _, p := range s.state.Proposals() {
		if p.Namespace == from {
			cp := *p
			cp.Namespace = to
			moved[p.FullID()] = cp.FullID()
			p = &cp
			renamed++
		}
		next.PutProposal(p)
	}
	if renamed == 0 {
		return 0, nil
	}
	return renamed, s.rewrite(ctx, next, func(issueID string) (string, bool) {
		if to, ok := moved[issueID]; ok {
			return to, true
		}
		return issueID, true
	})
}

// appendSnapshot writes p and updates the state. A corrupt file is
// rewritten first. The caller holds s.mu.
func (s *Store) appendSnapshot(ctx context.Context, p *types.Proposal) error {
	if s.needsCompaction {
		if err := s.rewrite(ctx, s.state, nil); err != nil {
			return err
		}
	}
	line, err := record.EncodeProposal(p)
	if err != nil {
		return fmt.Errorf("failed to encode proposal: %w", err)
	}
	err = lockfile.With(ctx, s.lockPath, func() error {
		return jsonlfile.Append(s.path, append(line, '\n'))
	})
	if err != nil {
		return fmt.Errorf("failed to append to inbox: %w", err)
	}
	cp := *p
	s.state.PutProposal(&cp)
	return nil
}

// rewrite replaces the file with one snapshot per proposal in state
// followed by the existing event lines. mapEvent, when non-nil, renames
// or drops events by their issue_id.
func (s *Store) rewrite(ctx context.Context, state *replay.State, mapEvent func(issueID string) (string, bool)) error {
	return lockfile.With(ctx, s.lockPath, func() error {
		existing, err := os.ReadFile(s.path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read inbox: %w", err)
		}

		var buf bytes.Buffer
		for _, p := range state.Proposals() {
			line, err := record.EncodeProposal(p)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", p.FullID(), err)
			}
			buf.Write(line)
			buf.WriteByte('\n')
		}
		for _, line := range jsonlfile.SplitLines(existing) {
			rec, err := record.Parse(line)
			if err != nil || rec == nil || rec.Kind != record.KindEvent {
				continue
			}
			out := rec.Line
			if mapEvent != nil {
				id, keep := mapEvent(rec.Str("issue_id"))
				if !keep {
					continue
				}
				if id != rec.Str("issue_id") {
					e, err := rec.Event()
					if err != nil {
						continue
					}
					e.IssueID = id
					if out, err = record.EncodeEvent(e); err != nil {
						return err
					}
				}
			}
			buf.Write(out)
			buf.WriteByte('\n')
		}

		if err := jsonlfile.WriteAtomic(s.path, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to write inbox: %w", err)
		}
		s.state = state
		s.needsCompaction = false
		return nil
	})
}

// Events returns inbox events newest first, optionally for one proposal.
func (s *Store) Events(id string, limit int) ([]*types.Event, error) {
	s.mu.Lock()
	if id != "" {
		if fullID, err := s.resolve(id); err == nil {
			id = fullID
		}
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []*types.Event{}, nil
		}
		return nil, err
	}
	return jsonl.ParseEvents(data, id, limit), nil
}

func (s *Store) emitEvent(ctx context.Context, eventType types.EventType, p *types.Proposal, ch map[string]types.FieldChange, by string) {
	line, err := record.EncodeEvent(&types.Event{
		EventType: eventType,
		IssueID:   p.FullID(),
		Timestamp: types.FormatTime(p.UpdatedAt),
		By:        by,
		Title:     p.Title,
		Changes:   ch,
	})
	if err != nil {
		debug.Warn("failed to encode inbox event", "proposal", p.FullID(), "error", err)
		return
	}
	err = lockfile.With(ctx, s.lockPath, func() error {
		return jsonlfile.Append(s.path, append(line, '\n'))
	})
	if err != nil {
		debug.Warn("failed to write inbox event", "proposal", p.FullID(), "error", err)
	}
}

func (s *Store) fullIDs() []string {
	proposals := s.state.Proposals()
	ids := make([]string, 0, len(proposals))
	for _, p := range proposals {
		ids = append(ids, p.FullID())
	}
	return ids
}

// changes diffs the tracked proposal fields. A nil old reports every
// non-empty field as new.
func changes(old, next *types.Proposal) map[string]types.FieldChange {
	out := map[string]types.FieldChange{}
	for _, field := range types.TrackedProposalFields {
		var before any
		if old != nil {
			before = types.ProposalValue(old, field)
		}
		after := types.ProposalValue(next, field)
		if before != after {
			out[field] = types.FieldChange{Old: before, New: after}
		}
	}
	return out
}
