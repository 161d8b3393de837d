// Package replay folds a dogcat log into its current state.
//
// Issue and proposal snapshots are last-write-wins by full id.
// Dependency and link records are folded by identity key: "add" inserts or
// overwrites, "remove" deletes. Events never contribute to state.
package replay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/types"
)

// State is the materialized view of a log.
type State struct {
	issues     map[string]*types.Issue
	issueOrder []string

	proposals     map[string]*types.Proposal
	proposalOrder []string

	deps  map[types.EdgeKey]edge[types.Dependency]
	links map[types.EdgeKey]edge[types.Link]
	seq   int

	// LineCount is the number of non-blank lines read.
	LineCount int
	// LastLineCorrupt is set when the final line failed to parse, which is
	// what a crash during an append leaves behind.
	LastLineCorrupt bool
}

type edge[T any] struct {
	seq int
	val T
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		issues:    make(map[string]*types.Issue),
		proposals: make(map[string]*types.Proposal),
		deps:      make(map[types.EdgeKey]edge[types.Dependency]),
		links:     make(map[types.EdgeKey]edge[types.Link]),
	}
}

// Replay reads r line by line and folds every record into a new State.
// Malformed lines are reported as error findings and skipped.
func Replay(r io.Reader) (*State, []types.Finding) {
	s := NewState()
	var findings []types.Finding

	br := bufio.NewReader(r)
	lineNo := 0
	lastBad := false
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			lineNo++
			if len(bytes.TrimSpace(line)) > 0 {
				s.LineCount++
				if ferr := s.applyLine(line); ferr != nil {
					findings = append(findings, types.Finding{
						Level:   types.LevelError,
						Line:    lineNo,
						Message: ferr.Error(),
					})
					lastBad = true
				} else {
					lastBad = false
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				findings = append(findings, types.Finding{
					Level:   types.LevelError,
					Message: fmt.Sprintf("read failed: %v", err),
				})
			}
			break
		}
	}
	s.LastLineCorrupt = lastBad
	return s, findings
}

// ReplayBytes is Replay over an in-memory log.
func ReplayBytes(data []byte) (*State, []types.Finding) {
	return Replay(bytes.NewReader(data))
}

func (s *State) applyLine(line []byte) error {
	rec, err := record.Parse(line)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	return s.Apply(rec)
}

// Apply folds a single classified record into the state.
func (s *State) Apply(rec *record.Record) error {
	switch rec.Kind {
	case record.KindEvent:
		return nil
	case record.KindDependency:
		dep := rec.Dependency()
		if dep.IssueID == "" || dep.DependsOnID == "" {
			return fmt.Errorf("dependency record missing issue_id or depends_on_id")
		}
		if rec.Op() == types.OpRemove {
			s.RemoveDependency(dep.Key())
		} else {
			s.PutDependency(dep)
		}
	case record.KindLink:
		link := rec.Link()
		if link.FromID == "" || link.ToID == "" {
			return fmt.Errorf("link record missing from_id or to_id")
		}
		if rec.Op() == types.OpRemove {
			s.RemoveLink(link.Key())
		} else {
			s.PutLink(link)
		}
	case record.KindProposal:
		p, err := rec.Proposal()
		if err != nil {
			return err
		}
		s.PutProposal(p)
	default:
		s.PutIssue(rec.Issue())
	}
	return nil
}

// PutIssue stores a snapshot, replacing any earlier one with the same full id.
// A replaced issue keeps its original position.
func (s *State) PutIssue(issue *types.Issue) {
	id := issue.FullID()
	if _, ok := s.issues[id]; !ok {
		s.issueOrder = append(s.issueOrder, id)
	}
	s.issues[id] = issue
}

// DeleteIssue drops an issue from the state entirely.
func (s *State) DeleteIssue(fullID string) {
	if _, ok := s.issues[fullID]; !ok {
		return
	}
	delete(s.issues, fullID)
	for i, id := range s.issueOrder {
		if id == fullID {
			s.issueOrder = append(s.issueOrder[:i], s.issueOrder[i+1:]...)
			break
		}
	}
}

// Issue returns the current snapshot for fullID, or nil.
func (s *State) Issue(fullID string) *types.Issue {
	return s.issues[fullID]
}

// HasIssue reports whether fullID is known, tombstoned or not.
func (s *State) HasIssue(fullID string) bool {
	_, ok := s.issues[fullID]
	return ok
}

// Issues returns every issue, tombstones included, in first-seen order.
func (s *State) Issues() []*types.Issue {
	out := make([]*types.Issue, 0, len(s.issueOrder))
	for _, id := range s.issueOrder {
		out = append(out, s.issues[id])
	}
	return out
}

// IssueIDs returns every known full id in first-seen order.
func (s *State) IssueIDs() []string {
	return append([]string(nil), s.issueOrder...)
}

// IssueMap returns the issues keyed by full id. The map is shared with the
// state and must not be modified.
func (s *State) IssueMap() map[string]*types.Issue {
	return s.issues
}

// PutProposal stores an inbox proposal snapshot.
func (s *State) PutProposal(p *types.Proposal) {
	id := p.FullID()
	if _, ok := s.proposals[id]; !ok {
		s.proposalOrder = append(s.proposalOrder, id)
	}
	s.proposals[id] = p
}

// Proposal returns the current proposal snapshot for fullID, or nil.
func (s *State) Proposal(fullID string) *types.Proposal {
	return s.proposals[fullID]
}

// Proposals returns every proposal in first-seen order.
func (s *State) Proposals() []*types.Proposal {
	out := make([]*types.Proposal, 0, len(s.proposalOrder))
	for _, id := range s.proposalOrder {
		out = append(out, s.proposals[id])
	}
	return out
}

// PutDependency adds or overwrites a live dependency.
func (s *State) PutDependency(dep types.Dependency) {
	key := dep.Key()
	e, ok := s.deps[key]
	if !ok {
		s.seq++
		e.seq = s.seq
	}
	e.val = dep
	s.deps[key] = e
}

// RemoveDependency deletes a live dependency. Unknown keys are ignored.
func (s *State) RemoveDependency(key types.EdgeKey) {
	delete(s.deps, key)
}

// HasDependency reports whether the edge is live.
func (s *State) HasDependency(key types.EdgeKey) bool {
	_, ok := s.deps[key]
	return ok
}

// Dependencies returns the live dependencies in insertion order.
func (s *State) Dependencies() []types.Dependency {
	return sorted(s.deps)
}

// PutLink adds or overwrites a live link.
func (s *State) PutLink(link types.Link) {
	key := link.Key()
	e, ok := s.links[key]
	if !ok {
		s.seq++
		e.seq = s.seq
	}
	e.val = link
	s.links[key] = e
}

// RemoveLink deletes a live link. Unknown keys are ignored.
func (s *State) RemoveLink(key types.EdgeKey) {
	delete(s.links, key)
}

// HasLink reports whether the link is live.
func (s *State) HasLink(key types.EdgeKey) bool {
	_, ok := s.links[key]
	return ok
}

// Links returns the live links in insertion order.
func (s *State) Links() []types.Link {
	return sorted(s.links)
}

func sorted[T any](m map[types.EdgeKey]edge[T]) []T {
	entries := make([]edge[T], 0, len(m))
	for _, e := range m {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.val
	}
	return out
}
