// Package dogcat provides a minimal public API for programs that work with
// a dogcat store directly instead of shelling out to dcat.
//
// The JSONL log in .dogcats/issues.jsonl is the source of truth. Programs
// that only read issues can also export a SQLite snapshot with
// 'dcat export --sqlite' and query that.
package dogcat

import (
	"context"

	"github.com/dogcat/dogcat/internal/dogcat"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
	"github.com/dogcat/dogcat/internal/types"
)

// Storage is the interface for dogcat storage operations
type Storage = storage.Storage

// Open loads the issue log of the .dogcats directory dir. An empty dir is
// discovered from the working directory the way dcat does it.
func Open(ctx context.Context, dir string) (Storage, error) {
	resolved, err := dogcat.Resolve(dir)
	if err != nil {
		return nil, err
	}
	s, err := jsonl.Open(ctx, dogcat.IssuesPath(resolved), jsonl.Options{AutoCompact: true})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// FindDogcatsDir finds the .dogcats/ directory in the current directory tree.
// Returns empty string if not found.
func FindDogcatsDir() string {
	return dogcat.FindDogcatsDir()
}

// IssuesPath returns the issue log inside a .dogcats directory.
func IssuesPath(dir string) string {
	return dogcat.IssuesPath(dir)
}

// Errors returned by Storage methods; test with errors.Is.
var (
	ErrNotFound    = storage.ErrNotFound
	ErrCycle       = storage.ErrCycle
	ErrAmbiguousID = storage.ErrAmbiguousID
	ErrTombstoned  = storage.ErrTombstoned
	ErrNotClosed   = storage.ErrNotClosed
	ErrNoStore     = dogcat.ErrNoStore
)

// Core types from internal/types
type (
	Issue          = types.Issue
	IssueUpdate    = types.IssueUpdate
	Status         = types.Status
	IssueType      = types.IssueType
	Dependency     = types.Dependency
	DependencyType = types.DependencyType
	Link           = types.Link
	Comment        = types.Comment
	Event          = types.Event
	EventType      = types.EventType
	BlockedIssue   = types.BlockedIssue
	IssueFilter    = types.IssueFilter
	Proposal       = types.Proposal
)

// Status constants
const (
	StatusDraft      = types.StatusDraft
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusInReview   = types.StatusInReview
	StatusBlocked    = types.StatusBlocked
	StatusDeferred   = types.StatusDeferred
	StatusClosed     = types.StatusClosed
	StatusTombstone  = types.StatusTombstone
)

// IssueType constants
const (
	TypeTask     = types.TypeTask
	TypeBug      = types.TypeBug
	TypeFeature  = types.TypeFeature
	TypeStory    = types.TypeStory
	TypeChore    = types.TypeChore
	TypeEpic     = types.TypeEpic
	TypeSubtask  = types.TypeSubtask
	TypeQuestion = types.TypeQuestion
)

// DependencyType constants
const (
	DepBlocks      = types.DepBlocks
	DepParentChild = types.DepParentChild
	DepRelated     = types.DepRelated
)

// EventType constants
const (
	EventCreated  = types.EventCreated
	EventUpdated  = types.EventUpdated
	EventClosed   = types.EventClosed
	EventReopened = types.EventReopened
	EventDeleted  = types.EventDeleted
)

// Value wraps v for an IssueUpdate field.
func Value[T any](v T) types.Field[T] {
	return types.Value(v)
}
