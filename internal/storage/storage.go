// Package storage defines the interface for issue storage backends.
package storage

import (
	"context"
	"errors"

	"github.com/dogcat/dogcat/internal/types"
)

// Sentinel errors. Backends wrap these with context; callers test with errors.Is.
var (
	ErrNotFound         = errors.New("issue not found")
	ErrAlreadyExists    = errors.New("issue already exists")
	ErrInvalidReference = errors.New("invalid reference")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTombstoned       = errors.New("issue is deleted")
	ErrCycle            = errors.New("would create a circular dependency")
	ErrAmbiguousID      = errors.New("ambiguous partial id")
	ErrNotClosed        = errors.New("issue is not closed")
)

// Storage is the operation set the CLI and other collaborators use.
// Every id argument accepts a full id or an unambiguous partial id.
type Storage interface {
	// Issues
	CreateIssue(ctx context.Context, issue *types.Issue) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	ResolveID(ctx context.Context, id string) (string, error)
	ResolveIDs(ctx context.Context, ids []string) ([]string, error)
	UpdateIssue(ctx context.Context, id string, update types.IssueUpdate) (*types.Issue, error)
	CloseIssue(ctx context.Context, id, reason, closedBy string) (*types.Issue, error)
	ReopenIssue(ctx context.Context, id, reason, reopenedBy string, status types.Status) (*types.Issue, error)
	DeleteIssue(ctx context.Context, id, reason, deletedBy string) (*types.Issue, error)
	AddComment(ctx context.Context, id, author, text string) (*types.Comment, error)
	ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	GetChildren(ctx context.Context, id string) ([]*types.Issue, error)

	// Dependencies
	AddDependency(ctx context.Context, issueID, dependsOnID string, depType types.DependencyType, createdBy string) (*types.Dependency, error)
	RemoveDependency(ctx context.Context, issueID, dependsOnID string) error
	GetDependencies(ctx context.Context, id string) ([]types.Dependency, error)
	GetDependents(ctx context.Context, id string) ([]types.Dependency, error)
	FindDanglingDependencies(ctx context.Context) ([]types.Dependency, error)
	RemoveDependencies(ctx context.Context, deps []types.Dependency) error

	// Links
	AddLink(ctx context.Context, fromID, toID, linkType, createdBy string) (*types.Link, error)
	RemoveLink(ctx context.Context, fromID, toID string) error
	GetLinks(ctx context.Context, id string) ([]types.Link, error)
	GetIncomingLinks(ctx context.Context, id string) ([]types.Link, error)

	// Ready work & blocking
	GetReadyWork(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error)
	GetBlockedIssues(ctx context.Context) ([]*types.BlockedIssue, error)

	// Events
	ReadEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error)

	// Lifecycle
	Reload(ctx context.Context) error
	Compact(ctx context.Context) error
	Path() string
	Close() error
}
