// Package types defines the records stored in a dogcat log.
package types

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Version is written into every record as dcat_version.
const Version = "0.9.0"

// DefaultNamespace is used when neither config nor the record names one.
const DefaultNamespace = "dc"

// Issue represents a trackable unit of work.
type Issue struct {
	ID           string         `json:"id"`
	Namespace    string         `json:"namespace"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       Status         `json:"status"`
	Priority     int            `json:"priority"`
	IssueType    IssueType      `json:"issue_type"`
	Owner        string         `json:"owner,omitempty"`
	Parent       string         `json:"parent,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	ExternalRef  string         `json:"external_ref,omitempty"`
	Design       string         `json:"design,omitempty"`
	Acceptance   string         `json:"acceptance,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	CloseReason  string         `json:"close_reason,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
	UpdatedBy    string         `json:"updated_by,omitempty"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty"`
	ClosedBy     string         `json:"closed_by,omitempty"`
	DeletedAt    *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy    string         `json:"deleted_by,omitempty"`
	DeleteReason string         `json:"delete_reason,omitempty"`
	OriginalType IssueType      `json:"original_type,omitempty"`
	Comments     []Comment      `json:"comments,omitempty"`
	DuplicateOf  string         `json:"duplicate_of,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// extra holds keys this version does not know about so a later
	// snapshot can carry them forward unchanged.
	extra map[string][]byte
}

// FullID returns "{namespace}-{id}".
func (i *Issue) FullID() string {
	return i.Namespace + "-" + i.ID
}

// IsClosed reports whether the issue is closed.
func (i *Issue) IsClosed() bool { return i.Status == StatusClosed }

// IsTombstone reports whether the issue has been soft deleted.
func (i *Issue) IsTombstone() bool { return i.Status == StatusTombstone }

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	c.Labels = slices.Clone(i.Labels)
	c.Comments = slices.Clone(i.Comments)
	if i.ClosedAt != nil {
		t := *i.ClosedAt
		c.ClosedAt = &t
	}
	if i.DeletedAt != nil {
		t := *i.DeletedAt
		c.DeletedAt = &t
	}
	if i.Metadata != nil {
		c.Metadata = make(map[string]any, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	if i.extra != nil {
		c.extra = make(map[string][]byte, len(i.extra))
		for k, v := range i.extra {
			c.extra[k] = v
		}
	}
	return &c
}

// Validate checks the fields a writer must never get wrong.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return fmt.Errorf("issue must have a non-empty title")
	}
	if err := ValidatePriority(i.Priority); err != nil {
		return err
	}
	if !i.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", i.Status)
	}
	if !i.IssueType.IsValid() {
		return fmt.Errorf("invalid issue type: %s", i.IssueType)
	}
	return nil
}

// SetDefaults fills in zero-valued enums.
func (i *Issue) SetDefaults() {
	if i.Namespace == "" {
		i.Namespace = DefaultNamespace
	}
	if i.Status == "" {
		i.Status = StatusOpen
	}
	if i.IssueType == "" {
		i.IssueType = TypeTask
	}
}

// ValidatePriority ensures priority is within 0-4.
func ValidatePriority(p int) error {
	if p < 0 || p > 4 {
		return fmt.Errorf("priority must be an integer between 0 and 4 (got %d)", p)
	}
	return nil
}

// Status represents the current state of an issue
type Status string

// Issue status constants
const (
	StatusDraft      Status = "draft"
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusInReview   Status = "in_review"
	StatusBlocked    Status = "blocked"
	StatusDeferred   Status = "deferred"
	StatusClosed     Status = "closed"
	StatusTombstone  Status = "tombstone"
)

// Statuses lists every known status in display order.
var Statuses = []Status{
	StatusDraft, StatusOpen, StatusInProgress, StatusInReview,
	StatusBlocked, StatusDeferred, StatusClosed, StatusTombstone,
}

// IsValid checks if the status value is valid
func (s Status) IsValid() bool {
	return slices.Contains(Statuses, s)
}

// IsBlocking reports whether an issue in this status holds back its dependents.
func (s Status) IsBlocking() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked:
		return true
	}
	return false
}

// IssueType categorizes the kind of work
type IssueType string

// Issue type constants
const (
	TypeTask     IssueType = "task"
	TypeBug      IssueType = "bug"
	TypeFeature  IssueType = "feature"
	TypeStory    IssueType = "story"
	TypeChore    IssueType = "chore"
	TypeEpic     IssueType = "epic"
	TypeSubtask  IssueType = "subtask"
	TypeQuestion IssueType = "question"
	TypeDraft    IssueType = "draft"
)

// IssueTypes lists every known issue type.
var IssueTypes = []IssueType{
	TypeTask, TypeBug, TypeFeature, TypeStory, TypeChore,
	TypeEpic, TypeSubtask, TypeQuestion, TypeDraft,
}

// IsValid checks if the issue type value is valid
func (t IssueType) IsValid() bool {
	return slices.Contains(IssueTypes, t)
}

// Comment is embedded in its issue's snapshot.
type Comment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue_id"`
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentID formats the n-th (1-based) comment id of an issue.
func CommentID(fullID string, n int) string {
	return fmt.Sprintf("%s-c%d", fullID, n)
}

// DependencyType categorizes the relationship
type DependencyType string

// Dependency type constants
const (
	DepBlocks      DependencyType = "blocks"
	DepParentChild DependencyType = "parent-child"
	DepRelated     DependencyType = "related"
)

// IsValid checks if the dependency type value is valid
func (d DependencyType) IsValid() bool {
	switch d {
	case DepBlocks, DepParentChild, DepRelated:
		return true
	}
	return false
}

// Dependency means IssueID is blocked by DependsOnID.
type Dependency struct {
	IssueID     string         `json:"issue_id"`
	DependsOnID string         `json:"depends_on_id"`
	Type        DependencyType `json:"dep_type"`
	CreatedAt   time.Time      `json:"created_at"`
	CreatedBy   string         `json:"created_by,omitempty"`
}

// Key identifies a dependency edge for add/remove folding.
func (d Dependency) Key() EdgeKey {
	return EdgeKey{From: d.IssueID, To: d.DependsOnID, Type: string(d.Type)}
}

// DefaultLinkType is used when a link record omits link_type.
const DefaultLinkType = "relates_to"

// Link is a directionally stored relation between two issues.
type Link struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	LinkType  string    `json:"link_type"`
	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by,omitempty"`
}

// Key identifies a link for add/remove folding.
func (l Link) Key() EdgeKey {
	return EdgeKey{From: l.FromID, To: l.ToID, Type: l.LinkType}
}

// EdgeKey is the identity of a dependency or link.
type EdgeKey struct {
	From string
	To   string
	Type string
}

// Edge ops for dependency and link records.
const (
	OpAdd    = "add"
	OpRemove = "remove"
)

// IssueFilter is used to filter issue queries
type IssueFilter struct {
	Status            *Status
	IssueType         *IssueType
	Priority          *int
	Labels            []string // match any
	Owner             *string
	Namespace         *string
	Parent            *string
	IncludeClosed     bool // closed issues are skipped unless set or Status asks for them
	IncludeTombstones bool
	Limit             int
}

// BlockedIssue extends Issue with blocking information
type BlockedIssue struct {
	Issue     *Issue
	BlockedBy []string
	Reason    string
}

// FindingLevel is the severity of a validation finding.
type FindingLevel string

// Finding levels
const (
	LevelError   FindingLevel = "error"
	LevelWarning FindingLevel = "warning"
)

// Finding is a problem detected while reading or validating a log.
type Finding struct {
	Level   FindingLevel `json:"level"`
	Line    int          `json:"line,omitempty"`
	Message string       `json:"message"`
}

func (f Finding) String() string {
	if f.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", f.Level, f.Line, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Level, f.Message)
}
