package types

import (
	"fmt"
	"slices"
	"time"
)

// Field is an optional value in an IssueUpdate. The zero Field leaves the
// issue's current value untouched.
type Field[T any] struct {
	Value T
	Set   bool
}

// Value marks v to be written.
func Value[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// IssueUpdate is the change set for UpdateIssue. Only the fields listed
// here can be changed; identity and creation fields are fixed.
type IssueUpdate struct {
	Title        Field[string]
	Description  Field[string]
	Status       Field[Status]
	Priority     Field[int]
	IssueType    Field[IssueType]
	Owner        Field[string]
	Parent       Field[string]
	Labels       Field[[]string]
	ExternalRef  Field[string]
	Design       Field[string]
	Acceptance   Field[string]
	Notes        Field[string]
	CloseReason  Field[string]
	UpdatedBy    Field[string]
	ClosedAt     Field[*time.Time]
	ClosedBy     Field[string]
	DeletedAt    Field[*time.Time]
	DeletedBy    Field[string]
	DeleteReason Field[string]
	OriginalType Field[IssueType]
	DuplicateOf  Field[string]
	Metadata     Field[map[string]any]
	Comments     Field[[]Comment]
}

// IsEmpty reports whether the update sets nothing.
func (u IssueUpdate) IsEmpty() bool {
	return !(u.Title.Set || u.Description.Set || u.Status.Set || u.Priority.Set ||
		u.IssueType.Set || u.Owner.Set || u.Parent.Set || u.Labels.Set ||
		u.ExternalRef.Set || u.Design.Set || u.Acceptance.Set || u.Notes.Set ||
		u.CloseReason.Set || u.UpdatedBy.Set || u.ClosedAt.Set || u.ClosedBy.Set ||
		u.DeletedAt.Set || u.DeletedBy.Set || u.DeleteReason.Set ||
		u.OriginalType.Set || u.DuplicateOf.Set || u.Metadata.Set || u.Comments.Set)
}

// Apply returns a new snapshot: a copy of old with the set fields
// overlaid and updated_at refreshed. old is not modified.
func (u IssueUpdate) Apply(old *Issue, now time.Time) (*Issue, error) {
	if u.Title.Set && u.Title.Value == "" {
		return nil, fmt.Errorf("title cannot be empty")
	}
	if u.Priority.Set {
		if err := ValidatePriority(u.Priority.Value); err != nil {
			return nil, err
		}
	}
	if u.Status.Set && !u.Status.Value.IsValid() {
		return nil, fmt.Errorf("invalid status: %s", u.Status.Value)
	}
	if u.Status.Set && u.Status.Value == StatusTombstone {
		return nil, fmt.Errorf("status %s is only set by deleting the issue", StatusTombstone)
	}
	if u.IssueType.Set && !u.IssueType.Value.IsValid() {
		return nil, fmt.Errorf("invalid issue type: %s", u.IssueType.Value)
	}

	next := old.Clone()
	setField(&next.Title, u.Title)
	setField(&next.Description, u.Description)
	setField(&next.Status, u.Status)
	setField(&next.Priority, u.Priority)
	setField(&next.IssueType, u.IssueType)
	setField(&next.Owner, u.Owner)
	setField(&next.Parent, u.Parent)
	if u.Labels.Set {
		next.Labels = NormalizeLabels(u.Labels.Value)
	}
	setField(&next.ExternalRef, u.ExternalRef)
	setField(&next.Design, u.Design)
	setField(&next.Acceptance, u.Acceptance)
	setField(&next.Notes, u.Notes)
	setField(&next.CloseReason, u.CloseReason)
	setField(&next.UpdatedBy, u.UpdatedBy)
	setField(&next.ClosedAt, u.ClosedAt)
	setField(&next.ClosedBy, u.ClosedBy)
	setField(&next.DeletedAt, u.DeletedAt)
	setField(&next.DeletedBy, u.DeletedBy)
	setField(&next.DeleteReason, u.DeleteReason)
	setField(&next.OriginalType, u.OriginalType)
	setField(&next.DuplicateOf, u.DuplicateOf)
	if u.Metadata.Set {
		next.Metadata = make(map[string]any, len(u.Metadata.Value))
		for k, v := range u.Metadata.Value {
			next.Metadata[k] = v
		}
	}
	if u.Comments.Set {
		next.Comments = slices.Clone(u.Comments.Value)
	}
	next.UpdatedAt = now
	return next, nil
}

func setField[T any](dst *T, f Field[T]) {
	if f.Set {
		*dst = f.Value
	}
}

// NormalizeLabels drops empty and repeated labels, keeping first occurrence order.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
