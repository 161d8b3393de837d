package types

import (
	"encoding/json"
	"time"
)

// ProposalStatus is the lifecycle state of an inbox proposal.
type ProposalStatus string

// Proposal status constants
const (
	ProposalOpen      ProposalStatus = "open"
	ProposalClosed    ProposalStatus = "closed"
	ProposalTombstone ProposalStatus = "tombstone"
)

// IsValid checks if the proposal status value is valid
func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalOpen, ProposalClosed, ProposalTombstone:
		return true
	}
	return false
}

// Proposal is a cross-repository suggestion waiting in the inbox.
type Proposal struct {
	ID            string         `json:"id"`
	Namespace     string         `json:"namespace"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	Status        ProposalStatus `json:"status"`
	ProposedBy    string         `json:"proposed_by,omitempty"`
	SourceRepo    string         `json:"source_repo,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ClosedAt      *time.Time     `json:"closed_at,omitempty"`
	ClosedBy      string         `json:"closed_by,omitempty"`
	CloseReason   string         `json:"close_reason,omitempty"`
	ResolvedIssue string         `json:"resolved_issue,omitempty"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
	DeletedBy     string         `json:"deleted_by,omitempty"`
}

// FullID returns "{namespace}-inbox-{id}".
func (p *Proposal) FullID() string {
	return p.Namespace + "-inbox-" + p.ID
}

// IsTombstone reports whether the proposal was deleted.
func (p *Proposal) IsTombstone() bool { return p.Status == ProposalTombstone }

// TrackedProposalFields are diffed into inbox events.
var TrackedProposalFields = []string{"title", "description", "status", "close_reason", "resolved_issue"}

// ProposalValue returns the event representation of a tracked proposal field.
func ProposalValue(p *Proposal, field string) any {
	var s string
	switch field {
	case "title":
		s = p.Title
	case "description":
		s = p.Description
	case "status":
		s = string(p.Status)
	case "close_reason":
		s = p.CloseReason
	case "resolved_issue":
		s = p.ResolvedIssue
	}
	if s == "" {
		return nil
	}
	return s
}

type proposalAlias Proposal

// MarshalJSON tags the record as a proposal.
func (p Proposal) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RecordType  string `json:"record_type"`
		DcatVersion string `json:"dcat_version"`
		*proposalAlias
	}{RecordProposal, Version, (*proposalAlias)(&p)})
}

// UnmarshalJSON decodes a proposal record best-effort.
func (p *Proposal) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Proposal{
		ID:            rawString(raw, "id"),
		Namespace:     rawString(raw, "namespace"),
		Title:         rawString(raw, "title"),
		Description:   rawString(raw, "description"),
		Status:        ProposalStatus(rawString(raw, "status")),
		ProposedBy:    rawString(raw, "proposed_by"),
		SourceRepo:    rawString(raw, "source_repo"),
		CreatedAt:     rawTime(raw, "created_at"),
		UpdatedAt:     rawTime(raw, "updated_at"),
		ClosedAt:      rawTimePtr(raw, "closed_at"),
		ClosedBy:      rawString(raw, "closed_by"),
		CloseReason:   rawString(raw, "close_reason"),
		ResolvedIssue: rawString(raw, "resolved_issue"),
		DeletedAt:     rawTimePtr(raw, "deleted_at"),
		DeletedBy:     rawString(raw, "deleted_by"),
	}
	if p.Namespace == "" {
		p.Namespace = DefaultNamespace
	}
	if p.Status == "" {
		p.Status = ProposalOpen
	}
	return nil
}
