// Package record classifies and encodes the JSON lines of a dogcat log.
//
// A log line is one JSON object. Its kind is taken from an explicit
// record_type tag when present, otherwise inferred from which fields it
// carries, checking the most specific shapes first.
package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dogcat/dogcat/internal/types"
)

// Kind is the tag of a classified record.
type Kind int

// Record kinds
const (
	KindIssue Kind = iota
	KindDependency
	KindLink
	KindEvent
	KindProposal
)

func (k Kind) String() string {
	switch k {
	case KindDependency:
		return types.RecordDependency
	case KindLink:
		return types.RecordLink
	case KindEvent:
		return types.RecordEvent
	case KindProposal:
		return types.RecordProposal
	default:
		return types.RecordIssue
	}
}

// Record is a decoded line together with its kind. Raw keeps every key so
// callers can read fields without a typed decode; Line is the original
// bytes without the trailing newline.
type Record struct {
	Kind Kind
	Raw  map[string]json.RawMessage
	Line []byte
}

// Classify maps a decoded JSON object to its record kind. It is total:
// anything unrecognised is an issue.
func Classify(raw map[string]json.RawMessage) Kind {
	switch str(raw, "record_type") {
	case types.RecordIssue:
		return KindIssue
	case types.RecordDependency:
		return KindDependency
	case types.RecordLink:
		return KindLink
	case types.RecordEvent:
		return KindEvent
	case types.RecordProposal:
		return KindProposal
	}

	switch {
	case has(raw, "from_id") && has(raw, "to_id"):
		return KindLink
	case has(raw, "issue_id") && has(raw, "depends_on_id"):
		return KindDependency
	case has(raw, "event_type") && has(raw, "issue_id"):
		return KindEvent
	case has(raw, "proposed_by") || has(raw, "source_repo") || has(raw, "resolved_issue"):
		return KindProposal
	}
	return KindIssue
}

// ErrNotObject is returned by Parse for valid JSON that is not an object.
var ErrNotObject = errors.New("record is not a JSON object")

// Parse decodes and classifies one line. Blank lines return (nil, nil).
func Parse(line []byte) (*Record, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, nil
	}
	if line[0] != '{' {
		if json.Valid(line) {
			return nil, ErrNotObject
		}
		return nil, errors.New("invalid JSON")
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return &Record{Kind: Classify(raw), Raw: raw, Line: line}, nil
}

// Str returns a string field of the record, or "" when missing or not a string.
func (r *Record) Str(key string) string {
	return str(r.Raw, key)
}

// Has reports whether the record carries key.
func (r *Record) Has(key string) bool {
	return has(r.Raw, key)
}

// Op returns the add/remove marker of a dependency or link record.
func (r *Record) Op() string {
	if op := r.Str("op"); op != "" {
		return op
	}
	return types.OpAdd
}

// FullID returns the identity the record belongs to: the issue full id
// for issues, the proposal full id for proposals, issue_id for events.
// Dependencies and links have two endpoints and return "".
func (r *Record) FullID() string {
	switch r.Kind {
	case KindIssue:
		if has(r.Raw, "namespace") {
			return r.Str("namespace") + "-" + r.Str("id")
		}
		ns, id := types.SplitFullID(r.Str("id"))
		return ns + "-" + id
	case KindProposal:
		ns := r.Str("namespace")
		if ns == "" {
			ns = types.DefaultNamespace
		}
		return ns + "-inbox-" + r.Str("id")
	case KindEvent:
		return r.Str("issue_id")
	}
	return ""
}

// Endpoints returns the two ids a dependency or link connects.
func (r *Record) Endpoints() (from, to string) {
	switch r.Kind {
	case KindDependency:
		return r.Str("issue_id"), r.Str("depends_on_id")
	case KindLink:
		return r.Str("from_id"), r.Str("to_id")
	}
	return "", ""
}

// Issue decodes the record as an issue snapshot.
func (r *Record) Issue() *types.Issue {
	issue := types.IssueFromRaw(r.Raw)
	return &issue
}

// Dependency decodes the record as a dependency edge. The legacy "type"
// key is read when dep_type is absent.
func (r *Record) Dependency() types.Dependency {
	depType := r.Str("dep_type")
	if depType == "" {
		depType = r.Str("type")
	}
	if depType == "" {
		depType = string(types.DepBlocks)
	}
	return types.Dependency{
		IssueID:     r.Str("issue_id"),
		DependsOnID: r.Str("depends_on_id"),
		Type:        types.DependencyType(depType),
		CreatedAt:   r.time("created_at"),
		CreatedBy:   r.Str("created_by"),
	}
}

// Link decodes the record as a link.
func (r *Record) Link() types.Link {
	linkType := r.Str("link_type")
	if linkType == "" {
		linkType = types.DefaultLinkType
	}
	return types.Link{
		FromID:    r.Str("from_id"),
		ToID:      r.Str("to_id"),
		LinkType:  linkType,
		CreatedAt: r.time("created_at"),
		CreatedBy: r.Str("created_by"),
	}
}

// Event decodes the record as an event.
func (r *Record) Event() (*types.Event, error) {
	var e types.Event
	if err := json.Unmarshal(r.Line, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Proposal decodes the record as an inbox proposal.
func (r *Record) Proposal() (*types.Proposal, error) {
	var p types.Proposal
	if err := json.Unmarshal(r.Line, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Record) time(key string) time.Time {
	s := r.Str(key)
	if s == "" {
		return time.Time{}
	}
	t, _ := types.ParseTime(s)
	return t
}

func str(raw map[string]json.RawMessage, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return ""
	}
	return s
}

func has(raw map[string]json.RawMessage, key string) bool {
	_, ok := raw[key]
	return ok
}
