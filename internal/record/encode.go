package record

import (
	"encoding/json"
	"time"

	"github.com/dogcat/dogcat/internal/types"
)

type depRecord struct {
	RecordType  string `json:"record_type"`
	DcatVersion string `json:"dcat_version"`
	IssueID     string `json:"issue_id"`
	DependsOnID string `json:"depends_on_id"`
	DepType     string `json:"dep_type"`
	CreatedAt   string `json:"created_at"`
	CreatedBy   string `json:"created_by,omitempty"`
	Op          string `json:"op"`
}

type linkRecord struct {
	RecordType  string `json:"record_type"`
	DcatVersion string `json:"dcat_version"`
	FromID      string `json:"from_id"`
	ToID        string `json:"to_id"`
	LinkType    string `json:"link_type"`
	CreatedAt   string `json:"created_at"`
	CreatedBy   string `json:"created_by,omitempty"`
	Op          string `json:"op"`
}

type eventRecord struct {
	RecordType  string `json:"record_type"`
	DcatVersion string `json:"dcat_version"`
	*types.Event
}

// EncodeIssue renders an issue snapshot line.
func EncodeIssue(issue *types.Issue) ([]byte, error) {
	return json.Marshal(issue)
}

// EncodeDependency renders a dependency record with the given op.
func EncodeDependency(dep types.Dependency, op string) ([]byte, error) {
	return json.Marshal(depRecord{
		RecordType:  types.RecordDependency,
		DcatVersion: types.Version,
		IssueID:     dep.IssueID,
		DependsOnID: dep.DependsOnID,
		DepType:     string(dep.Type),
		CreatedAt:   formatTime(dep.CreatedAt),
		CreatedBy:   dep.CreatedBy,
		Op:          op,
	})
}

// EncodeLink renders a link record with the given op.
func EncodeLink(link types.Link, op string) ([]byte, error) {
	return json.Marshal(linkRecord{
		RecordType:  types.RecordLink,
		DcatVersion: types.Version,
		FromID:      link.FromID,
		ToID:        link.ToID,
		LinkType:    link.LinkType,
		CreatedAt:   formatTime(link.CreatedAt),
		CreatedBy:   link.CreatedBy,
		Op:          op,
	})
}

// EncodeEvent renders an event record.
func EncodeEvent(e *types.Event) ([]byte, error) {
	if e.Changes == nil {
		e.Changes = map[string]types.FieldChange{}
	}
	return json.Marshal(eventRecord{types.RecordEvent, types.Version, e})
}

// EncodeProposal renders a proposal snapshot line.
func EncodeProposal(p *types.Proposal) ([]byte, error) {
	return json.Marshal(p)
}

// Lines joins encoded records into one newline-terminated payload.
func Lines(records ...[]byte) []byte {
	n := 0
	for _, r := range records {
		n += len(r) + 1
	}
	buf := make([]byte, 0, n)
	for _, r := range records {
		buf = append(buf, r...)
		buf = append(buf, '\n')
	}
	return buf
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return types.FormatTime(t)
}
