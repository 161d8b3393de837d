// Package validation checks a dogcat log for structural, domain and
// referential problems. It never modifies the log and never fails: every
// problem becomes a finding.
package validation

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"golang.org/x/mod/semver"

	"github.com/dogcat/dogcat/internal/graph"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/types"
)

// RequiredIssueFields must be present on every issue record.
var RequiredIssueFields = []string{"id", "namespace", "title", "status", "priority", "issue_type"}

var timestampFields = []string{"created_at", "updated_at", "closed_at", "deleted_at"}

type line struct {
	no  int
	rec *record.Record
}

// ValidateFile validates the log at path. A missing file is an error finding.
func ValidateFile(path string) []types.Finding {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []types.Finding{errorf(0, "%s does not exist", path)}
		}
		return []types.Finding{errorf(0, "cannot read %s: %v", path, err)}
	}
	defer f.Close()
	return Validate(f)
}

// Validate runs every check over the log read from r.
func Validate(r io.Reader) []types.Finding {
	lines, findings := parse(r)
	for _, l := range lines {
		if l.rec.Kind == record.KindIssue {
			findings = append(findings, checkIssue(l)...)
		}
		findings = append(findings, checkVersion(l)...)
	}
	findings = append(findings, checkReferences(lines)...)
	return findings
}

// HasErrors reports whether any finding is error level.
func HasErrors(findings []types.Finding) bool {
	return slices.ContainsFunc(findings, func(f types.Finding) bool {
		return f.Level == types.LevelError
	})
}

func parse(r io.Reader) ([]line, []types.Finding) {
	var lines []line
	var findings []types.Finding

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	no := 0
	for scanner.Scan() {
		no++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, err := record.Parse(append([]byte(nil), raw...))
		if err != nil {
			if errors.Is(err, record.ErrNotObject) {
				findings = append(findings, errorf(no, "expected JSON object"))
			} else {
				findings = append(findings, errorf(no, "%v", err))
			}
			continue
		}
		if !rec.Has("record_type") {
			findings = append(findings, warnf(no, "missing record_type field"))
		}
		lines = append(lines, line{no: no, rec: rec})
	}
	if err := scanner.Err(); err != nil {
		findings = append(findings, errorf(no+1, "read failed: %v", err))
	}
	return lines, findings
}

func checkIssue(l line) []types.Finding {
	var findings []types.Finding
	raw := l.rec.Raw
	fullID := label(raw, "namespace") + "-" + label(raw, "id")

	for _, field := range RequiredIssueFields {
		if _, ok := raw[field]; !ok {
			findings = append(findings, errorf(l.no, "issue %s missing required field '%s'", fullID, field))
		}
	}

	if v, ok := present(raw, "status"); ok {
		var s types.Status
		if json.Unmarshal(v, &s) != nil || !s.IsValid() {
			findings = append(findings, errorf(l.no, "issue %s has invalid status '%s'", fullID, v))
		}
	}
	if v, ok := present(raw, "issue_type"); ok {
		var t types.IssueType
		if json.Unmarshal(v, &t) != nil || !t.IsValid() {
			findings = append(findings, errorf(l.no, "issue %s has invalid issue_type '%s'", fullID, v))
		}
	}
	if v, ok := present(raw, "priority"); ok {
		var p int
		if json.Unmarshal(v, &p) != nil || types.ValidatePriority(p) != nil {
			findings = append(findings, errorf(l.no, "issue %s has invalid priority '%s' (must be 0-4)", fullID, v))
		}
	}
	for _, field := range timestampFields {
		v, ok := present(raw, field)
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) != nil {
			findings = append(findings, errorf(l.no, "issue %s has invalid timestamp in '%s': %s", fullID, field, v))
			continue
		}
		if _, err := types.ParseTime(s); err != nil {
			findings = append(findings, errorf(l.no, "issue %s has invalid timestamp in '%s': %s", fullID, field, s))
		}
	}
	return findings
}

// checkVersion warns about records written by a newer dcat.
func checkVersion(l line) []types.Finding {
	v := l.rec.Str("dcat_version")
	if v == "" {
		return nil
	}
	written, running := "v"+v, "v"+types.Version
	if !semver.IsValid(written) {
		return []types.Finding{warnf(l.no, "unrecognised dcat_version '%s'", v)}
	}
	if semver.Compare(written, running) > 0 {
		return []types.Finding{warnf(l.no, "record written by dcat %s, newer than this binary (%s)", v, types.Version)}
	}
	return nil
}

// checkReferences replays the records and checks every reference in the
// resulting state. An id is known if any issue record carries it, even
// when its latest snapshot is a tombstone.
func checkReferences(lines []line) []types.Finding {
	var findings []types.Finding
	state := replay.NewState()
	for _, l := range lines {
		if err := state.Apply(l.rec); err != nil {
			findings = append(findings, errorf(l.no, "%v", err))
		}
	}

	ref := func(what, id string) {
		issue := state.Issue(id)
		switch {
		case issue == nil:
			findings = append(findings, errorf(0, "%s references non-existent issue '%s'", what, id))
		case issue.IsTombstone():
			findings = append(findings, warnf(0, "%s references deleted issue '%s'", what, id))
		}
	}

	for _, issue := range state.Issues() {
		fullID := issue.FullID()
		if issue.Parent != "" {
			ref(fmt.Sprintf("Issue %s parent", fullID), issue.Parent)
		}
		if issue.DuplicateOf != "" {
			ref(fmt.Sprintf("Issue %s duplicate_of", fullID), issue.DuplicateOf)
		}
		if issue.IsClosed() && issue.ClosedAt == nil {
			findings = append(findings, warnf(0, "Issue %s is closed but has no closed_at", fullID))
		}
	}

	g := graph.New()
	for _, dep := range state.Dependencies() {
		ref("Dependency", dep.IssueID)
		ref("Dependency", dep.DependsOnID)
		g.AddEdge(dep.IssueID, dep.DependsOnID)
	}
	for _, link := range state.Links() {
		ref("Link", link.FromID)
		ref("Link", link.ToID)
	}
	for _, cycle := range g.Cycles() {
		findings = append(findings, errorf(0, "Circular dependency detected: %s", graph.FormatCycle(cycle)))
	}

	for _, l := range lines {
		if l.rec.Kind != record.KindEvent {
			continue
		}
		if id := l.rec.Str("issue_id"); id != "" && !state.HasIssue(id) {
			findings = append(findings, warnf(l.no, "Event references non-existent issue '%s'", id))
		}
	}
	return findings
}

// present returns the raw value of key unless it is missing or null.
func present(raw map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := raw[key]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func label(raw map[string]json.RawMessage, key string) string {
	var s string
	if v, ok := raw[key]; ok && json.Unmarshal(v, &s) == nil && s != "" {
		return s
	}
	return "?"
}

func errorf(line int, format string, args ...any) types.Finding {
	return types.Finding{Level: types.LevelError, Line: line, Message: fmt.Sprintf(format, args...)}
}

func warnf(line int, format string, args ...any) types.Finding {
	return types.Finding{Level: types.LevelWarning, Line: line, Message: fmt.Sprintf(format, args...)}
}
