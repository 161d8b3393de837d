package rewrite

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/inbox"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

// RenameOptions configures RenameNamespace.
type RenameOptions struct {
	// By is recorded on the rename events.
	By  string
	Now func() time.Time
}

// RenameResult reports what RenameNamespace changed.
type RenameResult struct {
	From          string   `json:"old_namespace"`
	To            string   `json:"new_namespace"`
	Issues        []string `json:"issues"`
	Proposals     int      `json:"proposals_renamed"`
	ConfigUpdated bool     `json:"config_updated"`
}

// RenameNamespace moves every issue in namespace from to namespace to and
// rewrites every reference to them: parents, duplicates, comments, edges
// and events. Inbox proposals and the project config follow.
func RenameNamespace(ctx context.Context, dir, from, to string, opts RenameOptions) (*RenameResult, error) {
	if from == to {
		return nil, fmt.Errorf("%w: old and new namespace are the same", storage.ErrInvalidInput)
	}
	if to == "" || strings.ContainsAny(to, " \t") {
		return nil, fmt.Errorf("%w: invalid namespace %q", storage.ErrInvalidInput, to)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	res := &RenameResult{From: from, To: to, Issues: []string{}}

	err := lockfile.With(ctx, lockPath(dir), func() error {
		lines, state, err := readLog(dir)
		if err != nil {
			return err
		}

		moved := map[string]string{}
		for _, issue := range state.Issues() {
			if issue.Namespace != from {
				continue
			}
			next := to + "-" + issue.ID
			if state.HasIssue(next) {
				return fmt.Errorf("issue %s: %w", next, storage.ErrAlreadyExists)
			}
			moved[issue.FullID()] = next
			res.Issues = append(res.Issues, next)
		}
		if len(moved) == 0 {
			return fmt.Errorf("no issues in namespace '%s': %w", from, storage.ErrNotFound)
		}

		out := make([][]byte, 0, len(lines)+len(moved))
		for _, l := range lines {
			if l.rec == nil {
				out = append(out, l.raw)
				continue
			}
			rewritten, err := renameRecord(l.rec, moved, to)
			if err != nil {
				return err
			}
			out = append(out, rewritten)
		}

		ts := types.FormatTime(opts.Now().UTC())
		for _, issue := range state.Issues() {
			next, ok := moved[issue.FullID()]
			if !ok {
				continue
			}
			e, err := record.EncodeEvent(&types.Event{
				EventType: types.EventUpdated,
				IssueID:   next,
				Timestamp: ts,
				By:        opts.By,
				Title:     issue.Title,
				Changes:   map[string]types.FieldChange{"namespace": {Old: from, New: to}},
			})
			if err != nil {
				return err
			}
			out = append(out, e)
		}

		if err := writeLines(issuesPath(dir), out); err != nil {
			return fmt.Errorf("failed to write storage file: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	box, err := inbox.Open(ctx, dir, inbox.Options{})
	if err != nil {
		return nil, err
	}
	if res.Proposals, err = box.RenameNamespace(ctx, from, to); err != nil {
		return nil, fmt.Errorf("failed to rename inbox proposals: %w", err)
	}

	cfg, err := configfile.Load(dir)
	if err != nil {
		return nil, err
	}
	if cfg != nil && cfg.RenameNamespace(from, to) {
		if err := cfg.Save(dir); err != nil {
			return nil, err
		}
		res.ConfigUpdated = true
	}
	return res, nil
}

// renameRecord returns the line for rec with every moved id replaced.
// Lines that reference no moved id are returned unchanged.
func renameRecord(rec *record.Record, moved map[string]string, to string) ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(rec.Raw))
	for k, v := range rec.Raw {
		raw[k] = v
	}
	changed := false
	set := func(key, value string) {
		b, _ := json.Marshal(value)
		raw[key] = b
		changed = true
	}
	remap := func(key string) {
		if next, ok := moved[rec.Str(key)]; ok {
			set(key, next)
		}
	}

	switch rec.Kind {
	case record.KindDependency:
		remap("issue_id")
		remap("depends_on_id")
	case record.KindLink:
		remap("from_id")
		remap("to_id")
	case record.KindEvent:
		remap("issue_id")
	case record.KindProposal:
	default:
		oldID := rec.FullID()
		if _, ok := moved[oldID]; ok {
			// legacy snapshots carry the namespace inside id
			if !rec.Has("namespace") {
				_, hash := types.SplitFullID(rec.Str("id"))
				set("id", hash)
			}
			set("namespace", to)
		}
		remap("parent")
		remap("duplicate_of")
		if comments, ok, err := renameComments(raw["comments"], moved); err != nil {
			return nil, fmt.Errorf("issue %s: %w", oldID, err)
		} else if ok {
			raw["comments"] = comments
			changed = true
		}
	}

	if !changed {
		return rec.Line, nil
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSpace(out), nil
}

// renameComments rewrites comment issue_ids and the id prefix derived from
// them. Unknown comment keys are kept.
func renameComments(data json.RawMessage, moved map[string]string) (json.RawMessage, bool, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, false, nil
	}
	var comments []map[string]json.RawMessage
	if err := json.Unmarshal(data, &comments); err != nil {
		return nil, false, fmt.Errorf("decoding comments: %w", err)
	}
	changed := false
	for _, c := range comments {
		var issueID, id string
		_ = json.Unmarshal(c["issue_id"], &issueID)
		_ = json.Unmarshal(c["id"], &id)
		next, ok := moved[issueID]
		if !ok {
			continue
		}
		c["issue_id"], _ = json.Marshal(next)
		if strings.HasPrefix(id, issueID+"-") {
			c["id"], _ = json.Marshal(next + strings.TrimPrefix(id, issueID))
		}
		changed = true
	}
	if !changed {
		return nil, false, nil
	}
	out, err := json.Marshal(comments)
	return out, err == nil, err
}
