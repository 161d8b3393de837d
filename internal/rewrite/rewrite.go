// Package rewrite implements the whole-file maintenance operations on a
// .dogcats directory: archive, prune and rename-namespace.
//
// Every operation works on raw lines so records it does not touch are
// written back byte for byte. The issue log is rewritten under the shared
// lock with a temp file and rename; a crash leaves either the old or the
// new file, never a partial one.
package rewrite

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
)

// line is one non-blank line of the log. rec is nil when it does not parse.
type line struct {
	raw []byte
	rec *record.Record
}

func issuesPath(dir string) string { return filepath.Join(dir, jsonl.FileName) }

func lockPath(dir string) string { return filepath.Join(dir, jsonl.LockFileName) }

// readLog reads the issue log and replays it. Blank lines are dropped;
// unparseable lines are kept with a nil record.
func readLog(dir string) ([]line, *replay.State, error) {
	raw, err := jsonlfile.ReadLines(issuesPath(dir))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read storage file: %w", err)
	}
	state := replay.NewState()
	lines := make([]line, 0, len(raw))
	for _, b := range raw {
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		rec, err := record.Parse(b)
		if err != nil {
			lines = append(lines, line{raw: b})
			continue
		}
		// records the replay rejects still travel with the file
		_ = state.Apply(rec)
		lines = append(lines, line{raw: b, rec: rec})
	}
	return lines, state, nil
}

// writeLines atomically replaces path with lines, one per line.
func writeLines(path string, lines [][]byte) error {
	return jsonlfile.WriteAtomic(path, jsonlfile.Join(lines))
}
