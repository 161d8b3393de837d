package jsonl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/record"
	"github.com/dogcat/dogcat/internal/types"
)

// Compact rewrites the log so it holds only current state: one snapshot per
// issue, the live dependencies and links, and every event line unchanged.
// The file is reloaded under the lock first so records appended by other
// processes are kept.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.compactLocked(ctx, true)
}

func (s *Store) compactLocked(ctx context.Context, reload bool) error {
	return lockfile.With(ctx, s.lockPath, func() error {
		if reload {
			if err := s.load(); err != nil {
				return err
			}
		}
		return s.rewriteLocked(nil)
	})
}

// rewriteLocked writes the in-memory state to disk, preserving event lines
// from the current file. keepEvent, when non-nil, filters or rewrites each
// event; returning nil drops it. The caller holds the file lock.
func (s *Store) rewriteLocked(keepEvent func(line []byte, issueID string) []byte) error {
	var buf bytes.Buffer
	lines := 0
	write := func(data []byte, err error) error {
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
		lines++
		return nil
	}

	for _, issue := range s.state.Issues() {
		if err := write(record.EncodeIssue(issue)); err != nil {
			return fmt.Errorf("failed to encode %s: %w", issue.FullID(), err)
		}
	}
	for _, dep := range s.state.Dependencies() {
		if err := write(record.EncodeDependency(dep, types.OpAdd)); err != nil {
			return err
		}
	}
	for _, link := range s.state.Links() {
		if err := write(record.EncodeLink(link, types.OpAdd)); err != nil {
			return err
		}
	}

	existing, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read storage file: %w", err)
	}
	for _, line := range jsonlfile.SplitLines(existing) {
		rec, err := record.Parse(line)
		if err != nil || rec == nil || rec.Kind != record.KindEvent {
			continue
		}
		out := rec.Line
		if keepEvent != nil {
			out = keepEvent(rec.Line, rec.Str("issue_id"))
			if out == nil {
				continue
			}
		}
		if err := write(out, nil); err != nil {
			return err
		}
	}

	if err := jsonlfile.WriteAtomic(s.path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}
	s.baseLines = lines
	s.appendedLines = 0
	return nil
}
