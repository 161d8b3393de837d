// Package jsonl implements the storage interface on an append-only JSONL log.
//
// The log is the durable record: every mutation appends a full issue
// snapshot or an add/remove edge record, and the in-memory state is the
// replay of the whole file. Writers serialize on an advisory flock next to
// the log; a Store is not safe for use by several goroutines without the
// mutex it carries.
package jsonl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/jsonlfile"
	"github.com/dogcat/dogcat/internal/lockfile"
	"github.com/dogcat/dogcat/internal/replay"
	"github.com/dogcat/dogcat/internal/storage"
	"github.com/dogcat/dogcat/internal/types"
)

// Compaction thresholds: once the file holds at least compactMinBase lines
// from the last full write, appending more than compactRatio of that many
// lines triggers a rewrite.
const (
	compactMinBase = 20
	compactRatio   = 0.5
)

// File names inside a .dogcats directory. The lock is shared by every
// writer of the directory, inbox included.
const (
	FileName     = "issues.jsonl"
	LockFileName = ".issues.lock"
)

// Options configures Open.
type Options struct {
	// CreateDir creates the parent directory when missing (used by init).
	CreateDir bool
	// AutoCompact enables threshold compaction after appends.
	AutoCompact bool
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Store is the JSONL-backed implementation of storage.Storage.
type Store struct {
	mu sync.Mutex

	path     string
	dir      string
	lockPath string
	opts     Options

	state    *replay.State
	findings []types.Finding

	baseLines       int
	appendedLines   int
	needsCompaction bool
	closed          bool
}

var _ storage.Storage = (*Store)(nil)

// Open loads the log at path. The directory must exist unless
// opts.CreateDir is set; the file itself may be missing.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if opts.CreateDir {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	} else if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("directory '%s' does not exist; run 'dcat init' first: %w", dir, err)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		path:     path,
		dir:      dir,
		lockPath: filepath.Join(dir, LockFileName),
		opts:     opts,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read storage file: %w", err)
	}
	state, findings := replay.Replay(bytes.NewReader(data))
	for _, f := range findings {
		debug.Warn("skipping malformed record", "path", s.path, "line", f.Line, "error", f.Message)
	}
	s.state = state
	s.findings = findings
	s.baseLines = state.LineCount
	s.appendedLines = 0
	s.needsCompaction = state.LastLineCorrupt
	return nil
}

// Path returns the log file path.
func (s *Store) Path() string { return s.path }

// Dir returns the .dogcats directory holding the log.
func (s *Store) Dir() string { return s.dir }

// LockPath returns the advisory lock file used by writers.
func (s *Store) LockPath() string { return s.lockPath }

// Findings returns the problems found while loading the log.
func (s *Store) Findings() []types.Finding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Finding(nil), s.findings...)
}

// Reload re-reads the log from disk.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Close marks the store closed. The log needs no flushing.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) now() time.Time {
	return s.opts.Now()
}

// appendRecords writes encoded records as one payload under the lock.
// State must only be updated by the caller after this returns nil.
func (s *Store) appendRecords(ctx context.Context, records ...[]byte) error {
	if s.closed {
		return errors.New("storage is closed")
	}
	if s.needsCompaction {
		// a torn last line must not stay wedged between valid records
		if err := s.compactLocked(ctx, false); err != nil {
			return err
		}
		s.needsCompaction = false
	}

	payload := make([]byte, 0, 256*len(records))
	for _, r := range records {
		payload = append(payload, r...)
		payload = append(payload, '\n')
	}
	err := lockfile.With(ctx, s.lockPath, func() error {
		return jsonlfile.Append(s.path, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to append to storage file: %w", err)
	}
	s.appendedLines += len(records)
	return nil
}

// maybeCompact rewrites the log when enough has been appended since the
// last full write. It only runs on a default branch so feature branches
// do not produce conflicting rewrites of the same file.
func (s *Store) maybeCompact(ctx context.Context) {
	if !s.opts.AutoCompact {
		return
	}
	if s.baseLines < compactMinBase || float64(s.appendedLines) <= float64(s.baseLines)*compactRatio {
		return
	}
	if !git.IsDefaultBranch(ctx, s.dir) {
		debug.Logf("skipping auto-compaction on non-default branch")
		return
	}
	if err := s.compactLocked(ctx, true); err != nil {
		debug.Warn("auto-compaction failed", "path", s.path, "error", err)
	}
}
