// Package jsonlfile holds the low-level file operations on JSONL logs:
// crash-safe appends and atomic whole-file rewrites.
//
// Callers are responsible for holding the store lock around these calls.
package jsonlfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
)

// Perm is the mode of log files created by this package.
const Perm os.FileMode = 0o644

// Append writes payload to the end of path in a single write and fsyncs it.
// If the file exists and does not end in a newline (a prior write was cut
// short), a newline is written first so the new records start on a fresh line.
func Append(path string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	needsNewline, err := missingTrailingNewline(path)
	if err != nil {
		return err
	}
	if needsNewline {
		payload = append([]byte{'\n'}, payload...)
	}

	// #nosec G304 - path is the store's own log file
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, Perm)
	if err != nil {
		return fmt.Errorf("failed to open %s for append: %w", path, err)
	}
	if _, err := f.Write(payload); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}

func missingTrailingNewline(path string) (bool, error) {
	// #nosec G304 - path is the store's own log file
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return false, fmt.Errorf("failed to read end of %s: %w", path, err)
	}
	return last[0] != '\n', nil
}

// WriteAtomic replaces path with data through a temp file in the same
// directory that is synced and renamed over path. On failure the original
// file is untouched.
func WriteAtomic(path string, data []byte) error {
	return WriteAtomicFrom(path, bytes.NewReader(data))
}

// WriteAtomicFrom is WriteAtomic reading the content from r.
func WriteAtomicFrom(path string, r io.Reader) error {
	_, statErr := os.Stat(path)
	if err := atomic.WriteFile(path, r); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	// atomic.WriteFile keeps an existing file's mode; new files get the
	// temp file's 0600.
	if errors.Is(statErr, os.ErrNotExist) {
		if err := os.Chmod(path, Perm); err != nil {
			return fmt.Errorf("failed to set permissions on %s: %w", path, err)
		}
	}
	return nil
}

// ReadLines returns every line of path without its trailing newline,
// blank lines included so line numbers stay meaningful. A missing file
// reads as empty.
func ReadLines(path string) ([][]byte, error) {
	// #nosec G304 - caller-provided log path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return SplitLines(data), nil
}

// SplitLines splits a log into lines. A final newline does not produce an
// empty trailing line. Lines keep their bytes exactly, including a
// trailing '\r'; parsers trim whitespace themselves.
func SplitLines(data []byte) [][]byte {
	var lines [][]byte
	for len(data) > 0 {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			lines = append(lines, append([]byte(nil), data...))
			break
		}
		lines = append(lines, append([]byte(nil), data[:i]...))
		data = data[i+1:]
	}
	return lines
}

// Join renders lines back into a newline-terminated log.
func Join(lines [][]byte) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.Write(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
