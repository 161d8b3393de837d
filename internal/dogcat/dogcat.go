// Package dogcat locates a project's .dogcats directory and the files in it.
package dogcat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dogcat/dogcat/internal/configfile"
	"github.com/dogcat/dogcat/internal/git"
	"github.com/dogcat/dogcat/internal/inbox"
	"github.com/dogcat/dogcat/internal/rewrite"
	"github.com/dogcat/dogcat/internal/storage/jsonl"
)

const (
	// DirName is the store directory created by dcat init.
	DirName = ".dogcats"
	// RCFileName redirects discovery to a store elsewhere. It holds one
	// path, relative to the rc file's directory.
	RCFileName = ".dogcatrc"
)

// ErrNoStore is returned when no .dogcats directory can be found.
var ErrNoStore = errors.New("no .dogcats directory found (run 'dcat init' first)")

// FindDogcatsDir finds the store directory:
//  1. $DCAT_DIR
//  2. .dogcatrc or .dogcats/ in the current directory or an ancestor
//  3. .dogcats/ beside the main work tree of a linked git worktree
//
// Returns empty string if not found.
func FindDogcatsDir() string {
	if dir := os.Getenv("DCAT_DIR"); dir != "" {
		abs := canonicalize(dir)
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			return abs
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	if found := FindFrom(cwd); found != "" {
		return found
	}
	return findViaWorktree(context.Background(), cwd)
}

// findViaWorktree looks next to the main work tree when cwd is inside a
// linked git worktree, so every worktree shares one store.
func findViaWorktree(ctx context.Context, cwd string) string {
	common, err := git.Run(ctx, cwd, "rev-parse", "--git-common-dir")
	if err != nil || common == "" {
		return ""
	}
	if !filepath.IsAbs(common) {
		common = filepath.Join(cwd, common)
	}
	candidate := filepath.Join(filepath.Dir(canonicalize(common)), DirName)
	if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		return candidate
	}
	return ""
}

// FindFrom walks up from start. At each level a .dogcatrc redirect wins
// over a .dogcats directory.
func FindFrom(start string) string {
	dir := canonicalize(start)
	for {
		if target, ok := readRC(filepath.Join(dir, RCFileName)); ok {
			return target
		}
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func readRC(path string) (string, bool) {
	f, err := os.Open(path) // #nosec G304 - discovery path
	if err != nil {
		return "", false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(filepath.Dir(path), line)
		}
		target := canonicalize(line)
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return target, true
		}
		return "", false
	}
	return "", false
}

func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// Resolve returns dir when set, else the discovered store.
func Resolve(dir string) (string, error) {
	if dir != "" {
		abs := canonicalize(dir)
		if info, err := os.Stat(abs); err != nil || !info.IsDir() {
			return "", fmt.Errorf("%s: %w", dir, ErrNoStore)
		}
		return abs, nil
	}
	if found := FindDogcatsDir(); found != "" {
		return found, nil
	}
	return "", ErrNoStore
}

// IssuesPath returns the primary log in dir.
func IssuesPath(dir string) string { return filepath.Join(dir, jsonl.FileName) }

// InboxPath returns the proposal log in dir.
func InboxPath(dir string) string { return filepath.Join(dir, inbox.FileName) }

// LockPath returns the lock file shared by both logs.
func LockPath(dir string) string { return filepath.Join(dir, jsonl.LockFileName) }

// ArchiveDir returns where archive files are written.
func ArchiveDir(dir string) string { return filepath.Join(dir, rewrite.ArchiveDirName) }

// ConfigPath returns the project config file.
func ConfigPath(dir string) string { return configfile.ConfigPath(dir) }

// Init creates the store in root and returns its directory. Existing
// files are left alone.
func Init(root, prefix string) (string, error) {
	dir := filepath.Join(root, DirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for _, p := range []string{IssuesPath(dir), InboxPath(dir)} {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302 - tracked in git
		if err != nil {
			return "", fmt.Errorf("failed to create %s: %w", p, err)
		}
		_ = f.Close()
	}

	cfg, err := configfile.Load(dir)
	if err != nil {
		return "", err
	}
	if cfg == nil {
		if prefix == "" {
			prefix = configfile.IssuePrefix(dir)
		}
		cfg = configfile.DefaultConfig(prefix)
	} else if prefix != "" {
		if err := cfg.Set("issue_prefix", prefix); err != nil {
			return "", err
		}
	}
	if err := cfg.Save(dir); err != nil {
		return "", err
	}
	if err := ensureGitignore(root); err != nil {
		return "", err
	}
	return dir, nil
}

// GitignoreEntry keeps the lock file out of version control.
var GitignoreEntry = DirName + "/" + jsonl.LockFileName

// ensureGitignore appends the lock file entry to root/.gitignore.
func ensureGitignore(root string) error {
	path := filepath.Join(root, ".gitignore")
	if GitignoreCovers(root) {
		return nil
	}
	data, err := os.ReadFile(path) // #nosec G304 - project file
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	var b strings.Builder
	b.Write(data)
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(GitignoreEntry + "\n")
	return os.WriteFile(path, []byte(b.String()), 0o644) // #nosec G306 - tracked in git
}

// GitignoreCovers reports whether root/.gitignore lists the lock file.
func GitignoreCovers(root string) bool {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore")) // #nosec G304 - project file
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		switch strings.TrimSpace(line) {
		case GitignoreEntry, "/" + GitignoreEntry, jsonl.LockFileName, DirName + "/.*.lock", "*.lock":
			return true
		}
	}
	return false
}
