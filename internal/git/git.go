// Package git wraps the few git plumbing commands dogcat relies on.
//
// Every call runs synchronously in a given directory. Callers that treat
// git as optional check the error and fall back; nothing here caches state
// across directories.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrNoMerge is returned by LastMerge when HEAD has no merge commit in its history.
var ErrNoMerge = errors.New("no merge commit found")

// DefaultBranches are the branches where automatic compaction is allowed.
var DefaultBranches = []string{"main", "master"}

// Run executes git with args in dir and returns trimmed stdout.
func Run(ctx context.Context, dir string, args ...string) (string, error) {
	out, err := Output(ctx, dir, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Output executes git with args in dir and returns raw stdout.
func Output(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return out, nil
}

// IsRepo reports whether dir is inside a git work tree.
func IsRepo(ctx context.Context, dir string) bool {
	out, err := Run(ctx, dir, "rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// RepoRoot returns the top-level directory of the work tree containing dir.
func RepoRoot(ctx context.Context, dir string) (string, error) {
	root, err := Run(ctx, dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	return root, nil
}

// RelPath converts an absolute path to one relative to the repository root,
// with forward slashes as git expects in "rev:path" specs.
func RelPath(ctx context.Context, dir, path string) (string, error) {
	root, err := RepoRoot(ctx, dir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(resolved, filepath.Base(abs))
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// CurrentBranch returns the abbreviated name of HEAD.
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	return Run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}

// IsDefaultBranch reports whether dir is on main or master. A directory
// outside git, or a machine without git, counts as default.
func IsDefaultBranch(ctx context.Context, dir string) bool {
	branch, err := CurrentBranch(ctx, dir)
	if err != nil {
		return true
	}
	for _, b := range DefaultBranches {
		if branch == b {
			return true
		}
	}
	return false
}

// LastMerge returns the hash of the most recent merge commit reachable from HEAD.
func LastMerge(ctx context.Context, dir string) (string, error) {
	out, err := Run(ctx, dir, "log", "--merges", "-1", "--format=%H")
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrNoMerge
	}
	return out, nil
}

// Parents returns the first and second parent of a merge commit.
func Parents(ctx context.Context, dir, rev string) (string, string, error) {
	out, err := Run(ctx, dir, "rev-parse", rev+"^1", rev+"^2")
	if err != nil {
		return "", "", err
	}
	lines := strings.Fields(out)
	if len(lines) != 2 {
		return "", "", fmt.Errorf("unexpected rev-parse output for %s: %q", rev, out)
	}
	return lines[0], lines[1], nil
}

// MergeBase returns the best common ancestor of a and b.
func MergeBase(ctx context.Context, dir, a, b string) (string, error) {
	return Run(ctx, dir, "merge-base", a, b)
}

// Show returns the content of path (relative to the repo root) at rev.
func Show(ctx context.Context, dir, rev, path string) ([]byte, error) {
	return Output(ctx, dir, "show", rev+":"+path)
}

// ConfigGet reads a git config value. Unset keys return "" and an error.
func ConfigGet(ctx context.Context, dir, key string) (string, error) {
	return Run(ctx, dir, "config", "--get", key)
}

// ConfigSet writes a repository-local git config value.
func ConfigSet(ctx context.Context, dir, key, value string) error {
	_, err := Run(ctx, dir, "config", key, value)
	return err
}
