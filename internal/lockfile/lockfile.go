// Package lockfile provides the advisory flock that serializes writers of a
// .dogcats directory.
//
// flock applies to the open file, not the path, so every cooperating
// process must lock the same stable lock file. The lock file is never
// replaced or removed while a lock may be held.
package lockfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// pollInterval is how often Lock retries a contended non-blocking flock.
const pollInterval = 10 * time.Millisecond

// Lock is a held exclusive lock. Release it with Unlock.
type Lock struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Acquire blocks until it holds an exclusive lock on path or ctx is done.
// The lock file and its directory are created if missing.
func Acquire(ctx context.Context, path string) (*Lock, error) {
	for {
		lk, err := TryLock(path)
		if err == nil {
			return lk, nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", path, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// TryLock takes the lock without waiting.
func TryLock(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	// #nosec G304 - path is the store's own lock file
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	err = flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &Lock{file: f, path: path}, nil
}

// Unlock releases the lock. It is safe to call more than once.
func (l *Lock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	unlockErr := flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking %s: %w", l.path, unlockErr)
	}
	return errors.Join(unlockErr, closeErr)
}

// With runs fn while holding the lock on path.
func With(ctx context.Context, path string, fn func() error) error {
	lk, err := Acquire(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = lk.Unlock() }()
	return fn()
}

func flock(fd, how int) error {
	for {
		err := unix.Flock(fd, how)
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}
