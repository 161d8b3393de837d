package lockfile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestTryLockIsExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".issues.lock")

	first, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}

	// flock locks are per open file description, so a second open in the
	// same process contends just like another process would.
	if _, err := TryLock(path); !errors.Is(err, ErrLocked) {
		t.Fatalf("second TryLock error = %v, want ErrLocked", err)
	}

	if err := first.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if err := first.Unlock(); err != nil {
		t.Errorf("second Unlock should be a no-op, got %v", err)
	}

	second, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock after unlock failed: %v", err)
	}
	_ = second.Unlock()
}

func TestAcquireHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", ".issues.lock")
	held, err := TryLock(path)
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	defer func() { _ = held.Unlock() }()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := Acquire(ctx, path); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire error = %v, want deadline exceeded", err)
	}
}

func TestWithReleasesOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".issues.lock")
	boom := errors.New("boom")
	if err := With(context.Background(), path, func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("With error = %v, want boom", err)
	}
	lk, err := TryLock(path)
	if err != nil {
		t.Fatalf("lock not released after With: %v", err)
	}
	_ = lk.Unlock()
}
