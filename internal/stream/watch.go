package stream

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dogcat/dogcat/internal/debug"
	"github.com/dogcat/dogcat/internal/types"
)

// Watch runs until ctx is done, calling emit for every change to the log
// at path. It watches the containing directory so atomic renames are
// seen, and falls back to polling every pollInterval when fsnotify is not
// available. An error from emit stops the watch and is returned.
func Watch(ctx context.Context, e *Emitter, pollInterval time.Duration, emit func(types.Event) error) error {
	flush := func() error {
		for _, ev := range e.Check() {
			if err := emit(ev); err != nil {
				return err
			}
		}
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if err = watcher.Add(filepath.Dir(e.path)); err != nil {
			_ = watcher.Close()
		}
	}
	if err != nil {
		debug.Logf("stream: fsnotify unavailable, polling every %s: %v", pollInterval, err)
		return poll(ctx, e.path, pollInterval, flush)
	}
	defer watcher.Close()

	name := filepath.Base(e.path)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := flush(); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			debug.Logf("stream: watcher error: %v", err)
		case <-ctx.Done():
			return nil
		}
	}
}

func poll(ctx context.Context, path string, interval time.Duration, flush func() error) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	var lastSize int64 = -1
	for {
		select {
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			if info.ModTime().Equal(lastMod) && info.Size() == lastSize {
				continue
			}
			lastMod, lastSize = info.ModTime(), info.Size()
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}
