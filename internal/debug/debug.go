// Package debug is the diagnostic logger shared by the storage layer and the CLI.
//
// Logf is silent unless debugging was enabled through DCAT_DEBUG, the debug
// config key, or SetEnabled. Warn always logs. When a log file is configured
// output goes to a size-rotated file instead of stderr.
package debug

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu      sync.RWMutex
	enabled = os.Getenv("DCAT_DEBUG") != ""
	quiet   bool
	out     io.Writer = os.Stderr
	rotator *lumberjack.Logger
	logger  = newLogger(os.Stderr)
)

// Options configures where diagnostics go.
type Options struct {
	Enabled bool
	Quiet   bool
	// File, when set, receives all output with rotation.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Configure replaces the current logging setup.
func Configure(opts Options) {
	mu.Lock()
	defer mu.Unlock()

	if rotator != nil {
		_ = rotator.Close()
		rotator = nil
	}
	enabled = opts.Enabled || os.Getenv("DCAT_DEBUG") != ""
	quiet = opts.Quiet
	out = os.Stderr
	if opts.File != "" {
		maxSize := opts.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 10
		}
		maxBackups := opts.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     30,
		}
		out = rotator
	}
	logger = newLogger(out)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Enabled reports whether debug output is on.
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// SetEnabled turns debug output on or off.
func SetEnabled(on bool) {
	mu.Lock()
	enabled = on
	mu.Unlock()
}

// IsQuiet reports whether informational output should be suppressed.
func IsQuiet() bool {
	mu.RLock()
	defer mu.RUnlock()
	return quiet
}

// Logf writes a debug message when debugging is enabled.
func Logf(format string, args ...interface{}) {
	mu.RLock()
	on, l := enabled, logger
	mu.RUnlock()
	if !on {
		return
	}
	l.Debug(fmt.Sprintf(format, args...))
}

// Warn logs a structured warning regardless of the debug setting.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Logger returns the structured logger backing this package.
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// SetOutput redirects output, mainly for tests. It returns a function that
// restores the previous writer.
func SetOutput(w io.Writer) (restore func()) {
	mu.Lock()
	prevOut, prevLogger := out, logger
	out = w
	logger = newLogger(w)
	mu.Unlock()
	return func() {
		mu.Lock()
		out, logger = prevOut, prevLogger
		mu.Unlock()
	}
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	out = os.Stderr
	logger = newLogger(out)
	return err
}
