// Package logger provides verbose logging for docindex.
//
// Nothing is written unless verbose mode is enabled with the --verbose flag.
// Messages go to stderr so they never mix with command output or with the
// MCP stdio transport. Long-running commands (watch, mcp serve) turn on
// timestamps.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// TimeFormat is the timestamp layout used when timestamps are enabled.
const TimeFormat = "15:04:05.000"

var (
	mu         sync.RWMutex
	verbose    bool
	timestamps bool
	output     io.Writer = os.Stderr
	now                  = time.Now
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetTimestamps prefixes every line with the wall clock time.
func SetTimestamps(on bool) {
	mu.Lock()
	defer mu.Unlock()
	timestamps = on
}

// SetOutput sets the output writer for verbose logs. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Debug prints pipeline detail such as batch sizes and candidate counts.
func Debug(format string, args ...any) {
	write("[DEBUG] ", format, args)
}

// Info prints a milestone such as a finished job.
func Info(format string, args ...any) {
	write("[INFO] ", format, args)
}

// Warn prints a degraded or retried operation.
func Warn(format string, args ...any) {
	write("[WARN] ", format, args)
}

// Section prints a header that opens one operation's log lines.
func Section(name string) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	fmt.Fprintf(output, "\n%s=== %s ===\n", stamp(), name)
}

func write(level, format string, args []any) {
	mu.RLock()
	defer mu.RUnlock()
	if !verbose {
		return
	}
	fmt.Fprintf(output, stamp()+level+format+"\n", args...)
}

// stamp must be called with mu held.
func stamp() string {
	if !timestamps {
		return ""
	}
	return now().Format(TimeFormat) + " "
}
