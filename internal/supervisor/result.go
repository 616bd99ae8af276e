package supervisor

import (
	"os"
	"strings"
	"time"
)

// Outcome classifies how a readiness wait ended.
type Outcome int

const (
	// OutcomeReady means a probe succeeded before the timeout.
	OutcomeReady Outcome = iota

	// OutcomeTimedOut means no probe succeeded within the timeout while
	// the worker kept running.
	OutcomeTimedOut

	// OutcomeExitedEarly means the worker exited before becoming ready.
	OutcomeExitedEarly
)

// String returns a human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeExitedEarly:
		return "exited_early"
	default:
		return "unknown"
	}
}

// Result captures the outcome of a readiness wait.
type Result struct {
	// Outcome classifies the wait result.
	Outcome Outcome

	// Waited is how long the wait ran before resolving.
	Waited time.Duration

	// ExitCode is the worker exit code. Only meaningful for
	// OutcomeExitedEarly.
	ExitCode int

	// LogTail holds the last lines of the worker log for diagnosis.
	// Populated for TimedOut and ExitedEarly.
	LogTail []string
}

// tailReadBytes bounds how much of the log file is read for the tail.
const tailReadBytes = 64 * 1024

// readLogTail returns the last n lines of the file at path.
// Returns nil if the file cannot be read.
func readLogTail(path string, n int) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil
	}

	offset := info.Size() - tailReadBytes
	if offset < 0 {
		offset = 0
	}

	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && len(buf) > 0 {
		return nil
	}

	lines := strings.Split(strings.TrimRight(string(buf), "\n"), "\n")
	if offset > 0 && len(lines) > 0 {
		// First line is likely cut mid-way by the offset
		lines = lines[1:]
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	return lines
}
