package logging

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of worker log lines to buffer.
	MaxBufferedLines = 100
)

// WorkerLogHandler handles log output from the moshi-server worker.
// It buffers recent lines for failure diagnostics and logs them.
type WorkerLogHandler struct {
	logger  *slog.Logger
	verbose bool

	// Called once per line that matches an error pattern
	onError func()

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex
}

// SetOnError registers a callback invoked for each error-pattern line.
// Must be called before the handler starts receiving lines.
func (h *WorkerLogHandler) SetOnError(fn func()) {
	h.onError = fn
}

// NewWorkerLogHandler creates a new handler for worker log output.
func NewWorkerLogHandler(logger *slog.Logger, verbose bool) *WorkerLogHandler {
	return &WorkerLogHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
	}
}

// HandleReader reads from an io.Reader and processes each line.
// This should be run in a goroutine.
func (h *WorkerLogHandler) HandleReader(r io.Reader) {
	scanner := bufio.NewScanner(r)
	// Rust tracing output can produce long lines (full config dumps)
	buf := make([]byte, MaxLineLength)
	scanner.Buffer(buf, MaxLineLength)

	for scanner.Scan() {
		line := scanner.Text()
		h.HandleLine(line)
	}
}

// FollowReader is HandleReader for a file that is still being written:
// on EOF it waits and retries until ctx is cancelled.
func (h *WorkerLogHandler) FollowReader(ctx context.Context, r io.Reader) {
	reader := bufio.NewReaderSize(r, MaxLineLength)
	var partial strings.Builder

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			partial.WriteString(strings.TrimRight(line, "\n"))
			if err == nil {
				h.HandleLine(partial.String())
				partial.Reset()
			}
		}
		if err != nil {
			select {
			case <-ctx.Done():
				if partial.Len() > 0 {
					h.HandleLine(partial.String())
				}
				return
			case <-time.After(200 * time.Millisecond):
			}
		}
	}
}

// HandleLine processes a single line of worker log output.
func (h *WorkerLogHandler) HandleLine(line string) {
	// Truncate if too long
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	// Store in circular buffer
	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.mu.Unlock()

	if h.onError != nil && matchesErrorPattern(line) {
		h.onError()
	}

	// Log based on content and verbosity
	h.logLine(line)
}

// logLine logs the line at appropriate level based on content.
func (h *WorkerLogHandler) logLine(line string) {
	// Determine log level based on content
	level := h.classifyLine(line)

	// In non-verbose mode, only log warnings and errors
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(nil, level, "worker_log",
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func (h *WorkerLogHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	// Error patterns from Rust tracing output
	if strings.Contains(lower, " error ") ||
		strings.Contains(lower, "panicked at") ||
		strings.Contains(lower, "cuda error") ||
		strings.Contains(lower, "out of memory") {
		return slog.LevelWarn
	}

	// Warning patterns
	if strings.Contains(lower, " warn ") ||
		strings.Contains(lower, "retrying") {
		return slog.LevelWarn
	}

	// Startup progress lines are useful at info level
	if strings.Contains(lower, "listening") ||
		strings.Contains(lower, "loading") ||
		strings.Contains(lower, "loaded") {
		return slog.LevelInfo
	}

	// Default to debug
	return slog.LevelDebug
}

// RecentLines returns the most recent lines from the buffer.
func (h *WorkerLogHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are common failure patterns to extract for the exit summary.
var ErrorPatterns = []string{
	"panicked at",
	"CUDA error",
	"out of memory",
	"Address already in use",
	"No such file or directory",
	"401",
	"403",
	"404",
}

// matchesErrorPattern reports whether the line contains any known
// failure pattern.
func matchesErrorPattern(line string) bool {
	for _, pattern := range ErrorPatterns {
		if strings.Contains(line, pattern) {
			return true
		}
	}
	return false
}

// CountErrors counts occurrences of failure patterns in the buffer.
func (h *WorkerLogHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int)

	for _, line := range h.buffer {
		if line == "" {
			continue
		}
		for _, pattern := range ErrorPatterns {
			if strings.Contains(line, pattern) {
				counts[pattern]++
			}
		}
	}

	return counts
}
