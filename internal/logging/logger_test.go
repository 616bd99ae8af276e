package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"Debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},        // Default
		{"invalid", slog.LevelInfo}, // Default for unknown
		{"trace", slog.LevelInfo},   // Unknown level defaults to info
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result := parseLevel(tc.input)
			if result != tc.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tc.input, result, tc.expected)
			}
		})
	}
}

func TestNewLogger_Formats(t *testing.T) {
	testCases := []string{"json", "text", "JSON", "TEXT", "", "invalid"}

	for _, format := range testCases {
		t.Run(format, func(t *testing.T) {
			// Should not panic
			logger := NewLogger(format, "info", false)
			if logger == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	testCases := []string{"debug", "info", "warn", "error", "", "invalid"}

	for _, level := range testCases {
		t.Run(level, func(t *testing.T) {
			// Should not panic
			logger := NewLogger("json", level, false)
			if logger == nil {
				t.Error("NewLogger returned nil")
			}
		})
	}
}

func TestNewLoggerWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, "json", "info")
	logger.Info("test message", "key", "value")

	output := buf.String()

	// JSON format should contain JSON syntax
	if !strings.Contains(output, "{") || !strings.Contains(output, "}") {
		t.Errorf("Expected JSON format, got: %s", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"key"`) {
		t.Errorf("Expected key in output, got: %s", output)
	}
	if !strings.Contains(output, `"value"`) {
		t.Errorf("Expected value in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer

	logger := NewLoggerWithWriter(&buf, "text", "info")
	logger.Info("test message", "key", "value")

	output := buf.String()

	// Text format should contain readable log
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value in output, got: %s", output)
	}
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	t.Run("debug_logs_all", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "debug")

		logger.Debug("debug msg")
		logger.Info("info msg")
		logger.Warn("warn msg")
		logger.Error("error msg")

		output := buf.String()
		if !strings.Contains(output, "debug msg") {
			t.Error("Debug level should log debug messages")
		}
		if !strings.Contains(output, "info msg") {
			t.Error("Debug level should log info messages")
		}
		if !strings.Contains(output, "warn msg") {
			t.Error("Debug level should log warn messages")
		}
		if !strings.Contains(output, "error msg") {
			t.Error("Debug level should log error messages")
		}
	})

	t.Run("info_filters_debug", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "info")

		logger.Debug("debug msg")
		logger.Info("info msg")

		output := buf.String()
		if strings.Contains(output, "debug msg") {
			t.Error("Info level should not log debug messages")
		}
		if !strings.Contains(output, "info msg") {
			t.Error("Info level should log info messages")
		}
	})

	t.Run("error_filters_warn", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "error")

		logger.Warn("warn msg")
		logger.Error("error msg")

		output := buf.String()
		if strings.Contains(output, "warn msg") {
			t.Error("Error level should not log warn messages")
		}
		if !strings.Contains(output, "error msg") {
			t.Error("Error level should log error messages")
		}
	})
}

func TestSetDefault(t *testing.T) {
	// Save original default logger to restore later
	originalDefault := slog.Default()
	defer slog.SetDefault(originalDefault)

	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "info")

	// Should not panic
	SetDefault(logger)

	// Verify it was set
	slog.Info("from default logger")
	if !strings.Contains(buf.String(), "from default logger") {
		t.Error("SetDefault did not set the default logger")
	}
}

// WorkerLogHandler tests

func TestNewWorkerLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, false)
	if h == nil {
		t.Fatal("NewWorkerLogHandler returned nil")
	}
	if len(h.buffer) != MaxBufferedLines {
		t.Errorf("buffer length = %d, want %d", len(h.buffer), MaxBufferedLines)
	}
}

func TestWorkerLogHandler_HandleLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, true)

	h.HandleLine("test line")

	// Line should be in buffer
	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}
	if lines[0] != "test line" {
		t.Errorf("Line = %q, want %q", lines[0], "test line")
	}
}

func TestWorkerLogHandler_HandleLine_Truncation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, true)

	// Create a line longer than MaxLineLength
	longLine := strings.Repeat("x", MaxLineLength+100)
	h.HandleLine(longLine)

	lines := h.RecentLines(1)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d", len(lines))
	}

	// Line should be truncated
	if len(lines[0]) > MaxLineLength+20 { // +20 for "(truncated)"
		t.Errorf("Line should be truncated, got length %d", len(lines[0]))
	}
	if !strings.HasSuffix(lines[0], "...(truncated)") {
		t.Error("Truncated line should end with '...(truncated)'")
	}
}

func TestWorkerLogHandler_CircularBuffer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, false)

	// Add more lines than buffer size
	for i := 0; i < MaxBufferedLines+50; i++ {
		h.HandleLine(strings.Repeat("x", i))
	}

	// Should only have MaxBufferedLines
	lines := h.RecentLines(MaxBufferedLines + 10)
	if len(lines) > MaxBufferedLines {
		t.Errorf("Got %d lines, max should be %d", len(lines), MaxBufferedLines)
	}
}

func TestWorkerLogHandler_RecentLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, false)

	// Add 5 lines
	for i := 0; i < 5; i++ {
		h.HandleLine("line" + string(rune('0'+i)))
	}

	// Request 3 most recent
	lines := h.RecentLines(3)
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}

	// Should be last 3 lines
	if lines[0] != "line2" || lines[1] != "line3" || lines[2] != "line4" {
		t.Errorf("Unexpected lines: %v", lines)
	}
}

func TestWorkerLogHandler_ClassifyLine(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, true)

	testCases := []struct {
		line     string
		expected slog.Level
	}{
		// Error patterns - should be Warn
		{"2024-01-01T00:00:00Z ERROR moshi_server: thread panicked at src/main.rs", slog.LevelWarn},
		{"CUDA error: out of memory", slog.LevelWarn},
		{"worker panicked at 'index out of bounds'", slog.LevelWarn},

		// Warning patterns
		{"2024-01-01T00:00:00Z  WARN moshi_server: slow batch", slog.LevelWarn},
		{"retrying model download", slog.LevelWarn},

		// Startup progress - should be Info
		{"INFO moshi_server: listening on 0.0.0.0:8089", slog.LevelInfo},
		{"loading model weights from /models/tts.safetensors", slog.LevelInfo},
		{"voices loaded in 1.2s", slog.LevelInfo},

		// Default - should be Debug
		{"some random output", slog.LevelDebug},
		{"batch ready in 4ms", slog.LevelDebug},
	}

	for _, tc := range testCases {
		t.Run(tc.line[:min(20, len(tc.line))], func(t *testing.T) {
			level := h.classifyLine(tc.line)
			if level != tc.expected {
				t.Errorf("classifyLine(%q) = %v, want %v", tc.line, level, tc.expected)
			}
		})
	}
}

func TestWorkerLogHandler_CountErrors(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")

	h := NewWorkerLogHandler(logger, false)

	// Add lines with failure patterns
	h.HandleLine("thread 'main' panicked at src/lib.rs:42")
	h.HandleLine("worker panicked at 'oops'")
	h.HandleLine("Error: Address already in use (os error 98)")
	h.HandleLine("normal line")
	h.HandleLine("hub returned 401 Unauthorized")

	counts := h.CountErrors()

	if counts["panicked at"] != 2 {
		t.Errorf("panicked at count = %d, want 2", counts["panicked at"])
	}
	if counts["Address already in use"] != 1 {
		t.Errorf("Address already in use count = %d, want 1", counts["Address already in use"])
	}
	if counts["401"] != 1 {
		t.Errorf("401 count = %d, want 1", counts["401"])
	}
}

func TestWorkerLogHandler_VerboseLogging(t *testing.T) {
	t.Run("verbose_true", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "debug")
		h := NewWorkerLogHandler(logger, true)

		h.HandleLine("debug line")

		if !strings.Contains(buf.String(), "debug line") {
			t.Error("Verbose mode should log debug lines")
		}
	})

	t.Run("verbose_false", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "debug")
		h := NewWorkerLogHandler(logger, false)

		h.HandleLine("debug line")

		if strings.Contains(buf.String(), "debug line") {
			t.Error("Non-verbose mode should not log debug lines")
		}
	})

	t.Run("verbose_false_logs_errors", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, "text", "debug")
		h := NewWorkerLogHandler(logger, false)

		h.HandleLine("thread panicked at src/main.rs")

		if !strings.Contains(buf.String(), "panicked") {
			t.Error("Non-verbose mode should still log errors")
		}
	})
}

func TestWorkerLogHandler_HandleReader(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")
	h := NewWorkerLogHandler(logger, true)

	// Create a reader with multiple lines
	input := "line1\nline2\nline3\n"
	reader := strings.NewReader(input)

	h.HandleReader(reader)

	lines := h.RecentLines(3)
	if len(lines) != 3 {
		t.Fatalf("Expected 3 lines, got %d", len(lines))
	}
}

func TestWorkerLogHandler_SetOnError(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")
	h := NewWorkerLogHandler(logger, false)

	fired := 0
	h.SetOnError(func() { fired++ })

	h.HandleLine("normal line")
	h.HandleLine("thread 'main' panicked at src/lib.rs:42")
	h.HandleLine("CUDA error: device-side assert")
	h.HandleLine("another normal line")

	if fired != 2 {
		t.Errorf("onError fired %d times, want 2", fired)
	}
}

func TestWorkerLogHandler_FollowReader(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")
	h := NewWorkerLogHandler(logger, true)

	ctx, cancel := context.WithCancel(context.Background())

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		h.FollowReader(ctx, pr)
		close(done)
	}()

	pw.Write([]byte("first\nsecond\n"))

	// The follower retries on EOF, so give it a moment to consume
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(h.RecentLines(2)) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	lines := h.RecentLines(2)
	if len(lines) != 2 || lines[0] != "first" || lines[1] != "second" {
		t.Errorf("lines = %v, want [first second]", lines)
	}

	cancel()
	pw.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("FollowReader did not stop on cancel")
	}
}

func TestWorkerLogHandler_Concurrent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, "text", "debug")
	h := NewWorkerLogHandler(logger, false)

	// Concurrent access should not panic
	done := make(chan bool)

	// Writer goroutine
	go func() {
		for i := 0; i < 100; i++ {
			h.HandleLine("concurrent line")
		}
		done <- true
	}()

	// Reader goroutine
	go func() {
		for i := 0; i < 100; i++ {
			_ = h.RecentLines(10)
			_ = h.CountErrors()
		}
		done <- true
	}()

	<-done
	<-done
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
