// Package stats aggregates smoke test and benchmark measurements for
// the exit summary.
//
// This file implements the exit summary formatter which displays the
// deployment outcome at program exit.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SmokeResult is the subset of a smoke run the summary displays.
type SmokeResult struct {
	ConnectTime  time.Duration
	TTFB         time.Duration
	Wall         time.Duration
	AudioSeconds float64
	RTF          float64
	WAVPath      string
}

// SummaryConfig holds everything the exit summary displays.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	// BinaryPath is the worker binary that was launched
	BinaryPath string

	// Model is the preset or repo that was served
	Model string

	// Endpoint is the worker's listen address, e.g. "0.0.0.0:8089"
	Endpoint string

	// PID is the worker process ID, zero if launch failed
	PID int

	// FinalState is the worker's terminal state string
	FinalState string

	// ReadinessWait is how long the worker took to become ready
	ReadinessWait time.Duration

	// WorkerUptime is how long the worker ran
	WorkerUptime time.Duration

	// ExitCode is the worker's exit code, -1 if unknown
	ExitCode int

	// LogErrors counts error lines seen in the worker log
	LogErrors int

	// AssetBytes is the total bytes fetched (or verified) before launch
	AssetBytes int64

	// AssetsCached counts assets served from the local cache
	AssetsCached int

	// Smoke is the single smoke run result, nil if skipped or failed
	Smoke *SmokeResult

	// Bench holds benchmark aggregates, nil when no benchmark ran
	Bench *BenchAggregate

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string
}

// FormatExitSummary formats the deployment outcome for display at
// program exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                         go-moshi-deploy Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	// Run info
	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	if cfg.BinaryPath != "" {
		fmt.Fprintf(&b, "Worker Binary:          %s\n", cfg.BinaryPath)
	}
	if cfg.Model != "" {
		fmt.Fprintf(&b, "Model:                  %s\n", cfg.Model)
	}
	if cfg.Endpoint != "" {
		fmt.Fprintf(&b, "Endpoint:               %s\n", cfg.Endpoint)
	}
	b.WriteString("\n")

	// Worker lifecycle
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                Worker Lifecycle\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	if cfg.PID > 0 {
		fmt.Fprintf(&b, "  PID:                  %d\n", cfg.PID)
	}
	fmt.Fprintf(&b, "  Final State:          %s\n", cfg.FinalState)
	if cfg.ReadinessWait > 0 {
		fmt.Fprintf(&b, "  Time to Ready:        %s\n", FormatMs(cfg.ReadinessWait))
	}
	if cfg.WorkerUptime > 0 {
		fmt.Fprintf(&b, "  Worker Uptime:        %s\n", FormatDuration(cfg.WorkerUptime))
	}
	if cfg.ExitCode >= 0 {
		fmt.Fprintf(&b, "  Exit Code:            %d %s\n", cfg.ExitCode, ExitCodeLabel(cfg.ExitCode))
	}
	if cfg.LogErrors > 0 {
		fmt.Fprintf(&b, "  Log Error Lines:      %d\n", cfg.LogErrors)
	}
	b.WriteString("\n")

	// Assets
	if cfg.AssetBytes > 0 || cfg.AssetsCached > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                    Assets\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Total Size:           %s\n", FormatBytes(cfg.AssetBytes))
		fmt.Fprintf(&b, "  Served From Cache:    %d\n\n", cfg.AssetsCached)
	}

	// Smoke test
	if cfg.Smoke != nil {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                  Smoke Test\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

		fmt.Fprintf(&b, "  Connect:              %s\n", FormatMs(cfg.Smoke.ConnectTime))
		fmt.Fprintf(&b, "  Time to First Audio:  %s\n", FormatMs(cfg.Smoke.TTFB))
		fmt.Fprintf(&b, "  Wall Time:            %s\n", FormatMs(cfg.Smoke.Wall))
		fmt.Fprintf(&b, "  Audio Synthesized:    %.2fs\n", cfg.Smoke.AudioSeconds)
		fmt.Fprintf(&b, "  RTF:                  %.3f %s\n", cfg.Smoke.RTF, rtfLabel(cfg.Smoke.RTF))
		if cfg.Smoke.WAVPath != "" {
			fmt.Fprintf(&b, "  WAV Output:           %s\n", cfg.Smoke.WAVPath)
		}
		b.WriteString("\n")
	}

	// Benchmark
	if cfg.Bench != nil && cfg.Bench.Runs() > 0 {
		b.WriteString(formatBenchSection(cfg.Bench))
	}

	// Metrics endpoint
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

// formatBenchSection renders the benchmark percentile table.
func formatBenchSection(bench *BenchAggregate) string {
	var b strings.Builder

	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                  Benchmark\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Requests:             %d", bench.Runs())
	if bench.Failures() > 0 {
		fmt.Fprintf(&b, "  (%d failed)", bench.Failures())
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "  %-14s %10s %10s %10s %10s %10s\n",
		"Metric", "Min", "P50", "P95", "P99", "Max")
	b.WriteString("  " + strings.Repeat("─", 68) + "\n")

	rows := []struct {
		name   string
		digest *LatencyDigest
		format func(float64) string
	}{
		{"Connect (ms)", bench.ConnectMs, formatWhole},
		{"TTFB (ms)", bench.TTFBMs, formatWhole},
		{"RTF", bench.RTF, formatRatio},
	}
	for _, row := range rows {
		if row.digest.Count() == 0 {
			continue
		}
		fmt.Fprintf(&b, "  %-14s %10s %10s %10s %10s %10s\n",
			row.name,
			row.format(row.digest.Min()),
			row.format(row.digest.Quantile(0.50)),
			row.format(row.digest.Quantile(0.95)),
			row.format(row.digest.Quantile(0.99)),
			row.format(row.digest.Max()),
		)
	}

	if audio := bench.TotalAudio(); audio > 0 {
		wall := bench.TotalWall()
		fmt.Fprintf(&b, "\n  Audio Synthesized:    %.1fs in %.1fs wall",
			audio.Seconds(), wall.Seconds())
		if wall > 0 {
			fmt.Fprintf(&b, "  (%.2fx realtime)", audio.Seconds()/wall.Seconds())
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	return b.String()
}

// rtfLabel classifies a real-time factor for the summary line.
func rtfLabel(rtf float64) string {
	switch {
	case rtf <= 0:
		return ""
	case rtf < 1.0:
		return "(faster than realtime)"
	default:
		return "(slower than realtime)"
	}
}

func formatWhole(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

func formatRatio(v float64) string {
	return fmt.Sprintf("%.3f", v)
}

// ExitCodeLabel returns a human-readable label for common worker exit
// codes. Signal deaths show up as 128+signal.
func ExitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 101:
		return "(rust panic)"
	case 134:
		return "(SIGABRT)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// FormatExitCodes renders a code->count map sorted by code.
func FormatExitCodes(codes map[int]int) string {
	if len(codes) == 0 {
		return ""
	}
	keys := make([]int, 0, len(codes))
	for code := range codes {
		keys = append(keys, code)
	}
	sort.Ints(keys)

	var b strings.Builder
	for _, code := range keys {
		fmt.Fprintf(&b, "  %3d %-16s %d\n", code, ExitCodeLabel(code), codes[code])
	}
	return b.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
