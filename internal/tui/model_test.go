package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/clatterbridge/go-moshi-deploy/internal/metrics"
	"github.com/clatterbridge/go-moshi-deploy/internal/orchestrator"
	"github.com/clatterbridge/go-moshi-deploy/internal/stats"
	"github.com/clatterbridge/go-moshi-deploy/internal/supervisor"
)

// fakeSource returns a canned snapshot.
type fakeSource struct {
	status orchestrator.Status
	calls  int
}

func (f *fakeSource) Status() orchestrator.Status {
	f.calls++
	return f.status
}

func runningStatus() orchestrator.Status {
	return orchestrator.Status{
		State:         supervisor.StateRunning,
		PID:           4242,
		Uptime:        90 * time.Second,
		ReadinessWait: 12 * time.Second,
		Elapsed:       2 * time.Minute,
		Model:         "1.6b",
		Endpoint:      "127.0.0.1",
		RecentLog:     []string{"info: loading model", "info: standalone worker listening"},
	}
}

func newTestModel(src StatusSource) Model {
	return New(Config{
		Endpoint:    "127.0.0.1:8089",
		MetricsAddr: "0.0.0.0:17091",
		Source:      src,
	})
}

// ============================================================================
// Update tests
// ============================================================================

func TestUpdate_QuitKeys(t *testing.T) {
	for _, key := range []string{"q", "ctrl+c", "esc"} {
		t.Run(key, func(t *testing.T) {
			m := newTestModel(nil)
			var msg tea.KeyMsg
			switch key {
			case "ctrl+c":
				msg = tea.KeyMsg{Type: tea.KeyCtrlC}
			case "esc":
				msg = tea.KeyMsg{Type: tea.KeyEsc}
			default:
				msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
			}

			updated, cmd := m.Update(msg)
			if !updated.(Model).quitting {
				t.Errorf("key %q did not set quitting", key)
			}
			if cmd == nil {
				t.Errorf("key %q returned nil cmd, want tea.Quit", key)
			}
		})
	}
}

func TestUpdate_TickFetchesStatus(t *testing.T) {
	src := &fakeSource{status: runningStatus()}
	m := newTestModel(src)

	updated, cmd := m.Update(TickMsg(time.Now()))
	um := updated.(Model)

	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}
	if um.status.PID != 4242 {
		t.Errorf("status not stored: PID = %d", um.status.PID)
	}
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}
}

func TestUpdate_WindowSize(t *testing.T) {
	m := newTestModel(nil)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	um := updated.(Model)
	if um.width != 120 || um.height != 40 {
		t.Errorf("size = %dx%d, want 120x40", um.width, um.height)
	}
}

func TestUpdate_LogToggle(t *testing.T) {
	m := newTestModel(nil)
	if !m.showLog {
		t.Fatal("log should start visible")
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	if updated.(Model).showLog {
		t.Error("l did not hide the log")
	}
}

func TestUpdate_QuitMsg(t *testing.T) {
	m := newTestModel(nil)
	updated, cmd := m.Update(QuitMsg{})
	if !updated.(Model).quitting {
		t.Error("QuitMsg did not set quitting")
	}
	if cmd == nil {
		t.Error("QuitMsg returned nil cmd")
	}
}

// ============================================================================
// View tests
// ============================================================================

func TestView_ShowsWorkerState(t *testing.T) {
	src := &fakeSource{status: runningStatus()}
	m := newTestModel(src)
	updated, _ := m.Update(TickMsg(time.Now()))

	view := updated.(Model).View()
	for _, want := range []string{
		"go-moshi-deploy",
		"running",
		"4242",
		"1.6b",
		"standalone worker listening",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_SmokeSection(t *testing.T) {
	status := runningStatus()
	status.Smoke = &stats.SmokeResult{
		ConnectTime:  40 * time.Millisecond,
		TTFB:         350 * time.Millisecond,
		Wall:         2 * time.Second,
		AudioSeconds: 3.5,
		RTF:          0.57,
	}
	src := &fakeSource{status: status}
	m := newTestModel(src)
	updated, _ := m.Update(TickMsg(time.Now()))

	view := updated.(Model).View()
	for _, want := range []string{"Smoke Test", "350 ms", "3.50s", "0.570"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_WorkerMetricsSection(t *testing.T) {
	status := runningStatus()
	status.Worker = &metrics.WorkerMetrics{
		CPUPercent:  42.5,
		ResidentMem: 2_500_000_000,
		Healthy:     true,
	}
	src := &fakeSource{status: status}
	m := newTestModel(src)
	updated, _ := m.Update(TickMsg(time.Now()))

	view := updated.(Model).View()
	for _, want := range []string{"Worker Metrics", "42.5%", "2.50 GB"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_QuittingIsEmpty(t *testing.T) {
	m := newTestModel(nil)
	m.quitting = true
	if v := m.View(); v != "" {
		t.Errorf("quitting view = %q, want empty", v)
	}
}

// ============================================================================
// Style selection
// ============================================================================

func TestStateStyle(t *testing.T) {
	running := stateStyle(supervisor.StateRunning)
	failed := stateStyle(supervisor.StateFailed)
	if running.GetForeground() == failed.GetForeground() {
		t.Error("running and failed states share a foreground color")
	}
}

func TestRTFStyleBoundaries(t *testing.T) {
	// Values on either side of 1.0 must not share a style
	good := rtfStyle(0.9)
	warn := rtfStyle(1.2)
	bad := rtfStyle(2.0)
	if good.GetForeground() == bad.GetForeground() {
		t.Error("rtf 0.9 and 2.0 share a foreground color")
	}
	if warn.GetForeground() == bad.GetForeground() {
		t.Error("rtf 1.2 and 2.0 share a foreground color")
	}
}

// ============================================================================
// Formatting helpers
// ============================================================================

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{65 * time.Second, "00:01:05"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "02:03:04"},
	}
	for _, tc := range testCases {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{2_500, "2.50 KB"},
		{3_000_000, "3.00 MB"},
		{6_500_000_000, "6.50 GB"},
	}
	for _, tc := range testCases {
		if got := formatBytes(tc.n); got != tc.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	if got := formatMs(350 * time.Millisecond); got != "350 ms" {
		t.Errorf("formatMs = %q", got)
	}
	if got := formatMs(500 * time.Microsecond); got != "500 µs" {
		t.Errorf("formatMs sub-millisecond = %q", got)
	}
}
