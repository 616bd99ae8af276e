package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/clatterbridge/go-moshi-deploy/internal/supervisor"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// render draws the deployment dashboard.
func (m Model) render() string {
	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderWorkerSection())

	if m.status.Smoke != nil || m.status.BenchRuns > 0 {
		sections = append(sections, m.renderSmokeSection())
	}
	if m.status.Worker != nil {
		sections = append(sections, m.renderWorkerMetricsSection())
	}
	if m.showLog && len(m.status.RecentLog) > 0 {
		sections = append(sections, m.renderLogSection())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-moshi-deploy │ %s │ %s │ Elapsed: %s ",
		m.endpoint,
		stateStyle(m.status.State).Render(m.status.State.String()),
		formatDuration(m.status.Elapsed),
	)
	return headerStyle.Render(header)
}

// =============================================================================
// Worker Section
// =============================================================================

func (m Model) renderWorkerSection() string {
	var lines []string

	lines = append(lines, sectionHeaderStyle.Render("Worker"))

	if m.status.PID > 0 {
		lines = append(lines, RenderKeyValue("PID", fmt.Sprintf("%d", m.status.PID)))
		lines = append(lines, RenderKeyValue("Uptime", formatDuration(m.status.Uptime)))
	}
	lines = append(lines, RenderKeyValue("Model", m.status.Model))
	if m.status.ReadinessWait > 0 {
		lines = append(lines, RenderKeyValue("Time to ready", formatSeconds(m.status.ReadinessWait)))
	}
	if m.status.LogErrors > 0 {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Log errors:"),
			statusError.Render(fmt.Sprintf("%d", m.status.LogErrors)),
		))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// =============================================================================
// Smoke Test Section
// =============================================================================

func (m Model) renderSmokeSection() string {
	var lines []string

	lines = append(lines, sectionHeaderStyle.Render("Smoke Test"))

	if s := m.status.Smoke; s != nil {
		lines = append(lines, RenderKeyValue("Connect", formatMs(s.ConnectTime)))
		lines = append(lines, RenderKeyValue("First audio", formatMs(s.TTFB)))
		lines = append(lines, RenderKeyValue("Audio generated", fmt.Sprintf("%.2fs", s.AudioSeconds)))
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("RTF:"),
			rtfStyle(s.RTF).Render(fmt.Sprintf("%.3f", s.RTF)),
		))
	} else {
		lines = append(lines, mutedStyle.Render("  pending..."))
	}
	if m.status.BenchRuns > 0 {
		lines = append(lines, RenderKeyValue("Bench runs", fmt.Sprintf("%d", m.status.BenchRuns)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// =============================================================================
// Worker Metrics Section
// =============================================================================

func (m Model) renderWorkerMetricsSection() string {
	var lines []string
	w := m.status.Worker

	header := sectionHeaderStyle.Render("Worker Metrics")
	if !w.Healthy {
		header = lipgloss.JoinHorizontal(lipgloss.Left,
			header, " ", statusWarning.Render("(scrape failing)"))
	}
	lines = append(lines, header)

	lines = append(lines, RenderKeyValue("CPU", fmt.Sprintf("%.1f%%", w.CPUPercent)))
	lines = append(lines, RenderKeyValue("Memory (RSS)", formatBytes(w.ResidentMem)))
	if w.OpenFDs > 0 {
		lines = append(lines, RenderKeyValue("Open FDs", fmt.Sprintf("%d", w.OpenFDs)))
	}
	if w.ActiveSessions > 0 || w.RequestsTotal > 0 {
		lines = append(lines, RenderKeyValue("Sessions", fmt.Sprintf("%d", w.ActiveSessions)))
		lines = append(lines, RenderKeyValue("Requests", fmt.Sprintf("%d", w.RequestsTotal)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// =============================================================================
// Worker Log Section
// =============================================================================

func (m Model) renderLogSection() string {
	var lines []string

	lines = append(lines, sectionHeaderStyle.Render("Worker Log"))

	maxWidth := m.width - 4
	if maxWidth < 20 {
		maxWidth = 20
	}
	for _, line := range m.status.RecentLog {
		if len(line) > maxWidth {
			line = line[:maxWidth-3] + "..."
		}
		lines = append(lines, dimStyle.Render("  "+line))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	parts := []string{}
	if m.metricsAddr != "" {
		parts = append(parts, fmt.Sprintf("metrics %s", m.metricsAddr))
	}
	parts = append(parts, "q: quit", "l: toggle log", "r: refresh")

	return footerStyle.Render(strings.Join(parts, "  │  "))
}

// =============================================================================
// Style Selection
// =============================================================================

// stateStyle picks a status style for a worker lifecycle state.
func stateStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateReady, supervisor.StateRunning:
		return statusOK
	case supervisor.StateStarting, supervisor.StateStopping:
		return statusInfo
	case supervisor.StateFailed, supervisor.StateTimedOut:
		return statusError
	default:
		return statusWarning
	}
}

// rtfStyle colors the real-time factor. Under 1.0 the worker generates
// audio faster than it plays back.
func rtfStyle(rtf float64) lipgloss.Style {
	switch {
	case rtf == 0:
		return mutedStyle
	case rtf <= 1.0:
		return valueGoodStyle
	case rtf <= 1.5:
		return valueWarnStyle
	default:
		return valueBadStyle
	}
}
