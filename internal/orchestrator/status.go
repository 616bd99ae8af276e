package orchestrator

import (
	"fmt"
	"time"

	"github.com/clatterbridge/go-moshi-deploy/internal/metrics"
	"github.com/clatterbridge/go-moshi-deploy/internal/stats"
	"github.com/clatterbridge/go-moshi-deploy/internal/supervisor"
)

// Version is stamped by the build; main overrides it via SetVersion.
var Version = "dev"

// SetVersion records the build version for metrics and banners.
func SetVersion(v string) {
	if v != "" {
		Version = v
	}
}

// Status is a point-in-time snapshot of the deployment for display.
type Status struct {
	State         supervisor.State
	PID           int
	Uptime        time.Duration
	ReadinessWait time.Duration
	Elapsed       time.Duration

	Model    string
	Endpoint string

	Smoke     *stats.SmokeResult
	BenchRuns int

	Worker *metrics.WorkerMetrics

	RecentLog []string
	LogErrors int
}

// Status returns the current snapshot. Safe to call from the TUI
// goroutine while Run is in flight.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	s := Status{
		Model:     o.config.Model,
		Endpoint:  fmt.Sprintf("%s:%d", dialAddr(o.config.Addr), o.config.Port),
		Elapsed:   time.Since(o.startTime),
		Smoke:     o.smoke,
		BenchRuns: o.bench.Runs(),
		RecentLog: o.logHandler.RecentLines(8),
		LogErrors: sumCounts(o.logHandler.CountErrors()),
	}
	if o.scraper != nil {
		s.Worker = o.scraper.GetMetrics()
	}
	if o.handle != nil {
		s.State = o.handle.State()
		s.PID = o.handle.PID()
		s.Uptime = o.handle.Uptime()
	}
	if o.waitResult != nil && o.waitResult.Outcome == supervisor.OutcomeReady {
		s.ReadinessWait = o.waitResult.Waited
	}
	return s
}
