// Package metrics provides Prometheus metrics for go-moshi-deploy.
//
// The deployer exports its own lifecycle metrics and, optionally,
// re-exports a few gauges scraped from the worker's metrics endpoint.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// workerStates lists every state label the worker_state gauge carries.
// Exactly one has value 1 at any time.
var workerStates = []string{
	"created", "starting", "ready", "running",
	"timed_out", "failed", "stopping", "stopped",
}

// --- Deployment overview ---
var (
	deployInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moshi_deploy_info",
			Help: "Information about the deployment (value always 1)",
		},
		[]string{"version", "binary", "model"},
	)

	deployElapsedSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moshi_deploy_elapsed_seconds",
			Help: "Seconds since the deployer started",
		},
	)
)

// --- Worker lifecycle ---
var (
	workerUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moshi_deploy_worker_up",
			Help: "1 while the worker process is alive",
		},
	)

	workerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "moshi_deploy_worker_state",
			Help: "Worker lifecycle state (one state has value 1)",
		},
		[]string{"state"},
	)

	workerUptimeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moshi_deploy_worker_uptime_seconds",
			Help: "Seconds since the worker process started",
		},
	)

	readinessWaitSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moshi_deploy_readiness_wait_seconds",
			Help: "Seconds the worker took to become ready (0 until ready)",
		},
	)

	workerStartsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moshi_deploy_worker_starts_total",
			Help: "Total worker process launches",
		},
	)

	workerExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moshi_deploy_worker_exits_total",
			Help: "Total worker exits by exit code",
		},
		[]string{"exit_code"},
	)

	workerLogErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moshi_deploy_worker_log_errors_total",
			Help: "Error lines observed in the worker log",
		},
	)
)

// --- Assets ---
var (
	assetBytesFetchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moshi_deploy_asset_bytes_fetched_total",
			Help: "Bytes downloaded from the model hub",
		},
	)

	assetCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moshi_deploy_asset_cache_hits_total",
			Help: "Assets served from the local cache",
		},
	)
)

// --- Smoke test / benchmark ---
var (
	smokeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moshi_deploy_smoke_runs_total",
			Help: "Smoke test requests by result",
		},
		[]string{"result"},
	)

	smokeTTFBSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moshi_deploy_smoke_ttfb_seconds",
			Help:    "Time to first audio frame",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	smokeRTF = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moshi_deploy_smoke_rtf",
			Help:    "Real-time factor (wall time / audio duration)",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 5},
		},
	)
)

// Collector owns the deployer's metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry
	start    time.Time

	mu           sync.Mutex
	currentState string
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		start:    time.Now(),
	}

	c.registry.MustRegister(
		deployInfo,
		deployElapsedSeconds,
		workerUp,
		workerState,
		workerUptimeSeconds,
		readinessWaitSeconds,
		workerStartsTotal,
		workerExitsTotal,
		workerLogErrorsTotal,
		assetBytesFetchedTotal,
		assetCacheHitsTotal,
		smokeRunsTotal,
		smokeTTFBSeconds,
		smokeRTF,
	)

	for _, s := range workerStates {
		workerState.WithLabelValues(s).Set(0)
	}

	return c
}

// Registry returns the registry for the metrics HTTP server.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// SetInfo records static deployment labels.
func (c *Collector) SetInfo(version, binary, model string) {
	deployInfo.WithLabelValues(version, binary, model).Set(1)
}

// SetWorkerState flips the state gauge to the given state.
func (c *Collector) SetWorkerState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.currentState != "" {
		workerState.WithLabelValues(c.currentState).Set(0)
	}
	workerState.WithLabelValues(state).Set(1)
	c.currentState = state
}

// SetWorkerUp records process liveness.
func (c *Collector) SetWorkerUp(up bool) {
	if up {
		workerUp.Set(1)
	} else {
		workerUp.Set(0)
	}
}

// SetWorkerUptime updates the uptime gauge.
func (c *Collector) SetWorkerUptime(d time.Duration) {
	workerUptimeSeconds.Set(d.Seconds())
}

// SetReadinessWait records how long the worker took to become ready.
func (c *Collector) SetReadinessWait(d time.Duration) {
	readinessWaitSeconds.Set(d.Seconds())
}

// RecordWorkerStart counts a launch.
func (c *Collector) RecordWorkerStart() {
	workerStartsTotal.Inc()
}

// RecordWorkerExit counts an exit by code.
func (c *Collector) RecordWorkerExit(code int) {
	workerExitsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

// RecordLogError counts an error line from the worker log.
func (c *Collector) RecordLogError() {
	workerLogErrorsTotal.Inc()
}

// RecordAssetFetch counts one asset: bytes downloaded, or a cache hit.
func (c *Collector) RecordAssetFetch(bytes int64, cached bool) {
	if cached {
		assetCacheHitsTotal.Inc()
		return
	}
	assetBytesFetchedTotal.Add(float64(bytes))
}

// RecordSmokeRun records one smoke request's outcome and timings.
func (c *Collector) RecordSmokeRun(ok bool, ttfb time.Duration, rtf float64) {
	if !ok {
		smokeRunsTotal.WithLabelValues("failure").Inc()
		return
	}
	smokeRunsTotal.WithLabelValues("success").Inc()
	smokeTTFBSeconds.Observe(ttfb.Seconds())
	smokeRTF.Observe(rtf)
}

// UpdateElapsed refreshes the elapsed-time gauge.
func (c *Collector) UpdateElapsed() {
	deployElapsedSeconds.Set(time.Since(c.start).Seconds())
}
